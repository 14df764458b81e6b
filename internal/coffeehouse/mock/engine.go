// Package mock provides an in-process CoffeeHouse engine for development and
// tests. Its answers are deterministic keyword heuristics, not models.
package mock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/intellivoid/coffeehouse-api/internal/coffeehouse"
)

// Engine is a mock engine implementing coffeehouse.Engine and coffeehouse.Lydia
type Engine struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable failures for testing
	Err         error // Returned by every call when set
	Unavailable bool  // Every call fails with coffeehouse.ErrUnavailable

	// Call tracking for testing
	calls    map[string]int
	sessions map[string]*coffeehouse.Session
}

// New creates a new mock engine
func New(logger *slog.Logger) *Engine {
	return &Engine{
		logger:   logger,
		calls:    make(map[string]int),
		sessions: make(map[string]*coffeehouse.Session),
	}
}

// Calls returns how many times operation was invoked
func (e *Engine) Calls(operation string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[operation]
}

// SetFailure configures the error every subsequent call returns
func (e *Engine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Err = err
}

func (e *Engine) begin(ctx context.Context, operation string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[operation]++

	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Unavailable {
		return coffeehouse.WrapError(operation, coffeehouse.ErrUnavailable)
	}
	if e.Err != nil {
		return e.Err
	}
	return nil
}

var (
	positiveWords = []string{"love", "great", "good", "happy", "excellent", "awesome", "nice", "wonderful"}
	negativeWords = []string{"hate", "bad", "terrible", "awful", "sad", "horrible", "worst", "angry"}
	spamWords     = []string{"free", "winner", "click", "prize", "offer", "unsubscribe", "$$$"}
	emotionWords  = map[string][]string{
		"happiness": {"happy", "glad", "joy", "love", "great"},
		"sadness":   {"sad", "cry", "miss", "lonely"},
		"anger":     {"angry", "hate", "furious", "mad"},
		"fear":      {"afraid", "scared", "fear", "terrified"},
		"surprise":  {"wow", "surprised", "unexpected"},
	}
	languageWords = map[string][]string{
		"en": {"the", "and", "is", "you", "this", "hello", "love", "i"},
		"es": {"el", "la", "que", "hola", "es", "y", "amor"},
		"fr": {"le", "les", "est", "bonjour", "et", "je", "amour"},
		"de": {"der", "die", "und", "ist", "hallo", "ich", "liebe"},
	}
)

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '$'
	})
}

func countMatches(tokens []string, vocabulary []string) int {
	n := 0
	for _, t := range tokens {
		for _, v := range vocabulary {
			if t == v {
				n++
			}
		}
	}
	return n
}

// normalize turns raw scores into probabilities and picks the top label.
func normalize(scores map[string]float64) *coffeehouse.Classification {
	total := 0.0
	for _, s := range scores {
		total += s
	}
	out := &coffeehouse.Classification{Predictions: make(map[string]float64, len(scores))}
	best := -1.0
	for label, s := range scores {
		p := s / total
		out.Predictions[label] = p
		if p > best || (p == best && label < out.Label) {
			best = p
			out.Label = label
		}
	}
	return out
}

// Sentiment scores text by counting positive and negative keywords
func (e *Engine) Sentiment(ctx context.Context, text string) (*coffeehouse.Classification, error) {
	if err := e.begin(ctx, "sentiment"); err != nil {
		return nil, err
	}
	tokens := words(text)
	return normalize(map[string]float64{
		"positive": 1 + 2*float64(countMatches(tokens, positiveWords)),
		"negative": 1 + 2*float64(countMatches(tokens, negativeWords)),
		"neutral":  1.5,
	}), nil
}

// Emotion scores text against small emotion vocabularies
func (e *Engine) Emotion(ctx context.Context, text string) (*coffeehouse.Classification, error) {
	if err := e.begin(ctx, "emotion"); err != nil {
		return nil, err
	}
	tokens := words(text)
	scores := map[string]float64{"neutral": 1.5}
	for emotion, vocabulary := range emotionWords {
		scores[emotion] = 1 + 2*float64(countMatches(tokens, vocabulary))
	}
	return normalize(scores), nil
}

// DetectLanguage guesses the language from common function words
func (e *Engine) DetectLanguage(ctx context.Context, text string) (*coffeehouse.Classification, error) {
	if err := e.begin(ctx, "language_detection"); err != nil {
		return nil, err
	}
	tokens := words(text)
	scores := make(map[string]float64, len(languageWords))
	hits := 0
	for lang, vocabulary := range languageWords {
		n := countMatches(tokens, vocabulary)
		hits += n
		scores[lang] = 0.25 + float64(n)
	}
	if hits == 0 {
		return nil, coffeehouse.WrapError("language_detection", coffeehouse.ErrLanguageUnidentifiable)
	}
	return normalize(scores), nil
}

// SpamPrediction flags text containing common spam keywords
func (e *Engine) SpamPrediction(ctx context.Context, text string) (*coffeehouse.Classification, error) {
	if err := e.begin(ctx, "spam_prediction"); err != nil {
		return nil, err
	}
	n := float64(countMatches(words(text), spamWords))
	return normalize(map[string]float64{
		"ham":  2,
		"spam": 0.5 + 2*n,
	}), nil
}

// NamedEntities tags capitalised words as PERSON, four digit numbers as
// DATE and all-caps words as MISC
func (e *Engine) NamedEntities(ctx context.Context, text string) ([]coffeehouse.Entity, error) {
	if err := e.begin(ctx, "named_entities"); err != nil {
		return nil, err
	}

	var entities []coffeehouse.Entity
	for _, span := range spans(text) {
		raw := text[span[0]:span[1]]
		word := strings.Trim(raw, ".,!?;:\"'()")
		if word == "" {
			continue
		}
		start := span[0] + strings.Index(raw, word)
		entity := coffeehouse.Entity{Text: word, Start: start, End: start + len(word)}
		switch {
		case len(word) == 4 && isDigits(word):
			entity.Type = "DATE"
		case len(word) > 1 && strings.ToUpper(word) == word && hasLetter(word):
			entity.Type = "MISC"
		case unicode.IsUpper([]rune(word)[0]):
			entity.Type = "PERSON"
		default:
			continue
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// PartOfSpeech assigns coarse tags by word shape
func (e *Engine) PartOfSpeech(ctx context.Context, text string) ([]coffeehouse.Token, error) {
	if err := e.begin(ctx, "pos_tagging"); err != nil {
		return nil, err
	}

	var tokens []coffeehouse.Token
	for _, span := range spans(text) {
		word := text[span[0]:span[1]]
		tag := "NN"
		lower := strings.ToLower(word)
		switch {
		case isDigits(word):
			tag = "CD"
		case lower == "the" || lower == "a" || lower == "an":
			tag = "DT"
		case lower == "is" || lower == "are" || lower == "was" || strings.HasSuffix(lower, "ing"):
			tag = "VB"
		case strings.HasSuffix(lower, "ly"):
			tag = "RB"
		case unicode.IsUpper([]rune(word)[0]):
			tag = "NNP"
		}
		tokens = append(tokens, coffeehouse.Token{Text: word, Tag: tag})
	}
	return tokens, nil
}

// SplitSentences splits on terminal punctuation
func (e *Engine) SplitSentences(ctx context.Context, text string) ([]coffeehouse.Sentence, error) {
	if err := e.begin(ctx, "sentence_split"); err != nil {
		return nil, err
	}

	var sentences []coffeehouse.Sentence
	start := 0
	flush := func(end int) {
		raw := text[start:end]
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			offset := start + strings.Index(raw, trimmed)
			sentences = append(sentences, coffeehouse.Sentence{Text: trimmed, Offset: offset})
		}
		start = end
	}
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			flush(i + 1)
		}
	}
	flush(len(text))
	return sentences, nil
}

// ClassifyNSFW returns a safe score for every image
func (e *Engine) ClassifyNSFW(ctx context.Context, image []byte, contentType string) (*coffeehouse.NSFWResult, error) {
	if err := e.begin(ctx, "nsfw_classification"); err != nil {
		return nil, err
	}
	return &coffeehouse.NSFWResult{SafePrediction: 0.97, UnsafePrediction: 0.03, IsNSFW: false}, nil
}

// CreateSession starts an in-memory session
func (e *Engine) CreateSession(ctx context.Context, language string) (*coffeehouse.Session, error) {
	if err := e.begin(ctx, "create_session"); err != nil {
		return nil, err
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	session := &coffeehouse.Session{
		ID:        hex.EncodeToString(buf),
		Language:  language,
		Available: true,
		Expires:   now.Add(time.Hour),
		CreatedAt: now,
	}

	e.mu.Lock()
	e.sessions[session.ID] = session
	e.mu.Unlock()

	e.logger.Debug("mock lydia session created", "session_id", session.ID, "language", language)
	return session, nil
}

// Think echoes input back from a known session
func (e *Engine) Think(ctx context.Context, sessionID, input string) (*coffeehouse.ThinkResult, error) {
	if err := e.begin(ctx, "think"); err != nil {
		return nil, err
	}

	e.mu.Lock()
	session, ok := e.sessions[sessionID]
	e.mu.Unlock()
	if !ok || time.Now().After(session.Expires) {
		return nil, coffeehouse.WrapError("think", coffeehouse.ErrSessionNotFound)
	}

	return &coffeehouse.ThinkResult{
		SessionID: sessionID,
		Output:    "You said: " + input,
	}, nil
}

// spans returns the byte offsets of whitespace separated words.
func spans(text string) [][2]int {
	var out [][2]int
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, [2]int{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, [2]int{start, len(text)})
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
