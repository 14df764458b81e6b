// Package coffeehouse defines the interfaces to the CoffeeHouse NLP engine
// and the Lydia conversational bot.
package coffeehouse

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Engine runs the CoffeeHouse NLP and image models.
type Engine interface {
	// Sentiment classifies text as positive, neutral or negative
	Sentiment(ctx context.Context, text string) (*Classification, error)

	// Emotion classifies the dominant emotion of text
	Emotion(ctx context.Context, text string) (*Classification, error)

	// DetectLanguage identifies the language of text. Returns
	// ErrLanguageUnidentifiable when no language scores high enough.
	DetectLanguage(ctx context.Context, text string) (*Classification, error)

	// SpamPrediction classifies text as ham or spam
	SpamPrediction(ctx context.Context, text string) (*Classification, error)

	// NamedEntities extracts named entities from text
	NamedEntities(ctx context.Context, text string) ([]Entity, error)

	// PartOfSpeech tags each token of text
	PartOfSpeech(ctx context.Context, text string) ([]Token, error)

	// SplitSentences splits text into sentences
	SplitSentences(ctx context.Context, text string) ([]Sentence, error)

	// ClassifyNSFW scores an image for unsafe content
	ClassifyNSFW(ctx context.Context, image []byte, contentType string) (*NSFWResult, error)
}

// Lydia is the conversational bot engine.
type Lydia interface {
	// CreateSession starts a conversation in the given language
	CreateSession(ctx context.Context, language string) (*Session, error)

	// Think sends input to a session and returns the bot's reply. Returns
	// ErrSessionNotFound for unknown or expired sessions.
	Think(ctx context.Context, sessionID, input string) (*ThinkResult, error)
}

// Classification is the result of a text classifier.
type Classification struct {
	Label       string             `json:"label"`       // Highest scoring label
	Predictions map[string]float64 `json:"predictions"` // Probability per label
}

// Entity is a named entity found in text.
type Entity struct {
	Text  string `json:"text"`
	Type  string `json:"type"` // PERSON, LOCATION, ORGANIZATION, DATE, TIME, ...
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Token is a word with its part-of-speech tag.
type Token struct {
	Text string `json:"text"`
	Tag  string `json:"tag"`
}

// Sentence is one sentence of split text.
type Sentence struct {
	Text   string `json:"text"`
	Offset int    `json:"offset"`
}

// NSFWResult scores an image.
type NSFWResult struct {
	SafePrediction   float64 `json:"safe_prediction"`
	UnsafePrediction float64 `json:"unsafe_prediction"`
	IsNSFW           bool    `json:"is_nsfw"`
}

// Session is a Lydia conversation.
type Session struct {
	ID        string    `json:"session_id"`
	Language  string    `json:"language"`
	Available bool      `json:"available"`
	Expires   time.Time `json:"expires"`
	CreatedAt time.Time `json:"created"`
}

// ThinkResult is the bot's reply to one input.
type ThinkResult struct {
	SessionID string `json:"session_id"`
	Output    string `json:"output"`
}

// ClientConfig contains common configuration for engine clients
type ClientConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for engine operations
var (
	// ErrUnavailable indicates the engine is not ready or unreachable
	ErrUnavailable = errors.New("coffeehouse engine unavailable")

	// ErrRateLimit indicates the engine is shedding load
	ErrRateLimit = errors.New("coffeehouse engine rate limit exceeded")

	// ErrTimeout indicates the engine did not answer in time
	ErrTimeout = errors.New("coffeehouse engine request timed out")

	// ErrUnauthorized indicates the engine rejected our credentials
	ErrUnauthorized = errors.New("coffeehouse engine authentication failed")

	// ErrInvalidInput indicates the engine rejected the input
	ErrInvalidInput = errors.New("coffeehouse engine rejected input")

	// ErrSessionNotFound indicates the Lydia session does not exist
	ErrSessionNotFound = errors.New("lydia session not found")

	// ErrLanguageUnidentifiable indicates no language could be detected
	ErrLanguageUnidentifiable = errors.New("language could not be identified")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable)
}

// WrapError wraps an error with context about the engine operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("coffeehouse %s: %w", operation, err)
}
