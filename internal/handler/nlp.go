package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/access"
	"github.com/intellivoid/coffeehouse-api/internal/coffeehouse"
	"github.com/intellivoid/coffeehouse-api/internal/domain"
	"github.com/intellivoid/coffeehouse-api/internal/service"
)

// limitedEntityTypes are the entity types returned to plans with
// LIMITED_NAMED_ENTITIES set.
var limitedEntityTypes = map[string]bool{
	"PERSON":       true,
	"LOCATION":     true,
	"ORGANIZATION": true,
	"DATE":         true,
	"TIME":         true,
}

// ClassificationResults is the response of the classifier endpoints.
type ClassificationResults struct {
	Label          string                        `json:"label"`
	Predictions    map[string]float64            `json:"predictions"`
	Generalization *service.GeneralizationResult `json:"generalization,omitempty"`
}

// EntityResults is the response of the named entity endpoint.
type EntityResults struct {
	Entities []coffeehouse.Entity `json:"entities"`
	Limited  bool                 `json:"limited"`
}

// TokenResults is the response of the part of speech endpoint.
type TokenResults struct {
	Tokens []coffeehouse.Token `json:"tokens"`
}

// SentenceResults is the response of the sentence split endpoint.
type SentenceResults struct {
	Sentences []coffeehouse.Sentence `json:"sentences"`
}

// NLPHandler serves the text analysis endpoints.
type NLPHandler struct {
	engine      coffeehouse.Engine
	meter       *Meter
	generalizer *service.Generalizer
	responder   *Responder
	logger      *slog.Logger
	timeout     time.Duration
}

// NewNLPHandler creates a new NLPHandler. timeout bounds each engine call.
func NewNLPHandler(
	engine coffeehouse.Engine,
	meter *Meter,
	generalizer *service.Generalizer,
	responder *Responder,
	logger *slog.Logger,
	timeout time.Duration,
) *NLPHandler {
	return &NLPHandler{
		engine:      engine,
		meter:       meter,
		generalizer: generalizer,
		responder:   responder,
		logger:      logger,
		timeout:     timeout,
	}
}

// RegisterRoutes registers the NLP routes.
//
// Routes:
// - POST /v1/coffeehouse/nlp/sentiment          -> Sentiment
// - POST /v1/coffeehouse/nlp/emotion            -> Emotion
// - POST /v1/coffeehouse/nlp/language_detection -> LanguageDetection
// - POST /v1/coffeehouse/nlp/spam_prediction    -> SpamPrediction
// - POST /v1/coffeehouse/nlp/named_entities     -> NamedEntities
// - POST /v1/coffeehouse/nlp/pos_tagging        -> PartOfSpeech
// - POST /v1/coffeehouse/nlp/sentence_split     -> SentenceSplit
func (h *NLPHandler) RegisterRoutes(mux *http.ServeMux, requireAccess func(http.Handler) http.Handler) {
	mux.Handle("POST /v1/coffeehouse/nlp/sentiment", requireAccess(http.HandlerFunc(h.Sentiment)))
	mux.Handle("POST /v1/coffeehouse/nlp/emotion", requireAccess(http.HandlerFunc(h.Emotion)))
	mux.Handle("POST /v1/coffeehouse/nlp/language_detection", requireAccess(http.HandlerFunc(h.LanguageDetection)))
	mux.Handle("POST /v1/coffeehouse/nlp/spam_prediction", requireAccess(http.HandlerFunc(h.SpamPrediction)))
	mux.Handle("POST /v1/coffeehouse/nlp/named_entities", requireAccess(http.HandlerFunc(h.NamedEntities)))
	mux.Handle("POST /v1/coffeehouse/nlp/pos_tagging", requireAccess(http.HandlerFunc(h.PartOfSpeech)))
	mux.Handle("POST /v1/coffeehouse/nlp/sentence_split", requireAccess(http.HandlerFunc(h.SentenceSplit)))
}

// Sentiment handles POST /v1/coffeehouse/nlp/sentiment
func (h *NLPHandler) Sentiment(w http.ResponseWriter, r *http.Request) {
	h.classify(w, r, domain.FeatureSentiment, domain.GeneralizationSentiment, h.engine.Sentiment)
}

// Emotion handles POST /v1/coffeehouse/nlp/emotion
func (h *NLPHandler) Emotion(w http.ResponseWriter, r *http.Request) {
	h.classify(w, r, domain.FeatureEmotion, domain.GeneralizationEmotion, h.engine.Emotion)
}

// LanguageDetection handles POST /v1/coffeehouse/nlp/language_detection
func (h *NLPHandler) LanguageDetection(w http.ResponseWriter, r *http.Request) {
	h.classify(w, r, domain.FeatureLanguageDetection, domain.GeneralizationLanguage, h.engine.DetectLanguage)
}

// SpamPrediction handles POST /v1/coffeehouse/nlp/spam_prediction
func (h *NLPHandler) SpamPrediction(w http.ResponseWriter, r *http.Request) {
	h.classify(w, r, domain.FeatureSpam, "", h.engine.SpamPrediction)
}

// NamedEntities handles POST /v1/coffeehouse/nlp/named_entities
func (h *NLPHandler) NamedEntities(w http.ResponseWriter, r *http.Request) {
	const op = "nlp.named_entities"

	call, ok := h.prepare(w, r, domain.FeatureNER)
	if !ok {
		return
	}

	ctx, cancel := callContext(r.Context(), h.timeout)
	entities, err := h.engine.NamedEntities(ctx, call.input)
	cancel()
	if err != nil {
		h.responder.Error(w, r, EngineError(op, err))
		return
	}

	limited, _ := call.req.Record.Variables.Bool(domain.VarLimitedNamedEntities)
	if limited {
		entities = filterEntities(entities)
	}
	if entities == nil {
		entities = []coffeehouse.Entity{}
	}

	h.finish(w, r, call, EntityResults{Entities: entities, Limited: limited})
}

// PartOfSpeech handles POST /v1/coffeehouse/nlp/pos_tagging
func (h *NLPHandler) PartOfSpeech(w http.ResponseWriter, r *http.Request) {
	const op = "nlp.pos_tagging"

	call, ok := h.prepare(w, r, domain.FeaturePOS)
	if !ok {
		return
	}

	ctx, cancel := callContext(r.Context(), h.timeout)
	tokens, err := h.engine.PartOfSpeech(ctx, call.input)
	cancel()
	if err != nil {
		h.responder.Error(w, r, EngineError(op, err))
		return
	}
	if tokens == nil {
		tokens = []coffeehouse.Token{}
	}

	h.finish(w, r, call, TokenResults{Tokens: tokens})
}

// SentenceSplit handles POST /v1/coffeehouse/nlp/sentence_split
func (h *NLPHandler) SentenceSplit(w http.ResponseWriter, r *http.Request) {
	const op = "nlp.sentence_split"

	call, ok := h.prepare(w, r, domain.FeatureSentenceSplit)
	if !ok {
		return
	}

	ctx, cancel := callContext(r.Context(), h.timeout)
	sentences, err := h.engine.SplitSentences(ctx, call.input)
	cancel()
	if err != nil {
		h.responder.Error(w, r, EngineError(op, err))
		return
	}
	if sentences == nil {
		sentences = []coffeehouse.Sentence{}
	}

	h.finish(w, r, call, SentenceResults{Sentences: sentences})
}

// nlpCall is a request that passed the quota and input checks.
type nlpCall struct {
	req     *access.Request
	feature domain.FeatureName
	params  Params
	input   string
}

// prepare runs the checks shared by every NLP endpoint: quota first, then
// input validation. It writes the error response and returns false when a
// check fails.
func (h *NLPHandler) prepare(w http.ResponseWriter, r *http.Request, feature domain.FeatureName) (*nlpCall, bool) {
	req, err := h.meter.Begin(r, feature)
	if err != nil {
		h.responder.Error(w, r, err)
		return nil, false
	}

	params, err := RequestParams(r)
	if err != nil {
		h.responder.Error(w, r, err)
		return nil, false
	}

	input := params.Get("input")
	if err := service.ValidateNLPInput(req.Record, input); err != nil {
		h.responder.Error(w, r, err)
		return nil, false
	}

	return &nlpCall{
		req:     req,
		feature: feature,
		params:  params,
		input:   service.NormalizeInput(input),
	}, true
}

// finish commits the usage and writes results.
func (h *NLPHandler) finish(w http.ResponseWriter, r *http.Request, call *nlpCall, results any) {
	if err := h.meter.Commit(r.Context(), call.req, call.feature); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.Results(w, http.StatusOK, results)
}

type classifier func(ctx context.Context, text string) (*coffeehouse.Classification, error)

// classify serves a classifier endpoint. An empty kind disables
// generalization for the endpoint.
func (h *NLPHandler) classify(
	w http.ResponseWriter,
	r *http.Request,
	feature domain.FeatureName,
	kind domain.GeneralizationKind,
	fn classifier,
) {
	op := "nlp." + string(feature)

	call, ok := h.prepare(w, r, feature)
	if !ok {
		return
	}

	var gen *domain.Generalization
	if kind != "" && call.params.Bool("generalize") {
		size, _ := call.params.Int("generalization_size")
		resolved, err := h.generalizer.Resolve(r.Context(), call.req.Record, kind, service.GeneralizationRequest{
			ID:   call.params.Get("generalization_id"),
			Size: size,
		})
		if err != nil {
			h.responder.Error(w, r, err)
			return
		}
		gen = resolved
	}

	ctx, cancel := callContext(r.Context(), h.timeout)
	result, err := fn(ctx, call.input)
	cancel()
	if err != nil {
		h.responder.Error(w, r, EngineError(op, err))
		return
	}

	results := ClassificationResults{
		Label:       result.Label,
		Predictions: result.Predictions,
	}
	if gen == nil {
		h.finish(w, r, call, results)
		return
	}

	// Usage is committed before the window advances, so a window never
	// holds a result that was not counted.
	if err := h.meter.Commit(r.Context(), call.req, call.feature); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	averaged, err := h.generalizer.Apply(r.Context(), gen, result.Predictions)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	results.Generalization = averaged
	h.responder.Results(w, http.StatusOK, results)
}

func filterEntities(entities []coffeehouse.Entity) []coffeehouse.Entity {
	out := make([]coffeehouse.Entity, 0, len(entities))
	for _, e := range entities {
		if limitedEntityTypes[e.Type] {
			out = append(out, e)
		}
	}
	return out
}
