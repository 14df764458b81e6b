package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/coffeehouse"
	"github.com/intellivoid/coffeehouse-api/internal/domain"
	"github.com/intellivoid/coffeehouse-api/internal/service"
)

// DefaultLydiaLanguage is used when create_session has no language.
const DefaultLydiaLanguage = "en"

// LydiaHandler serves the conversational bot endpoints.
type LydiaHandler struct {
	lydia     coffeehouse.Lydia
	sessions  *service.LydiaSessions
	meter     *Meter
	responder *Responder
	logger    *slog.Logger
	timeout   time.Duration
}

// NewLydiaHandler creates a new LydiaHandler.
func NewLydiaHandler(
	lydia coffeehouse.Lydia,
	sessions *service.LydiaSessions,
	meter *Meter,
	responder *Responder,
	logger *slog.Logger,
	timeout time.Duration,
) *LydiaHandler {
	return &LydiaHandler{
		lydia:     lydia,
		sessions:  sessions,
		meter:     meter,
		responder: responder,
		logger:    logger,
		timeout:   timeout,
	}
}

// RegisterRoutes registers the Lydia routes.
//
// Routes:
// - POST /v1/coffeehouse/lydia/create_session -> CreateSession
// - POST /v1/coffeehouse/lydia/think          -> Think
func (h *LydiaHandler) RegisterRoutes(mux *http.ServeMux, requireAccess func(http.Handler) http.Handler) {
	mux.Handle("POST /v1/coffeehouse/lydia/create_session", requireAccess(http.HandlerFunc(h.CreateSession)))
	mux.Handle("POST /v1/coffeehouse/lydia/think", requireAccess(http.HandlerFunc(h.Think)))
}

// CreateSession handles POST /v1/coffeehouse/lydia/create_session
func (h *LydiaHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	const op = "lydia.create_session"

	req, err := h.meter.Begin(r, domain.FeatureLydiaSessions)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	params, err := RequestParams(r)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	language := strings.ToLower(strings.TrimSpace(params.Get("target_language")))
	if language == "" {
		language = strings.ToLower(strings.TrimSpace(params.Get("language")))
	}
	if language == "" {
		language = DefaultLydiaLanguage
	}

	ctx, cancel := callContext(r.Context(), h.timeout)
	session, err := h.lydia.CreateSession(ctx, language)
	cancel()
	if err != nil {
		h.responder.Error(w, r, EngineError(op, err))
		return
	}

	if err := h.sessions.Register(r.Context(), req.Record, session.ID, session.Language, session.Expires); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	if err := h.meter.Commit(r.Context(), req, domain.FeatureLydiaSessions); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	h.logger.Info("lydia session created",
		"access_record_id", req.Record.ID,
		"session_id", session.ID,
		"language", session.Language,
	)
	h.responder.Results(w, http.StatusOK, session)
}

// Think handles POST /v1/coffeehouse/lydia/think
//
// Thinking is not metered; sessions are. Only the access record that
// created a session may think in it.
func (h *LydiaHandler) Think(w http.ResponseWriter, r *http.Request) {
	const op = "lydia.think"

	req, err := requireAccess(r)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	params, err := RequestParams(r)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	sessionID := strings.TrimSpace(params.Get("session_id"))
	if sessionID == "" {
		h.responder.Error(w, r, domain.Invalid(op, domain.ErrCodeMissingSession, "A session ID is required"))
		return
	}

	input := service.NormalizeInput(params.Get("input"))
	if strings.TrimSpace(input) == "" {
		h.responder.Error(w, r, domain.Invalid(op, domain.ErrCodeInputEmpty, "The input cannot be empty"))
		return
	}

	if _, err := h.sessions.Authorize(r.Context(), req.Record, sessionID); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	ctx, cancel := callContext(r.Context(), h.timeout)
	result, err := h.lydia.Think(ctx, sessionID, input)
	cancel()
	if err != nil {
		h.responder.Error(w, r, EngineError(op, err))
		return
	}

	h.responder.Results(w, http.StatusOK, result)
}
