package service

import (
	"context"
	"errors"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
	"github.com/intellivoid/coffeehouse-api/internal/repository"
)

// LydiaSessionStore persists Lydia session ownership.
type LydiaSessionStore interface {
	GetLydiaSession(ctx context.Context, id string) (*domain.LydiaSession, error)
	SaveLydiaSession(ctx context.Context, s *domain.LydiaSession) error
}

// LydiaSessions binds Lydia sessions to the access record that created them.
type LydiaSessions struct {
	store   LydiaSessionStore
	timeout time.Duration
}

// NewLydiaSessions creates a LydiaSessions service.
func NewLydiaSessions(store LydiaSessionStore, timeout time.Duration) *LydiaSessions {
	return &LydiaSessions{store: store, timeout: timeout}
}

// Register records rec as the owner of sessionID.
func (s *LydiaSessions) Register(ctx context.Context, rec *domain.AccessRecord, sessionID, language string, expires time.Time) error {
	const op = "lydia.register"

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	err := s.store.SaveLydiaSession(callCtx, &domain.LydiaSession{
		ID:             sessionID,
		AccessRecordID: rec.ID,
		Language:       language,
		ExpiresAt:      expires,
	})
	if err != nil {
		return domain.Internal(err, op, "failed to save lydia session")
	}
	return nil
}

// Authorize returns the session if rec owns it. A session owned by another
// record is reported exactly like a missing one.
func (s *LydiaSessions) Authorize(ctx context.Context, rec *domain.AccessRecord, sessionID string) (*domain.LydiaSession, error) {
	const op = "lydia.authorize"

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.store.GetLydiaSession(callCtx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, sessionNotFound(op)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load lydia session")
	}
	if session.AccessRecordID != rec.ID {
		return nil, sessionNotFound(op)
	}
	return session, nil
}

func sessionNotFound(op string) *domain.Error {
	return domain.NotFound(op, "The requested session was not found").
		WithAPICode(domain.ErrCodeSessionNotFound)
}
