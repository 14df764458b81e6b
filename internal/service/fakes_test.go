package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/intellivoid/coffeehouse-api/internal/billing"
	"github.com/intellivoid/coffeehouse-api/internal/domain"
	"github.com/intellivoid/coffeehouse-api/internal/repository"
)

// =============================================================================
// Test Fakes
// =============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider is an in-memory billing.Provider.
type fakeProvider struct {
	userSub    *domain.UserSubscription
	userSubErr error
	sub        *domain.Subscription
	subErr     error

	billingOK    bool
	billingErr   error
	billingCalls int
}

func (p *fakeProvider) GetUserSubscription(ctx context.Context, accessRecordID int64) (*domain.UserSubscription, error) {
	if p.userSubErr != nil {
		return nil, p.userSubErr
	}
	if p.userSub == nil {
		return nil, billing.ErrNotFound
	}
	return p.userSub, nil
}

func (p *fakeProvider) GetSubscription(ctx context.Context, subscriptionID int64) (*domain.Subscription, error) {
	if p.subErr != nil {
		return nil, p.subErr
	}
	if p.sub == nil {
		return nil, billing.ErrNotFound
	}
	return p.sub, nil
}

func (p *fakeProvider) ProcessSubscriptionBilling(ctx context.Context, subscriptionID int64) (bool, error) {
	p.billingCalls++
	if p.billingErr != nil {
		return false, p.billingErr
	}
	return p.billingOK, nil
}

// fakeStore is an in-memory AccessRecordStore.
type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*domain.AccessRecord
	updates   int
	updateErr error
}

func (s *fakeStore) GetAccessRecord(ctx context.Context, accessKey string) (*domain.AccessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[accessKey]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) UpdateAccessRecord(ctx context.Context, rec *domain.AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates++
	return nil
}

// fakeGeneralizations is an in-memory GeneralizationStore.
type fakeGeneralizations struct {
	items map[uuid.UUID]*domain.Generalization
	saves int
}

func (s *fakeGeneralizations) GetGeneralization(ctx context.Context, id uuid.UUID) (*domain.Generalization, error) {
	g, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return g, nil
}

func (s *fakeGeneralizations) SaveGeneralization(ctx context.Context, g *domain.Generalization) error {
	if s.items == nil {
		s.items = make(map[uuid.UUID]*domain.Generalization)
	}
	s.items[g.ID] = g
	s.saves++
	return nil
}

// fakeLydiaSessions is an in-memory LydiaSessionStore.
type fakeLydiaSessions struct {
	items map[string]*domain.LydiaSession
	err   error
}

func (s *fakeLydiaSessions) GetLydiaSession(ctx context.Context, id string) (*domain.LydiaSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	session, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return session, nil
}

func (s *fakeLydiaSessions) SaveLydiaSession(ctx context.Context, session *domain.LydiaSession) error {
	if s.err != nil {
		return s.err
	}
	if s.items == nil {
		s.items = make(map[string]*domain.LydiaSession)
	}
	s.items[session.ID] = session
	return nil
}

// completePlan returns raw provider features carrying every required key.
func completePlan() []domain.PlanFeatureValue {
	return []domain.PlanFeatureValue{
		{Name: "LYDIA_SESSIONS", Value: float64(50)},
		{Name: "MAX_NLP_CHARACTERS", Value: float64(5000)},
		{Name: "MAX_GENERALIZATION_SIZE", Value: float64(10)},
		{Name: "MAX_NSFW_CHECKS", Value: float64(100)},
		{Name: "LIMITED_NAMED_ENTITIES", Value: false},
		{Name: "MAX_POS_CHECKS", Value: float64(100)},
		{Name: "MAX_SENTIMENT_CHECKS", Value: float64(100)},
		{Name: "MAX_EMOTION_CHECKS", Value: float64(100)},
		{Name: "MAX_SPAM_CHECKS", Value: float64(100)},
		{Name: "MAX_SENTENCE_SPLITS", Value: float64(100)},
		{Name: "MAX_LANGUAGE_CHECKS", Value: float64(100)},
		{Name: "MAX_NER_CHECKS", Value: float64(100)},
	}
}

func completeFeatureSet() domain.FeatureSet {
	return billing.FeaturesToStandardArray(completePlan())
}
