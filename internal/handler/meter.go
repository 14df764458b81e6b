package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/access"
	"github.com/intellivoid/coffeehouse-api/internal/domain"
	"github.com/intellivoid/coffeehouse-api/internal/service"
)

// Meter guards metered features with the caller's quota and records usage
// once the guarded operation has succeeded.
type Meter struct {
	quota   *service.QuotaGate
	store   service.AccessRecordStore
	timeout time.Duration
}

// NewMeter creates a Meter. timeout bounds the store write; zero disables it.
func NewMeter(quota *service.QuotaGate, store service.AccessRecordStore, timeout time.Duration) *Meter {
	return &Meter{quota: quota, store: store, timeout: timeout}
}

// Begin returns the caller's access request, or an error if the caller has
// no quota left for feature.
func (m *Meter) Begin(r *http.Request, feature domain.FeatureName) (*access.Request, error) {
	req, err := requireAccess(r)
	if err != nil {
		return nil, err
	}
	if err := m.quota.Require(req.Record, feature); err != nil {
		return nil, err
	}
	return req, nil
}

// Commit counts one use of feature and persists the record.
func (m *Meter) Commit(ctx context.Context, req *access.Request, feature domain.FeatureName) error {
	const op = "meter.commit"

	m.quota.Increment(req.Record, feature)

	callCtx, cancel := callContext(ctx, m.timeout)
	defer cancel()

	if err := m.store.UpdateAccessRecord(callCtx, req.Record); err != nil {
		return domain.Internal(err, op, "failed to persist usage")
	}
	return nil
}

// Usage returns the caller's usage of every metered feature.
func (m *Meter) Usage(rec *domain.AccessRecord) []domain.FeatureUsage {
	return m.quota.Usage(rec)
}

// requireAccess returns the access request stored by the access middleware.
func requireAccess(r *http.Request) (*access.Request, error) {
	req := access.FromRequest(r)
	if req == nil || req.Record == nil {
		return nil, domain.Unauthorized("access.require", "An access key is required")
	}
	return req, nil
}

func callContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
