package service

import (
	"fmt"
	"log/slog"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
	"github.com/intellivoid/coffeehouse-api/internal/metrics"
)

// =============================================================================
// Quota Gate
// =============================================================================

// QuotaGate checks usage counters against plan limits using the static
// feature table in domain.Features.
//
// The gate is advisory: Check never consumes quota. Handlers call Increment
// only after the guarded operation succeeded, and the per-key lock held by
// the access middleware keeps check and increment from interleaving with
// another request for the same key.
type QuotaGate struct {
	logger *slog.Logger
}

// NewQuotaGate creates a new QuotaGate.
func NewQuotaGate(logger *slog.Logger) *QuotaGate {
	return &QuotaGate{logger: logger}
}

// Check reports whether rec may use feature once more. An absent counter is
// initialised to 0. A limit that is absent or <= 0 means unlimited. Unknown
// features are denied.
func (q *QuotaGate) Check(rec *domain.AccessRecord, feature domain.FeatureName) bool {
	quota, ok := domain.Features[feature]
	if !ok {
		return false
	}

	if rec.Variables == nil {
		rec.Variables = make(domain.Variables)
	}
	if !rec.Variables.Has(quota.Counter) {
		rec.Variables.SetInt(quota.Counter, 0)
	}

	limit, _ := rec.Variables.Int(quota.Limit)
	if limit <= 0 {
		return true
	}

	used, _ := rec.Variables.Int(quota.Counter)
	return used < limit
}

// Require is Check returning the fixed quota error (error code 6, HTTP 429)
// when the feature is exhausted.
func (q *QuotaGate) Require(rec *domain.AccessRecord, feature domain.FeatureName) error {
	const op = "quota.require"

	if _, ok := domain.Features[feature]; !ok {
		return domain.Internal(fmt.Errorf("unknown feature %q", feature), op, "unknown quota feature")
	}

	if q.Check(rec, feature) {
		return nil
	}

	quota := domain.Features[feature]
	used, _ := rec.Variables.Int(quota.Counter)
	limit, _ := rec.Variables.Int(quota.Limit)
	q.logger.Info("Feature quota exceeded",
		"access_record_id", rec.ID,
		"feature", feature,
		"used", used,
		"limit", limit,
	)
	metrics.QuotaDenied(string(feature))
	return domain.QuotaExceeded(op, feature)
}

// Increment commits one use of feature on rec. The caller persists rec.
func (q *QuotaGate) Increment(rec *domain.AccessRecord, feature domain.FeatureName) {
	quota, ok := domain.Features[feature]
	if !ok {
		return
	}
	if rec.Variables == nil {
		rec.Variables = make(domain.Variables)
	}
	used, _ := rec.Variables.Int(quota.Counter)
	rec.Variables.SetInt(quota.Counter, used+1)
	metrics.FeatureUsed(string(feature))
}

// Usage returns the current usage of every metered feature in display order.
func (q *QuotaGate) Usage(rec *domain.AccessRecord) []domain.FeatureUsage {
	out := make([]domain.FeatureUsage, 0, len(domain.FeatureOrder))
	for _, feature := range domain.FeatureOrder {
		quota := domain.Features[feature]
		used, _ := rec.Variables.Int(quota.Counter)
		limit, _ := rec.Variables.Int(quota.Limit)
		out = append(out, domain.FeatureUsage{
			Feature:   feature,
			Used:      used,
			Limit:     limit,
			Unlimited: limit <= 0,
		})
	}
	return out
}
