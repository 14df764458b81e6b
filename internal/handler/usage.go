package handler

import (
	"net/http"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// SubscriptionInfo describes the caller's subscription in usage responses.
type SubscriptionInfo struct {
	Plan             string    `json:"plan"`
	BillingCycle     int64     `json:"billing_cycle"`
	NextBillingCycle time.Time `json:"next_billing_cycle"`
	Renewed          bool      `json:"renewed"`
}

// UsageResults is the response of the usage endpoint.
type UsageResults struct {
	AccessRecordID string                `json:"access_record_id"`
	Subscription   *SubscriptionInfo     `json:"subscription,omitempty"`
	Features       []domain.FeatureUsage `json:"features"`
}

// UsageHandler reports quota usage. It consumes no quota.
type UsageHandler struct {
	meter     *Meter
	responder *Responder
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(meter *Meter, responder *Responder) *UsageHandler {
	return &UsageHandler{meter: meter, responder: responder}
}

// RegisterRoutes registers the usage routes.
//
// Routes:
// - GET  /v1/coffeehouse/subscription/usage -> Usage
// - POST /v1/coffeehouse/subscription/usage -> Usage
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, requireAccess func(http.Handler) http.Handler) {
	mux.Handle("GET /v1/coffeehouse/subscription/usage", requireAccess(http.HandlerFunc(h.Usage)))
	mux.Handle("POST /v1/coffeehouse/subscription/usage", requireAccess(http.HandlerFunc(h.Usage)))
}

// Usage handles /v1/coffeehouse/subscription/usage
func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	req, err := requireAccess(r)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	results := UsageResults{
		AccessRecordID: req.Record.PublicID.String(),
		Features:       h.meter.Usage(req.Record),
	}
	if sub := req.Subscription; sub != nil {
		results.Subscription = &SubscriptionInfo{
			Plan:             sub.Plan,
			BillingCycle:     sub.BillingCycle,
			NextBillingCycle: time.Unix(sub.NextBillingCycle, 0).UTC(),
			Renewed:          req.Renewed,
		}
	}

	h.responder.Results(w, http.StatusOK, results)
}
