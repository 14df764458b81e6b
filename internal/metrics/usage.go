package metrics

import "time"

// ValidationSucceeded records a completed subscription validation.
func ValidationSucceeded() {
	SubscriptionValidationsTotal.WithLabelValues("ok").Inc()
}

// ValidationFailed records a validation that stopped in the given state.
func ValidationFailed(state string) {
	SubscriptionValidationsTotal.WithLabelValues(state).Inc()
}

// BillingAttempt records the result of a renewal charge.
func BillingAttempt(result string) {
	BillingAttemptsTotal.WithLabelValues(result).Inc()
}

// QuotaDenied records a request rejected by a feature quota.
func QuotaDenied(feature string) {
	QuotaDenialsTotal.WithLabelValues(feature).Inc()
}

// FeatureUsed records a committed feature call.
func FeatureUsed(feature string) {
	FeatureUsageTotal.WithLabelValues(feature).Inc()
}

// EngineCall records a call to the CoffeeHouse engine
func EngineCall(operation, status string, duration time.Duration) {
	EngineCallsTotal.WithLabelValues(operation, status).Inc()
	EngineCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
