package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/billing"
	"github.com/intellivoid/coffeehouse-api/internal/domain"
	"github.com/intellivoid/coffeehouse-api/internal/metrics"
)

// BillingOutcome describes what a billing cycle check did.
type BillingOutcome string

const (
	BillingNotDue  BillingOutcome = "not_due"
	BillingRenewed BillingOutcome = "renewed"
	BillingFailed  BillingOutcome = "failed"
)

// BillingCycleGate renews due subscriptions and resets usage counters when
// a new cycle starts.
type BillingCycleGate struct {
	provider billing.Provider
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// NewBillingCycleGate creates a BillingCycleGate. A timeout of zero leaves
// the billing call bounded only by ctx.
func NewBillingCycleGate(provider billing.Provider, logger *slog.Logger, timeout time.Duration) *BillingCycleGate {
	return &BillingCycleGate{
		provider: provider,
		logger:   logger,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Process charges the subscription if its billing cycle has passed and, on
// success, resets every usage counter on rec to 0. Counters are untouched on
// any failure.
func (g *BillingCycleGate) Process(ctx context.Context, sub *domain.Subscription, rec *domain.AccessRecord) (BillingOutcome, error) {
	const op = "billing_cycle.process"

	if !sub.BillingDue(g.now()) {
		return BillingNotDue, nil
	}

	callCtx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	ok, err := g.provider.ProcessSubscriptionBilling(callCtx, sub.ID)
	if err != nil {
		if errors.Is(err, billing.ErrAuthentication) {
			metrics.BillingAttempt("auth_error")
			g.logger.Error("billing provider rejected credentials",
				"subscription_id", sub.ID,
				"error", err,
			)
			return BillingFailed, domain.SubscriptionFailure(err, op, providerMessage(err))
		}
		metrics.BillingAttempt("error")
		return BillingFailed, domain.Internal(err, op, "failed to process subscription billing")
	}

	if !ok {
		metrics.BillingAttempt("declined")
		g.logger.Info("subscription renewal declined",
			"subscription_id", sub.ID,
			"access_record_id", rec.ID,
		)
		return BillingFailed, domain.Errorf(domain.EPAYMENT, op,
			"Your subscription could not be renewed due to insufficient funds, please update your payment method")
	}

	if rec.Variables == nil {
		rec.Variables = make(domain.Variables)
	}
	for _, counter := range domain.UsageCounters {
		rec.Variables.SetInt(counter, 0)
	}

	metrics.BillingAttempt("renewed")
	g.logger.Info("subscription renewed, usage counters reset",
		"subscription_id", sub.ID,
		"access_record_id", rec.ID,
	)
	return BillingRenewed, nil
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// providerMessage returns the payment processor's own message for err.
func providerMessage(err error) string {
	var pe *billing.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}
