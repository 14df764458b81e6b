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

// Client-facing messages for subscription failures.
const (
	MsgSubscriptionSystemMissing = "The subscription system cannot find your subscription, please contact support"
	MsgNoActiveSubscription      = "You do not have an active subscription with this service"
	MsgSubscriptionUpdates       = "There are new updates to your subscription, please login to your dashboard to apply them"
)

// =============================================================================
// Interface Definition
// =============================================================================

// AccessRecordStore loads and persists access records.
type AccessRecordStore interface {
	GetAccessRecord(ctx context.Context, accessKey string) (*domain.AccessRecord, error)
	UpdateAccessRecord(ctx context.Context, rec *domain.AccessRecord) error
}

// ValidationState is a step of the subscription validation pipeline.
type ValidationState string

const (
	StateStart                  ValidationState = "start"
	StateLookupUserSubscription ValidationState = "lookup_user_subscription"
	StateLookupSubscription     ValidationState = "lookup_subscription"
	StateSyncFeatures           ValidationState = "sync_features"
	StateBillingCheck           ValidationState = "billing_check"
	StatePersist                ValidationState = "persist"
	StateDone                   ValidationState = "done"
)

// ValidationResult is returned by a successful validation.
type ValidationResult struct {
	State            ValidationState
	Subscription     *domain.Subscription
	UserSubscription *domain.UserSubscription
	Billing          BillingOutcome
}

// ValidationError records the state in which validation stopped. It unwraps
// to the *domain.Error describing the failure.
type ValidationError struct {
	State ValidationState
	Err   error
}

func (e *ValidationError) Error() string {
	return string(e.State) + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Implementation
// =============================================================================

// SubscriptionValidator refreshes an access record's entitlements from its
// subscription and renews the subscription when its billing cycle passed.
// It runs once per API request before any quota is checked.
type SubscriptionValidator struct {
	provider billing.Provider
	store    AccessRecordStore
	billing  *BillingCycleGate
	logger   *slog.Logger
	timeout  time.Duration
}

// NewSubscriptionValidator creates a SubscriptionValidator. timeout bounds
// each call to the billing provider and the store; zero disables it.
func NewSubscriptionValidator(provider billing.Provider, store AccessRecordStore, logger *slog.Logger, timeout time.Duration) *SubscriptionValidator {
	return &SubscriptionValidator{
		provider: provider,
		store:    store,
		billing:  NewBillingCycleGate(provider, logger, timeout),
		logger:   logger,
		timeout:  timeout,
	}
}

// Validate runs the pipeline against rec, mutating it in place and persisting
// it on success. rec is not persisted when any stage fails.
func (v *SubscriptionValidator) Validate(ctx context.Context, rec *domain.AccessRecord) (*ValidationResult, error) {
	result := &ValidationResult{State: StateStart}

	fail := func(state ValidationState, err error) (*ValidationResult, error) {
		result.State = state
		metrics.ValidationFailed(string(state))
		v.logger.Info("subscription validation failed",
			"access_record_id", rec.ID,
			"state", state,
			"code", domain.ErrorCode(err),
			"error", err,
		)
		return result, &ValidationError{State: state, Err: err}
	}

	us, err := v.lookupUserSubscription(ctx, rec)
	if err != nil {
		return fail(StateLookupUserSubscription, err)
	}
	result.UserSubscription = us

	sub, err := v.lookupSubscription(ctx, us)
	if err != nil {
		return fail(StateLookupSubscription, err)
	}
	result.Subscription = sub

	if err := v.syncFeatures(sub, rec); err != nil {
		return fail(StateSyncFeatures, err)
	}

	outcome, err := v.billing.Process(ctx, sub, rec)
	result.Billing = outcome
	if err != nil {
		return fail(StateBillingCheck, err)
	}

	if err := v.persist(ctx, rec); err != nil {
		return fail(StatePersist, err)
	}

	result.State = StateDone
	metrics.ValidationSucceeded()
	return result, nil
}

func (v *SubscriptionValidator) lookupUserSubscription(ctx context.Context, rec *domain.AccessRecord) (*domain.UserSubscription, error) {
	const op = "subscription.lookup_user_subscription"

	callCtx, cancel := withTimeout(ctx, v.timeout)
	defer cancel()

	us, err := v.provider.GetUserSubscription(callCtx, rec.ID)
	if errors.Is(err, billing.ErrNotFound) {
		return nil, domain.SubscriptionFailure(err, op, MsgSubscriptionSystemMissing)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to look up user subscription")
	}
	return us, nil
}

func (v *SubscriptionValidator) lookupSubscription(ctx context.Context, us *domain.UserSubscription) (*domain.Subscription, error) {
	const op = "subscription.lookup_subscription"

	callCtx, cancel := withTimeout(ctx, v.timeout)
	defer cancel()

	sub, err := v.provider.GetSubscription(callCtx, us.SubscriptionID)
	if errors.Is(err, billing.ErrNotFound) {
		return nil, domain.Wrap(err, domain.EFORBIDDEN, op, MsgNoActiveSubscription)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to look up subscription")
	}
	return sub, nil
}

func (v *SubscriptionValidator) syncFeatures(sub *domain.Subscription, rec *domain.AccessRecord) error {
	const op = "subscription.sync_features"

	features := billing.FeaturesToStandardArray(sub.Properties.Features)
	if err := UpdateSubscriptionFeatures(features, rec); err != nil {
		return domain.Wrap(err, domain.EFORBIDDEN, op, MsgSubscriptionUpdates)
	}
	return nil
}

func (v *SubscriptionValidator) persist(ctx context.Context, rec *domain.AccessRecord) error {
	const op = "subscription.persist"

	callCtx, cancel := withTimeout(ctx, v.timeout)
	defer cancel()

	if err := v.store.UpdateAccessRecord(callCtx, rec); err != nil {
		return domain.Internal(err, op, "failed to persist access record")
	}
	return nil
}
