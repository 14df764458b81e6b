// Package billing provides subscription lookups and renewal charging for
// access records.
package billing

import (
	"context"
	"errors"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// Provider defines the subscription billing operations consumed by the
// subscription validator.
type Provider interface {
	// GetUserSubscription returns the subscription link of an access record.
	// Returns ErrNotFound if the record has none.
	GetUserSubscription(ctx context.Context, accessRecordID int64) (*domain.UserSubscription, error)

	// GetSubscription returns a subscription by ID.
	// Returns ErrNotFound if it does not exist.
	GetSubscription(ctx context.Context, subscriptionID int64) (*domain.Subscription, error)

	// ProcessSubscriptionBilling charges the subscription and advances its
	// next billing cycle. Returns false without error when the charge was
	// declined. Authentication failures against the payment processor are
	// returned as a ProviderError of kind ErrAuthentication.
	ProcessSubscriptionBilling(ctx context.Context, subscriptionID int64) (bool, error)
}

// Charger moves money for a subscription renewal.
type Charger interface {
	Charge(ctx context.Context, params ChargeParams) error
}

// ChargeParams describes a single renewal charge.
type ChargeParams struct {
	CustomerID     string
	Amount         int64
	Currency       string
	Description    string
	IdempotencyKey string
}

var (
	// ErrNotFound indicates the requested subscription data does not exist.
	ErrNotFound = errors.New("billing: not found")

	// ErrAuthentication indicates the payment processor rejected our credentials.
	ErrAuthentication = errors.New("billing: authentication failed")

	// ErrInsufficientFunds indicates the renewal charge was declined.
	ErrInsufficientFunds = errors.New("billing: insufficient funds")
)

// ProviderError carries the payment processor's own message.
type ProviderError struct {
	Kind    error
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	return e.Message
}

func (e *ProviderError) Is(target error) bool {
	return target == e.Kind
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// FeaturesToStandardArray flattens the raw plan features stored by the
// billing provider into a FeatureSet. Later entries override earlier ones
// with the same name; nameless entries are skipped.
func FeaturesToStandardArray(raw []domain.PlanFeatureValue) domain.FeatureSet {
	out := make(domain.FeatureSet, len(raw))
	for _, f := range raw {
		if f.Name == "" {
			continue
		}
		out[f.Name] = f.Value
	}
	return out
}

// NoopCharger accepts every charge. Used when no payment processor is
// configured.
type NoopCharger struct{}

func (NoopCharger) Charge(ctx context.Context, params ChargeParams) error {
	return nil
}
