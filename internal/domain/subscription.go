package domain

import "time"

// UserSubscriptionStatus is the state of the link between an access record
// and a subscription.
type UserSubscriptionStatus string

const (
	UserSubscriptionStatusActive    UserSubscriptionStatus = "active"
	UserSubscriptionStatusSuspended UserSubscriptionStatus = "suspended"
)

// UserSubscription links an access record to a subscription.
type UserSubscription struct {
	ID             int64
	AccessRecordID int64
	SubscriptionID int64
	Status         UserSubscriptionStatus
	CreatedAt      time.Time
}

// PlanFeatureValue is one raw feature entry as stored by the billing provider.
type PlanFeatureValue struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// SubscriptionProperties holds provider-supplied plan data.
type SubscriptionProperties struct {
	Features []PlanFeatureValue `json:"features"`
}

// Subscription is a billing plan instance owned by an account.
type Subscription struct {
	ID               int64
	AccountID        int64
	Plan             string
	Price            int64 // smallest currency unit
	Currency         string
	BillingCycle     int64 // seconds between charges
	NextBillingCycle int64 // unix seconds of the next charge
	Properties       SubscriptionProperties
	StripeCustomerID string
	CreatedAt        time.Time
}

// BillingDue reports whether the next charge is due at now.
func (s *Subscription) BillingDue(now time.Time) bool {
	return now.Unix() > s.NextBillingCycle
}
