package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// Manager implements Provider on top of the subscription tables.
type Manager struct {
	db      *sql.DB
	charger Charger
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager creates a Manager. A nil charger accepts every charge.
func NewManager(db *sql.DB, charger Charger, logger *slog.Logger) *Manager {
	if charger == nil {
		charger = NoopCharger{}
	}
	return &Manager{
		db:      db,
		charger: charger,
		logger:  logger,
		now:     time.Now,
	}
}

const userSubscriptionQuery = `
	SELECT id, access_record_id, subscription_id, status, created_at
	FROM user_subscriptions
	WHERE access_record_id = $1
`

// GetUserSubscription returns the subscription link of an access record.
func (m *Manager) GetUserSubscription(ctx context.Context, accessRecordID int64) (*domain.UserSubscription, error) {
	us := &domain.UserSubscription{}
	var status string
	err := m.db.QueryRowContext(ctx, userSubscriptionQuery, accessRecordID).Scan(
		&us.ID, &us.AccessRecordID, &us.SubscriptionID, &status, &us.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user subscription: %w", err)
	}
	us.Status = domain.UserSubscriptionStatus(status)
	return us, nil
}

const subscriptionColumns = `id, account_id, plan, price, currency, billing_cycle,
	next_billing_cycle, properties, stripe_customer_id, created_at`

// GetSubscription returns a subscription by ID.
func (m *Manager) GetSubscription(ctx context.Context, subscriptionID int64) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(m.db.QueryRowContext(ctx, query, subscriptionID))
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// ProcessSubscriptionBilling charges a due subscription and moves its next
// billing cycle past the current time. A subscription that is no longer due
// (renewed concurrently) is reported as processed without charging again.
func (m *Manager) ProcessSubscriptionBilling(ctx context.Context, subscriptionID int64) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin billing transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 FOR UPDATE`
	sub, err := scanSubscription(tx.QueryRowContext(ctx, query, subscriptionID))
	if err != nil {
		return false, fmt.Errorf("lock subscription: %w", err)
	}

	now := m.now()
	if !sub.BillingDue(now) {
		return true, nil
	}
	if sub.BillingCycle <= 0 {
		return false, fmt.Errorf("subscription %d has invalid billing cycle %d", sub.ID, sub.BillingCycle)
	}

	if sub.Price > 0 {
		err = m.charger.Charge(ctx, ChargeParams{
			CustomerID:     sub.StripeCustomerID,
			Amount:         sub.Price,
			Currency:       sub.Currency,
			Description:    fmt.Sprintf("%s subscription renewal", sub.Plan),
			IdempotencyKey: fmt.Sprintf("subscription-%d-cycle-%d", sub.ID, sub.NextBillingCycle),
		})
		if errors.Is(err, ErrInsufficientFunds) {
			m.logger.Info("Subscription renewal declined",
				"subscription_id", sub.ID,
				"amount", sub.Price,
				"currency", sub.Currency,
			)
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}

	next := nextCycleAfter(sub.NextBillingCycle, sub.BillingCycle, now)

	if _, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET next_billing_cycle = $1 WHERE id = $2`,
		next, sub.ID,
	); err != nil {
		return false, fmt.Errorf("advance billing cycle: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO billing_transactions (subscription_id, amount, currency, cycle_start, cycle_end)
		 VALUES ($1, $2, $3, $4, $5)`,
		sub.ID, sub.Price, sub.Currency, sub.NextBillingCycle, next,
	); err != nil {
		return false, fmt.Errorf("record billing transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit billing transaction: %w", err)
	}

	m.logger.Info("Subscription renewed",
		"subscription_id", sub.ID,
		"next_billing_cycle", next,
	)
	return true, nil
}

func scanSubscription(row *sql.Row) (*domain.Subscription, error) {
	sub := &domain.Subscription{}
	var properties []byte
	err := row.Scan(
		&sub.ID, &sub.AccountID, &sub.Plan, &sub.Price, &sub.Currency, &sub.BillingCycle,
		&sub.NextBillingCycle, &properties, &sub.StripeCustomerID, &sub.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(properties) > 0 {
		if err := json.Unmarshal(properties, &sub.Properties); err != nil {
			return nil, fmt.Errorf("decode subscription properties: %w", err)
		}
	}
	return sub, nil
}

// nextCycleAfter returns the first cycle boundary strictly after now, so a
// renewed subscription is never due again within the same second.
func nextCycleAfter(next, cycle int64, now time.Time) int64 {
	for next <= now.Unix() {
		next += cycle
	}
	return next
}
