// Package repository persists access records, generalizations and Lydia
// session owners in Postgres.
package repository

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/intellivoid/coffeehouse-api/internal/domain"
	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("repository: not found")

// HashAccessKey returns the lookup hash stored for an access key. Raw keys are
// never persisted.
func HashAccessKey(key string) []byte {
	sum := blake2b.Sum256([]byte(key))
	return sum[:]
}

// GenerateAccessKey returns a new random 32 character access key.
func GenerateAccessKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate access key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// AccessRecords stores access records.
type AccessRecords struct {
	db  *sql.DB
	now func() time.Time
}

// NewAccessRecords creates an AccessRecords store.
func NewAccessRecords(db *sql.DB) *AccessRecords {
	return &AccessRecords{db: db, now: time.Now}
}

const accessRecordColumns = `id, public_id, status, variables, created_at, last_activity`

// GetAccessRecord returns the record for a raw access key.
func (r *AccessRecords) GetAccessRecord(ctx context.Context, key string) (*domain.AccessRecord, error) {
	query := `SELECT ` + accessRecordColumns + ` FROM access_records WHERE access_key_hash = $1`
	rec, err := scanAccessRecord(r.db.QueryRowContext(ctx, query, HashAccessKey(key)))
	if err != nil {
		return nil, fmt.Errorf("get access record: %w", err)
	}
	return rec, nil
}

// CreateAccessRecord inserts a new active record for key.
func (r *AccessRecords) CreateAccessRecord(ctx context.Context, key string, vars domain.Variables) (*domain.AccessRecord, error) {
	if vars == nil {
		vars = domain.Variables{}
	}
	raw, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("encode variables: %w", err)
	}

	now := r.now().UTC()
	rec := &domain.AccessRecord{
		PublicID:     uuid.New(),
		Status:       domain.AccessRecordStatusActive,
		Variables:    vars,
		CreatedAt:    now,
		LastActivity: now,
	}
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO access_records (public_id, access_key_hash, status, variables, created_at, last_activity)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		rec.PublicID, HashAccessKey(key), string(rec.Status), raw, now, now,
	).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("create access record: %w", err)
	}
	return rec, nil
}

// LinkSubscription attaches an access record to a billing subscription.
func (r *AccessRecords) LinkSubscription(ctx context.Context, accessRecordID, subscriptionID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_subscriptions (access_record_id, subscription_id, status, created_at)
		 VALUES ($1, $2, $3, $4)`,
		accessRecordID, subscriptionID, string(domain.UserSubscriptionStatusActive), r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("link subscription: %w", err)
	}
	return nil
}

// UpdateAccessRecord writes the record's variables and bumps its last activity.
func (r *AccessRecords) UpdateAccessRecord(ctx context.Context, rec *domain.AccessRecord) error {
	raw, err := json.Marshal(rec.Variables)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}

	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE access_records SET variables = $1, last_activity = $2 WHERE id = $3`,
		raw, now, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update access record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update access record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update access record %d: %w", rec.ID, ErrNotFound)
	}
	rec.LastActivity = now
	return nil
}

func scanAccessRecord(row *sql.Row) (*domain.AccessRecord, error) {
	rec := &domain.AccessRecord{}
	var status string
	var vars []byte
	err := row.Scan(&rec.ID, &rec.PublicID, &status, &vars, &rec.CreatedAt, &rec.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Status = domain.AccessRecordStatus(status)

	rec.Variables = domain.Variables{}
	if len(vars) > 0 {
		dec := json.NewDecoder(bytes.NewReader(vars))
		dec.UseNumber()
		if err := dec.Decode(&rec.Variables); err != nil {
			return nil, fmt.Errorf("decode variables: %w", err)
		}
	}
	return rec, nil
}
