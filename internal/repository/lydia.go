package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// LydiaSessions stores the owner of each Lydia session.
type LydiaSessions struct {
	db  *sql.DB
	now func() time.Time
}

// NewLydiaSessions creates a LydiaSessions store.
func NewLydiaSessions(db *sql.DB) *LydiaSessions {
	return &LydiaSessions{db: db, now: time.Now}
}

// GetLydiaSession returns a session by ID.
func (r *LydiaSessions) GetLydiaSession(ctx context.Context, id string) (*domain.LydiaSession, error) {
	s := &domain.LydiaSession{}
	var expires sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, access_record_id, language, expires_at, created_at
		 FROM lydia_sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.AccessRecordID, &s.Language, &expires, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lydia session: %w", err)
	}
	if expires.Valid {
		s.ExpiresAt = expires.Time
	}
	return s, nil
}

// SaveLydiaSession records a newly created session.
func (r *LydiaSessions) SaveLydiaSession(ctx context.Context, s *domain.LydiaSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now().UTC()
	}
	var expires sql.NullTime
	if !s.ExpiresAt.IsZero() {
		expires = sql.NullTime{Time: s.ExpiresAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lydia_sessions (id, access_record_id, language, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.AccessRecordID, s.Language, expires, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save lydia session: %w", err)
	}
	return nil
}
