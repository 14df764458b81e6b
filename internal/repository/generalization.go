package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// Generalizations stores rolling prediction windows.
type Generalizations struct {
	db  *sql.DB
	now func() time.Time
}

// NewGeneralizations creates a Generalizations store.
func NewGeneralizations(db *sql.DB) *Generalizations {
	return &Generalizations{db: db, now: time.Now}
}

// GetGeneralization returns a generalization by ID.
func (r *Generalizations) GetGeneralization(ctx context.Context, id uuid.UUID) (*domain.Generalization, error) {
	g := &domain.Generalization{}
	var kind string
	var window []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, access_record_id, kind, size, predictions, created_at, updated_at
		 FROM generalizations WHERE id = $1`,
		id,
	).Scan(&g.ID, &g.AccessRecordID, &kind, &g.Size, &window, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get generalization: %w", err)
	}
	g.Kind = domain.GeneralizationKind(kind)
	if len(window) > 0 {
		if err := json.Unmarshal(window, &g.Window); err != nil {
			return nil, fmt.Errorf("decode generalization window: %w", err)
		}
	}
	return g, nil
}

// SaveGeneralization inserts or updates a generalization.
func (r *Generalizations) SaveGeneralization(ctx context.Context, g *domain.Generalization) error {
	window, err := json.Marshal(g.Window)
	if err != nil {
		return fmt.Errorf("encode generalization window: %w", err)
	}

	now := r.now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO generalizations (id, access_record_id, kind, size, predictions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET predictions = EXCLUDED.predictions, updated_at = EXCLUDED.updated_at`,
		g.ID, g.AccessRecordID, string(g.Kind), g.Size, window, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save generalization: %w", err)
	}
	return nil
}
