package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
	"github.com/intellivoid/coffeehouse-api/internal/repository"
)

// GeneralizationStore loads and saves generalization windows.
type GeneralizationStore interface {
	GetGeneralization(ctx context.Context, id uuid.UUID) (*domain.Generalization, error)
	SaveGeneralization(ctx context.Context, g *domain.Generalization) error
}

// GeneralizationRequest selects a generalization: ID continues an existing
// window, otherwise Size starts a new one.
type GeneralizationRequest struct {
	ID   string
	Size int
}

// GeneralizationResult is the averaged view of a window after an update.
type GeneralizationResult struct {
	ID          string             `json:"id"`
	Size        int                `json:"size"`
	Current     int                `json:"current"`
	TopLabel    string             `json:"top_label"`
	Predictions map[string]float64 `json:"predictions"`
}

// Generalizer averages classifier predictions across calls.
type Generalizer struct {
	store   GeneralizationStore
	timeout time.Duration
}

// NewGeneralizer creates a Generalizer.
func NewGeneralizer(store GeneralizationStore, timeout time.Duration) *Generalizer {
	return &Generalizer{store: store, timeout: timeout}
}

// Resolve validates req and returns the generalization it names, or a new
// one owned by rec. Nothing is persisted until Apply.
func (g *Generalizer) Resolve(ctx context.Context, rec *domain.AccessRecord, kind domain.GeneralizationKind, req GeneralizationRequest) (*domain.Generalization, error) {
	const op = "generalization.resolve"

	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			return nil, domain.Invalid(op, domain.ErrCodeGeneralizationIDInvalid, "The generalization ID is malformed")
		}

		callCtx, cancel := withTimeout(ctx, g.timeout)
		defer cancel()

		gen, err := g.store.GetGeneralization(callCtx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, generalizationNotFound(op)
		}
		if err != nil {
			return nil, domain.Internal(err, op, "failed to load generalization")
		}
		// Another caller's generalization is indistinguishable from a missing one.
		if gen.AccessRecordID != rec.ID || gen.Kind != kind {
			return nil, generalizationNotFound(op)
		}
		return gen, nil
	}

	if req.Size < domain.MinGeneralizationSize {
		return nil, domain.Invalid(op, domain.ErrCodeGeneralizationSizeInvalid, fmt.Sprintf(
			"The generalization size must be at least %d", domain.MinGeneralizationSize))
	}
	if limit, _ := rec.Variables.Int(domain.VarMaxGeneralization); limit > 0 && int64(req.Size) > limit {
		return nil, domain.Invalid(op, domain.ErrCodeGeneralizationSizeLimit, fmt.Sprintf(
			"The generalization size exceeds the limit of %d allowed by your subscription", limit))
	}

	return &domain.Generalization{
		ID:             uuid.New(),
		AccessRecordID: rec.ID,
		Kind:           kind,
		Size:           req.Size,
	}, nil
}

// Apply adds predictions to gen, saves it and returns the averaged result.
func (g *Generalizer) Apply(ctx context.Context, gen *domain.Generalization, predictions map[string]float64) (*GeneralizationResult, error) {
	const op = "generalization.apply"

	gen.Add(predictions)

	callCtx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.store.SaveGeneralization(callCtx, gen); err != nil {
		return nil, domain.Internal(err, op, "failed to save generalization")
	}

	avg := gen.Average()
	return &GeneralizationResult{
		ID:          gen.ID.String(),
		Size:        gen.Size,
		Current:     len(gen.Window),
		TopLabel:    domain.TopLabel(avg),
		Predictions: avg,
	}, nil
}

func generalizationNotFound(op string) *domain.Error {
	return domain.NotFound(op, "The generalization was not found").
		WithAPICode(domain.ErrCodeGeneralizationNotFound)
}
