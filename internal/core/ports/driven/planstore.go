package driven

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// PlanStore persists orchestration plans.
type PlanStore interface {
	// Save stores or updates a plan.
	Save(ctx context.Context, plan *domain.Plan) error

	// Get retrieves a plan. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, id string) (*domain.Plan, error)

	// List returns the most recent plans first.
	List(ctx context.Context, limit int) ([]domain.Plan, error)
}
