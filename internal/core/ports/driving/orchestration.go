package driving

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// PlanService plans, confirms and executes multi-step operations.
type PlanService interface {
	// CreatePlan stores a draft plan for the intent.
	CreatePlan(ctx context.Context, intent domain.Intent) (*domain.Plan, error)

	// ConfirmAndExecute runs a draft plan. Plans with any step that is not
	// read-only require the plan's confirmation hash.
	ConfirmAndExecute(ctx context.Context, planID, hash string) (domain.ExecutionResult, error)

	// CancelPlan cancels a draft plan, or stops an executing one between steps.
	CancelPlan(ctx context.Context, planID string) error

	GetPlan(ctx context.Context, planID string) (*domain.Plan, error)
	ListPlans(ctx context.Context, limit int) ([]domain.Plan, error)

	// GetAuditTrail returns every audit entry recorded for a plan lifecycle.
	GetAuditTrail(ctx context.Context, correlationID string) ([]domain.AuditEntry, error)

	// Tools describes the tools plans may use.
	Tools() []domain.ToolInfo
}
