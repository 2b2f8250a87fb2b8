package services

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/logger"
)

// Planner turns intents into draft plans.
type Planner struct {
	tools *ToolRegistry
	plans driven.PlanStore
	audit driven.AuditLog
	now   func() time.Time
}

// NewPlanner creates a planner.
func NewPlanner(tools *ToolRegistry, plans driven.PlanStore, audit driven.AuditLog) *Planner {
	return &Planner{
		tools: tools,
		plans: plans,
		audit: audit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreatePlan validates every operation against its tool, derives each
// step's risk and compensation, and stores the plan as a draft.
func (p *Planner) CreatePlan(ctx context.Context, intent domain.Intent) (*domain.Plan, error) {
	if len(intent.Operations) == 0 {
		return nil, domain.NewValidationError("intent has no operations")
	}

	steps := make([]domain.Step, 0, len(intent.Operations))
	for i, op := range intent.Operations {
		tool, err := p.tools.Get(op.Tool)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		if op.RiskLevel != "" && !op.RiskLevel.IsValid() {
			return nil, fmt.Errorf("operation %d: %w", i,
				domain.NewValidationError("unknown risk level %q", op.RiskLevel))
		}

		args := maps.Clone(op.Arguments)
		if args == nil {
			args = domain.Arguments{}
		}
		if err := tool.Validate(args); err != nil {
			return nil, fmt.Errorf("operation %d (%s): %w", i, op.Tool, err)
		}

		steps = append(steps, domain.Step{
			ToolName:     tool.Name(),
			Arguments:    args,
			RiskLevel:    tool.Risk().Max(op.RiskLevel),
			Compensation: tool.Compensation(args),
		})
	}

	hash, err := domain.ConfirmationHash(steps)
	if err != nil {
		return nil, err
	}

	plan := &domain.Plan{
		ID:               uuid.New().String(),
		CorrelationID:    uuid.New().String(),
		Intent:           intent,
		Steps:            steps,
		Status:           domain.PlanDraft,
		ConfirmationHash: hash,
		CreatedAt:        p.now(),
	}

	if err := p.plans.Save(ctx, plan); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	if err := p.audit.Append(ctx, domain.AuditEntry{
		CorrelationID: plan.CorrelationID,
		PlanID:        plan.ID,
		Event:         domain.EventPlanCreated,
		Timestamp:     plan.CreatedAt,
		RiskLevel:     plan.MaxRisk(),
		Metadata: map[string]any{
			"intent": intent.Description,
			"steps":  len(steps),
		},
	}); err != nil {
		return nil, fmt.Errorf("audit plan creation: %w", err)
	}

	logger.Info("Created plan %s (%d steps, risk %s)", plan.ID, len(steps), plan.MaxRisk())
	return plan, nil
}
