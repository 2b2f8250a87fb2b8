package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/logger"
	"github.com/custodia-labs/keepsake/internal/resilience"
)

// DefaultConfirmationWindow bounds how long after creation a plan may be confirmed.
const DefaultConfirmationWindow = 5 * time.Minute

// OrchestratorConfig tunes plan execution.
type OrchestratorConfig struct {
	ConfirmationWindow time.Duration

	// StepRetry is used for tools that do not declare their own policy.
	StepRetry resilience.RetryPolicy
}

// DefaultOrchestratorConfig returns the default configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ConfirmationWindow: DefaultConfirmationWindow,
		StepRetry:          resilience.DefaultRetryPolicy(),
	}
}

// execution tracks a plan that is currently running.
type execution struct {
	cancelled atomic.Bool
}

// Orchestrator drives plans through the confirm and execute state machine.
// Steps of one plan run sequentially; different plans may run concurrently.
type Orchestrator struct {
	tools    *ToolRegistry
	plans    driven.PlanStore
	audit    driven.AuditLog
	executor *resilience.Executor
	cfg      OrchestratorConfig
	now      func() time.Time

	mu      sync.Mutex
	running map[string]*execution
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(
	tools *ToolRegistry,
	plans driven.PlanStore,
	audit driven.AuditLog,
	executor *resilience.Executor,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.ConfirmationWindow <= 0 {
		cfg.ConfirmationWindow = DefaultConfirmationWindow
	}
	if cfg.StepRetry.MaxAttempts <= 0 {
		cfg.StepRetry = resilience.DefaultRetryPolicy()
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultBreakerConfig())
	}
	return &Orchestrator{
		tools:    tools,
		plans:    plans,
		audit:    audit,
		executor: executor,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		running:  make(map[string]*execution),
	}
}

// GetPlan returns a stored plan.
func (o *Orchestrator) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	return o.plans.Get(ctx, id)
}

// ListPlans returns the most recent plans first.
func (o *Orchestrator) ListPlans(ctx context.Context, limit int) ([]domain.Plan, error) {
	return o.plans.List(ctx, limit)
}

// AuditTrail returns every audit entry of one plan lifecycle.
func (o *Orchestrator) AuditTrail(ctx context.Context, correlationID string) ([]domain.AuditEntry, error) {
	return o.audit.Trail(ctx, correlationID)
}

// ConfirmAndExecute checks the confirmation hash and runs the plan.
//
// Gated plans (any step that is not read-only) require hash to equal the
// plan's confirmation hash within the confirmation window; otherwise
// nothing runs and ErrConfirmationRequired or ErrConfirmationExpired is
// returned. A step failure rolls back completed steps in reverse order and
// is returned as an error alongside the result.
func (o *Orchestrator) ConfirmAndExecute(
	ctx context.Context, planID, hash string,
) (domain.ExecutionResult, error) {
	exec, err := o.register(planID)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	defer o.unregister(planID)

	plan, err := o.plans.Get(ctx, planID)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("load plan: %w", err)
	}
	if plan.Status != domain.PlanDraft {
		return domain.ExecutionResult{}, fmt.Errorf("%w: plan %s is %s", domain.ErrInvalidPlanState, plan.ID, plan.Status)
	}

	if err := o.confirm(ctx, plan, hash); err != nil {
		return domain.ExecutionResult{}, err
	}

	return o.execute(ctx, plan, exec)
}

// confirm checks the gate and moves the plan to confirmed.
func (o *Orchestrator) confirm(ctx context.Context, plan *domain.Plan, hash string) error {
	gated := plan.RequiresConfirmation()
	now := o.now()

	if gated {
		if now.Sub(plan.CreatedAt) > o.cfg.ConfirmationWindow {
			o.reject(ctx, plan, "expired")
			return fmt.Errorf("%w: plan %s was created at %s",
				domain.ErrConfirmationExpired, plan.ID, plan.CreatedAt.Format(time.RFC3339))
		}

		expected, err := domain.ConfirmationHash(plan.Steps)
		if err != nil {
			return err
		}
		if hash == "" || hash != expected || hash != plan.ConfirmationHash {
			o.reject(ctx, plan, "hash mismatch")
			return fmt.Errorf("%w: plan %s", domain.ErrConfirmationRequired, plan.ID)
		}
	}

	if err := o.audit.Append(ctx, domain.AuditEntry{
		CorrelationID: plan.CorrelationID,
		PlanID:        plan.ID,
		Event:         domain.EventUserConfirmed,
		Timestamp:     now,
		RiskLevel:     plan.MaxRisk(),
		Metadata:      map[string]any{"auto": !gated},
	}); err != nil {
		return fmt.Errorf("audit confirmation: %w", err)
	}

	if err := o.transition(plan, domain.PlanConfirmed); err != nil {
		return err
	}
	plan.ConfirmedAt = &now
	return o.plans.Save(ctx, plan)
}

func (o *Orchestrator) reject(ctx context.Context, plan *domain.Plan, reason string) {
	logger.Warn("Plan %s rejected: %s", plan.ID, reason)
	o.record(ctx, domain.AuditEntry{
		CorrelationID: plan.CorrelationID,
		PlanID:        plan.ID,
		Event:         domain.EventUserRejected,
		RiskLevel:     plan.MaxRisk(),
		Metadata:      map[string]any{"reason": reason},
	})
}

// completedStep is a step whose effects may need undoing.
type completedStep struct {
	index  int
	step   domain.Step
	output map[string]any
}

func (o *Orchestrator) execute(
	ctx context.Context, plan *domain.Plan, exec *execution,
) (domain.ExecutionResult, error) {
	logger.Section("Plan Execution")

	started := o.now()
	if err := o.transition(plan, domain.PlanExecuting); err != nil {
		return domain.ExecutionResult{}, err
	}
	plan.StartedAt = &started
	if err := o.plans.Save(ctx, plan); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("save plan: %w", err)
	}

	// Rollback and bookkeeping must finish even if the caller goes away.
	bg := context.WithoutCancel(ctx)

	result := domain.ExecutionResult{
		PlanID:        plan.ID,
		CorrelationID: plan.CorrelationID,
		Steps:         make([]domain.StepResult, 0, len(plan.Steps)),
	}

	var completed []completedStep
	var stepErr error
	cancelled := false

	for i, step := range plan.Steps {
		if exec.cancelled.Load() {
			cancelled = true
			for j := i; j < len(plan.Steps); j++ {
				result.Steps = append(result.Steps, domain.StepResult{
					Index:    j,
					ToolName: plan.Steps[j].ToolName,
					Status:   domain.StepSkipped,
				})
			}
			break
		}

		sr, err := o.runStep(ctx, plan, i, step)
		result.Steps = append(result.Steps, sr)
		if err != nil {
			stepErr = err
			idx := i
			result.FailedStep = &idx
			for j := i + 1; j < len(plan.Steps); j++ {
				result.Steps = append(result.Steps, domain.StepResult{
					Index:    j,
					ToolName: plan.Steps[j].ToolName,
					Status:   domain.StepSkipped,
				})
			}
			break
		}
		completed = append(completed, completedStep{index: i, step: step, output: sr.Output})
	}

	final := domain.PlanCompleted
	event := domain.EventPlanCompleted
	switch {
	case stepErr != nil:
		final, event = domain.PlanFailed, domain.EventPlanFailed
		result.Rollbacks = o.rollback(bg, plan, completed)
	case cancelled:
		final, event = domain.PlanCancelled, domain.EventPlanCancelled
		result.Rollbacks = o.rollback(bg, plan, completed)
	}

	if err := o.transition(plan, final); err != nil {
		return result, err
	}
	finished := o.now()
	plan.FinishedAt = &finished
	result.Status = final
	plan.Result = &result

	if err := o.plans.Save(bg, plan); err != nil {
		logger.Error("Saving plan %s failed: %v", plan.ID, err)
	}

	meta := map[string]any{"duration": finished.Sub(started).String()}
	if result.FailedStep != nil {
		meta["failed_step"] = *result.FailedStep
	}
	o.record(bg, domain.AuditEntry{
		CorrelationID: plan.CorrelationID,
		PlanID:        plan.ID,
		Event:         event,
		RiskLevel:     plan.MaxRisk(),
		Metadata:      meta,
	})

	logger.Info("Plan %s %s", plan.ID, final)
	if stepErr != nil {
		return result, fmt.Errorf("plan %s failed at step %d: %w", plan.ID, *result.FailedStep, stepErr)
	}
	return result, nil
}

// runStep executes one step through the resilience executor.
func (o *Orchestrator) runStep(
	ctx context.Context, plan *domain.Plan, index int, step domain.Step,
) (domain.StepResult, error) {
	sr := domain.StepResult{Index: index, ToolName: step.ToolName}
	idx := index

	o.record(ctx, domain.AuditEntry{
		CorrelationID: plan.CorrelationID,
		PlanID:        plan.ID,
		Event:         domain.EventStepStarted,
		StepIndex:     &idx,
		ToolName:      step.ToolName,
		RiskLevel:     step.RiskLevel,
	})

	var output map[string]any
	attempts, err := o.invoke(ctx, step.ToolName, step.Arguments, func(out map[string]any) { output = out })
	sr.Attempts = attempts

	if err != nil {
		class := resilience.Classify(err)
		sr.Status = domain.StepFailed
		sr.Error = err.Error()
		sr.Classification = &class
		logger.Warn("Step %d (%s) failed after %d attempt(s): %v", index, step.ToolName, attempts, err)
		o.record(ctx, domain.AuditEntry{
			CorrelationID: plan.CorrelationID,
			PlanID:        plan.ID,
			Event:         domain.EventStepFailed,
			StepIndex:     &idx,
			ToolName:      step.ToolName,
			RiskLevel:     step.RiskLevel,
			Metadata: map[string]any{
				"error":    err.Error(),
				"class":    string(class.Class),
				"action":   string(class.Action),
				"attempts": attempts,
			},
		})
		return sr, err
	}

	sr.Status = domain.StepCompleted
	sr.Output = output
	o.record(ctx, domain.AuditEntry{
		CorrelationID: plan.CorrelationID,
		PlanID:        plan.ID,
		Event:         domain.EventStepCompleted,
		StepIndex:     &idx,
		ToolName:      step.ToolName,
		RiskLevel:     step.RiskLevel,
		Metadata:      map[string]any{"attempts": attempts},
	})
	return sr, nil
}

// invoke runs a tool under its retry policy and circuit breaker.
func (o *Orchestrator) invoke(
	ctx context.Context, name string, args domain.Arguments, onSuccess func(map[string]any),
) (int, error) {
	tool, err := o.tools.Get(name)
	if err != nil {
		return 0, err
	}
	policy := o.cfg.StepRetry
	if rt, ok := tool.(RetryingTool); ok {
		policy = rt.RetryPolicy()
	}
	return o.executor.Execute(ctx, "tool:"+name, policy, func(ctx context.Context) error {
		out, err := tool.Execute(ctx, args)
		if err == nil {
			onSuccess(out)
		}
		return err
	})
}

// rollback compensates completed steps in reverse order.
func (o *Orchestrator) rollback(
	ctx context.Context, plan *domain.Plan, completed []completedStep,
) []domain.RollbackOutcome {
	outcomes := make([]domain.RollbackOutcome, 0, len(completed))

	for i := len(completed) - 1; i >= 0; i-- {
		c := completed[i]
		outcome := domain.RollbackOutcome{StepIndex: c.index, ToolName: c.step.ToolName}

		undo, _ := c.output[UndoKey].(map[string]any)
		switch {
		case c.step.Compensation == nil:
			outcome.Status = domain.RollbackSkipped
		case undo["skip"] == true:
			outcome.Status = domain.RollbackSkipped
			outcome.ToolName = c.step.Compensation.ToolName
		default:
			comp := c.step.Compensation
			outcome.ToolName = comp.ToolName
			args := maps.Clone(comp.Arguments)
			if args == nil {
				args = domain.Arguments{}
			}
			maps.Copy(args, undo)

			_, err := o.invoke(ctx, comp.ToolName, args, func(map[string]any) {})
			switch {
			case err == nil:
				outcome.Status = domain.RollbackSuccess
			case errors.Is(err, domain.ErrPartialRollback):
				outcome.Status = domain.RollbackPartial
				outcome.Error = err.Error()
			default:
				outcome.Status = domain.RollbackFailed
				outcome.Error = err.Error()
			}
		}

		if outcome.Status == domain.RollbackFailed || outcome.Status == domain.RollbackPartial {
			logger.Error("Rollback of step %d (%s) %s: %s", c.index, outcome.ToolName, outcome.Status, outcome.Error)
		} else {
			logger.Debug("Rollback of step %d: %s", c.index, outcome.Status)
		}

		idx := c.index
		meta := map[string]any{}
		if outcome.Error != "" {
			meta["error"] = outcome.Error
		}
		o.record(ctx, domain.AuditEntry{
			CorrelationID:  plan.CorrelationID,
			PlanID:         plan.ID,
			Event:          domain.EventRollbackExecuted,
			StepIndex:      &idx,
			ToolName:       outcome.ToolName,
			RiskLevel:      c.step.RiskLevel,
			RollbackStatus: outcome.Status,
			Metadata:       meta,
		})
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// Cancel cancels a plan. Draft and confirmed plans are cancelled at once;
// an executing plan stops before its next step and rolls back.
func (o *Orchestrator) Cancel(ctx context.Context, planID string) error {
	o.mu.Lock()
	exec, running := o.running[planID]
	if running {
		exec.cancelled.Store(true)
		o.mu.Unlock()
		logger.Info("Plan %s marked for cancellation", planID)
		return nil
	}
	// Holding the slot keeps ConfirmAndExecute out while the plan is updated.
	o.running[planID] = &execution{}
	o.mu.Unlock()
	defer o.unregister(planID)

	plan, err := o.plans.Get(ctx, planID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	if err := o.transition(plan, domain.PlanCancelled); err != nil {
		return err
	}
	now := o.now()
	plan.FinishedAt = &now
	if err := o.plans.Save(ctx, plan); err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	if err := o.audit.Append(ctx, domain.AuditEntry{
		CorrelationID: plan.CorrelationID,
		PlanID:        plan.ID,
		Event:         domain.EventPlanCancelled,
		Timestamp:     now,
		RiskLevel:     plan.MaxRisk(),
	}); err != nil {
		return fmt.Errorf("audit cancellation: %w", err)
	}
	return nil
}

func (o *Orchestrator) transition(plan *domain.Plan, to domain.PlanStatus) error {
	if !domain.CanTransition(plan.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidPlanState, plan.Status, to)
	}
	logger.Debug("Plan %s: %s -> %s", plan.ID, plan.Status, to)
	plan.Status = to
	return nil
}

// record appends an audit entry. Failures are logged, not returned.
func (o *Orchestrator) record(ctx context.Context, entry domain.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = o.now()
	}
	if err := o.audit.Append(ctx, entry); err != nil {
		logger.Error("Audit append failed for plan %s (%s): %v", entry.PlanID, entry.Event, err)
	}
}

func (o *Orchestrator) register(planID string) (*execution, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.running[planID]; busy {
		return nil, fmt.Errorf("%w: plan %s is already executing", domain.ErrInvalidPlanState, planID)
	}
	exec := &execution{}
	o.running[planID] = exec
	return exec, nil
}

func (o *Orchestrator) unregister(planID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, planID)
}
