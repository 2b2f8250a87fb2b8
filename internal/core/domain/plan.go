package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// confirmationDomain separates confirmation hashes from other digests.
const confirmationDomain = "keepsake/plan-steps/v1"

// RiskLevel classifies what a Step may do to stored data.
type RiskLevel string

// Risk levels, in increasing order of severity.
const (
	RiskReadOnly    RiskLevel = "read-only"
	RiskMutating    RiskLevel = "mutating"
	RiskDestructive RiskLevel = "destructive"
)

// IsValid returns true if the risk level is recognised.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskReadOnly, RiskMutating, RiskDestructive:
		return true
	default:
		return false
	}
}

// Severity orders risk levels.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskReadOnly:
		return 0
	case RiskMutating:
		return 1
	case RiskDestructive:
		return 2
	default:
		return 3
	}
}

// Max returns the more severe of r and other.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.Severity() > r.Severity() {
		return other
	}
	return r
}

// PlanStatus is a state of the plan state machine.
type PlanStatus string

// Plan states.
const (
	PlanDraft     PlanStatus = "draft"
	PlanConfirmed PlanStatus = "confirmed"
	PlanExecuting PlanStatus = "executing"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
	PlanCancelled PlanStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s PlanStatus) IsTerminal() bool {
	return s == PlanCompleted || s == PlanFailed || s == PlanCancelled
}

// planTransitions lists the legal edges of the state machine.
var planTransitions = map[PlanStatus][]PlanStatus{
	PlanDraft:     {PlanConfirmed, PlanCancelled},
	PlanConfirmed: {PlanExecuting, PlanCancelled},
	PlanExecuting: {PlanCompleted, PlanFailed, PlanCancelled},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to PlanStatus) bool {
	for _, next := range planTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Arguments are the inputs of a tool invocation.
type Arguments map[string]any

// Attributes views the arguments through the typed accessors.
func (a Arguments) Attributes() Attributes {
	return Attributes(a)
}

// Compensation is the undo action registered for a Step.
type Compensation struct {
	ToolName  string    `json:"tool_name"`
	Arguments Arguments `json:"arguments,omitempty"`
}

// Step is one tool invocation within a Plan.
type Step struct {
	ToolName     string        `json:"tool_name"`
	Arguments    Arguments     `json:"arguments,omitempty"`
	RiskLevel    RiskLevel     `json:"risk_level"`
	Compensation *Compensation `json:"compensation,omitempty"`
}

// Operation is a requested tool call in an Intent.
type Operation struct {
	Tool      string    `json:"tool" yaml:"tool"`
	Arguments Arguments `json:"arguments,omitempty" yaml:"arguments,omitempty"`

	// RiskLevel may raise, never lower, the tool's declared risk.
	RiskLevel RiskLevel `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
}

// Intent describes what the caller wants a plan to do.
type Intent struct {
	Description string      `json:"description" yaml:"description"`
	Operations  []Operation `json:"operations" yaml:"operations"`
}

// Plan is an orchestrated multi-step operation.
type Plan struct {
	ID               string     `json:"id"`
	CorrelationID    string     `json:"correlation_id"`
	Intent           Intent     `json:"intent"`
	Steps            []Step     `json:"steps"`
	Status           PlanStatus `json:"status"`
	ConfirmationHash string     `json:"confirmation_hash"`

	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	// Result is the outcome of the last execution attempt.
	Result *ExecutionResult `json:"result,omitempty"`
}

// RequiresConfirmation reports whether any step may change stored data.
func (p *Plan) RequiresConfirmation() bool {
	return p.MaxRisk() != RiskReadOnly
}

// MaxRisk returns the most severe risk level across all steps.
func (p *Plan) MaxRisk() RiskLevel {
	risk := RiskReadOnly
	for _, s := range p.Steps {
		risk = risk.Max(s.RiskLevel)
	}
	return risk
}

// ConfirmationHash digests the serialized steps. It is a pure function of
// plan content: ids and timestamps are excluded, and encoding/json writes
// map keys in sorted order.
func ConfirmationHash(steps []Step) (string, error) {
	data, err := CanonicalSteps(steps)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(confirmationDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CanonicalSteps returns the serialization the confirmation hash covers.
func CanonicalSteps(steps []Step) ([]byte, error) {
	if steps == nil {
		steps = []Step{}
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("marshal steps: %w", err)
	}
	return data, nil
}

// StepStatus is the outcome of one step.
type StepStatus string

// Step outcomes.
const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// RollbackStatus is the outcome of one compensation.
type RollbackStatus string

// Rollback outcomes.
const (
	RollbackSuccess RollbackStatus = "success"
	RollbackFailed  RollbackStatus = "failed"
	RollbackPartial RollbackStatus = "partial"
	RollbackSkipped RollbackStatus = "skipped"
)

// StepResult reports one executed (or skipped) step.
type StepResult struct {
	Index          int             `json:"index"`
	ToolName       string          `json:"tool_name"`
	Status         StepStatus      `json:"status"`
	Attempts       int             `json:"attempts,omitempty"`
	Output         map[string]any  `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
}

// RollbackOutcome reports one compensation attempt.
type RollbackOutcome struct {
	StepIndex int            `json:"step_index"`
	ToolName  string         `json:"tool_name"`
	Status    RollbackStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
}

// ExecutionResult is returned by ConfirmAndExecute.
type ExecutionResult struct {
	PlanID        string            `json:"plan_id"`
	CorrelationID string            `json:"correlation_id"`
	Status        PlanStatus        `json:"status"`
	Steps         []StepResult      `json:"steps"`
	Rollbacks     []RollbackOutcome `json:"rollbacks,omitempty"`

	// FailedStep is the index of the step that failed, if any.
	FailedStep *int `json:"failed_step,omitempty"`
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Risk        RiskLevel `json:"risk"`
}
