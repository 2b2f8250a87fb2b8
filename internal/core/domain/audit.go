package domain

import "time"

// AuditEvent names a plan lifecycle transition.
type AuditEvent string

// Audit events.
const (
	EventPlanCreated      AuditEvent = "plan_created"
	EventUserConfirmed    AuditEvent = "user_confirmed"
	EventUserRejected     AuditEvent = "user_rejected"
	EventStepStarted      AuditEvent = "step_started"
	EventStepCompleted    AuditEvent = "step_completed"
	EventStepFailed       AuditEvent = "step_failed"
	EventRollbackExecuted AuditEvent = "rollback_executed"
	EventPlanCompleted    AuditEvent = "plan_completed"
	EventPlanFailed       AuditEvent = "plan_failed"
	EventPlanCancelled    AuditEvent = "plan_cancelled"
)

// AuditEntry is an append-only record. Entries are never mutated or
// deleted after being written.
type AuditEntry struct {
	CorrelationID  string         `json:"correlation_id"`
	PlanID         string         `json:"plan_id"`
	Event          AuditEvent     `json:"event"`
	Timestamp      time.Time      `json:"timestamp"`
	StepIndex      *int           `json:"step_index,omitempty"`
	ToolName       string         `json:"tool_name,omitempty"`
	RiskLevel      RiskLevel      `json:"risk_level,omitempty"`
	RollbackStatus RollbackStatus `json:"rollback_status,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
