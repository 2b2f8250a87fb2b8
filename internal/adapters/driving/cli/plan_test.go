package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/services"
)

const intentYAML = `description: tag the invoice
operations:
  - tool: tag_document
    arguments:
      id: d1
      key: category
      value: finance
`

func writeIntent(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(intentYAML), 0600))
	return path
}

func mutatingPlan() *domain.Plan {
	return &domain.Plan{
		ID:               "plan-1",
		CorrelationID:    "corr-1",
		Intent:           domain.Intent{Description: "tag the invoice"},
		Status:           domain.PlanDraft,
		ConfirmationHash: "hash-1",
		Steps: []domain.Step{{
			ToolName:     "tag_document",
			Arguments:    domain.Arguments{"id": "d1", "key": "category", "value": "finance"},
			RiskLevel:    domain.RiskMutating,
			Compensation: &domain.Compensation{ToolName: "tag_document"},
		}},
	}
}

func TestPlanCreate_ReadsIntentFile(t *testing.T) {
	engine := &mockEngine{plan: mutatingPlan()}

	out, err := execute(t, engine, "plan", "create", writeIntent(t))

	require.NoError(t, err)
	assert.Equal(t, "tag the invoice", engine.gotIntent.Description)
	require.Len(t, engine.gotIntent.Operations, 1)
	assert.Equal(t, "tag_document", engine.gotIntent.Operations[0].Tool)
	assert.Equal(t, "finance", engine.gotIntent.Operations[0].Arguments["value"])
	assert.Contains(t, out, "Plan plan-1")
	assert.Contains(t, out, "hash-1")
	assert.Contains(t, out, "(undo: tag_document)")
	assert.Contains(t, out, "keepsake plan confirm plan-1")
	assert.False(t, engine.executed)
}

func TestPlanCreate_ExamplesUseRegisteredTools(t *testing.T) {
	registry := services.NewToolRegistry(services.BuiltinTools(nil, nil, nil, nil)...)

	// The intent example in the help text, indented by two spaces.
	var example []string
	for _, line := range strings.Split(planCreateCmd.Long, "\n") {
		if strings.HasPrefix(line, "  ") {
			example = append(example, strings.TrimPrefix(line, "  "))
		}
	}
	require.NotEmpty(t, example)

	for name, doc := range map[string]string{
		"help":    strings.Join(example, "\n"),
		"fixture": intentYAML,
	} {
		t.Run(name, func(t *testing.T) {
			intent, err := readIntent(strings.NewReader(doc), "-")
			require.NoError(t, err)
			for _, op := range intent.Operations {
				tool, err := registry.Get(op.Tool)
				require.NoError(t, err)
				assert.NoError(t, tool.Validate(op.Arguments))
			}
		})
	}
}

func TestPlanCreate_RejectsEmptyIntent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("description: nothing\n"), 0600))

	_, err := execute(t, &mockEngine{}, "plan", "create", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no operations")
}

func TestPlanConfirm_RefusesWithoutTerminal(t *testing.T) {
	engine := &mockEngine{plan: mutatingPlan()}

	_, err := execute(t, engine, "plan", "confirm", "plan-1")

	assert.ErrorIs(t, err, domain.ErrConfirmationRequired)
	assert.False(t, engine.executed)
}

func TestPlanConfirm_YesPassesHash(t *testing.T) {
	engine := &mockEngine{
		plan: mutatingPlan(),
		result: domain.ExecutionResult{
			PlanID: "plan-1",
			Status: domain.PlanCompleted,
			Steps:  []domain.StepResult{{Index: 0, ToolName: "tag_document", Status: domain.StepCompleted, Attempts: 2}},
		},
	}

	out, err := execute(t, engine, "plan", "confirm", "--yes", "plan-1")

	require.NoError(t, err)
	assert.True(t, engine.executed)
	assert.Equal(t, "hash-1", engine.gotHash)
	assert.Contains(t, out, "Execution completed")
	assert.Contains(t, out, "after 2 attempts")
}

func TestPlanConfirm_InteractiveYes(t *testing.T) {
	isInteractive = func() bool { return true }
	defer func() { isInteractive = func() bool { return false } }()

	engine := &mockEngine{plan: mutatingPlan(), result: domain.ExecutionResult{
		Status: domain.PlanCompleted,
		Steps:  []domain.StepResult{{ToolName: "tag_document", Status: domain.StepCompleted}},
	}}
	rootCmd.SetIn(strings.NewReader("y\n"))

	resetFlags()
	app = &App{Engine: engine}
	defer func() { app = nil }()
	rootCmd.SetArgs([]string{"plan", "confirm", "plan-1"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "hash-1", engine.gotHash)
}

func TestPlanConfirm_ReadOnlyRunsWithoutHash(t *testing.T) {
	plan := mutatingPlan()
	plan.Steps[0].RiskLevel = domain.RiskReadOnly
	engine := &mockEngine{plan: plan, result: domain.ExecutionResult{
		Status: domain.PlanCompleted,
		Steps:  []domain.StepResult{{ToolName: "search", Status: domain.StepCompleted}},
	}}

	_, err := execute(t, engine, "plan", "confirm", "plan-1")

	require.NoError(t, err)
	assert.True(t, engine.executed)
	assert.Empty(t, engine.gotHash)
}

func TestPlanConfirm_FailureShowsRollback(t *testing.T) {
	failed := 1
	engine := &mockEngine{
		plan: mutatingPlan(),
		result: domain.ExecutionResult{
			Status: domain.PlanFailed,
			Steps: []domain.StepResult{
				{Index: 0, ToolName: "tag_document", Status: domain.StepCompleted},
				{Index: 1, ToolName: "link", Status: domain.StepFailed, Error: "target missing"},
			},
			Rollbacks:  []domain.RollbackOutcome{{StepIndex: 0, ToolName: "tag_document", Status: domain.RollbackSuccess}},
			FailedStep: &failed,
		},
		execErr: errors.New("target missing"),
	}

	out, err := execute(t, engine, "plan", "confirm", "-y", "plan-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan plan-1 failed")
	assert.Contains(t, out, "Execution failed")
	assert.Contains(t, out, "rollback 1. tag_document success")
}

func TestPlanCancel(t *testing.T) {
	engine := &mockEngine{}

	out, err := execute(t, engine, "plan", "cancel", "plan-9")

	require.NoError(t, err)
	assert.Equal(t, "plan-9", engine.cancelled)
	assert.Contains(t, out, "Plan plan-9 cancelled.")
}

func TestPlanList_Empty(t *testing.T) {
	out, err := execute(t, &mockEngine{}, "plan", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "No plans yet.")
}

func TestPlanShow_JSON(t *testing.T) {
	out, err := execute(t, &mockEngine{plan: mutatingPlan()}, "plan", "show", "--json", "plan-1")

	require.NoError(t, err)
	assert.Contains(t, out, `"confirmation_hash": "hash-1"`)
}

func TestAuditCmd_ResolvesPlanID(t *testing.T) {
	step := 0
	engine := &mockEngine{
		plan: mutatingPlan(),
		audit: []domain.AuditEntry{
			{CorrelationID: "corr-1", Event: domain.EventPlanCreated},
			{CorrelationID: "corr-1", Event: domain.EventUserRejected, Metadata: map[string]any{"reason": "hash mismatch"}},
			{CorrelationID: "corr-1", Event: domain.EventStepFailed, StepIndex: &step, ToolName: "tag_document",
				Metadata: map[string]any{"error": "boom"}},
		},
	}

	out, err := execute(t, engine, "audit", "plan-1")

	require.NoError(t, err)
	assert.Equal(t, "corr-1", engine.gotAuditCorr)
	assert.Contains(t, out, "Audit corr-1")
	assert.Contains(t, out, "hash mismatch")
	assert.Contains(t, out, "step 1 tag_document")
}

func TestAuditCmd_AcceptsCorrelationID(t *testing.T) {
	engine := &mockEngine{}

	out, err := execute(t, engine, "audit", "corr-7")

	require.NoError(t, err)
	assert.Equal(t, "corr-7", engine.gotAuditCorr)
	assert.Contains(t, out, "No audit entries for corr-7.")
}

func TestFormatArguments(t *testing.T) {
	assert.Equal(t, "", formatArguments(nil))
	assert.Equal(t, "{key: category, value: finance}",
		formatArguments(domain.Arguments{"value": "finance", "key": "category"}))
}
