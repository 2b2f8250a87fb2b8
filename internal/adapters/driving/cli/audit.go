package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

var auditJSON bool

var auditCmd = &cobra.Command{
	Use:   "audit <plan-id|correlation-id>",
	Short: "Show the audit trail of a plan",
	Long: `Shows every audit entry recorded for one plan lifecycle: creation,
confirmation or rejection, each step, rollbacks and the outcome.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "output entries as JSON")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}

	correlationID := args[0]
	plan, err := a.Engine.GetPlan(cmd.Context(), args[0])
	switch {
	case err == nil:
		correlationID = plan.CorrelationID
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("loading plan: %w", err)
	}

	entries, err := a.Engine.GetAuditTrail(cmd.Context(), correlationID)
	if err != nil {
		return fmt.Errorf("reading audit trail: %w", err)
	}
	if auditJSON {
		return writeJSON(cmd.OutOrStdout(), entries)
	}
	if len(entries) == 0 {
		cmd.Printf("No audit entries for %s.\n", args[0])
		return nil
	}
	renderAudit(cmd.OutOrStdout(), entries)
	return nil
}

func renderAudit(w io.Writer, entries []domain.AuditEntry) {
	fmt.Fprintln(w, titleStyle.Render("Audit "+entries[0].CorrelationID))
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-18s", mutedStyle.Render(e.Timestamp.Local().Format(time.DateTime)), e.Event)
		if e.StepIndex != nil {
			line += fmt.Sprintf(" step %d", *e.StepIndex+1)
		}
		if e.ToolName != "" {
			line += " " + e.ToolName
		}
		if e.RiskLevel != "" {
			line += " " + riskStyle(e.RiskLevel).Render(string(e.RiskLevel))
		}
		if e.RollbackStatus != "" {
			line += " " + statusStyle(string(e.RollbackStatus)).Render(string(e.RollbackStatus))
		}
		if reason, ok := e.Metadata["error"].(string); ok {
			line += " " + errorStyle.Render(reason)
		} else if reason, ok := e.Metadata["reason"].(string); ok {
			line += " " + mutedStyle.Render(reason)
		}
		fmt.Fprintln(w, line)
	}
}
