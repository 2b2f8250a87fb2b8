package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

var (
	planYes     bool
	planExecute bool
	planJSON    bool
	planLimit   int
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Create, confirm and inspect multi-step plans",
	Long: `Plans are ordered tool calls built from an intent file.

Plans whose steps only read data run without confirmation. Any plan with a
mutating or destructive step must be confirmed: the confirmation covers the
exact steps shown, and expires after the configured window.`,
}

var planCreateCmd = &cobra.Command{
	Use:   "create <intent.yaml|->",
	Short: "Create a draft plan from an intent file",
	Long: `Creates a draft plan from a YAML intent file ("-" reads stdin):

  description: tag last week's invoices
  operations:
    - tool: tag_document
      arguments:
        id: doc_3f6c...
        key: category
        value: finance

Use --execute to confirm and run the plan straight away.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanCreate,
}

var planConfirmCmd = &cobra.Command{
	Use:   "confirm <plan-id>",
	Short: "Confirm and execute a draft plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanConfirm,
}

var planCancelCmd = &cobra.Command{
	Use:   "cancel <plan-id>",
	Short: "Cancel a plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanCancel,
}

var planShowCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Show a plan and its last result",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanShow,
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent plans",
	Args:  cobra.NoArgs,
	RunE:  runPlanList,
}

var planToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools plans may use",
	Args:  cobra.NoArgs,
	RunE:  runPlanTools,
}

func init() {
	planCreateCmd.Flags().BoolVar(&planExecute, "execute", false, "confirm and execute after creating")
	for _, c := range []*cobra.Command{planCreateCmd, planConfirmCmd} {
		c.Flags().BoolVarP(&planYes, "yes", "y", false, "confirm without prompting")
	}
	for _, c := range []*cobra.Command{planCreateCmd, planConfirmCmd, planShowCmd, planListCmd} {
		c.Flags().BoolVar(&planJSON, "json", false, "output as JSON")
	}
	planListCmd.Flags().IntVarP(&planLimit, "limit", "n", 20, "maximum number of plans")

	planCmd.AddCommand(planCreateCmd, planConfirmCmd, planCancelCmd, planShowCmd, planListCmd, planToolsCmd)
	rootCmd.AddCommand(planCmd)
}

func runPlanCreate(cmd *cobra.Command, args []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}

	intent, err := readIntent(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	plan, err := a.Engine.CreatePlan(cmd.Context(), intent)
	if err != nil {
		return fmt.Errorf("creating plan: %w", err)
	}

	if !planExecute {
		if planJSON {
			return writeJSON(cmd.OutOrStdout(), plan)
		}
		renderPlan(cmd.OutOrStdout(), plan)
		if plan.RequiresConfirmation() {
			cmd.Printf("\nRun 'keepsake plan confirm %s' to execute.\n", plan.ID)
		}
		return nil
	}
	return confirmAndExecute(cmd, a, plan)
}

func runPlanConfirm(cmd *cobra.Command, args []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}

	plan, err := a.Engine.GetPlan(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("loading plan: %w", err)
	}
	return confirmAndExecute(cmd, a, plan)
}

// confirmAndExecute shows the plan, asks for confirmation when any step
// may change data, then runs it with the plan's hash.
func confirmAndExecute(cmd *cobra.Command, a *App, plan *domain.Plan) error {
	hash := ""
	if plan.RequiresConfirmation() {
		if !planJSON {
			renderPlan(cmd.OutOrStdout(), plan)
			cmd.Println()
		}
		if !planYes && !confirm(cmd, fmt.Sprintf("Execute %d step(s), max risk %s?", len(plan.Steps), plan.MaxRisk())) {
			return fmt.Errorf("plan %s not confirmed: %w", plan.ID, domain.ErrConfirmationRequired)
		}
		hash = plan.ConfirmationHash
	}

	result, execErr := a.Engine.ConfirmAndExecute(cmd.Context(), plan.ID, hash)
	if len(result.Steps) == 0 && execErr != nil {
		return fmt.Errorf("executing plan: %w", execErr)
	}

	if planJSON {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		renderExecution(cmd.OutOrStdout(), result)
	}
	if execErr != nil {
		return fmt.Errorf("plan %s %s: %w", plan.ID, result.Status, execErr)
	}
	return nil
}

func runPlanCancel(cmd *cobra.Command, args []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}
	if err := a.Engine.CancelPlan(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("cancelling plan: %w", err)
	}
	cmd.Printf("Plan %s cancelled.\n", args[0])
	return nil
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}
	plan, err := a.Engine.GetPlan(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("loading plan: %w", err)
	}
	if planJSON {
		return writeJSON(cmd.OutOrStdout(), plan)
	}
	renderPlan(cmd.OutOrStdout(), plan)
	if plan.Result != nil {
		cmd.Println()
		renderExecution(cmd.OutOrStdout(), *plan.Result)
	}
	return nil
}

func runPlanList(cmd *cobra.Command, _ []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}
	plans, err := a.Engine.ListPlans(cmd.Context(), planLimit)
	if err != nil {
		return fmt.Errorf("listing plans: %w", err)
	}
	if planJSON {
		return writeJSON(cmd.OutOrStdout(), plans)
	}
	if len(plans) == 0 {
		cmd.Println("No plans yet.")
		return nil
	}
	for i := range plans {
		p := &plans[i]
		cmd.Printf("%s  %s  %s  %s  %s\n",
			mutedStyle.Render(p.CreatedAt.Local().Format(time.DateTime)), p.ID,
			statusStyle(string(p.Status)).Render(string(p.Status)),
			riskStyle(p.MaxRisk()).Render(string(p.MaxRisk())),
			p.Intent.Description)
	}
	return nil
}

func runPlanTools(cmd *cobra.Command, _ []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}
	for _, t := range a.Engine.Tools() {
		cmd.Printf("%-12s %-13s %s\n", t.Name, riskStyle(t.Risk).Render(string(t.Risk)), t.Description)
	}
	return nil
}

func readIntent(stdin io.Reader, path string) (domain.Intent, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return domain.Intent{}, fmt.Errorf("reading intent: %w", err)
	}

	var intent domain.Intent
	if err := yaml.Unmarshal(data, &intent); err != nil {
		return domain.Intent{}, fmt.Errorf("%w: intent: %v", domain.ErrValidation, err)
	}
	if len(intent.Operations) == 0 {
		return domain.Intent{}, errors.New("intent has no operations")
	}
	return intent, nil
}

func renderPlan(w io.Writer, plan *domain.Plan) {
	fmt.Fprintln(w, titleStyle.Render("Plan "+plan.ID))
	fmt.Fprintln(w, field("Intent", plan.Intent.Description))
	fmt.Fprintln(w, field("Status", statusStyle(string(plan.Status)).Render(string(plan.Status))))
	fmt.Fprintln(w, field("Max risk", riskStyle(plan.MaxRisk()).Render(string(plan.MaxRisk()))))
	fmt.Fprintln(w, field("Correlation", plan.CorrelationID))
	if plan.RequiresConfirmation() {
		fmt.Fprintln(w, field("Hash", plan.ConfirmationHash))
	}
	fmt.Fprintln(w, field("Steps", ""))
	for i, s := range plan.Steps {
		undo := ""
		if s.Compensation != nil {
			undo = mutedStyle.Render(" (undo: " + s.Compensation.ToolName + ")")
		}
		fmt.Fprintf(w, "  %d. %s %s %s%s\n", i+1, s.ToolName,
			riskStyle(s.RiskLevel).Render(string(s.RiskLevel)), formatArguments(s.Arguments), undo)
	}
}

func renderExecution(w io.Writer, result domain.ExecutionResult) {
	fmt.Fprintln(w, titleStyle.Render("Execution ")+statusStyle(string(result.Status)).Render(string(result.Status)))
	for _, s := range result.Steps {
		line := fmt.Sprintf("  %d. %s %s", s.Index+1, s.ToolName, statusStyle(string(s.Status)).Render(string(s.Status)))
		if s.Attempts > 1 {
			line += mutedStyle.Render(fmt.Sprintf(" after %d attempts", s.Attempts))
		}
		if s.Error != "" {
			line += " " + errorStyle.Render(s.Error)
		}
		fmt.Fprintln(w, line)
	}
	for _, r := range result.Rollbacks {
		line := fmt.Sprintf("  rollback %d. %s %s", r.StepIndex+1, r.ToolName, statusStyle(string(r.Status)).Render(string(r.Status)))
		if r.Error != "" {
			line += " " + errorStyle.Render(r.Error)
		}
		fmt.Fprintln(w, line)
	}
}

func formatArguments(args domain.Arguments) string {
	if len(args) == 0 {
		return ""
	}
	data, err := yaml.Marshal(map[string]any(args))
	if err != nil {
		return fmt.Sprint(map[string]any(args))
	}
	// Flow style keeps the arguments on one line.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil || len(node.Content) == 0 {
		return fmt.Sprint(map[string]any(args))
	}
	node.Content[0].Style = yaml.FlowStyle
	out, err := yaml.Marshal(node.Content[0])
	if err != nil {
		return fmt.Sprint(map[string]any(args))
	}
	return mutedStyle.Render(string(trimNewline(out)))
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == '\n' {
		b = b[:len(b)-1]
	}
	return b
}
