package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

var (
	ingestFull bool
	ingestJSON bool
	runsLimit  int
	runsJSON   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [source...]",
	Short: "Ingest documents from sources",
	Long: `Runs configured sources into the store.
If source names are given, only those sources run, in the order given.
Otherwise every source runs in configuration order.

A full sync re-reads everything and tombstones documents the source no
longer has. Without --full, sources only yield records changed since their
last successful sync.`,
	RunE: runIngest,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent ingestion runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestFull, "full", false, "full sync: re-read everything and tombstone missing records")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the run report as JSON")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "maximum number of runs")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "output runs as JSON")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(runsCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}
	if len(args) == 0 && len(a.Engine.Sources()) == 0 {
		cmd.Println("No sources configured. Add [[sources]] entries to the config file.")
		return nil
	}

	refs := make([]domain.SourceRef, len(args))
	for i, name := range args {
		refs[i] = domain.SourceRef(name)
	}

	report, err := a.Engine.Ingest(cmd.Context(), refs, ingestFull)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if ingestJSON {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	renderRunReport(cmd.OutOrStdout(), report)

	if failed := report.FailedSources(); len(failed) > 0 {
		return fmt.Errorf("%d source(s) failed: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func runRuns(cmd *cobra.Command, _ []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}

	runs, err := a.Engine.Runs(cmd.Context(), runsLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if runsJSON {
		return writeJSON(cmd.OutOrStdout(), runs)
	}
	if len(runs) == 0 {
		cmd.Println("No ingestion runs yet.")
		return nil
	}
	for _, r := range runs {
		t := r.Totals()
		status := successStyle.Render("ok")
		if failed := r.FailedSources(); len(failed) > 0 {
			status = errorStyle.Render("failed: " + strings.Join(failed, ", "))
		}
		cmd.Printf("%s  %s  %d processed, %d created, %d updated, %d tombstoned  %s\n",
			mutedStyle.Render(r.StartedAt.Local().Format(time.DateTime)), r.RunID,
			t.Processed, t.Created, t.Updated, t.Tombstoned, status)
	}
	return nil
}

func renderRunReport(w io.Writer, report domain.RunReport) {
	mode := "incremental"
	if report.FullSync {
		mode = "full"
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Ingest %s (%s)", report.RunID, mode)))

	for _, s := range report.Sources {
		if s.Failed() {
			fmt.Fprintf(w, "  %s %s\n", errorStyle.Render("✗ "+s.Source),
				mutedStyle.Render(fmt.Sprintf("[%s] %s", s.ErrorClass, s.Error)))
			continue
		}
		fmt.Fprintf(w, "  %s %d processed, %d created, %d updated, %d unchanged, %d tombstoned, %d errors\n",
			successStyle.Render("✓ "+s.Source), s.Processed, s.Created, s.Updated, s.Unchanged, s.Tombstoned, s.Errors)
	}

	t := report.Totals()
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  %d processed in %s", t.Processed, report.Duration.Round(time.Millisecond))))
	if report.Linked > 0 {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  %d relationships linked", report.Linked)))
	}
	if report.IndexRebuilt {
		fmt.Fprintln(w, warningStyle.Render("  text index was rebuilt"))
	}
}
