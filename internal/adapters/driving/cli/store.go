package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

var statsJSON bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the store schema up to date",
	Long: `Applies pending schema migrations. Migrations are idempotent: running
this on an up-to-date store changes nothing. The store is also migrated
whenever it is opened.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise store contents",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statsCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}
	if err := a.Engine.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	stats, err := a.Engine.Stats(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("Store is at schema version %d.\n", stats.SchemaVersion)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}
	stats, err := a.Engine.Stats(cmd.Context())
	if err != nil {
		return err
	}
	if statsJSON {
		return writeJSON(cmd.OutOrStdout(), stats)
	}

	cmd.Println(titleStyle.Render("Store"))
	cmd.Println(field("Schema", fmt.Sprint(stats.SchemaVersion)))
	cmd.Println(field("Documents", fmt.Sprint(stats.Documents)))
	cmd.Println(field("Tombstones", fmt.Sprint(stats.Tombstones)))
	cmd.Println(field("Relationships", fmt.Sprint(stats.Relationships)))
	cmd.Println(field("Vectors", fmt.Sprint(stats.Vectors)))

	kinds := make([]domain.Kind, 0, len(stats.ByKind))
	for k := range stats.ByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		cmd.Println(field("  "+string(k), fmt.Sprint(stats.ByKind[k])))
	}

	if names := a.Engine.Sources(); len(names) > 0 {
		cmd.Println(field("Sources", fmt.Sprint(names)))
	}
	return nil
}
