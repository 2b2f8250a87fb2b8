package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/keepsake/internal/core/services"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the store up to date in the background",
	Long: `Runs every source on start, then again on the configured interval
(full syncs when watch.full_sync is set). Sources that can watch for changes (filesystem and jsonl) trigger an
incremental ingest of just that source once changes settle.

Stops on interrupt.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}
	if len(a.Sources) == 0 {
		return errors.New("no sources configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := services.NewScheduler(services.SchedulerConfig{
		Interval: a.Settings.Watch.Interval.Std(),
		Debounce: a.Settings.Watch.Debounce.Std(),
		FullSync: a.Settings.Watch.FullSync,
	}, a.Engine.Ingest, a.Sources)

	if watching := scheduler.Watching(); len(watching) > 0 {
		cmd.Printf("Watching %v for changes.\n", watching)
	}
	cmd.Println(mutedStyle.Render("Press Ctrl+C to stop."))

	err = scheduler.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
