// Package cli provides the keepsake command line interface.
package cli

import (
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/keepsake/internal/adapters/driven/config/file"
	"github.com/custodia-labs/keepsake/internal/logger"
)

// skipAppAnnotation marks commands that run without opening the store.
const skipAppAnnotation = "keepsake/skip-app"

var (
	version = "dev"

	configPath string
	verbose    bool

	// app is opened before each command unless already set, as in tests.
	app *App

	// openApp is replaced in tests.
	openApp = OpenApp
)

var rootCmd = &cobra.Command{
	Use:   "keepsake",
	Short: "Local-first personal data engine",
	Long: `Keepsake ingests mail, messages, events, notes and files from
configured sources into a local store, searches them with hybrid keyword
and semantic retrieval, and runs confirmed multi-step plans over them.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: teardownApp,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.keepsake/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable diagnostic output")
}

// Execute runs the root command with the given build version.
func Execute(v string) error {
	if v != "" {
		version = v
	}
	return rootCmd.Execute()
}

func setupApp(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if skipsApp(cmd) || app != nil {
		return nil
	}

	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	logger.Debug("Using config %s", path)

	opened, err := openApp(path)
	if err != nil {
		return err
	}
	app = opened
	return nil
}

func teardownApp(cmd *cobra.Command, _ []string) error {
	if skipsApp(cmd) || app == nil {
		return nil
	}
	err := app.Close()
	app = nil
	return err
}

func skipsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[skipAppAnnotation]; ok {
			return true
		}
	}
	return false
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return file.ExpandHome(configPath)
	}
	dir, err := file.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, file.ConfigFileName), nil
}

func requireApp() (*App, error) {
	if app == nil || app.Engine == nil {
		return nil, errors.New("engine not configured")
	}
	return app, nil
}
