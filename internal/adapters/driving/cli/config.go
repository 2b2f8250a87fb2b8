package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/keepsake/internal/adapters/driven/config/file"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Read and edit the config file",
	Annotations: map[string]string{skipAppAnnotation: ""},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one value, or every value",
	Long: `Prints a config value by dotted key (e.g. search.expand).
Without a key, prints every set value.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one value",
	Long: `Sets a config value by dotted key. Values are stored as booleans or
numbers when they parse as such, otherwise as strings:

  keepsake config set search.default_limit 20
  keepsake config set embedding.enabled true
  keepsake config set store.write_timeout 2s

The result must still be a valid configuration.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cmd.Println(path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func openConfigStore() (*file.ConfigStore, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, file.ConfigFileName) {
		return nil, fmt.Errorf("config file must be named %s", file.ConfigFileName)
	}
	return file.NewConfigStore(strings.TrimSuffix(path, file.ConfigFileName))
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	store, err := openConfigStore()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		val, ok := store.Get(args[0])
		if !ok {
			return fmt.Errorf("%s is not set", args[0])
		}
		cmd.Println(val)
		return nil
	}

	for _, key := range store.Keys() {
		val, _ := store.Get(key)
		cmd.Printf("%s = %v\n", key, val)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	store, err := openConfigStore()
	if err != nil {
		return err
	}

	key, value := args[0], parseConfigValue(args[1])
	previous, existed := store.Get(key)
	if err := store.Set(key, value); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if _, err := file.LoadSettings(store.Path()); err != nil {
		// Put the file back the way it was.
		var restoreErr error
		if existed {
			restoreErr = store.Set(key, previous)
		} else {
			restoreErr = store.Unset(key)
		}
		return errors.Join(fmt.Errorf("rejected %s: %w", key, err), restoreErr)
	}

	cmd.Printf("%s = %v\n", key, value)
	return nil
}

func parseConfigValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
