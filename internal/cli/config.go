package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alnah/speakerfmt/internal/config"
)

// ConfigCmd creates the config command with subcommands.
// configPath points at the root --config flag value.
func ConfigCmd(env *Env, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage default settings",
		Long: `Manage the YAML file holding default settings.

The file lives at $XDG_CONFIG_HOME/speakerfmt/config.yaml (or the path given
by --config or $SPEAKERFMT_CONFIG). Flags and environment variables override it.

Supported keys:
  ` + strings.Join(config.Keys, ", "),
		Example: `  speakerfmt config set model gpt-4o
  speakerfmt config set speakers "Alice,Bob"
  speakerfmt config get pace
  speakerfmt config list`,
	}

	path := func() string {
		return configPathFor(env, *configPath)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a default value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(env, path(), args[0], args[1])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a default value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(env, path(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigList(env, path())
		},
	})

	return cmd
}

// configPathFor returns explicit, then $SPEAKERFMT_CONFIG, then "" (default file).
func configPathFor(env *Env, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return env.Getenv(EnvConfig)
}

// runConfigSet handles the "config set" command.
func runConfigSet(env *Env, path, key, value string) error {
	if !config.IsValidKey(key) {
		return fmt.Errorf("unknown config key %q (valid keys: %s): %w", key, strings.Join(config.Keys, ", "), config.ErrInvalid)
	}

	target := path
	if target == "" {
		p, err := env.ConfigLoader.DefaultPath()
		if err != nil {
			return err
		}
		target = p
	}

	// Setting a key in a file that does not exist yet is fine.
	cfg, err := env.ConfigLoader.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := env.ConfigLoader.Save(target, cfg); err != nil {
		return err
	}

	stored, _ := cfg.Get(key)
	fmt.Fprintf(env.Stderr, "Set %s = %s\n", key, stored)
	return nil
}

// runConfigGet handles the "config get" command.
func runConfigGet(env *Env, path, key string) error {
	cfg, err := env.ConfigLoader.Load(path)
	if err != nil {
		return err
	}
	value, err := cfg.Get(key)
	if err != nil {
		return err
	}
	if value != "" {
		fmt.Fprintln(env.Stdout, value)
	}
	return nil
}

// runConfigList handles the "config list" command.
func runConfigList(env *Env, path string) error {
	cfg, err := env.ConfigLoader.Load(path)
	if err != nil {
		return err
	}

	var set int
	for _, key := range config.Keys {
		value, _ := cfg.Get(key)
		if value == "" {
			continue
		}
		set++
		fmt.Fprintf(env.Stdout, "%s=%s\n", key, value)
	}

	if set == 0 {
		fmt.Fprintln(env.Stdout, "No configuration set.")
		fmt.Fprintln(env.Stdout, "\nAvailable settings:")
		for _, key := range config.Keys {
			fmt.Fprintf(env.Stdout, "  %s\n", key)
		}
	}
	return nil
}
