package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentsitter/sittr/pkg/config"
)

func newConfigCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage configuration",
		Long:        `Manage the sittr configuration file.`,
		Annotations: map[string]string{noConfig: "true"},
	}

	cmd.AddCommand(
		newConfigInitCmd(a),
		newConfigShowCmd(a),
	)

	return cmd
}

type configInitOptions struct {
	output string
	force  bool
}

func newConfigInitCmd(a *App) *cobra.Command {
	opts := &configInitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long: `Create a new configuration file with default settings.

The configuration file uses YAML format and includes all available options
with their default values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(a, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output path (default: ~/.sittr/config.yaml)")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite existing file")

	return cmd
}

func runConfigInit(a *App, opts *configInitOptions) error {
	path := opts.output
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !opts.force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	a.success("Configuration file created: %s", path)
	fmt.Fprintf(a.Out, "\nTo use this configuration:\n")
	fmt.Fprintf(a.Out, "  sittr --config %s status\n", path)

	return nil
}

func newConfigShowCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show example configuration",
		Long:  `Display an example configuration file with all available options.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.Out, "# sittr Configuration Example")
			fmt.Fprintln(a.Out, "#")
			fmt.Fprintln(a.Out, "# Save this to ~/.sittr/config.yaml or specify with --config flag")
			fmt.Fprintln(a.Out)
			fmt.Fprintln(a.Out, config.ExampleConfig())
			return nil
		},
	}
}
