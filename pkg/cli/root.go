// Package cli implements the sittr commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/grokify/mogo/log/slogutil"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/agentsitter/sittr/pkg/ca"
	"github.com/agentsitter/sittr/pkg/config"
	"github.com/agentsitter/sittr/pkg/docker"
	"github.com/agentsitter/sittr/pkg/observability"
	"github.com/agentsitter/sittr/pkg/runner"
	"github.com/agentsitter/sittr/pkg/system"
)

// App wires the commands to their collaborators. Tests replace any field.
type App struct {
	// Config is loaded from --config when nil
	Config *config.Config
	// GOOS selects the platform; empty means the running OS
	GOOS string
	// NSSDBDir overrides the Linux NSS database directory
	NSSDBDir string

	Runner     runner.Runner
	Gateway    docker.GatewayLookup
	HTTPClient *http.Client
	Browser    func(url string) error

	Out io.Writer
	Err io.Writer

	Version string

	// set per run from flags
	configPath  string
	verbose     bool
	metricsFile string
	provider    *observability.Provider
}

// NewApp returns an App wired to the real system.
func NewApp(version string) *App {
	return &App{
		Runner:     runner.New(os.Stdout, os.Stderr),
		Gateway:    docker.Lookup{},
		HTTPClient: &http.Client{Timeout: ca.DefaultTimeout},
		Browser:    browser.OpenURL,
		Out:        os.Stdout,
		Err:        os.Stderr,
		Version:    version,
	}
}

// RootCmd builds the command tree.
func (a *App) RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sittr",
		Short: "AgentSitter.ai CLI",
		Long: `sittr prepares this machine to route traffic through the AgentSitter
inspection proxy.

It can:
  - Fetch and trust the AgentSitter root CA certificate
  - Create an isolated Docker network whose traffic is redirected to the proxy
  - Run a local stunnel client to the remote AgentSitter endpoint
  - Point the system proxy at the tunnel and open the dashboard`,
		Version:       a.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   lenient(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: ~/.sittr/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics for this run to a file")

	rootCmd.AddCommand(
		newTokenCmd(a),
		newCertInstallCmd(a),
		newCertRemoveCmd(a),
		newCertListCmd(a),
		newNetworkSetupCmd(a),
		newNetworkCleanupCmd(a),
		newTunnelStartCmd(a),
		newTunnelStopCmd(a),
		newDashboardCmd(a),
		newProxyEnableCmd(a),
		newStatusCmd(a),
		newConfigCmd(a),
	)

	return rootCmd
}

// setup loads configuration, installs the logger and starts metrics.
func (a *App) setup(cmd *cobra.Command) error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(a.Err, &slog.HandlerOptions{Level: level}))
	cmd.SetContext(slogutil.ContextWithLogger(cmd.Context(), logger))

	if a.Config == nil && !skipsConfig(cmd) {
		if err := a.loadConfig(cmd, logger); err != nil {
			return err
		}
	}

	if a.metricsFile != "" && a.provider == nil {
		provider, err := observability.NewProvider(&observability.Config{
			ServiceName:    "sittr",
			ServiceVersion: a.Version,
		})
		if err != nil {
			return fmt.Errorf("failed to setup metrics: %w", err)
		}
		a.provider = provider
	}

	return nil
}

// loadConfig reads --config or the default config file. Commands annotated
// with lenientConfig fall back to defaults when the file is unusable.
func (a *App) loadConfig(cmd *cobra.Command, logger *slog.Logger) error {
	path := a.configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		if cmd.Annotations[lenientConfig] == "" {
			return err
		}
		logger.Warn("ignoring config file, using defaults", "path", path, "error", err)
		a.Config = config.DefaultConfig()
		a.configPath = ""
		return nil
	}

	a.Config = cfg
	if _, err := os.Stat(path); err == nil {
		a.configPath = path
		logger.Debug("loaded config", "path", path)
	} else {
		a.configPath = ""
	}
	return nil
}

// Annotation keys.
const (
	// lenientConfig marks commands that must run even with a broken config file
	lenientConfig = "sittr/lenient-config"
	// noConfig marks command trees that never read the config file
	noConfig = "sittr/no-config"
)

func lenient() map[string]string {
	return map[string]string{lenientConfig: "true"}
}

// skipsConfig reports whether cmd belongs to a tree that never reads the
// config file, including cobra's help and completion commands.
func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[noConfig] != "" {
			return true
		}
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

// Execute runs the command line args and records the outcome.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.RootCmd()
	root.SetArgs(args)
	root.SetOut(a.Out)
	root.SetErr(a.Err)

	start := time.Now()
	cmd, err := root.ExecuteContextC(ctx)

	if a.provider != nil {
		name := root.Name()
		if cmd != nil {
			name = cmd.Name()
		}
		a.provider.Metrics.RecordCommand(ctx, name, time.Since(start), err)
		if werr := a.provider.WriteTextfile(a.metricsFile); werr != nil {
			fmt.Fprintf(a.Err, "warning: %v\n", werr)
		}
		_ = a.provider.Shutdown(ctx)
	}

	return err
}

func (a *App) metrics() *observability.Metrics {
	if a.provider == nil {
		return nil
	}
	return a.provider.Metrics
}

func (a *App) platform() (system.Platform, error) {
	return system.New(a.GOOS, a.Runner, system.Options{
		CertLabel: a.Config.Cert.Label,
		NSSDBDir:  a.NSSDBDir,
	})
}

func logger(cmd *cobra.Command) *slog.Logger {
	return slogutil.LoggerFromContext(cmd.Context(), slogutil.Null())
}

var (
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgYellow)
	failureColor = color.New(color.FgRed)
	linkColor    = color.New(color.FgBlue)
)

func (a *App) success(format string, args ...any) {
	successColor.Fprintf(a.Out, format+"\n", args...)
}

func (a *App) info(format string, args ...any) {
	infoColor.Fprintf(a.Out, format+"\n", args...)
}

func (a *App) heading(format string, args ...any) {
	linkColor.Fprintf(a.Out, format+"\n", args...)
}

// PrintError writes err to w the way the CLI reports failures.
func PrintError(w io.Writer, err error) {
	failureColor.Fprintf(w, "Error: %v\n", err)
}
