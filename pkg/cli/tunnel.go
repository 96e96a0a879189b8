package cli

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentsitter/sittr/pkg/tunnel"
)

func newTunnelStartCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tunnel-start",
		Short: "Start an stunnel to the AgentSitter proxy",
		Long: `Start a background stunnel client to the AgentSitter proxy.

The tunnel accepts connections on the local proxy address (localhost:8080)
and, when the Docker network 'agent-sitter-net' exists, also on that
network's bridge gateway. stunnel is installed with apt-get or brew if missing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTunnelStart(cmd, a)
		},
	}
}

func runTunnelStart(cmd *cobra.Command, a *App) error {
	ctx := cmd.Context()
	cfg := a.Config
	m := tunnel.NewManager(a.Runner, cfg.Tunnel.PIDFile)

	if _, err := a.Runner.LookPath(tunnel.Binary); err != nil {
		a.info("stunnel not found, installing...")
	}
	installed, err := m.EnsureInstalled(ctx)
	if err != nil {
		return err
	}
	if installed {
		a.success("stunnel installed successfully.")
	}

	opts := tunnel.Options{
		ListenHost: cfg.Proxy.Host,
		ListenPort: cfg.Proxy.Port,
		Connect:    cfg.Tunnel.Connect,
		PIDFile:    cfg.Tunnel.PIDFile,
	}

	gw, err := a.Gateway.NetworkGateway(ctx, cfg.Network.Name)
	switch {
	case err != nil:
		logger(cmd).Debug("no bridge gateway", "network", cfg.Network.Name, "error", err)
		a.info("No Docker bridge bind (network not found).")
	case gw == "":
		a.info("No Docker bridge bind (network not found).")
	default:
		opts.Gateway = gw
		a.success("Also binding on Docker bridge at %s", net.JoinHostPort(gw, strconv.Itoa(cfg.Proxy.Port)))
	}

	err = m.Start(ctx, tunnel.BuildConfig(opts))
	a.metrics().RecordTunnelStart(ctx, opts.Gateway != "", err)
	if err != nil {
		return err
	}

	a.success("Stunnel started.")
	return nil
}

func newTunnelStopCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:         "tunnel-stop",
		Short:       "Stop any running stunnel process",
		Annotations: lenient(),
		RunE: func(cmd *cobra.Command, args []string) error {
			tunnel.NewManager(a.Runner, a.Config.Tunnel.PIDFile).Stop(cmd.Context())
			a.success("Stopped stunnel.")
			return nil
		},
	}
}
