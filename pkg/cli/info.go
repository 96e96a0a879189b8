package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/agentsitter/sittr/pkg/ca"
	"github.com/agentsitter/sittr/pkg/tunnel"
)

func newTokenCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:         "show-token-url",
		Aliases:     []string{"token"},
		Annotations: lenient(),
		Short:       "Show the URL where you can obtain a new API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.Out, "Obtain your API token at:")
			a.heading("%s", a.Config.URLs.Token)
			return nil
		},
	}
}

func newDashboardCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:         "open-dashboard",
		Aliases:     []string{"dashboard"},
		Annotations: lenient(),
		Short:       "Open the live AgentSitter dashboard in your default browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := a.Config.URLs.Dashboard
			if err := a.Browser(url); err != nil {
				logger(cmd).Warn("failed to launch browser", "url", url, "error", err)
				a.info("Could not open a browser; visit %s", url)
				return nil
			}
			a.success("Opened dashboard at %s", url)
			return nil
		},
	}
}

func newStatusCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Short:       "Show a brief sittr status summary",
		Annotations: lenient(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, a)
		},
	}
}

func runStatus(cmd *cobra.Command, a *App) error {
	cfg := a.Config

	tunnelState := "stopped"
	if running, pid, err := tunnel.IsRunning(cfg.Tunnel.PIDFile); err != nil {
		logger(cmd).Debug("failed to read tunnel PID file", "error", err)
		tunnelState = "unknown"
	} else if running {
		tunnelState = "running (PID " + strconv.Itoa(pid) + ")"
	}

	certState := "not fetched"
	if cert, err := ca.Load(cfg.CertPath()); err == nil {
		certState = fmt.Sprintf("%s (expires %s)", cert.Path, cert.Cert.NotAfter.Format("2006-01-02"))
	} else if !errors.Is(err, fs.ErrNotExist) {
		logger(cmd).Debug("failed to inspect CA certificate", "error", err)
		certState = "unreadable"
	}

	configPath := a.configPath
	if configPath == "" {
		configPath = "(defaults)"
	}

	table := tablewriter.NewWriter(a.Out)
	table.Header("Item", "Value")
	if err := table.Bulk([][]string{
		{"Proxy", cfg.Proxy.Addr()},
		{"Dashboard", cfg.URLs.Dashboard},
		{"CA cert", certState},
		{"Tunnel", tunnelState + " -> " + cfg.Tunnel.Connect},
		{"Network", cfg.Network.Name},
		{"Config", configPath},
	}); err != nil {
		return err
	}
	return table.Render()
}
