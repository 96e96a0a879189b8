package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentsitter/sittr/pkg/network"
)

type networkOptions struct {
	proxyHost string
	proxyPort int
}

func newNetworkSetupCmd(a *App) *cobra.Command {
	opts := &networkOptions{}

	cmd := &cobra.Command{
		Use:   "network-setup",
		Short: "Create the Docker network and redirect its traffic to the proxy",
		Long: `Create the Docker network 'agent-sitter-net' and insert iptables rules
that force its containers through the proxy.

Runs the network manager script with sudo.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			host, port := opts.resolve(a)
			m := network.NewManager(a.Config.NetworkScript(), a.Runner)
			if err := m.Setup(cmd.Context(), host, port); err != nil {
				return err
			}
			a.success("Docker network setup complete.")
			return nil
		},
	}

	opts.addFlags(cmd)
	return cmd
}

func newNetworkCleanupCmd(a *App) *cobra.Command {
	opts := &networkOptions{}

	cmd := &cobra.Command{
		Use:   "network-cleanup",
		Short: "Remove the redirect rules and delete the Docker network",
		RunE: func(cmd *cobra.Command, args []string) error {
			host, port := opts.resolve(a)
			m := network.NewManager(a.Config.NetworkScript(), a.Runner)
			if err := m.Cleanup(cmd.Context(), host, port); err != nil {
				return err
			}
			a.success("Docker network cleanup complete.")
			return nil
		},
	}

	opts.addFlags(cmd)
	return cmd
}

func (o *networkOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.proxyHost, "proxy-host", "", "Proxy host (default from config: localhost)")
	cmd.Flags().IntVar(&o.proxyPort, "proxy-port", 0, "Proxy port (default from config: 8080)")
}

// resolve fills unset flags from the config.
func (o *networkOptions) resolve(a *App) (string, int) {
	host, port := o.proxyHost, o.proxyPort
	if host == "" {
		host = a.Config.Proxy.Host
	}
	if port == 0 {
		port = a.Config.Proxy.Port
	}
	return host, port
}
