package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProxyEnableCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:         "proxy-enable",
		Short:       "Point the system proxy at the local tunnel",
		Annotations: lenient(),
		Long: `Point the system HTTP/HTTPS proxy at the local tunnel.

On macOS: sets the web and secure web proxy of every network service via networksetup
Elsewhere: prints the proxy address to configure`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxyEnable(cmd, a)
		},
	}
}

func runProxyEnable(cmd *cobra.Command, a *App) error {
	proxy := a.Config.Proxy

	p, err := a.platform()
	if err != nil {
		logger(cmd).Debug("no system proxy support", "error", err)
		a.success("Proxy enabled at %s", proxy.URL())
		return nil
	}

	services, err := p.EnableProxy(cmd.Context(), proxy.Host, proxy.Port)
	if err != nil {
		logger(cmd).Warn("failed to configure system proxy", "error", err)
	}
	if len(services) == 0 {
		a.success("Proxy enabled at %s", proxy.URL())
		return nil
	}

	a.success("Proxy enabled on all %s network services.", p.Name())
	for _, s := range services {
		fmt.Fprintf(a.Out, "  %s -> %s\n", s, proxy.Addr())
	}
	return nil
}
