package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentsitter/sittr/pkg/ca"
)

type certInstallOptions struct {
	url      string
	certPath string
}

func newCertInstallCmd(a *App) *cobra.Command {
	opts := &certInstallOptions{}

	cmd := &cobra.Command{
		Use:   "cert-install",
		Short: "Fetch and trust the AgentSitter root CA certificate",
		Long: `Fetch the latest AgentSitter root CA certificate and trust it.

On Linux: imports into the NSS DB (~/.pki/nssdb) used by Firefox/Chromium
On macOS: adds to the System keychain used by Safari/Chrome (requires sudo)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCertInstall(cmd, a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "", "Certificate URL (default from config)")
	cmd.Flags().StringVar(&opts.certPath, "cert", "", "Where to save the certificate (default: ./ca-cert.pem)")

	return cmd
}

func runCertInstall(cmd *cobra.Command, a *App, opts *certInstallOptions) error {
	ctx := cmd.Context()

	// Resolve the platform first so an unsupported OS touches nothing.
	p, err := a.platform()
	if err != nil {
		return fmt.Errorf("unsupported OS for automatic cert install: %w", err)
	}

	url := opts.url
	if url == "" {
		url = a.Config.URLs.Cert
	}
	certPath := opts.certPath
	if certPath == "" {
		certPath = a.Config.CertPath()
	}

	logger(cmd).Debug("fetching CA certificate", "url", url, "path", certPath)

	cert, err := ca.Fetch(ctx, a.HTTPClient, url, certPath)
	a.metrics().RecordCertFetched(ctx, err)
	if err != nil {
		return err
	}

	a.success("Fetched CA certificate to %s", cert.Path)
	fmt.Fprintf(a.Out, "  Subject:     %s\n", cert.Cert.Subject.String())
	fmt.Fprintf(a.Out, "  Not After:   %s\n", cert.Cert.NotAfter.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(a.Out, "  SHA-256:     %s\n", cert.Fingerprint())

	if err := p.InstallCA(ctx, cert.Path); err != nil {
		return err
	}

	a.success("Imported CA into %s", p.StoreName())
	return nil
}

func newCertRemoveCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cert-remove",
		Short: "Remove the trusted AgentSitter CA certificate",
		Long: `Remove the AgentSitter CA certificate from the trust store.

A certificate that is not installed is not an error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.platform()
			if err != nil {
				return fmt.Errorf("unsupported OS for automatic cert removal: %w", err)
			}

			if err := p.RemoveCA(cmd.Context()); err != nil {
				logger(cmd).Debug("certificate removal reported an error", "error", err)
			}

			a.success("Removed CA from %s", p.StoreName())
			return nil
		},
	}
}

func newCertListCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:     "cert-list",
		Aliases: []string{"cert-ls"},
		Short:   "List installed AgentSitter CA certificates",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.platform()
			if err != nil {
				return fmt.Errorf("unsupported OS for cert listing: %w", err)
			}

			a.heading("Certificates in %s (label '%s'):", p.StoreName(), a.Config.Cert.Label)

			if err := p.ListCA(cmd.Context()); err != nil {
				logger(cmd).Debug("certificate listing reported an error", "error", err)
			}
			return nil
		},
	}
}
