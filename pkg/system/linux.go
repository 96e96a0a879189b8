package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentsitter/sittr/pkg/runner"
)

// DefaultNSSDBDir returns the per-user NSS database used by Firefox and Chromium.
func DefaultNSSDBDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".pki", "nssdb")
	}
	return filepath.Join(home, ".pki", "nssdb")
}

func (l *linuxPlatform) Name() string {
	return "linux"
}

func (l *linuxPlatform) StoreName() string {
	return "NSS DB (" + l.opts.NSSDBDir + ")"
}

func (l *linuxPlatform) dbArg() string {
	return "sql:" + l.opts.NSSDBDir
}

// InstallCA imports the certificate into the NSS DB as a trusted CA for TLS.
func (l *linuxPlatform) InstallCA(ctx context.Context, certPath string) error {
	if err := os.MkdirAll(l.opts.NSSDBDir, 0700); err != nil {
		return fmt.Errorf("failed to create NSS DB directory: %w", err)
	}

	cmd := runner.Command("certutil", "-A", "-d", l.dbArg(),
		"-n", l.opts.CertLabel, "-t", "C,,", "-i", certPath)
	if err := l.run.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to import CA into NSS DB: %w", err)
	}
	return nil
}

// RemoveCA deletes the certificate from the NSS DB.
func (l *linuxPlatform) RemoveCA(ctx context.Context) error {
	return l.run.Run(ctx, runner.Command("certutil", "-d", l.dbArg(), "-D", "-n", l.opts.CertLabel))
}

// ListCA lists every entry in the NSS DB.
func (l *linuxPlatform) ListCA(ctx context.Context) error {
	return l.run.Run(ctx, runner.Command("certutil", "-L", "-d", l.dbArg()))
}

// EnableProxy leaves Linux desktop settings untouched; the caller reports
// the address to use instead.
func (l *linuxPlatform) EnableProxy(context.Context, string, int) ([]string, error) {
	return nil, nil
}
