package system

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/agentsitter/sittr/pkg/runner"
)

// DefaultKeychain is the macOS System keychain used by Safari and Chrome.
const DefaultKeychain = "/Library/Keychains/System.keychain"

func (d *darwinPlatform) Name() string {
	return "darwin"
}

func (d *darwinPlatform) StoreName() string {
	return "macOS System keychain"
}

// InstallCA adds the certificate to the System keychain as a trusted root.
func (d *darwinPlatform) InstallCA(ctx context.Context, certPath string) error {
	cmd := runner.Sudo("security", "add-trusted-cert", "-d", "-r", "trustRoot",
		"-k", d.opts.Keychain, certPath)
	if err := d.run.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to import CA into keychain: %w", err)
	}
	return nil
}

// RemoveCA deletes the certificate from the keychain by common name.
func (d *darwinPlatform) RemoveCA(ctx context.Context) error {
	return d.run.Run(ctx, runner.Sudo("security", "delete-certificate", "-c", d.opts.CertLabel))
}

// ListCA shows the keychain certificates matching the label, with hashes.
func (d *darwinPlatform) ListCA(ctx context.Context) error {
	return d.run.Run(ctx, runner.Command("security", "find-certificate", "-c", d.opts.CertLabel, "-a", "-Z"))
}

// EnableProxy sets the web and secure web proxy of every network service.
func (d *darwinPlatform) EnableProxy(ctx context.Context, host string, port int) ([]string, error) {
	logger := slogutil.LoggerFromContext(ctx, slogutil.Null())

	services, err := d.listNetworkServices(ctx)
	if err != nil {
		return nil, err
	}

	portStr := strconv.Itoa(port)
	configured := make([]string, 0, len(services))

	for _, service := range services {
		ok := true
		for _, flag := range []string{"-setwebproxy", "-setsecurewebproxy"} {
			if err := d.run.Run(ctx, runner.Command("networksetup", flag, service, host, portStr)); err != nil {
				logger.Warn("failed to set proxy", "service", service, "flag", flag, "error", err)
				ok = false
			}
		}
		if ok {
			configured = append(configured, service)
		}
	}

	return configured, nil
}

// listNetworkServices returns the enabled network services.
func (d *darwinPlatform) listNetworkServices(ctx context.Context) ([]string, error) {
	output, err := d.run.Output(ctx, runner.Command("networksetup", "-listallnetworkservices"))
	if err != nil {
		return nil, fmt.Errorf("failed to list network services: %w", err)
	}
	return parseNetworkServices(string(output)), nil
}

// parseNetworkServices skips the header line and disabled services (marked with *).
func parseNetworkServices(output string) []string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	services := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "An asterisk") || strings.HasPrefix(line, "*") {
			continue
		}
		services = append(services, line)
	}

	return services
}
