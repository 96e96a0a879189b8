// Package system provides the OS-specific operations sittr performs: trusting
// the CA certificate and pointing the system proxy at the local tunnel.
package system

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/agentsitter/sittr/pkg/runner"
)

// ErrUnsupportedPlatform is returned by New for operating systems without an
// implementation.
var ErrUnsupportedPlatform = errors.New("unsupported operating system")

// Platform provides an interface for OS-level certificate and proxy configuration.
type Platform interface {
	// Name returns the OS name
	Name() string

	// StoreName describes the certificate store in operator messages
	StoreName() string

	// InstallCA imports a CA certificate into the trust store
	InstallCA(ctx context.Context, certPath string) error

	// RemoveCA deletes the CA certificate from the trust store. Absence of
	// the entry is not an error.
	RemoveCA(ctx context.Context) error

	// ListCA writes the trust store entries to the operator's terminal
	ListCA(ctx context.Context) error

	// EnableProxy points the system web proxies at host:port and returns
	// the network services it configured. Per-service failures are logged
	// and skipped.
	EnableProxy(ctx context.Context, host string, port int) ([]string, error)
}

// Options configures a Platform.
type Options struct {
	// CertLabel is the nickname of the certificate in the store
	CertLabel string
	// NSSDBDir is the NSS database directory (Linux, default ~/.pki/nssdb)
	NSSDBDir string
	// Keychain is the keychain file (macOS, default System keychain)
	Keychain string
}

// Platform-specific types (implementations in platform files)
type darwinPlatform struct {
	run  runner.Runner
	opts Options
}

type linuxPlatform struct {
	run  runner.Runner
	opts Options
}

// New returns the Platform for goos. An empty goos selects the running OS.
func New(goos string, run runner.Runner, opts Options) (Platform, error) {
	if goos == "" {
		goos = runtime.GOOS
	}
	switch goos {
	case "darwin":
		if opts.Keychain == "" {
			opts.Keychain = DefaultKeychain
		}
		return &darwinPlatform{run: run, opts: opts}, nil
	case "linux":
		if opts.NSSDBDir == "" {
			opts.NSSDBDir = DefaultNSSDBDir()
		}
		return &linuxPlatform{run: run, opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}
}
