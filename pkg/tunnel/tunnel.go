// Package tunnel manages the stunnel client that wraps local proxy traffic in
// TLS to the remote AgentSitter endpoint.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/agentsitter/sittr/pkg/runner"
)

// Binary is the tunnel daemon executable.
const Binary = "stunnel"

// Package names per package manager.
const (
	aptPackage  = "stunnel4"
	brewFormula = "stunnel"
)

// ErrNoPackageManager is returned when stunnel is missing and neither apt-get
// nor brew is available.
var ErrNoPackageManager = errors.New("could not auto-install stunnel; please install manually")

// Options describes the tunnel endpoints.
type Options struct {
	// ListenHost and ListenPort are the loopback accept address
	ListenHost string
	ListenPort int
	// Gateway is an optional second accept address on the container bridge
	Gateway string
	// Connect is the remote host:port
	Connect string
	// PIDFile is where stunnel records its PID; empty omits the directive
	PIDFile string
}

// BuildConfig returns the stunnel configuration directives in order. The
// connect directive is always last.
func BuildConfig(opts Options) []string {
	port := strconv.Itoa(opts.ListenPort)

	conf := []string{"foreground = no"}
	if opts.PIDFile != "" {
		conf = append(conf, "pid = "+opts.PIDFile)
	}
	conf = append(conf,
		"[proxy]",
		"client = yes",
		"accept = "+net.JoinHostPort(opts.ListenHost, port),
	)
	if opts.Gateway != "" {
		conf = append(conf, "accept = "+net.JoinHostPort(opts.Gateway, port))
	}
	return append(conf, "connect = "+opts.Connect)
}

// Render joins directives into the text piped to stunnel.
func Render(conf []string) string {
	return strings.Join(conf, "\n")
}

// Manager installs, starts and stops stunnel.
type Manager struct {
	Runner  runner.Runner
	PIDFile string
}

// NewManager returns a Manager.
func NewManager(run runner.Runner, pidFile string) *Manager {
	return &Manager{Runner: run, PIDFile: pidFile}
}

// EnsureInstalled installs stunnel with apt-get or brew when it is not on
// PATH. It reports whether an installation took place.
func (m *Manager) EnsureInstalled(ctx context.Context) (bool, error) {
	if _, err := m.Runner.LookPath(Binary); err == nil {
		return false, nil
	}

	logger := slogutil.LoggerFromContext(ctx, slogutil.Null())

	if _, err := m.Runner.LookPath("apt-get"); err == nil {
		if err := m.Runner.Run(ctx, runner.Sudo("apt-get", "update")); err != nil {
			logger.Warn("apt-get update failed, installing anyway", "error", err)
		}
		if err := m.Runner.Run(ctx, runner.Sudo("apt-get", "install", "-y", aptPackage)); err != nil {
			return false, fmt.Errorf("failed to install %s: %w", aptPackage, err)
		}
		return true, nil
	}

	if _, err := m.Runner.LookPath("brew"); err == nil {
		if err := m.Runner.Run(ctx, runner.Command("brew", "install", brewFormula)); err != nil {
			return false, fmt.Errorf("failed to install %s: %w", brewFormula, err)
		}
		return true, nil
	}

	return false, ErrNoPackageManager
}

// Start launches stunnel with conf on its standard input. stunnel daemonizes
// once configured, so a non-zero exit means the tunnel did not start.
func (m *Manager) Start(ctx context.Context, conf []string) error {
	if m.PIDFile != "" {
		if err := os.MkdirAll(filepath.Dir(m.PIDFile), 0700); err != nil {
			return fmt.Errorf("failed to create PID directory: %w", err)
		}
	}

	cmd := runner.Command(Binary, "-fd", "0")
	if err := m.Runner.Start(ctx, cmd, strings.NewReader(Render(conf))); err != nil {
		return fmt.Errorf("failed to start stunnel: %w", err)
	}
	return nil
}

// Stop terminates every running stunnel process. Finding none is not an error.
func (m *Manager) Stop(ctx context.Context) {
	if err := m.Runner.Run(ctx, runner.Command("pkill", Binary)); err != nil {
		slogutil.LoggerFromContext(ctx, slogutil.Null()).Debug("pkill reported no stunnel process", "error", err)
	}
}

// IsRunning checks the PID file written by stunnel and whether that process
// is alive. A stale PID file is removed.
func IsRunning(pidFile string) (bool, int, error) {
	if pidFile == "" {
		return false, 0, nil
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0, nil
	}

	if err := checkProcessAlive(process); err != nil {
		os.Remove(pidFile)
		return false, 0, nil
	}

	return true, pid, nil
}
