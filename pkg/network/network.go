// Package network drives the script that creates the isolated container
// network and the firewall rules redirecting its traffic to the proxy.
package network

import (
	"context"
	"fmt"
	"strconv"

	"github.com/agentsitter/sittr/pkg/runner"
)

// Script verbs.
const (
	VerbSetup   = "setup"
	VerbCleanup = "cleanup"
)

// Manager runs the network management script with superuser privileges.
type Manager struct {
	Script string
	Runner runner.Runner
}

// NewManager returns a Manager for script.
func NewManager(script string, run runner.Runner) *Manager {
	return &Manager{Script: script, Runner: run}
}

// Setup creates the network and inserts rules pointing at host:port.
func (m *Manager) Setup(ctx context.Context, host string, port int) error {
	return m.invoke(ctx, VerbSetup, host, port)
}

// Cleanup removes the rules and deletes the network.
func (m *Manager) Cleanup(ctx context.Context, host string, port int) error {
	return m.invoke(ctx, VerbCleanup, host, port)
}

func (m *Manager) invoke(ctx context.Context, verb, host string, port int) error {
	cmd := runner.Sudo(m.Script, verb, host, strconv.Itoa(port))
	if err := m.Runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("network %s failed: %w", verb, err)
	}
	return nil
}
