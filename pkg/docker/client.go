// Package docker looks up container networks through the Docker Engine API.
package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

// defaultTimeout bounds a single Docker API round trip. Docker Desktop on
// macOS can be slow to answer the first request.
const defaultTimeout = 5 * time.Second

// ErrNoGateway is returned when a network exists but has no IPAM gateway.
var ErrNoGateway = errors.New("network has no gateway")

// GatewayLookup resolves the gateway address of a named container network.
type GatewayLookup interface {
	NetworkGateway(ctx context.Context, name string) (string, error)
}

// networkAPI is the subset of the Docker SDK client used here.
type networkAPI interface {
	NetworkInspect(ctx context.Context, networkID string, options network.InspectOptions) (network.Inspect, error)
	Close() error
}

// Client wraps the Docker Engine SDK client.
type Client struct {
	inner networkAPI
}

// NewClient creates a Docker client. When DOCKER_HOST is set the whole
// Docker environment (DOCKER_HOST, DOCKER_TLS_VERIFY, DOCKER_CERT_PATH,
// DOCKER_API_VERSION) is honored; otherwise the platform's default socket
// locations are probed.
func NewClient() (*Client, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}

	host := os.Getenv("DOCKER_HOST")
	if host != "" {
		opts = append(opts, client.FromEnv)
	} else {
		detected, err := detectDockerHost()
		if err != nil {
			return nil, err
		}
		host = detected
		opts = append(opts, client.WithHost(host))
	}

	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client for host %q: %w", host, err)
	}

	return &Client{inner: c}, nil
}

func detectDockerHost() (string, error) {
	home, _ := os.UserHomeDir()
	paths := socketCandidates(runtime.GOOS, home, os.Getenv("XDG_RUNTIME_DIR"))

	if path, ok := firstExisting(paths); ok {
		return "unix://" + path, nil
	}
	return "", fmt.Errorf("Docker socket not found at any of: %v", paths)
}

// socketCandidates lists Docker socket paths in probe order: the system
// daemon, rootless Docker, then Docker Desktop.
func socketCandidates(goos, home, runtimeDir string) []string {
	paths := []string{"/var/run/docker.sock"}
	if runtimeDir != "" {
		paths = append(paths, filepath.Join(runtimeDir, "docker.sock"))
	}
	if home != "" {
		switch goos {
		case "darwin":
			paths = append(paths, filepath.Join(home, ".docker", "run", "docker.sock"))
		case "linux":
			paths = append(paths, filepath.Join(home, ".docker", "desktop", "docker.sock"))
		}
	}
	return paths
}

func firstExisting(paths []string) (string, bool) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// NetworkGateway returns the gateway of the network's first IPAM config.
func (c *Client) NetworkGateway(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	inspect, err := c.inner.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to inspect network %s: %w", name, err)
	}

	if len(inspect.IPAM.Config) == 0 || inspect.IPAM.Config[0].Gateway == "" {
		return "", fmt.Errorf("%w: %s", ErrNoGateway, name)
	}
	return inspect.IPAM.Config[0].Gateway, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// Lookup is a GatewayLookup that dials Docker on each call, so commands that
// never need Docker never connect to it.
type Lookup struct{}

// NetworkGateway connects to Docker, resolves the gateway and disconnects.
func (Lookup) NetworkGateway(ctx context.Context, name string) (string, error) {
	c, err := NewClient()
	if err != nil {
		return "", err
	}
	defer c.Close()
	return c.NetworkGateway(ctx, name)
}
