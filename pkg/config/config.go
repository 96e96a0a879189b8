// Package config provides configuration file support for sittr.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Default values for the AgentSitter service.
const (
	DefaultProxyHost     = "localhost"
	DefaultProxyPort     = 8080
	DefaultDashboardURL  = "https://agentsitter.ai"
	DefaultTokenURL      = "https://www.agentsitter.ai/token/new"
	DefaultCertURL       = "https://agentsitter.ai/certs/ca-cert.pem"
	DefaultCertFile      = "ca-cert.pem"
	DefaultCertLabel     = "agent-sitter"
	DefaultNetworkName   = "agent-sitter-net"
	DefaultNetworkScript = "agent-network-manager.sh"
	DefaultTunnelConnect = "sitter.agentsitter.ai:3128"
)

// Config represents the sittr configuration file.
type Config struct {
	// Local proxy endpoint
	Proxy ProxyConfig `yaml:"proxy"`

	// Service URLs
	URLs URLConfig `yaml:"urls"`

	// CA certificate handling
	Cert CertConfig `yaml:"cert"`

	// Container network
	Network NetworkConfig `yaml:"network"`

	// TLS tunnel
	Tunnel TunnelConfig `yaml:"tunnel"`
}

// ProxyConfig holds the local proxy address.
type ProxyConfig struct {
	// Host the tunnel listens on
	Host string `yaml:"host"`
	// Port the tunnel listens on
	Port int `yaml:"port"`
}

// Addr returns host:port.
func (p ProxyConfig) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// URL returns the proxy as an http URL.
func (p ProxyConfig) URL() string {
	return "http://" + p.Addr()
}

// URLConfig holds the remote service URLs.
type URLConfig struct {
	Dashboard string `yaml:"dashboard"`
	Token     string `yaml:"token"`
	Cert      string `yaml:"cert"`
}

// CertConfig holds CA certificate settings.
type CertConfig struct {
	// Path is where the fetched certificate is written (default: ./ca-cert.pem)
	Path string `yaml:"path,omitempty"`
	// Label is the nickname used in the certificate store
	Label string `yaml:"label"`
}

// NetworkConfig holds container network settings.
type NetworkConfig struct {
	// Name of the Docker network whose gateway the tunnel also binds to
	Name string `yaml:"name"`
	// Script manages the network and firewall rules (default: next to the executable)
	Script string `yaml:"script,omitempty"`
}

// TunnelConfig holds stunnel settings.
type TunnelConfig struct {
	// Connect is the remote proxy endpoint
	Connect string `yaml:"connect"`
	// PIDFile is where stunnel records its PID
	PIDFile string `yaml:"pidFile,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Host: DefaultProxyHost,
			Port: DefaultProxyPort,
		},
		URLs: URLConfig{
			Dashboard: DefaultDashboardURL,
			Token:     DefaultTokenURL,
			Cert:      DefaultCertURL,
		},
		Cert: CertConfig{
			Label: DefaultCertLabel,
		},
		Network: NetworkConfig{
			Name: DefaultNetworkName,
		},
		Tunnel: TunnelConfig{
			Connect: DefaultTunnelConnect,
			PIDFile: filepath.Join(DefaultDir(), "stunnel.pid"),
		},
	}
}

// CertPath returns the configured certificate path, defaulting to the
// working directory.
func (c *Config) CertPath() string {
	if c.Cert.Path != "" {
		return c.Cert.Path
	}
	wd, err := os.Getwd()
	if err != nil {
		return DefaultCertFile
	}
	return filepath.Join(wd, DefaultCertFile)
}

// NetworkScript returns the configured network script, defaulting to the
// script shipped next to the sittr executable.
func (c *Config) NetworkScript() string {
	if c.Network.Script != "" {
		return c.Network.Script
	}
	exe, err := os.Executable()
	if err != nil {
		return DefaultNetworkScript
	}
	return filepath.Join(filepath.Dir(exe), DefaultNetworkScript)
}

// Validate checks the fields every command depends on.
func (c *Config) Validate() error {
	if c.Proxy.Host == "" {
		return fmt.Errorf("proxy.host must not be empty")
	}
	if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("proxy.port out of range: %d", c.Proxy.Port)
	}
	if c.Tunnel.Connect == "" {
		return fmt.Errorf("tunnel.connect must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.Tunnel.Connect); err != nil {
		return fmt.Errorf("invalid tunnel.connect %q: %w", c.Tunnel.Connect, err)
	}
	if c.Cert.Label == "" {
		return fmt.Errorf("cert.label must not be empty")
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads configuration from a file, or returns default if not found.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec // G306: config holds no secrets
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultDir returns the sittr state directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sittr"
	}
	return filepath.Join(home, ".sittr")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// ExampleConfig returns an example configuration as YAML string.
func ExampleConfig() string {
	cfg := DefaultConfig()
	cfg.Cert.Path = "/path/to/ca-cert.pem"
	cfg.Network.Script = "/usr/local/lib/sittr/" + DefaultNetworkScript

	data, _ := yaml.Marshal(cfg)
	return string(data)
}
