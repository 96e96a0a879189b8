package cli

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsitter/sittr/pkg/config"
	"github.com/agentsitter/sittr/pkg/runner"
	"github.com/agentsitter/sittr/pkg/system"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type fakeGateway struct {
	gw  string
	err error
}

func (f fakeGateway) NetworkGateway(context.Context, string) (string, error) {
	return f.gw, f.err
}

type harness struct {
	app     *App
	rec     *runner.Recorder
	out     *bytes.Buffer
	dir     string
	fetches atomic.Int32
	// callsAtFetch is the number of external calls made before the download
	callsAtFetch atomic.Int32
	opened       []string
}

func newHarness(t *testing.T, goos string) *harness {
	t.Helper()

	h := &harness{
		rec: runner.NewRecorder(),
		out: &bytes.Buffer{},
		dir: t.TempDir(),
	}

	certPEM := testCertPEM(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.fetches.Add(1)
		h.callsAtFetch.Store(int32(len(h.rec.Calls())))
		_, _ = w.Write(certPEM)
	}))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.URLs.Cert = srv.URL + "/certs/ca-cert.pem"
	cfg.Cert.Path = filepath.Join(h.dir, "ca-cert.pem")
	cfg.Network.Script = "/opt/sittr/agent-network-manager.sh"
	cfg.Tunnel.PIDFile = filepath.Join(h.dir, "stunnel.pid")

	h.app = &App{
		Config:     cfg,
		GOOS:       goos,
		NSSDBDir:   filepath.Join(h.dir, "nssdb"),
		Runner:     h.rec,
		Gateway:    fakeGateway{err: errors.New("network agent-sitter-net not found")},
		HTTPClient: srv.Client(),
		Browser: func(url string) error {
			h.opened = append(h.opened, url)
			return nil
		},
		Out:     h.out,
		Err:     &bytes.Buffer{},
		Version: "test",
	}
	return h
}

func (h *harness) run(args ...string) error {
	return h.app.Execute(context.Background(), args)
}

func testCertPEM(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(7),
		Subject:               pkix.Name{CommonName: "AgentSitter Root CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestCertInstallLinux(t *testing.T) {
	h := newHarness(t, "linux")

	require.NoError(t, h.run("cert-install"))

	certPath := h.app.Config.Cert.Path
	db := h.app.NSSDBDir
	assert.Equal(t, int32(1), h.fetches.Load())
	assert.Equal(t, int32(0), h.callsAtFetch.Load(), "fetch must precede import")
	assert.Equal(t, []string{
		"certutil -A -d sql:" + db + " -n agent-sitter -t C,, -i " + certPath,
	}, h.rec.Lines())
	assert.FileExists(t, certPath)
	assert.Contains(t, h.out.String(), "Fetched CA certificate to "+certPath)
	assert.Contains(t, h.out.String(), "Imported CA into NSS DB")
}

func TestCertInstallDarwin(t *testing.T) {
	h := newHarness(t, "darwin")

	require.NoError(t, h.run("cert-install"))

	certPath := h.app.Config.Cert.Path
	assert.Equal(t, int32(0), h.callsAtFetch.Load(), "fetch must precede import")
	assert.Equal(t, []string{
		"sudo security add-trusted-cert -d -r trustRoot -k /Library/Keychains/System.keychain " + certPath,
	}, h.rec.Lines())
	assert.Contains(t, h.out.String(), "Imported CA into macOS System keychain")
}

func TestCertInstallImportFailure(t *testing.T) {
	h := newHarness(t, "darwin")
	h.rec.On("security add-trusted-cert -d -r trustRoot -k /Library/Keychains/System.keychain "+h.app.Config.Cert.Path,
		runner.Result{Err: errors.New("exit status 1")})

	err := h.run("cert-install")
	require.Error(t, err)
	assert.Equal(t, int32(1), h.fetches.Load())
	assert.NotContains(t, h.out.String(), "Imported CA")
}

func TestCertInstallFlagOverrides(t *testing.T) {
	h := newHarness(t, "linux")
	other := filepath.Join(h.dir, "other", "root.pem")

	require.NoError(t, h.run("cert-install", "--cert", other))

	assert.FileExists(t, other)
	assert.Contains(t, h.out.String(), "Fetched CA certificate to "+other)
}

func TestPlatformCommandsUnsupported(t *testing.T) {
	for _, command := range []string{"cert-install", "cert-remove", "cert-list"} {
		t.Run(command, func(t *testing.T) {
			h := newHarness(t, "windows")

			err := h.run(command)
			require.Error(t, err)
			assert.True(t, errors.Is(err, system.ErrUnsupportedPlatform))
			assert.Contains(t, err.Error(), "unsupported OS")
			assert.Empty(t, h.rec.Calls(), "no external tool may run")
			assert.Equal(t, int32(0), h.fetches.Load(), "nothing may be downloaded")
			assert.NoFileExists(t, h.app.Config.Cert.Path)
		})
	}
}

func TestBestEffortCommandsSucceed(t *testing.T) {
	failing := runner.Result{Err: errors.New("exit status 255")}

	t.Run("cert-remove linux", func(t *testing.T) {
		h := newHarness(t, "linux")
		h.rec.On("certutil -d sql:"+h.app.NSSDBDir+" -D -n agent-sitter", failing)
		require.NoError(t, h.run("cert-remove"))
		assert.Contains(t, h.out.String(), "Removed CA from NSS DB")
	})

	t.Run("cert-remove darwin", func(t *testing.T) {
		h := newHarness(t, "darwin")
		h.rec.On("security delete-certificate -c agent-sitter", failing)
		require.NoError(t, h.run("cert-remove"))
		assert.Equal(t, []string{"sudo security delete-certificate -c agent-sitter"}, h.rec.Lines())
	})

	t.Run("cert-list", func(t *testing.T) {
		h := newHarness(t, "darwin")
		h.rec.On("security find-certificate -c agent-sitter -a -Z", failing)
		require.NoError(t, h.run("cert-ls"))
		assert.Equal(t, []string{"security find-certificate -c agent-sitter -a -Z"}, h.rec.Lines())
	})

	t.Run("tunnel-stop", func(t *testing.T) {
		h := newHarness(t, "linux")
		h.rec.On("pkill stunnel", runner.Result{Err: errors.New("exit status 1")})
		require.NoError(t, h.run("tunnel-stop"))
		assert.Equal(t, []string{"pkill stunnel"}, h.rec.Lines())
		assert.Contains(t, h.out.String(), "Stopped stunnel.")
	})
}

func TestNetworkCommands(t *testing.T) {
	h := newHarness(t, "linux")

	require.NoError(t, h.run("network-setup"))
	require.NoError(t, h.run("network-cleanup", "--proxy-host", "10.0.0.5", "--proxy-port", "3128"))

	assert.Equal(t, []string{
		"sudo /opt/sittr/agent-network-manager.sh setup localhost 8080",
		"sudo /opt/sittr/agent-network-manager.sh cleanup 10.0.0.5 3128",
	}, h.rec.Lines())
	assert.Contains(t, h.out.String(), "Docker network setup complete.")
	assert.Contains(t, h.out.String(), "Docker network cleanup complete.")
}

func TestNetworkSetupFailureIsFatal(t *testing.T) {
	h := newHarness(t, "linux")
	h.rec.On("/opt/sittr/agent-network-manager.sh setup localhost 8080", runner.Result{Err: errors.New("exit status 2")})

	require.Error(t, h.run("network-setup"))
	assert.NotContains(t, h.out.String(), "complete")
}

func TestTunnelStartWithoutNetwork(t *testing.T) {
	h := newHarness(t, "linux")
	h.rec.Paths["stunnel"] = true

	require.NoError(t, h.run("tunnel-start"))

	calls := h.rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "stunnel", calls[0].Cmd.Name)

	conf := strings.Split(calls[0].Stdin, "\n")
	assert.Equal(t, 1, countPrefix(conf, "accept = "))
	assert.Contains(t, conf, "accept = localhost:8080")
	assert.Equal(t, "connect = sitter.agentsitter.ai:3128", conf[len(conf)-1])
	assert.Contains(t, h.out.String(), "No Docker bridge bind (network not found).")
	assert.Contains(t, h.out.String(), "Stunnel started.")
}

func TestTunnelStartWithNetwork(t *testing.T) {
	h := newHarness(t, "linux")
	h.rec.Paths["stunnel"] = true
	h.app.Gateway = fakeGateway{gw: "172.30.0.1"}

	require.NoError(t, h.run("tunnel-start"))

	conf := strings.Split(h.rec.Calls()[0].Stdin, "\n")
	assert.Equal(t, 2, countPrefix(conf, "accept = "))
	assert.Contains(t, conf, "accept = 172.30.0.1:8080")
	assert.Contains(t, conf, "pid = "+h.app.Config.Tunnel.PIDFile)
	assert.Equal(t, "connect = sitter.agentsitter.ai:3128", conf[len(conf)-1])
	assert.Contains(t, h.out.String(), "Also binding on Docker bridge at 172.30.0.1:8080")
}

func TestTunnelStartEmptyGateway(t *testing.T) {
	h := newHarness(t, "linux")
	h.rec.Paths["stunnel"] = true
	h.app.Gateway = fakeGateway{gw: ""}

	require.NoError(t, h.run("tunnel-start"))

	conf := strings.Split(h.rec.Calls()[0].Stdin, "\n")
	assert.Equal(t, 1, countPrefix(conf, "accept = "))
}

func TestTunnelStartInstallsStunnel(t *testing.T) {
	h := newHarness(t, "linux")
	h.rec.Paths["apt-get"] = true

	require.NoError(t, h.run("tunnel-start"))

	assert.Equal(t, []string{
		"sudo apt-get update",
		"sudo apt-get install -y stunnel4",
		"stunnel -fd 0",
	}, h.rec.Lines())
	assert.Contains(t, h.out.String(), "stunnel not found, installing...")
	assert.Contains(t, h.out.String(), "stunnel installed successfully.")
}

func TestTunnelStartNoPackageManager(t *testing.T) {
	h := newHarness(t, "linux")

	err := h.run("tunnel-start")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "please install manually")
	assert.Empty(t, h.rec.Calls())
}

func TestTunnelStartDaemonFailureIsFatal(t *testing.T) {
	h := newHarness(t, "linux")
	h.rec.Paths["stunnel"] = true
	h.rec.On("stunnel -fd 0", runner.Result{Err: errors.New("exit status 1")})

	require.Error(t, h.run("tunnel-start"))
	assert.NotContains(t, h.out.String(), "Stunnel started.")
}

func TestProxyEnable(t *testing.T) {
	t.Run("linux prints address", func(t *testing.T) {
		h := newHarness(t, "linux")
		require.NoError(t, h.run("proxy-enable"))
		assert.Empty(t, h.rec.Calls())
		assert.Contains(t, h.out.String(), "Proxy enabled at http://localhost:8080")
	})

	t.Run("unsupported prints address", func(t *testing.T) {
		h := newHarness(t, "windows")
		require.NoError(t, h.run("proxy-enable"))
		assert.Empty(t, h.rec.Calls())
		assert.Contains(t, h.out.String(), "Proxy enabled at http://localhost:8080")
	})

	t.Run("darwin configures services", func(t *testing.T) {
		h := newHarness(t, "darwin")
		h.rec.On("networksetup -listallnetworkservices", runner.Result{Output: []byte(
			"An asterisk (*) denotes that a network service is disabled.\nWi-Fi\n",
		)})
		h.rec.On("networksetup -setwebproxy Wi-Fi localhost 8080", runner.Result{Err: errors.New("exit status 4")})

		require.NoError(t, h.run("proxy-enable"))
		assert.Equal(t, []string{
			"networksetup -listallnetworkservices",
			"networksetup -setwebproxy Wi-Fi localhost 8080",
			"networksetup -setsecurewebproxy Wi-Fi localhost 8080",
		}, h.rec.Lines())
	})

	t.Run("darwin listing failure does not fail", func(t *testing.T) {
		h := newHarness(t, "darwin")
		h.rec.On("networksetup -listallnetworkservices", runner.Result{Err: errors.New("boom")})
		require.NoError(t, h.run("proxy-enable"))
	})
}

func TestShowTokenURL(t *testing.T) {
	h := newHarness(t, "linux")
	require.NoError(t, h.run("token"))
	assert.Contains(t, h.out.String(), "Obtain your API token at:")
	assert.Contains(t, h.out.String(), "https://www.agentsitter.ai/token/new")
}

func TestOpenDashboard(t *testing.T) {
	h := newHarness(t, "linux")
	require.NoError(t, h.run("open-dashboard"))
	assert.Equal(t, []string{"https://agentsitter.ai"}, h.opened)
	assert.Contains(t, h.out.String(), "Opened dashboard at https://agentsitter.ai")

	h = newHarness(t, "linux")
	h.app.Browser = func(string) error { return errors.New("no display") }
	require.NoError(t, h.run("dashboard"))
	assert.Contains(t, h.out.String(), "visit https://agentsitter.ai")
}

func TestStatus(t *testing.T) {
	h := newHarness(t, "linux")
	require.NoError(t, h.run("status"))

	out := h.out.String()
	assert.Contains(t, out, "localhost:8080")
	assert.Contains(t, out, "https://agentsitter.ai")
	assert.Contains(t, out, "stopped")
}

func TestNoSubcommandPrintsHelp(t *testing.T) {
	h := newHarness(t, "linux")
	require.NoError(t, h.run())
	assert.Contains(t, h.out.String(), "cert-install")
	assert.Contains(t, h.out.String(), "tunnel-start")
}

func TestMetricsFile(t *testing.T) {
	h := newHarness(t, "linux")
	path := filepath.Join(h.dir, "sittr.prom")

	require.NoError(t, h.run("--metrics-file", path, "status"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `command="status"`)
	assert.Contains(t, string(data), `outcome="success"`)
}

func TestConfigLoadedFromFlag(t *testing.T) {
	h := newHarness(t, "linux")
	path := filepath.Join(h.dir, "config.yaml")

	cfg := config.DefaultConfig()
	cfg.Proxy.Port = 9999
	require.NoError(t, cfg.Save(path))

	h.app.Config = nil
	require.NoError(t, h.run("--config", path, "status"))
	assert.Contains(t, h.out.String(), "localhost:9999")
	assert.Contains(t, h.out.String(), path)
}

func TestConfigInit(t *testing.T) {
	h := newHarness(t, "linux")
	path := filepath.Join(h.dir, "cfg", "config.yaml")

	require.NoError(t, h.run("config", "init", "-o", path))
	assert.FileExists(t, path)

	require.Error(t, h.run("config", "init", "-o", path), "existing file needs --force")
	require.NoError(t, h.run("config", "init", "-o", path, "--force"))
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func writeInvalidConfig(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("proxy: {port: 0}\n"), 0600))
}

func TestInvalidConfigFallsBackForLenientCommands(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, ".sittr", "config.yaml")
	writeInvalidConfig(t, path)

	for _, args := range [][]string{
		{"show-token-url"},
		{"status"},
		{"open-dashboard"},
		{"proxy-enable"},
		{"tunnel-stop"},
		{"--config", path, "status"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			h := newHarness(t, "linux")
			h.app.Config = nil
			errBuf := &bytes.Buffer{}
			h.app.Err = errBuf

			require.NoError(t, h.run(args...))
			assert.Contains(t, errBuf.String(), "using defaults")
		})
	}
}

func TestInvalidConfigHelp(t *testing.T) {
	h := newHarness(t, "linux")
	path := filepath.Join(h.dir, "config.yaml")
	writeInvalidConfig(t, path)
	h.app.Config = nil

	require.NoError(t, h.run("--config", path, "help", "status"))
	assert.Contains(t, h.out.String(), "status")
}

func TestInvalidConfigStatusShowsDefaults(t *testing.T) {
	h := newHarness(t, "linux")
	path := filepath.Join(h.dir, "config.yaml")
	writeInvalidConfig(t, path)
	h.app.Config = nil

	require.NoError(t, h.run("--config", path, "status"))
	assert.Contains(t, h.out.String(), "localhost:8080")
	assert.Contains(t, h.out.String(), "(defaults)")
}

func TestInvalidConfigIsFatalForOtherCommands(t *testing.T) {
	h := newHarness(t, "linux")
	path := filepath.Join(h.dir, "config.yaml")
	writeInvalidConfig(t, path)
	h.app.Config = nil

	err := h.run("--config", path, "network-setup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy.port")
	assert.Empty(t, h.rec.Calls())
}

func TestConfigInitRepairsInvalidConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, ".sittr", "config.yaml")
	writeInvalidConfig(t, path)

	h := newHarness(t, "linux")
	h.app.Config = nil

	require.NoError(t, h.run("config", "init", "--force"))
	require.NoError(t, h.run("config", "show"))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultProxyPort, cfg.Proxy.Port)

	require.NoError(t, h.run("network-setup"))
	lines := h.rec.Lines()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "agent-network-manager.sh setup localhost 8080"), lines[0])
}

func TestStatusWithoutConfigFileShowsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	h := newHarness(t, "linux")
	h.app.Config = nil

	require.NoError(t, h.run("status"))
	assert.Contains(t, h.out.String(), "(defaults)")
	assert.NotContains(t, h.out.String(), "config.yaml")
}

func TestStatusReportsFetchedCertificate(t *testing.T) {
	h := newHarness(t, "linux")

	require.NoError(t, h.run("status"))
	assert.Contains(t, h.out.String(), "not fetched")

	h.out.Reset()
	require.NoError(t, h.run("cert-install"))
	h.out.Reset()
	require.NoError(t, h.run("status"))
	assert.Contains(t, h.out.String(), "expires")
	assert.NotContains(t, h.out.String(), "not fetched")
}
