package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lampd/internal/config"
	"github.com/dokzlo13/lampd/internal/credentials"
	"github.com/dokzlo13/lampd/internal/ledger"
	"github.com/dokzlo13/lampd/internal/network"
)

func testConfig(t *testing.T, dbPath string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
network:
  driver: simulated
  simulated_mac: "24:0a:c4:1f:e2:9c"
provisioning:
  poll_interval: 5ms
lamp:
  listen: 127.0.0.1:0
  tick_interval: 5ms
  reset_delay: 10ms
metrics:
  enabled: true
shutdown_timeout: 1s
`))
	require.NoError(t, err)
	cfg.Database.Path = dbPath
	cfg.Provisioning.Listen = freeAddr(t)
	return cfg
}

// freeAddr returns a loopback address that was free a moment ago.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func get(url string) (int, string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), err
}

func simulated(t *testing.T, a *App) *network.Simulated {
	t.Helper()
	sim, ok := a.services.Transport.(*network.Simulated)
	require.True(t, ok)
	return sim
}

func storeCredentials(t *testing.T, cfg *config.Config, c credentials.Credentials) {
	t.Helper()
	s, err := OpenStorage(cfg)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Credentials.Set(c))
}

func TestFreshProvisioningThenNextBoot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lampd.sqlite")
	cfg := testConfig(t, dbPath)

	a, err := New(cfg)
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() { started <- a.Start(context.Background()) }()

	var hardwareID string
	require.Eventually(t, func() bool {
		code, body, err := get("http://" + cfg.Provisioning.Listen + "/connect?ssid=HomeNet&password=secret1")
		if err != nil || code != http.StatusOK {
			return false
		}
		hardwareID = body
		return true
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "24:0A:C4:1F:E2:9C", hardwareID)

	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lamp mode did not start")
	}
	assert.Equal(t, "HomeNet", simulated(t, a).Connected())
	assert.False(t, simulated(t, a).AccessPointActive())

	code, _, err := get("http://" + a.services.Lamp.Addr().String() + "/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	require.NoError(t, a.Stop())

	// second boot finds the stored credentials and never opens an access point
	cfg = testConfig(t, dbPath)
	b, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	assert.Equal(t, "HomeNet", simulated(t, b).Connected())
	assert.Equal(t, 0, simulated(t, b).Stops())
}

func TestStoredCredentialsResetRequestsRestart(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "lampd.sqlite"))
	storeCredentials(t, cfg, credentials.Credentials{SSID: "HomeNet", Password: "secret1"})

	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	base := "http://" + a.services.Lamp.Addr().String()
	code, body, err := get(base + "/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"cycling":true`, "lamp mode starts cycling")

	code, _, err = get(base + "/reset")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)

	waited := make(chan error, 1)
	go func() { waited <- a.Wait() }()
	select {
	case err := <-waited:
		assert.ErrorIs(t, err, ErrRestartRequested)
	case <-time.After(2 * time.Second):
		t.Fatal("restart was not requested")
	}
	require.NoError(t, a.Stop())

	s, err := OpenStorage(cfg)
	require.NoError(t, err)
	defer s.Close()

	saved, err := s.Credentials.Get()
	require.NoError(t, err)
	assert.Nil(t, saved)

	started, err := s.Ledger.CountByType(ledger.EventLampStarted)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	resets, err := s.Ledger.CountByType(ledger.EventCredentialsReset)
	require.NoError(t, err)
	assert.Equal(t, 1, resets)
}

func TestStartFailsWhenNetworkUnreachable(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "lampd.sqlite"))
	storeCredentials(t, cfg, credentials.Credentials{SSID: "HomeNet", Password: "secret1"})

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Stop()
	simulated(t, a).FailConnect(errors.New("no carrier"))

	err = a.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, network.ErrConnectFailed)
}

func TestWaitReturnsNilOnShutdown(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "lampd.sqlite"))
	storeCredentials(t, cfg, credentials.Credentials{SSID: "HomeNet"})

	a, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))
	cancel()

	assert.NoError(t, a.Wait())
	assert.NoError(t, a.Stop())
}

func TestResetCredentials(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "lampd.sqlite"))
	storeCredentials(t, cfg, credentials.Credentials{SSID: "HomeNet", Password: "secret1"})

	require.NoError(t, ResetCredentials(cfg, "cli"))

	s, err := OpenStorage(cfg)
	require.NoError(t, err)
	defer s.Close()
	saved, err := s.Credentials.Get()
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestReadHistory(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "lampd.sqlite"))
	storeCredentials(t, cfg, credentials.Credentials{SSID: "HomeNet", Password: "secret1"})

	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	code, body, err := get("http://" + a.services.Lamp.Addr().String() + "/history")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"event_type":"lamp_started"`)
	require.NoError(t, a.Stop())

	require.NoError(t, ResetCredentials(cfg, "cli"))

	h, err := ReadHistory(cfg, 1)
	require.NoError(t, err)
	require.Len(t, h.Entries, 1)
	assert.Equal(t, ledger.EventCredentialsReset, h.Entries[0].EventType, "newest first")
	assert.Equal(t, "cli", h.Entries[0].Payload["source"])
	assert.Equal(t, 1, h.Counts[ledger.EventLampStarted])
	assert.Equal(t, 1, h.Counts[ledger.EventCredentialsReset])
	assert.Equal(t, 0, h.Counts[ledger.EventCredentialsProvisioned])
}

func TestNewServicesRejectsBadSimulatedMAC(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "lampd.sqlite"))
	cfg.Network.SimulatedMAC = "not-a-mac"

	_, err := New(cfg)
	assert.Error(t, err)
}
