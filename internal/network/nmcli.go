package network

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultAccessPointConnection is the NetworkManager profile name of the provisioning hotspot.
const DefaultAccessPointConnection = "lampd-ap"

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// NMCLIConfig configures the NetworkManager driver.
type NMCLIConfig struct {
	// Interface is the wireless device, e.g. wlan0.
	Interface string
	// ConnectTimeout bounds how long nmcli waits for association.
	ConnectTimeout time.Duration
	// APConnection is the profile name used for the hotspot.
	APConnection string
}

// NMCLI drives NetworkManager through its command line client.
type NMCLI struct {
	cfg    NMCLIConfig
	run    Runner
	lookup func(name string) (net.HardwareAddr, error)
}

// NewNMCLI creates a NetworkManager transport. A nil runner uses ExecRunner.
func NewNMCLI(cfg NMCLIConfig, run Runner) *NMCLI {
	if run == nil {
		run = ExecRunner
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.APConnection == "" {
		cfg.APConnection = DefaultAccessPointConnection
	}
	return &NMCLI{cfg: cfg, run: run, lookup: interfaceAddr}
}

func interfaceAddr(name string) (net.HardwareAddr, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return iface.HardwareAddr, nil
}

// Connect scans for ssid and associates with it.
func (n *NMCLI) Connect(ctx context.Context, ssid, password string) (Handle, error) {
	out, err := n.run(ctx, "nmcli", "-t", "-f", "SSID", "device", "wifi", "list",
		"ifname", n.cfg.Interface, "--rescan", "yes")
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %w", ErrConnectFailed, err)
	}
	if !containsSSID(out, ssid) {
		return nil, fmt.Errorf("%w: network %q not found", ErrConnectFailed, ssid)
	}
	log.Debug().Str("ssid", ssid).Msg("Target network found")

	wait := strconv.Itoa(int(n.cfg.ConnectTimeout.Seconds()))
	args := []string{"--wait", wait, "device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	args = append(args, "ifname", n.cfg.Interface)

	if _, err := n.run(ctx, "nmcli", args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	return n.handle(ctx, ssid, false)
}

// StartAccessPoint creates a WPA2 hotspot on the interface.
func (n *NMCLI) StartAccessPoint(ctx context.Context, ssid, password string) (Handle, error) {
	args := []string{"device", "wifi", "hotspot",
		"ifname", n.cfg.Interface,
		"con-name", n.cfg.APConnection,
		"ssid", ssid,
	}
	if password != "" {
		args = append(args, "password", password)
	}

	if _, err := n.run(ctx, "nmcli", args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccessPointFailed, err)
	}

	h, err := n.handle(ctx, n.cfg.APConnection, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccessPointFailed, err)
	}
	return h, nil
}

func (n *NMCLI) handle(ctx context.Context, connection string, remove bool) (Handle, error) {
	addr, err := n.lookup(n.cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("read hardware address of %s: %w", n.cfg.Interface, err)
	}
	return &nmcliHandle{
		ctx:        context.WithoutCancel(ctx),
		n:          n,
		connection: connection,
		remove:     remove,
		addr:       addr,
	}, nil
}

type nmcliHandle struct {
	ctx        context.Context
	n          *NMCLI
	connection string
	remove     bool
	addr       net.HardwareAddr
}

func (h *nmcliHandle) HardwareAddr() net.HardwareAddr {
	return h.addr
}

func (h *nmcliHandle) Stop() error {
	ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
	defer cancel()

	if _, err := h.n.run(ctx, "nmcli", "connection", "down", "id", h.connection); err != nil {
		return fmt.Errorf("bring %s down: %w", h.connection, err)
	}
	if h.remove {
		if _, err := h.n.run(ctx, "nmcli", "connection", "delete", "id", h.connection); err != nil {
			return fmt.Errorf("delete %s: %w", h.connection, err)
		}
	}
	return nil
}

// containsSSID reports whether the terse nmcli SSID listing includes ssid.
// nmcli escapes colons in terse output as "\:".
func containsSSID(listing []byte, ssid string) bool {
	for _, line := range strings.Split(string(listing), "\n") {
		if strings.ReplaceAll(strings.TrimSpace(line), `\:`, ":") == ssid {
			return true
		}
	}
	return false
}
