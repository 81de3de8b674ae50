// Package network joins a wireless network in lamp mode and hosts the
// temporary access point used for provisioning.
package network

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	// ErrConnectFailed means the lamp could not associate with the configured network.
	ErrConnectFailed = errors.New("network connect failed")
	// ErrAccessPointFailed means the provisioning access point could not be started.
	ErrAccessPointFailed = errors.New("access point failed")
)

// Driver names accepted in configuration.
const (
	DriverNMCLI     = "nmcli"
	DriverSimulated = "simulated"
)

// Handle is a live connection or access point.
type Handle interface {
	// HardwareAddr is the MAC of the wireless interface.
	HardwareAddr() net.HardwareAddr
	// Stop tears the connection or access point down.
	Stop() error
}

// Transport brings wireless links up.
type Transport interface {
	Connect(ctx context.Context, ssid, password string) (Handle, error)
	StartAccessPoint(ctx context.Context, ssid, password string) (Handle, error)
}

// FormatMAC renders a hardware address as uppercase colon-separated hex.
func FormatMAC(addr net.HardwareAddr) string {
	return strings.ToUpper(addr.String())
}
