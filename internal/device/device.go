// Package device resolves the identifier the lamp reports to provisioning
// clients and uses in MQTT topics.
package device

import (
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/network"
	"github.com/dokzlo13/lampd/internal/storage/kv"
)

// IDKey is where the fallback identifier is kept.
const IDKey = "device_id"

// ID returns the uppercase colon-separated MAC when addr is known. Without one
// (simulated transport, virtual interface) a random identifier is generated
// once and persisted in bucket so the lamp keeps reporting the same value.
func ID(addr net.HardwareAddr, bucket kv.Bucket) (string, error) {
	if len(addr) > 0 {
		return network.FormatMAC(addr), nil
	}

	var id string
	found, err := bucket.Get(IDKey, &id)
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	if found && id != "" {
		return id, nil
	}

	id = "lamp-" + uuid.NewString()[:8]
	if err := bucket.Store(IDKey, id); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	log.Info().Str("device_id", id).Msg("Generated device identifier")
	return id, nil
}
