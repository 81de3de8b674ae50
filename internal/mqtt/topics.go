package mqtt

// Topics builds the per-device topic names under a prefix:
//
//	<prefix>/<device-id>/state         retained status JSON
//	<prefix>/<device-id>/rgb           output levels when the MQTT driver is used
//	<prefix>/<device-id>/availability  "online" / "offline", retained, doubles as LWT
type Topics struct {
	Prefix   string
	DeviceID string
}

func (t Topics) base() string {
	return t.Prefix + "/" + t.DeviceID
}

// State is where the retained lamp status is published.
func (t Topics) State() string {
	return t.base() + "/state"
}

// RGB is where the MQTT output driver publishes channel levels.
func (t Topics) RGB() string {
	return t.base() + "/rgb"
}

// Availability carries the online/offline marker.
func (t Topics) Availability() string {
	return t.base() + "/availability"
}
