package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig          `yaml:"log"`
	Database        DatabaseConfig     `yaml:"database"`
	Storage         StorageConfig      `yaml:"storage"`
	Network         NetworkConfig      `yaml:"network"`
	Provisioning    ProvisioningConfig `yaml:"provisioning"`
	Lamp            LampConfig         `yaml:"lamp"`
	Output          OutputConfig       `yaml:"output"`
	MQTT            MQTTConfig         `yaml:"mqtt"`
	Metrics         MetricsConfig      `yaml:"metrics"`
	EventBus        EventBusConfig     `yaml:"eventbus"`
	ShutdownTimeout Duration           `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig selects where credentials and the device id are kept
type StorageConfig struct {
	Backend string      `yaml:"backend"` // sqlite, redis or memory
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// NetworkConfig selects the wireless transport
type NetworkConfig struct {
	Driver         string   `yaml:"driver"` // nmcli or simulated
	Interface      string   `yaml:"interface"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	SimulatedMAC   string   `yaml:"simulated_mac"` // hardware address reported by the simulated driver
}

// ProvisioningConfig contains the access point and capture endpoint settings
type ProvisioningConfig struct {
	SSID         string   `yaml:"ssid"`
	Password     string   `yaml:"password"`
	Listen       string   `yaml:"listen"`
	PulsePeriod  Duration `yaml:"pulse_period"`
	PollInterval Duration `yaml:"poll_interval"`
	Indicator    RGB      `yaml:"indicator"`
}

// RGB is a normalized color in config files
type RGB struct {
	R float64 `yaml:"r"`
	G float64 `yaml:"g"`
	B float64 `yaml:"b"`
}

// LampConfig contains lamp-mode settings
type LampConfig struct {
	Listen             string   `yaml:"listen"`
	TickInterval       Duration `yaml:"tick_interval"`
	ShiftDuration      Duration `yaml:"shift_duration"`
	CyclePeriod        Duration `yaml:"cycle_period"`
	PulsePeriod        Duration `yaml:"pulse_period"`
	StartupCyclePeriod Duration `yaml:"startup_cycle_period"`
	ResetDelay         Duration `yaml:"reset_delay"`
}

// OutputConfig selects how the color reaches the LEDs
type OutputConfig struct {
	Driver string      `yaml:"driver"` // log, sysfs or mqtt
	Sysfs  SysfsConfig `yaml:"sysfs"`
}

// SysfsConfig locates the PWM channels
type SysfsConfig struct {
	Chip     string   `yaml:"chip"`
	Channels [3]int   `yaml:"channels"` // red, green, blue
	Period   Duration `yaml:"period"`
}

// MQTTConfig contains broker settings
type MQTTConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	TopicPrefix    string   `yaml:"topic_prefix"`
	QoS            int      `yaml:"qos"`
	PublishRate    float64  `yaml:"publish_rate"` // state messages per second
	ResyncInterval Duration `yaml:"resync_interval"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lampd.sqlite"
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "localhost:6379"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "lampd:"
	}

	// Network defaults
	if cfg.Network.Driver == "" {
		cfg.Network.Driver = "nmcli"
	}
	if cfg.Network.Interface == "" {
		cfg.Network.Interface = "wlan0"
	}
	if cfg.Network.ConnectTimeout == 0 {
		cfg.Network.ConnectTimeout = Duration(30 * time.Second)
	}

	// Provisioning defaults
	if cfg.Provisioning.SSID == "" {
		cfg.Provisioning.SSID = "lampd-setup"
	}
	if cfg.Provisioning.Listen == "" {
		cfg.Provisioning.Listen = "0.0.0.0:80"
	}
	if cfg.Provisioning.PulsePeriod == 0 {
		cfg.Provisioning.PulsePeriod = Duration(2 * time.Second)
	}
	if cfg.Provisioning.PollInterval == 0 {
		cfg.Provisioning.PollInterval = Duration(20 * time.Millisecond)
	}
	if cfg.Provisioning.Indicator == (RGB{}) {
		cfg.Provisioning.Indicator = RGB{B: 1}
	}

	// Lamp defaults
	if cfg.Lamp.Listen == "" {
		cfg.Lamp.Listen = "0.0.0.0:80"
	}
	if cfg.Lamp.TickInterval == 0 {
		cfg.Lamp.TickInterval = Duration(20 * time.Millisecond)
	}
	if cfg.Lamp.ShiftDuration == 0 {
		cfg.Lamp.ShiftDuration = Duration(100 * time.Millisecond)
	}
	if cfg.Lamp.CyclePeriod == 0 {
		cfg.Lamp.CyclePeriod = Duration(5 * time.Second)
	}
	if cfg.Lamp.PulsePeriod == 0 {
		cfg.Lamp.PulsePeriod = Duration(2 * time.Second)
	}
	if cfg.Lamp.StartupCyclePeriod == 0 {
		cfg.Lamp.StartupCyclePeriod = Duration(10 * time.Second)
	}
	if cfg.Lamp.ResetDelay == 0 {
		cfg.Lamp.ResetDelay = Duration(500 * time.Millisecond)
	}

	// Output defaults
	if cfg.Output.Driver == "" {
		cfg.Output.Driver = "log"
	}
	if cfg.Output.Sysfs.Chip == "" {
		cfg.Output.Sysfs.Chip = "/sys/class/pwm/pwmchip0"
	}
	if cfg.Output.Sysfs.Channels == ([3]int{}) {
		cfg.Output.Sysfs.Channels = [3]int{0, 1, 2}
	}
	if cfg.Output.Sysfs.Period == 0 {
		cfg.Output.Sysfs.Period = Duration(40 * time.Microsecond)
	}

	// MQTT defaults
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "lampd"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "lampd"
	}
	if cfg.MQTT.PublishRate == 0 {
		cfg.MQTT.PublishRate = 5.0
	}
	if cfg.MQTT.ResyncInterval == 0 {
		cfg.MQTT.ResyncInterval = Duration(time.Minute)
	}

	// Event bus defaults
	if cfg.EventBus.Workers <= 0 {
		cfg.EventBus.Workers = 2
	}
	if cfg.EventBus.QueueSize <= 0 {
		cfg.EventBus.QueueSize = 64
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	switch c.Network.Driver {
	case "nmcli", "simulated":
	default:
		return fmt.Errorf("network.driver: unknown driver %q", c.Network.Driver)
	}
	switch c.Output.Driver {
	case "log", "sysfs":
	case "mqtt":
		if !c.MQTT.Enabled {
			return fmt.Errorf("output.driver: mqtt output requires mqtt.enabled")
		}
	default:
		return fmt.Errorf("output.driver: unknown driver %q", c.Output.Driver)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos: must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	// WPA2 passphrases are 8 to 63 characters; an empty one opens the access point
	if n := len(c.Provisioning.Password); n != 0 && (n < 8 || n > 63) {
		return fmt.Errorf("provisioning.password: must be 8 to 63 characters")
	}
	if c.MQTT.PublishRate < 0 {
		return fmt.Errorf("mqtt.publish_rate: must be positive, got %v", c.MQTT.PublishRate)
	}
	// defaults only replace zero, so a negative value would reach a ticker
	for _, d := range []struct {
		name  string
		value Duration
	}{
		{"network.connect_timeout", c.Network.ConnectTimeout},
		{"provisioning.pulse_period", c.Provisioning.PulsePeriod},
		{"provisioning.poll_interval", c.Provisioning.PollInterval},
		{"lamp.tick_interval", c.Lamp.TickInterval},
		{"lamp.shift_duration", c.Lamp.ShiftDuration},
		{"lamp.cycle_period", c.Lamp.CyclePeriod},
		{"lamp.pulse_period", c.Lamp.PulsePeriod},
		{"lamp.startup_cycle_period", c.Lamp.StartupCyclePeriod},
		{"lamp.reset_delay", c.Lamp.ResetDelay},
		{"output.sysfs.period", c.Output.Sysfs.Period},
		{"mqtt.resync_interval", c.MQTT.ResyncInterval},
		{"shutdown_timeout", c.ShutdownTimeout},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s: must be positive, got %s", d.name, d.value.Duration())
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
