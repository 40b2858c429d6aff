package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for ZenBridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge      BridgeConfig                `yaml:"bridge"`
	Network     NetworkConfig               `yaml:"network"`
	Controllers map[string]ControllerConfig `yaml:"controllers"`
	Timeouts    TimeoutConfig               `yaml:"timeouts"`
	Database    DatabaseConfig              `yaml:"database"`
	MQTT        MQTTConfig                  `yaml:"mqtt"`
	API         APIConfig                   `yaml:"api"`
	WebSocket   WebSocketConfig             `yaml:"websocket"`
	InfluxDB    InfluxDBConfig              `yaml:"influxdb"`
	Logging     LoggingConfig               `yaml:"logging"`
}

// BridgeConfig contains bridge identity information.
type BridgeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// NetworkConfig contains the zencontrol network endpoints.
//
// Controllers send multicast notifications to MulticastGroup:MulticastPort.
// Unicast command/response traffic uses UDPPort on each controller.
type NetworkConfig struct {
	MulticastGroup string `yaml:"multicast_group"`
	MulticastPort  int    `yaml:"multicast_port"`
	UDPPort        int    `yaml:"udp_port"`
}

// ControllerConfig describes a statically configured controller,
// keyed by controller uid in the controllers map.
type ControllerConfig struct {
	IPAddress        string `yaml:"ip_address"`
	Name             string `yaml:"name"`
	DiscoveryEnabled bool   `yaml:"discovery_enabled"`
}

// TimeoutConfig contains protocol timing tunables.
//
// Durations are stored as integers (seconds or milliseconds) to keep the
// YAML surface simple; use the GetXxx helpers for time.Duration values.
type TimeoutConfig struct {
	DiscoverySeconds       int `yaml:"discovery_seconds"`
	CommandTimeoutMs       int `yaml:"command_timeout_ms"`
	ControllerStaleSeconds int `yaml:"controller_stale_seconds"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Timeout tunable bounds. Values outside these ranges indicate a
// misconfiguration rather than an unusual installation.
const (
	minDiscoverySeconds = 5
	maxDiscoverySeconds = 300

	minCommandTimeoutMs = 500
	maxCommandTimeoutMs = 10000

	minControllerStaleSeconds = 30
	maxControllerStaleSeconds = 600
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ZENBRIDGE_SECTION_KEY
// For example: ZENBRIDGE_DATABASE_PATH, ZENBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
//
// Network defaults match the zencontrol controller firmware defaults:
// multicast group 239.255.90.67:5110, unicast UDP port 5108.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:   "zenbridge-001",
			Name: "ZenBridge",
		},
		Network: NetworkConfig{
			MulticastGroup: "239.255.90.67",
			MulticastPort:  5110,
			UDPPort:        5108,
		},
		Timeouts: TimeoutConfig{
			DiscoverySeconds:       30,
			CommandTimeoutMs:       3000,
			ControllerStaleSeconds: 120,
		},
		Database: DatabaseConfig{
			Path:        "./data/zenbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "zenbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ZENBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Network
	if v := os.Getenv("ZENBRIDGE_MULTICAST_GROUP"); v != "" {
		cfg.Network.MulticastGroup = v
	}
	if v := os.Getenv("ZENBRIDGE_MULTICAST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Network.MulticastPort = port
		}
	}
	if v := os.Getenv("ZENBRIDGE_UDP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Network.UDPPort = port
		}
	}

	// Database
	if v := os.Getenv("ZENBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ZENBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ZENBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ZENBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ZENBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("ZENBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bridge validation
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	// Network validation. The multicast group must be a valid class-D
	// address; the unicast command port must not collide with the
	// multicast notification port or responses would be consumed by the
	// wrong socket.
	ip := net.ParseIP(c.Network.MulticastGroup)
	if ip == nil || !ip.IsMulticast() {
		errs = append(errs, "network.multicast_group must be a valid multicast address (224.0.0.0-239.255.255.255)")
	}
	if c.Network.MulticastPort < 1 || c.Network.MulticastPort > 65535 {
		errs = append(errs, "network.multicast_port must be between 1 and 65535")
	}
	if c.Network.UDPPort < 1 || c.Network.UDPPort > 65535 {
		errs = append(errs, "network.udp_port must be between 1 and 65535")
	}
	if c.Network.UDPPort == c.Network.MulticastPort {
		errs = append(errs, "network.udp_port must differ from network.multicast_port")
	}

	// Controller validation
	for uid, ctrl := range c.Controllers {
		if uid == "" {
			errs = append(errs, "controllers must be keyed by a non-empty uid")
			continue
		}
		if net.ParseIP(ctrl.IPAddress) == nil {
			errs = append(errs, fmt.Sprintf("controllers.%s.ip_address %q is not a valid IP address", uid, ctrl.IPAddress))
		}
	}

	// Timeout validation
	if c.Timeouts.DiscoverySeconds < minDiscoverySeconds || c.Timeouts.DiscoverySeconds > maxDiscoverySeconds {
		errs = append(errs, fmt.Sprintf("timeouts.discovery_seconds must be between %d and %d", minDiscoverySeconds, maxDiscoverySeconds))
	}
	if c.Timeouts.CommandTimeoutMs < minCommandTimeoutMs || c.Timeouts.CommandTimeoutMs > maxCommandTimeoutMs {
		errs = append(errs, fmt.Sprintf("timeouts.command_timeout_ms must be between %d and %d", minCommandTimeoutMs, maxCommandTimeoutMs))
	}
	if c.Timeouts.ControllerStaleSeconds < minControllerStaleSeconds || c.Timeouts.ControllerStaleSeconds > maxControllerStaleSeconds {
		errs = append(errs, fmt.Sprintf("timeouts.controller_stale_seconds must be between %d and %d", minControllerStaleSeconds, maxControllerStaleSeconds))
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetDiscoveryTimeout returns the discovery timeout as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.Timeouts.DiscoverySeconds) * time.Second
}

// GetCommandTimeout returns the per-command response timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Timeouts.CommandTimeoutMs) * time.Millisecond
}

// GetControllerStaleTimeout returns the controller staleness threshold as a Duration.
func (c *Config) GetControllerStaleTimeout() time.Duration {
	return time.Duration(c.Timeouts.ControllerStaleSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
