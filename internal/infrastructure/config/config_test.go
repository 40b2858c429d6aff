package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
bridge:
  id: "test-bridge"
network:
  multicast_group: "239.255.90.67"
  multicast_port: 5110
  udp_port: 5108
controllers:
  zc-0001:
    ip_address: "192.168.1.40"
    name: "Ground Floor"
    discovery_enabled: true
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "test-bridge" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "test-bridge")
	}

	if cfg.Network.MulticastGroup != "239.255.90.67" {
		t.Errorf("Network.MulticastGroup = %q, want %q", cfg.Network.MulticastGroup, "239.255.90.67")
	}

	ctrl, ok := cfg.Controllers["zc-0001"]
	if !ok {
		t.Fatal("expected controller zc-0001 in config")
	}
	if ctrl.IPAddress != "192.168.1.40" {
		t.Errorf("controller IPAddress = %q, want %q", ctrl.IPAddress, "192.168.1.40")
	}
	if !ctrl.DiscoveryEnabled {
		t.Error("expected controller discovery_enabled = true")
	}

	// Timeouts not present in the file keep their defaults.
	if cfg.Timeouts.CommandTimeoutMs != 3000 {
		t.Errorf("Timeouts.CommandTimeoutMs = %d, want default 3000", cfg.Timeouts.CommandTimeoutMs)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Controllers = map[string]ControllerConfig{
			"zc-0001": {IPAddress: "192.168.1.40", Name: "Test", DiscoveryEnabled: true},
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing bridge ID",
			mutate:  func(c *Config) { c.Bridge.ID = "" },
			wantErr: true,
		},
		{
			name:    "multicast group not class D",
			mutate:  func(c *Config) { c.Network.MulticastGroup = "192.168.1.1" },
			wantErr: true,
		},
		{
			name:    "multicast group not an IP",
			mutate:  func(c *Config) { c.Network.MulticastGroup = "not-an-address" },
			wantErr: true,
		},
		{
			name:    "udp port equals multicast port",
			mutate:  func(c *Config) { c.Network.UDPPort = c.Network.MulticastPort },
			wantErr: true,
		},
		{
			name:    "multicast port out of range",
			mutate:  func(c *Config) { c.Network.MulticastPort = 0 },
			wantErr: true,
		},
		{
			name: "controller with bad IP",
			mutate: func(c *Config) {
				c.Controllers["zc-0002"] = ControllerConfig{IPAddress: "999.1.1.1"}
			},
			wantErr: true,
		},
		{
			name:    "discovery timeout too low",
			mutate:  func(c *Config) { c.Timeouts.DiscoverySeconds = 4 },
			wantErr: true,
		},
		{
			name:    "discovery timeout too high",
			mutate:  func(c *Config) { c.Timeouts.DiscoverySeconds = 301 },
			wantErr: true,
		},
		{
			name:    "command timeout too low",
			mutate:  func(c *Config) { c.Timeouts.CommandTimeoutMs = 499 },
			wantErr: true,
		},
		{
			name:    "command timeout too high",
			mutate:  func(c *Config) { c.Timeouts.CommandTimeoutMs = 10001 },
			wantErr: true,
		},
		{
			name:    "stale timeout too low",
			mutate:  func(c *Config) { c.Timeouts.ControllerStaleSeconds = 29 },
			wantErr: true,
		},
		{
			name:    "stale timeout too high",
			mutate:  func(c *Config) { c.Timeouts.ControllerStaleSeconds = 601 },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid API port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Timeouts: TimeoutConfig{
			DiscoverySeconds:       30,
			CommandTimeoutMs:       2500,
			ControllerStaleSeconds: 120,
		},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetDiscoveryTimeout().Seconds(); got != 30 {
		t.Errorf("GetDiscoveryTimeout() = %v, want 30", got)
	}

	if got := cfg.GetCommandTimeout().Milliseconds(); got != 2500 {
		t.Errorf("GetCommandTimeout() = %v, want 2500", got)
	}

	if got := cfg.GetControllerStaleTimeout().Seconds(); got != 120 {
		t.Errorf("GetControllerStaleTimeout() = %v, want 120", got)
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ZENBRIDGE_MULTICAST_GROUP", "239.255.90.99")
	t.Setenv("ZENBRIDGE_UDP_PORT", "6108")
	t.Setenv("ZENBRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("ZENBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ZENBRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("ZENBRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("ZENBRIDGE_API_HOST", "192.168.1.1")
	t.Setenv("ZENBRIDGE_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Network.MulticastGroup != "239.255.90.99" {
		t.Errorf("Network.MulticastGroup = %q, want %q", cfg.Network.MulticastGroup, "239.255.90.99")
	}

	if cfg.Network.UDPPort != 6108 {
		t.Errorf("Network.UDPPort = %d, want 6108", cfg.Network.UDPPort)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.ID == "" {
		t.Error("defaultConfig should have non-empty Bridge.ID")
	}

	if cfg.Network.MulticastGroup != "239.255.90.67" {
		t.Errorf("defaultConfig Network.MulticastGroup = %q, want 239.255.90.67", cfg.Network.MulticastGroup)
	}

	if cfg.Network.MulticastPort != 5110 {
		t.Errorf("defaultConfig Network.MulticastPort = %d, want 5110", cfg.Network.MulticastPort)
	}

	if cfg.Network.UDPPort != 5108 {
		t.Errorf("defaultConfig Network.UDPPort = %d, want 5108", cfg.Network.UDPPort)
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}
