package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Spyglass Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Spy      SpyConfig      `yaml:"spy"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	Enabled  bool             `yaml:"enabled"`
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

// SpyConfig contains camera-server bridge settings.
type SpyConfig struct {
	// PollInterval is how often each server is reconciled, in seconds.
	PollInterval int `yaml:"poll_interval"`

	// FailureThreshold is the number of consecutive failed status fetches
	// before a server (and its cameras) is marked unavailable.
	FailureThreshold int `yaml:"failure_threshold"`

	// CommandTimeout bounds a single command request, in seconds.
	CommandTimeout int `yaml:"command_timeout"`

	// EventStream enables the push event tap in addition to polling.
	EventStream bool `yaml:"event_stream"`

	// Servers is the initial set of camera servers to bridge.
	// Servers can also be added and removed at runtime via MQTT config messages.
	Servers []SpyServerConfig `yaml:"servers"`

	// Triggers is the initial set of camera-motion trigger registrations.
	Triggers []SpyTriggerConfig `yaml:"triggers"`
}

// SpyServerConfig identifies one camera server installation.
type SpyServerConfig struct {
	// ID is the stable device identifier used in MQTT topics and the registry.
	ID string `yaml:"id"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Username and Password enable HTTP basic authentication.
	// Both empty means unauthenticated access.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SpyTriggerConfig describes a camera-motion trigger registration.
type SpyTriggerConfig struct {
	ID string `yaml:"id"`

	// Server and Camera select the camera to watch. An empty server
	// matches any server; an omitted or negative camera number matches
	// any camera. Camera is a pointer so that leaving it out is not
	// mistaken for camera 0, which is a real camera number.
	Server string `yaml:"server"`
	Camera *int   `yaml:"camera"`

	// Mode is one of "recording", "action", or "specified".
	Mode string `yaml:"mode"`

	// Reason filters recording/action notifications ("any" or empty matches all).
	Reason string `yaml:"reason"`

	// Kind, Threshold, and Negate apply to "specified" mode.
	Kind      string `yaml:"kind"`
	Threshold int    `yaml:"threshold"`
	Negate    bool   `yaml:"negate"`

	// Throttle is the minimum interval between firings, in seconds.
	Throttle int `yaml:"throttle"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SPYGLASS_SECTION_KEY
// For example: SPYGLASS_DATABASE_PATH, SPYGLASS_MQTT_HOST
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
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Spyglass",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/spyglass.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "spyglass-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Spy: SpyConfig{
			PollInterval:     5,
			FailureThreshold: 3,
			CommandTimeout:   10,
			EventStream:      true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SPYGLASS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SPYGLASS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SPYGLASS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SPYGLASS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SPYGLASS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SPYGLASS_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("SPYGLASS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
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

	// Bridge validation
	if c.Spy.PollInterval < 1 {
		errs = append(errs, "spy.poll_interval must be at least 1 second")
	}
	if c.Spy.FailureThreshold < 1 {
		errs = append(errs, "spy.failure_threshold must be at least 1")
	}
	seen := make(map[string]bool, len(c.Spy.Servers))
	for i, srv := range c.Spy.Servers {
		if srv.ID == "" {
			errs = append(errs, fmt.Sprintf("spy.servers[%d].id is required", i))
			continue
		}
		if seen[srv.ID] {
			errs = append(errs, fmt.Sprintf("spy.servers[%d].id %q is duplicated", i, srv.ID))
		}
		seen[srv.ID] = true
		if srv.Host == "" {
			errs = append(errs, fmt.Sprintf("spy.servers[%d].host is required", i))
		}
		if srv.Port < 1 || srv.Port > 65535 {
			errs = append(errs, fmt.Sprintf("spy.servers[%d].port must be between 1 and 65535", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetPollInterval returns the reconciliation interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Spy.PollInterval) * time.Second
}

// GetCommandTimeout returns the command timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Spy.CommandTimeout) * time.Second
}
