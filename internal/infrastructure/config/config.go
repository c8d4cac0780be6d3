package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Stream failure policies understood by the acquisition engine.
const (
	StreamFailureFail  = "fail"
	StreamFailurePoll  = "poll"
	StreamFailureRetry = "retry"
)

// Config is the root configuration structure for FinBoard Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DashboardConfig contains dashboard-level settings.
type DashboardConfig struct {
	Name string `yaml:"name"`

	// DefaultTemplate is applied on first start when the store is empty.
	// Empty means start with no widgets.
	DefaultTemplate string `yaml:"default_template"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// MQTT is optional; when disabled widget state is only pushed over WebSocket.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`

	// Commands subscribes to {prefix}/widget/+/refresh and refreshes the
	// named widget on every message.
	Commands bool `yaml:"commands"`
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
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains settings for the UI push hub.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// AcquisitionConfig contains settings for fetching widget data sources.
type AcquisitionConfig struct {
	// DefaultRefreshInterval is used when a widget does not specify one (seconds).
	DefaultRefreshInterval int `yaml:"default_refresh_interval"`

	// HTTPTimeout bounds a single REST fetch (seconds).
	HTTPTimeout int `yaml:"http_timeout"`

	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes int64 `yaml:"max_response_bytes"`

	UserAgent string `yaml:"user_agent"`

	// DialTimeout bounds the stream handshake (seconds).
	DialTimeout int `yaml:"dial_timeout"`

	// PlaceholderHosts are demo/example domains expected to be unreachable.
	// Stream failures against them disable streaming without surfacing an error.
	// A host matches an entry when equal to it or a subdomain of it.
	PlaceholderHosts []string `yaml:"placeholder_hosts"`

	StreamFailure StreamFailureConfig `yaml:"stream_failure"`
}

// StreamFailureConfig selects what happens after a genuine stream failure.
type StreamFailureConfig struct {
	// Policy is one of "fail", "poll", "retry".
	Policy       string `yaml:"policy"`
	MaxAttempts  int    `yaml:"max_attempts"`
	InitialDelay int    `yaml:"initial_delay"`
	MaxDelay     int    `yaml:"max_delay"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FINBOARD_SECTION_KEY
// For example: FINBOARD_DATABASE_PATH, FINBOARD_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// Used by CLI commands that can run without a config file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Dashboard: DashboardConfig{
			Name: "FinBoard",
		},
		Database: DatabaseConfig{
			Path:        "./data/finboard.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "finboard-core",
			},
			QoS:         1,
			TopicPrefix: "finboard",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
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
		Acquisition: AcquisitionConfig{
			DefaultRefreshInterval: 30,
			HTTPTimeout:            10,
			MaxResponseBytes:       10 << 20,
			UserAgent:              "finboard-core",
			DialTimeout:            45,
			PlaceholderHosts: []string{
				"example.com",
				"example.org",
				"example.net",
				"example",
				"invalid",
				"test",
			},
			StreamFailure: StreamFailureConfig{
				Policy:       StreamFailureFail,
				MaxAttempts:  5,
				InitialDelay: 1,
				MaxDelay:     30,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FINBOARD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("FINBOARD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FINBOARD_MQTT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Enabled = b
		}
	}
	if v := os.Getenv("FINBOARD_MQTT_COMMANDS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Commands = b
		}
	}
	if v := os.Getenv("FINBOARD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FINBOARD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FINBOARD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("FINBOARD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("FINBOARD_API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = p
		}
	}

	// Acquisition
	if v := os.Getenv("FINBOARD_STREAM_FAILURE_POLICY"); v != "" {
		cfg.Acquisition.StreamFailure.Policy = v
	}

	// Logging
	if v := os.Getenv("FINBOARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Acquisition validation
	if c.Acquisition.DefaultRefreshInterval < 1 {
		errs = append(errs, "acquisition.default_refresh_interval must be at least 1 second")
	}
	if c.Acquisition.HTTPTimeout < 1 {
		errs = append(errs, "acquisition.http_timeout must be at least 1 second")
	}
	if c.Acquisition.MaxResponseBytes < 1 {
		errs = append(errs, "acquisition.max_response_bytes must be positive")
	}
	switch c.Acquisition.StreamFailure.Policy {
	case StreamFailureFail, StreamFailurePoll:
	case StreamFailureRetry:
		if c.Acquisition.StreamFailure.MaxAttempts < 1 {
			errs = append(errs, "acquisition.stream_failure.max_attempts must be at least 1 for retry policy")
		}
		if c.Acquisition.StreamFailure.InitialDelay < 1 {
			errs = append(errs, "acquisition.stream_failure.initial_delay must be at least 1 second")
		}
	default:
		errs = append(errs, fmt.Sprintf("acquisition.stream_failure.policy %q must be one of fail, poll, retry",
			c.Acquisition.StreamFailure.Policy))
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

// GetHTTPTimeout returns the per-fetch timeout as a Duration.
func (c *Config) GetHTTPTimeout() time.Duration {
	return time.Duration(c.Acquisition.HTTPTimeout) * time.Second
}

// GetDialTimeout returns the stream handshake timeout as a Duration.
func (c *Config) GetDialTimeout() time.Duration {
	return time.Duration(c.Acquisition.DialTimeout) * time.Second
}
