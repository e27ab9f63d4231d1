package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v7"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "BUTTREST_"

// Config is the root configuration structure for ButtRest.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Intiface IntifaceConfig `yaml:"intiface" envPrefix:"INTIFACE_"`
	API      APIConfig      `yaml:"api" envPrefix:"API_"`
	Activity ActivityConfig `yaml:"activity" envPrefix:"ACTIVITY_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Audit    AuditConfig    `yaml:"audit" envPrefix:"AUDIT_"`
	MQTT     MQTTConfig     `yaml:"mqtt" envPrefix:"MQTT_"`
	InfluxDB InfluxDBConfig `yaml:"influxdb" envPrefix:"INFLUXDB_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOGGING_"`
}

// IntifaceConfig describes the control server the gateway talks to.
type IntifaceConfig struct {
	// URL is the control server WebSocket address, e.g. ws://127.0.0.1:12345.
	// Required.
	URL string `yaml:"url" env:"URL"`

	// ClientName is announced to the server during the handshake.
	ClientName string `yaml:"client_name" env:"CLIENT_NAME"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	CommandTimeout time.Duration `yaml:"command_timeout" env:"COMMAND_TIMEOUT"`

	// ScanDuration is how long to scan for devices after connecting.
	// Zero disables the startup scan.
	ScanDuration time.Duration `yaml:"scan_duration" env:"SCAN_DURATION"`

	Reconnect ReconnectConfig `yaml:"reconnect" envPrefix:"RECONNECT_"`
	Engine    EngineConfig    `yaml:"engine" envPrefix:"ENGINE_"`
}

// ReconnectConfig paces reconnection attempts after the control server drops.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

// EngineConfig contains settings for managing a local intiface-engine process.
type EngineConfig struct {
	// Managed indicates whether ButtRest should run the engine itself.
	// If false, the engine is expected to be running externally.
	Managed bool `yaml:"managed" env:"MANAGED"`

	// Binary is the path to the intiface-engine executable.
	// Default: "intiface-engine"
	Binary string `yaml:"binary" env:"BINARY"`

	// Port is passed as --websocket-port. Default: 12345
	Port int `yaml:"port" env:"PORT"`

	// Args are extra command-line arguments for the engine.
	Args []string `yaml:"args" env:"ARGS"`

	// RestartOnFailure enables automatic restart if the engine exits.
	// Default: true
	RestartOnFailure bool `yaml:"restart_on_failure" env:"RESTART_ON_FAILURE"`

	// RestartDelay is the initial wait before a restart; it doubles up to
	// one minute on repeated failures. Default: 2s
	RestartDelay time.Duration `yaml:"restart_delay" env:"RESTART_DELAY"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts" env:"MAX_RESTART_ATTEMPTS"`

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration `yaml:"graceful_timeout" env:"GRACEFUL_TIMEOUT"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host" env:"HOST"`
	Port     int              `yaml:"port" env:"PORT"`
	Timeouts APITimeoutConfig `yaml:"timeouts" envPrefix:"TIMEOUT_"`
	CORS     CORSConfig       `yaml:"cors" envPrefix:"CORS_"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read" env:"READ"`
	Write int `yaml:"write" env:"WRITE"`
	Idle  int `yaml:"idle" env:"IDLE"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty origin list disables CORS headers entirely.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// ActivityConfig sizes the activity feed queue.
type ActivityConfig struct {
	Buffer int `yaml:"buffer" env:"BUFFER"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" env:"PATH"`
	WALMode     bool   `yaml:"wal_mode" env:"WAL_MODE"`
	BusyTimeout int    `yaml:"busy_timeout" env:"BUSY_TIMEOUT"`
}

// AuditConfig controls the command audit trail.
type AuditConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Retention drops audit rows older than this on startup. Zero keeps everything.
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled" env:"ENABLED"`
	Broker    MQTTBrokerConfig    `yaml:"broker" envPrefix:"BROKER_"`
	Auth      MQTTAuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	QoS       int                 `yaml:"qos" env:"QOS"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect" envPrefix:"RECONNECT_"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	TLS      bool   `yaml:"tls" env:"TLS"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     int `yaml:"max_delay" env:"MAX_DELAY"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	URL           string `yaml:"url" env:"URL"`
	Token         string `yaml:"token" env:"TOKEN"`
	Org           string `yaml:"org" env:"ORG"`
	Bucket        string `yaml:"bucket" env:"BUCKET"`
	BatchSize     int    `yaml:"batch_size" env:"BATCH_SIZE"`
	FlushInterval int    `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	Output string `yaml:"output" env:"OUTPUT"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BUTTREST_SECTION_KEY
// For example: BUTTREST_INTIFACE_URL, BUTTREST_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults and environment only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Intiface: IntifaceConfig{
			ClientName:     "ButtRest",
			ConnectTimeout: 10 * time.Second,
			CommandTimeout: 5 * time.Second,
			ScanDuration:   3 * time.Second,
			Reconnect: ReconnectConfig{
				InitialDelay: time.Second,
				MaxDelay:     30 * time.Second,
			},
			Engine: EngineConfig{
				Binary:             "intiface-engine",
				Port:               12345,
				RestartOnFailure:   true,
				RestartDelay:       2 * time.Second,
				MaxRestartAttempts: 0,
				GracefulTimeout:    5 * time.Second,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Activity: ActivityConfig{
			Buffer: 256,
		},
		Database: DatabaseConfig{
			Path:        "./data/buttrest.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "buttrest",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "buttrest",
			Bucket:        "buttrest",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies BUTTREST_* environment variables on top of cfg.
// Unset variables leave the current value untouched.
func applyEnvOverrides(cfg *Config) error {
	return env.Parse(cfg, env.Options{Prefix: EnvPrefix})
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Intiface validation
	if c.Intiface.URL == "" {
		errs = append(errs, "intiface.url is required (set "+EnvPrefix+"INTIFACE_URL)")
	} else if err := validateWebSocketURL(c.Intiface.URL); err != nil {
		errs = append(errs, "intiface.url "+err.Error())
	}
	if c.Intiface.CommandTimeout < 0 {
		errs = append(errs, "intiface.command_timeout must not be negative")
	}
	if c.Intiface.ScanDuration < 0 {
		errs = append(errs, "intiface.scan_duration must not be negative")
	}
	if c.Intiface.Reconnect.MaxDelay < c.Intiface.Reconnect.InitialDelay {
		errs = append(errs, "intiface.reconnect.max_delay must not be less than initial_delay")
	}
	if c.Intiface.Engine.Managed {
		if c.Intiface.Engine.Binary == "" {
			errs = append(errs, "intiface.engine.binary is required when the engine is managed")
		}
		if c.Intiface.Engine.Port < 1 || c.Intiface.Engine.Port > 65535 {
			errs = append(errs, "intiface.engine.port must be between 1 and 65535")
		}
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Audit validation
	if c.Audit.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when audit is enabled")
	}

	// MQTT validation
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validateWebSocketURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("must use the ws or wss scheme")
	}
	if u.Host == "" {
		return errors.New("must include a host")
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

// Addr returns the host:port the API server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}
