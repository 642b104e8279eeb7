package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete gfapi client configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (GFAPI_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Driver Configuration Pattern:
// Each native backend defines its own option set. The Driver section holds
// one map per backend and only the map matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Volume identifies the volume and the volfile server to fetch it from
	Volume VolumeConfig `mapstructure:"volume" yaml:"volume"`

	// Driver selects the native backend and its options
	Driver DriverConfig `mapstructure:"driver" yaml:"driver"`

	// Throttle limits the rate of native calls
	Throttle ThrottleConfig `mapstructure:"throttle" yaml:"throttle"`

	// Probe checks the volfile server before connecting
	Probe ProbeConfig `mapstructure:"probe" yaml:"probe"`

	// Metrics exposes Prometheus metrics over HTTP
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// VolumeConfig identifies the volume to connect to.
type VolumeConfig struct {
	// Name is the volume name passed to glfs_new
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Server is the volfile server host
	Server string `mapstructure:"server" yaml:"server" validate:"required"`

	// Port is the volfile server port
	Port uint16 `mapstructure:"port" yaml:"port" validate:"required"`

	// SerializeCalls issues native calls one at a time
	SerializeCalls bool `mapstructure:"serialize_calls" yaml:"serialize_calls"`

	// LogFile redirects the native library's log (glfs_set_logging).
	// Empty keeps the library default.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`

	// LogLevel is the native library's log level (0-9)
	LogLevel int `mapstructure:"log_level" yaml:"log_level" validate:"gte=0,lte=9"`
}

// DriverConfig specifies the native backend.
type DriverConfig struct {
	// Type selects the backend
	// Valid values: gfapi, sim, local
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=gfapi sim local"`

	// Sim contains simulated-volume options
	// Only used when Type = "sim"
	Sim map[string]any `mapstructure:"sim" yaml:"sim"`

	// Local contains loopback options
	// Only used when Type = "local"
	Local map[string]any `mapstructure:"local" yaml:"local"`
}

// ThrottleConfig limits native call throughput. Zero disables it.
type ThrottleConfig struct {
	OpsPerSecond uint `mapstructure:"ops_per_second" yaml:"ops_per_second"`
	Burst        uint `mapstructure:"burst" yaml:"burst"`
}

// ProbeConfig controls the pre-connect reachability probe.
type ProbeConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys are bound explicitly so environment overrides work even when the
// key is missing from the config file.
var envKeys = []string{
	"logging.level", "logging.format", "logging.output",
	"volume.name", "volume.server", "volume.port", "volume.serialize_calls",
	"volume.log_file", "volume.log_level",
	"driver.type",
	"throttle.ops_per_second", "throttle.burst",
	"probe.enabled", "probe.timeout",
	"metrics.enabled", "metrics.port",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the GFAPI_ prefix and underscores
	// Example: GFAPI_VOLUME_SERVER=gluster1
	v.SetEnvPrefix("GFAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/gfapi/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gfapi")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "gfapi")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
