package config

import (
	"strings"
	"time"

	"github.com/marmos91/gfapi/pkg/metrics"
	"github.com/marmos91/gfapi/pkg/native"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
// Defaults are filled in for every driver section, not only the selected
// one, so a generated config file documents all of them.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyVolumeDefaults(&cfg.Volume)
	applyDriverDefaults(&cfg.Driver)
	applyThrottleDefaults(&cfg.Throttle)
	applyProbeDefaults(&cfg.Probe)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	// File contents go to stdout in the CLI.
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyVolumeDefaults(cfg *VolumeConfig) {
	if cfg.Name == "" {
		cfg.Name = "gv0"
	}
	if cfg.Server == "" {
		cfg.Server = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = native.DefaultPort
	}
}

func applyDriverDefaults(cfg *DriverConfig) {
	if cfg.Type == "" {
		cfg.Type = "gfapi"
	}

	if cfg.Sim == nil {
		cfg.Sim = make(map[string]any)
	}
	if cfg.Local == nil {
		cfg.Local = make(map[string]any)
	}

	if _, ok := cfg.Sim["metadata_store"]; !ok {
		cfg.Sim["metadata_store"] = "memory"
	}
	if _, ok := cfg.Sim["content_store"]; !ok {
		cfg.Sim["content_store"] = "memory"
	}
	if _, ok := cfg.Local["root"]; !ok {
		cfg.Local["root"] = "/tmp/gfapi-volumes"
	}
}

func applyThrottleDefaults(cfg *ThrottleConfig) {
	// A rate without a burst gets one second's worth.
	if cfg.OpsPerSecond > 0 && cfg.Burst == 0 {
		cfg.Burst = cfg.OpsPerSecond
	}
}

func applyProbeDefaults(cfg *ProbeConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = metrics.DefaultPort
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
