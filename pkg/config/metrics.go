package config

import (
	"github.com/marmos91/gfapi/pkg/metrics"
	promMetrics "github.com/marmos91/gfapi/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// ClientMetrics is the collector handed to the client (never nil, uses noop if disabled)
	ClientMetrics metrics.ClientMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates the Prometheus-backed client collector
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns a no-op collector (zero overhead)
//
// The Prometheus collectors register once per process and are shared by
// every connection; each call still gets its own HTTP server.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Server:        nil,
			ClientMetrics: metrics.NewNoopClientMetrics(),
		}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:        server,
		ClientMetrics: promMetrics.NewClientMetrics(),
	}
}
