// Package metrics provides Prometheus metrics collection for gfapi clients.
//
// Metrics are optional. Until InitRegistry is called, constructors hand out
// no-op implementations, so a client built without metrics pays nothing for
// the dispatch hooks.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create the client metrics and hand them to Connect
//	m := prometheus.NewClientMetrics()
//	client, err := gfapi.Connect("gv0", "server1", 24007, gfapi.WithMetrics(m))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read everywhere else.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// It must be called before creating any metrics instances. Subsequent calls
// are ignored. The registry also carries the Go runtime and process
// collectors, which matter for a cgo client that pins buffers across calls.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
