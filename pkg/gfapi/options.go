package gfapi

import (
	"time"

	"github.com/marmos91/gfapi/pkg/metrics"
	"github.com/marmos91/gfapi/pkg/native"
	"github.com/marmos91/gfapi/pkg/native/libgfapi"
)

// Option configures a Client at Connect time.
type Option func(*options)

type options struct {
	driver        native.Driver
	metrics       metrics.ClientMetrics
	serialize     bool
	throttleOps   uint
	throttleBurst uint
	probe         bool
	probeTimeout  time.Duration
	logFile       string
	logLevel      int
	setLogging    bool
}

func defaultOptions() options {
	return options{
		driver:  libgfapi.Driver(),
		metrics: metrics.NewNoopClientMetrics(),
	}
}

// WithDriver selects the native backend. The default is the libgfapi
// binding, which is only functional in builds with the "gfapi" tag.
func WithDriver(d native.Driver) Option {
	return func(o *options) {
		if d != nil {
			o.driver = d
		}
	}
}

// WithMetrics reports every native call to m.
func WithMetrics(m metrics.ClientMetrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithSerializedCalls funnels all native calls of the client through one
// mutex. Use it with backends that are not safe for concurrent calls on one
// context.
func WithSerializedCalls() Option {
	return func(o *options) {
		o.serialize = true
	}
}

// WithThrottle limits the client to opsPerSecond native calls with the given
// burst. Calls wait for a token; they are never rejected.
func WithThrottle(opsPerSecond, burst uint) Option {
	return func(o *options) {
		o.throttleOps = opsPerSecond
		o.throttleBurst = burst
	}
}

// WithProbe checks that the volfile server answers a SunRPC NULL call within
// timeout before any native context is allocated.
func WithProbe(timeout time.Duration) Option {
	return func(o *options) {
		o.probe = true
		o.probeTimeout = timeout
	}
}

// WithVolfileLog directs the native library's own log to path at level
// (glfs_set_logging). An empty path keeps the library default.
func WithVolfileLog(path string, level int) Option {
	return func(o *options) {
		o.setLogging = true
		o.logFile = path
		o.logLevel = level
	}
}
