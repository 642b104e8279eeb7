package prometheus

import (
	"errors"
	"sync"
	"time"

	"github.com/marmos91/gfapi/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sys/unix"
)

// clientMetrics is the Prometheus implementation of metrics.ClientMetrics.
type clientMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	openHandles       *prometheus.GaugeVec
	connectionEvents  *prometheus.CounterVec
}

var (
	clientOnce   sync.Once
	sharedClient *clientMetrics
)

// NewClientMetrics returns the process-wide Prometheus-backed ClientMetrics.
//
// Collectors register on first use; every later call, and so every client
// of the process, shares them. Returns a no-op implementation if metrics are
// not enabled (InitRegistry not called).
func NewClientMetrics() metrics.ClientMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopClientMetrics()
	}

	clientOnce.Do(func() {
		sharedClient = newClientMetrics(metrics.GetRegistry())
	})
	return sharedClient
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	return &clientMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gfapi_operations_total",
				Help: "Total number of native calls by operation, status and errno",
			},
			[]string{"operation", "status", "errno"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gfapi_operation_duration_seconds",
				Help: "Duration of native calls in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1.0,    // 1s
					10.0,   // 10s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gfapi_bytes_transferred_total",
				Help: "Total bytes moved by read and write calls",
			},
			[]string{"direction"},
		),
		openHandles: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gfapi_open_handles",
				Help: "Current number of open file and directory handles",
			},
			[]string{"kind"},
		),
		connectionEvents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gfapi_connection_events_total",
				Help: "Connection lifecycle events",
			},
			[]string{"event"},
		),
	}
}

func (m *clientMetrics) ObserveOperation(op string, duration time.Duration, err error) {
	status, errno := "success", ""
	if err != nil {
		status = "error"
		var e unix.Errno
		if errors.As(err, &e) {
			errno = unix.ErrnoName(e)
		}
	}

	m.operationsTotal.WithLabelValues(op, status, errno).Inc()
	m.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *clientMetrics) RecordBytes(direction string, bytes int64) {
	if bytes <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *clientMetrics) SetOpenHandles(kind string, delta int) {
	m.openHandles.WithLabelValues(kind).Add(float64(delta))
}

func (m *clientMetrics) RecordConnection(event string) {
	m.connectionEvents.WithLabelValues(event).Inc()
}
