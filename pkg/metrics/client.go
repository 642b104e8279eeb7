package metrics

import (
	"time"
)

// ClientMetrics provides observability for gfapi client operations.
//
// Every native call issued by a client goes through a single dispatch point
// which reports to this interface. The interface is optional - if not
// provided to the client, a no-op implementation is used.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	client, err := gfapi.Connect("gv0", "server1", 24007,
//	    gfapi.WithMetrics(prometheus.NewClientMetrics()))
//
//	// Without metrics (no-op)
//	client, err := gfapi.Connect("gv0", "server1", 24007)
type ClientMetrics interface {
	// ObserveOperation records one native call.
	//
	// Parameters:
	//   - op: native call name (e.g., "glfs_open", "glfs_pread")
	//   - duration: time spent in the call
	//   - err: nil on success, otherwise the error returned to the caller
	ObserveOperation(op string, duration time.Duration, err error)

	// RecordBytes records bytes moved by read or write calls.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: number of bytes transferred
	RecordBytes(direction string, bytes int64)

	// SetOpenHandles updates the number of live handles of a kind
	// ("file" or "directory") across all clients using this instance.
	SetOpenHandles(kind string, delta int)

	// RecordConnection counts connection lifecycle events
	// ("connected", "failed", "disconnected").
	RecordConnection(event string)
}

type noopClientMetrics struct{}

// NewNoopClientMetrics returns a ClientMetrics that discards everything.
func NewNoopClientMetrics() ClientMetrics {
	return noopClientMetrics{}
}

func (noopClientMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopClientMetrics) RecordBytes(string, int64)                     {}
func (noopClientMetrics) SetOpenHandles(string, int)                    {}
func (noopClientMetrics) RecordConnection(string)                       {}
