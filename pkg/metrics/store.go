package metrics

import (
	"time"
)

// StoreMetrics provides observability for the stores behind a simulated
// volume: the metadata store (memory or BadgerDB) and the content store
// (memory or S3).
//
// The interface is optional - stores built without one use a no-op
// implementation.
type StoreMetrics interface {
	// ObserveOperation records one store call.
	//
	// Parameters:
	//   - store: store kind (e.g., "badger", "s3")
	//   - operation: call name (e.g., "PutInode", "GetObject")
	//   - duration: time spent in the call
	//   - err: nil on success
	ObserveOperation(store, operation string, duration time.Duration, err error)

	// RecordBytes records bytes read from or written to the store.
	RecordBytes(store, direction string, bytes int64)
}

type noopStoreMetrics struct{}

// NewNoopStoreMetrics returns a StoreMetrics that discards everything.
func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

func (noopStoreMetrics) ObserveOperation(string, string, time.Duration, error) {}
func (noopStoreMetrics) RecordBytes(string, string, int64)                     {}
