// Package s3content keeps simvol file content in an S3 bucket, one object
// per file.
package s3content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/gfapi/pkg/metrics"
	"github.com/marmos91/gfapi/pkg/native/simvol"
)

// storeKind labels this store in metrics.
const storeKind = "s3"

var (
	_ simvol.ContentStore = (*Store)(nil)
	_ simvol.RangeZeroer  = (*Store)(nil)
)

// Store implements simvol.ContentStore on S3 or an S3-compatible service.
//
// Objects are keyed by content ID (the file's GFID) under an optional
// prefix. S3 has no partial writes, so WriteAt and Truncate are
// read-modify-write; reads use ranged GETs.
//
// Thread Safety:
// Safe for concurrent use. The volume engine serializes writes to one
// content ID.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	metrics   metrics.StoreMetrics
}

// Config configures a Store.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket must already exist.
	Bucket string

	// KeyPrefix is prepended to every object key, e.g. "gfapi/content/".
	KeyPrefix string

	// Metrics receives one observation per S3 request. Default: no-op.
	Metrics metrics.StoreMetrics
}

// New verifies bucket access and returns the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopStoreMetrics()
	}

	start := time.Now()
	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	m.ObserveOperation(storeKind, "HeadBucket", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   m,
	}, nil
}

// observe reports one request. A missing object is an answer, not a
// failure.
func (s *Store) observe(operation string, start time.Time, err error) {
	if isNotFound(err) {
		err = nil
	}
	s.metrics.ObserveOperation(storeKind, operation, time.Since(start), err)
}

func (s *Store) objectKey(id simvol.ContentID) string {
	return s.keyPrefix + string(id)
}

// isNotFound recognizes both the GET (NoSuchKey) and HEAD (NotFound)
// flavors of a missing object.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func (s *Store) ReadAt(ctx context.Context, id simvol.ContentID, p []byte, offset int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("read %s at %d: %w", id, offset, simvol.ErrInvalidOffset)
	}
	if len(p) == 0 {
		return 0, nil
	}

	// S3 ranges are inclusive.
	end := offset + int64(len(p)) - 1
	start := time.Now()
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, end)),
	})
	s.observe("GetObject", start, err)
	if err != nil {
		// Missing content reads as empty; a range past the end is EOF.
		if isNotFound(err) || strings.Contains(err.Error(), "InvalidRange") {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("failed to read %s from S3: %w", id, err)
	}
	defer func() { _ = result.Body.Close() }()

	n, err := io.ReadFull(result.Body, p)
	s.metrics.RecordBytes(storeKind, "read", int64(n))
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("failed to read %s body: %w", id, err)
	}
	return n, nil
}

// load fetches the whole object; a missing object loads as empty.
func (s *Store) load(ctx context.Context, id simvol.ContentID) ([]byte, error) {
	start := time.Now()
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	s.observe("GetObject", start, err)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s from S3: %w", id, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s body: %w", id, err)
	}
	s.metrics.RecordBytes(storeKind, "read", int64(len(data)))
	return data, nil
}

func (s *Store) put(ctx context.Context, id simvol.ContentID, data []byte) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
		Body:   bytes.NewReader(data),
	})
	s.observe("PutObject", start, err)
	if err != nil {
		return fmt.Errorf("failed to write %s to S3: %w", id, err)
	}
	s.metrics.RecordBytes(storeKind, "write", int64(len(data)))
	return nil
}

func (s *Store) WriteAt(ctx context.Context, id simvol.ContentID, data []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("write %s at %d: %w", id, offset, simvol.ErrInvalidOffset)
	}

	cur, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	end := offset + int64(len(data))
	if end > int64(len(cur)) {
		grown := make([]byte, end)
		copy(grown, cur)
		cur = grown
	}
	copy(cur[offset:], data)
	return s.put(ctx, id, cur)
}

// ZeroRange clears a range with one GET and one PUT.
func (s *Store) ZeroRange(ctx context.Context, id simvol.ContentID, offset, n int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 || n < 0 {
		return fmt.Errorf("zero %s at %d+%d: %w", id, offset, n, simvol.ErrInvalidOffset)
	}

	cur, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	end := offset + n
	if end > int64(len(cur)) {
		grown := make([]byte, end)
		copy(grown, cur)
		cur = grown
	}
	clear(cur[offset:end])
	return s.put(ctx, id, cur)
}

func (s *Store) Truncate(ctx context.Context, id simvol.ContentID, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("truncate %s to %d: %w", id, size, simvol.ErrInvalidOffset)
	}

	cur, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if int64(len(cur)) >= size {
		cur = cur[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, cur)
		cur = grown
	}
	return s.put(ctx, id, cur)
}

func (s *Store) Size(ctx context.Context, id simvol.ContentID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	s.observe("HeadObject", start, err)
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("content %s: %w", id, simvol.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to head %s: %w", id, err)
	}
	if result.ContentLength == nil {
		return 0, fmt.Errorf("content length not available for %s", id)
	}
	return *result.ContentLength, nil
}

// Delete removes the object. S3 deletes are idempotent.
func (s *Store) Delete(ctx context.Context, id simvol.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	s.observe("DeleteObject", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete %s from S3: %w", id, err)
	}
	return nil
}
