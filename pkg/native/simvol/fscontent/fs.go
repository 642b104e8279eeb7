// Package fscontent keeps simvol file content on the local filesystem, one
// file per content ID.
package fscontent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/marmos91/gfapi/pkg/native/simvol"
)

// Store implements simvol.ContentStore on a directory.
//
// Content files are named by content ID (the file's GFID) directly under
// the base path. Sparse regions are left to the host filesystem.
//
// Thread Safety:
// The underlying filesystem operations are thread-safe at the OS level. The
// volume engine serializes writes to one content ID.
type Store struct {
	basePath string
}

// New creates the base directory if it doesn't exist and returns the store.
//
// Context Cancellation:
// This operation checks the context before creating the directory.
func New(ctx context.Context, basePath string) (*Store, error) {
	// ========================================================================
	// Step 1: Check context before filesystem operation
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if basePath == "" {
		return nil, fmt.Errorf("base path is required")
	}

	// ========================================================================
	// Step 2: Create the base directory if it doesn't exist
	// ========================================================================

	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{basePath: basePath}, nil
}

// filePath returns the full path for a content ID. Content IDs are GFIDs,
// so they never contain a separator.
func (s *Store) filePath(id simvol.ContentID) string {
	return filepath.Join(s.basePath, string(id))
}

func (s *Store) ReadAt(ctx context.Context, id simvol.ContentID, p []byte, offset int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("read %s at %d: %w", id, offset, simvol.ErrInvalidOffset)
	}

	file, err := os.Open(s.filePath(id))
	if err != nil {
		// Missing content reads as empty.
		if errors.Is(err, fs.ErrNotExist) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("failed to open content: %w", err)
	}
	defer file.Close()

	n, err := file.ReadAt(p, offset)
	if errors.Is(err, io.EOF) && n > 0 {
		return n, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("failed to read content: %w", err)
	}
	return n, err
}

// WriteAt writes data at offset. The file is created if it doesn't exist;
// a gap past the current end reads back as zeros.
//
// Context Cancellation:
// This operation checks the context before opening, and periodically during
// writes of 1MB or more.
func (s *Store) WriteAt(ctx context.Context, id simvol.ContentID, data []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("write %s at %d: %w", id, offset, simvol.ErrInvalidOffset)
	}

	file, err := os.OpenFile(s.filePath(id), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open file for writing: %w", err)
	}
	defer file.Close()

	// For small writes (<1MB), write directly
	if len(data) < 1*1024*1024 {
		if _, err := file.WriteAt(data, offset); err != nil {
			return fmt.Errorf("failed to write data: %w", err)
		}
		return nil
	}

	// For large writes, use chunked writes with context checks
	const chunkSize = 256 * 1024 // 256KB chunks
	for pos := 0; pos < len(data); pos += chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(pos+chunkSize, len(data))
		if _, err := file.WriteAt(data[pos:end], offset+int64(pos)); err != nil {
			return fmt.Errorf("failed to write data chunk: %w", err)
		}
	}

	return nil
}

func (s *Store) Truncate(ctx context.Context, id simvol.ContentID, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("truncate %s to %d: %w", id, size, simvol.ErrInvalidOffset)
	}

	file, err := os.OpenFile(s.filePath(id), os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open file for truncation: %w", err)
	}
	defer file.Close()

	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("failed to truncate content: %w", err)
	}
	return nil
}

// Size stats the content file without reading it.
func (s *Store) Size(ctx context.Context, id simvol.ContentID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	info, err := os.Stat(s.filePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("content %s: %w", id, simvol.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to stat content: %w", err)
	}
	return info.Size(), nil
}

func (s *Store) Delete(ctx context.Context, id simvol.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(s.filePath(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}
