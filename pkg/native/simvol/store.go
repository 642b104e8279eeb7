package simvol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ============================================================================
// Store Interfaces
// ============================================================================

// The simulated volume separates metadata from file content. The engine
// keeps the authoritative inode table in memory and writes every changed
// inode through to a MetadataStore; regular-file bytes live in a
// ContentStore keyed by the file's GFID. Both stores are shared by every
// context of every volume a Driver serves.

// MetadataStore persists inode records.
//
// Thread Safety:
// Implementations must be safe for concurrent use.
type MetadataStore interface {
	// LoadInodes returns every inode record of volume, in any order. A
	// volume that was never written returns no records and no error.
	LoadInodes(ctx context.Context, volume string) ([]*Inode, error)

	// PutInode creates or replaces one record.
	PutInode(ctx context.Context, volume string, ino *Inode) error

	// DeleteInode removes one record. Deleting a missing record succeeds.
	DeleteInode(ctx context.Context, volume string, ino uint64) error

	// Close releases the store.
	Close() error
}

// ContentID identifies the bytes of one regular file (its GFID).
type ContentID string

// ContentStore holds regular-file content.
//
// Content may be shorter than the file size the metadata reports: the
// engine reads bytes past the stored end as zeros.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Concurrent writes to the
// same ContentID are serialized by the engine.
type ContentStore interface {
	// ReadAt reads up to len(p) bytes at offset. It returns io.EOF when
	// offset is at or past the stored end, and a short count with no error
	// when the stored content ends inside p. Missing content reads as empty.
	ReadAt(ctx context.Context, id ContentID, p []byte, offset int64) (int, error)

	// WriteAt writes data at offset, creating the content if needed and
	// filling any gap with zeros.
	WriteAt(ctx context.Context, id ContentID, data []byte, offset int64) error

	// Truncate sets the stored size, creating the content if needed.
	Truncate(ctx context.Context, id ContentID, size int64) error

	// Size returns the stored size, or ErrContentNotFound.
	Size(ctx context.Context, id ContentID) (int64, error)

	// Delete removes the content. Deleting missing content succeeds.
	Delete(ctx context.Context, id ContentID) error
}

// RangeZeroer is implemented by content stores that can zero a range in
// one operation. The engine uses it for discard and zerofill instead of
// writing zero buffers chunk by chunk.
type RangeZeroer interface {
	// ZeroRange makes [offset, offset+n) read as zeros, extending the
	// content like WriteAt when the range ends past it.
	ZeroRange(ctx context.Context, id ContentID, offset, n int64) error
}

// Store errors.
var (
	// ErrContentNotFound indicates the requested content does not exist.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidOffset indicates a negative offset or size.
	ErrInvalidOffset = errors.New("invalid offset")
)

// EncodeInode serializes an inode record as JSON. Stores that keep raw bytes
// use it so records stay readable when inspecting the database.
func EncodeInode(ino *Inode) ([]byte, error) {
	data, err := json.Marshal(ino)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inode %d: %w", ino.Ino, err)
	}
	return data, nil
}

// DecodeInode is the inverse of EncodeInode.
func DecodeInode(data []byte) (*Inode, error) {
	var ino Inode
	if err := json.Unmarshal(data, &ino); err != nil {
		return nil, fmt.Errorf("failed to decode inode: %w", err)
	}
	return &ino, nil
}
