package simvol

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryMetadataStore keeps inode records in memory, encoded exactly as a
// persistent store would keep them, so records never alias engine state.
type MemoryMetadataStore struct {
	mu      sync.RWMutex
	volumes map[string]map[uint64][]byte
}

// NewMemoryMetadataStore creates an empty store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{volumes: make(map[string]map[uint64][]byte)}
}

func (s *MemoryMetadataStore) LoadInodes(ctx context.Context, volume string) ([]*Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.volumes[volume]
	inodes := make([]*Inode, 0, len(records))
	for _, data := range records {
		ino, err := DecodeInode(data)
		if err != nil {
			return nil, err
		}
		inodes = append(inodes, ino)
	}
	return inodes, nil
}

func (s *MemoryMetadataStore) PutInode(ctx context.Context, volume string, ino *Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := EncodeInode(ino)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.volumes[volume]
	if !ok {
		records = make(map[uint64][]byte)
		s.volumes[volume] = records
	}
	records[ino.Ino] = data
	return nil
}

func (s *MemoryMetadataStore) DeleteInode(ctx context.Context, volume string, ino uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.volumes[volume], ino)
	return nil
}

func (s *MemoryMetadataStore) Close() error { return nil }

var (
	_ ContentStore = (*MemoryContentStore)(nil)
	_ RangeZeroer  = (*MemoryContentStore)(nil)
)

// memoryChunkSize is the allocation unit of MemoryContentStore.
const memoryChunkSize = 64 << 10

// MemoryContentStore keeps file content in memory as fixed-size chunks
// keyed by chunk index. Chunks that were never written, or were written
// with zeros only, are not allocated and read as zeros, so a file truncated
// far past its data costs nothing.
//
// Reads and writes copy, so callers' buffers are never retained.
type MemoryContentStore struct {
	mu   sync.RWMutex
	data map[ContentID]*memoryContent
}

type memoryContent struct {
	size   int64
	chunks map[int64][]byte
}

// NewMemoryContentStore creates an empty store.
func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{data: make(map[ContentID]*memoryContent)}
}

// content returns the content of id, creating it when missing.
//
// REQUIRES: s.mu held for writing.
func (s *MemoryContentStore) content(id ContentID) *memoryContent {
	c, ok := s.data[id]
	if !ok {
		c = &memoryContent{chunks: make(map[int64][]byte)}
		s.data[id] = c
	}
	return c
}

// allocated returns the number of bytes held in chunks across all content.
func (s *MemoryContentStore) allocated() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, c := range s.data {
		n += int64(len(c.chunks)) * memoryChunkSize
	}
	return n
}

func (s *MemoryContentStore) ReadAt(ctx context.Context, id ContentID, p []byte, offset int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("read %s at %d: %w", id, offset, ErrInvalidOffset)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[id]
	if !ok || offset >= c.size {
		return 0, io.EOF
	}

	n := int(min(int64(len(p)), c.size-offset))
	for done := 0; done < n; {
		pos := offset + int64(done)
		idx, within := pos/memoryChunkSize, int(pos%memoryChunkSize)
		span := min(n-done, memoryChunkSize-within)

		if chunk, ok := c.chunks[idx]; ok {
			copy(p[done:done+span], chunk[within:])
		} else {
			clear(p[done : done+span])
		}
		done += span
	}
	return n, nil
}

func (s *MemoryContentStore) WriteAt(ctx context.Context, id ContentID, data []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("write %s at %d: %w", id, offset, ErrInvalidOffset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.content(id)
	for done := 0; done < len(data); {
		pos := offset + int64(done)
		idx, within := pos/memoryChunkSize, int(pos%memoryChunkSize)
		span := min(len(data)-done, memoryChunkSize-within)
		part := data[done : done+span]

		chunk, ok := c.chunks[idx]
		if !ok && !isZero(part) {
			chunk = make([]byte, memoryChunkSize)
			c.chunks[idx] = chunk
			ok = true
		}
		if ok {
			copy(chunk[within:], part)
		}
		done += span
	}
	c.size = max(c.size, offset+int64(len(data)))
	return nil
}

// Truncate drops the chunks past the new end and clears the tail of the
// last one, so growing again reads zeros.
func (s *MemoryContentStore) Truncate(ctx context.Context, id ContentID, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("truncate %s to %d: %w", id, size, ErrInvalidOffset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.content(id)
	if size < c.size {
		for idx := range c.chunks {
			if idx*memoryChunkSize >= size {
				delete(c.chunks, idx)
			}
		}
		if chunk, ok := c.chunks[size/memoryChunkSize]; ok {
			clear(chunk[size%memoryChunkSize:])
		}
	}
	c.size = size
	return nil
}

// ZeroRange drops the chunks the range covers and clears the rest of it.
func (s *MemoryContentStore) ZeroRange(ctx context.Context, id ContentID, offset, n int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 || n < 0 {
		return fmt.Errorf("zero %s at %d+%d: %w", id, offset, n, ErrInvalidOffset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.content(id)
	end := offset + n
	for idx, chunk := range c.chunks {
		lo, hi := idx*memoryChunkSize, (idx+1)*memoryChunkSize
		if hi <= offset || lo >= end {
			continue
		}
		if lo >= offset && hi <= end {
			delete(c.chunks, idx)
			continue
		}
		clear(chunk[max(offset, lo)-lo : min(end, hi)-lo])
	}
	c.size = max(c.size, end)
	return nil
}

func (s *MemoryContentStore) Size(ctx context.Context, id ContentID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[id]
	if !ok {
		return 0, fmt.Errorf("content %s: %w", id, ErrContentNotFound)
	}
	return c.size, nil
}

func (s *MemoryContentStore) Delete(ctx context.Context, id ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, id)
	return nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
