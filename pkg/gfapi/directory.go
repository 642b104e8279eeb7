package gfapi

import (
	"io"
	"iter"
	"runtime"
	"sync"

	"github.com/marmos91/gfapi/pkg/native"
)

// DirEntry is one directory record copied out of the native layer.
type DirEntry struct {
	// Name is the entry's path component, byte for byte.
	Name string

	// Ino is the inode number.
	Ino uint64

	// Type is the platform directory entry type tag (native.DT_*).
	Type uint8
}

// IsDir reports whether the entry is a directory.
func (e DirEntry) IsDir() bool { return e.Type == native.DT_DIR }

// Directory is an open directory cursor (DirectoryHandle).
//
// Iteration is one pass. When the cursor reaches the end of the stream, or
// the native layer reports a failure, the descriptor is released at once
// and every later Next returns io.EOF without calling into the native
// layer. Close is only needed when iteration stops early; after the
// automatic release it is a no-op.
type Directory struct {
	st      *handleState
	cleanup runtime.Cleanup

	mu         sync.Mutex
	exhausted  bool
	autoClosed bool
}

// OpenDir opens path for iteration.
func (c *Client) OpenDir(path string) (*Directory, error) {
	cpath, err := marshal("glfs_opendir", path)
	if err != nil {
		return nil, err
	}
	st, err := c.invokeFD("glfs_opendir", path, kindDirectory, func(vol native.Volume) (native.FD, error) {
		return vol.Opendir(cpath)
	})
	if err != nil {
		return nil, err
	}

	d := &Directory{st: st}
	d.cleanup = runtime.AddCleanup(d, func(st *handleState) { st.leaked() }, d.st)
	return d, nil
}

// Name returns the path the directory was opened with.
func (d *Directory) Name() string { return d.st.name }

// Next returns the next entry, or io.EOF once the stream is exhausted.
//
// A native failure is returned once; the cursor is exhausted afterwards.
func (d *Directory) Next() (DirEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exhausted {
		return DirEntry{}, io.EOF
	}

	var ent native.Dirent
	ret, err := d.st.call("glfs_readdir_r", func(fd native.FD) (int, error) {
		return fd.ReadDirent(&ent)
	})
	if err != nil || ret == 0 {
		d.exhausted = true
		if d.st.isOpen() {
			d.autoClosed = true
			d.cleanup.Stop()
			_ = d.st.release()
		}
		if err != nil {
			return DirEntry{}, err
		}
		return DirEntry{}, io.EOF
	}

	return DirEntry{Name: string(ent.Name), Ino: ent.Ino, Type: ent.Type}, nil
}

// All ranges over the remaining entries. A failure is yielded once as the
// last pair.
//
//	for ent, err := range dir.All() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(ent.Name)
//	}
func (d *Directory) All() iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		for {
			ent, err := d.Next()
			if err == io.EOF {
				return
			}
			if !yield(ent, err) || err != nil {
				return
			}
		}
	}
}

// ReadAll collects the remaining entries.
func (d *Directory) ReadAll() ([]DirEntry, error) {
	var entries []DirEntry
	for ent, err := range d.All() {
		if err != nil {
			return entries, err
		}
		entries = append(entries, ent)
	}
	return entries, nil
}

// Chdir makes this directory the client's working directory.
func (d *Directory) Chdir() error {
	_, err := d.st.call("glfs_fchdir", func(fd native.FD) (int, error) {
		return fd.Fchdir()
	})
	return err
}

// Close releases the directory. It returns nil after the cursor released
// itself at the end of iteration, and ErrClosed on a second explicit Close.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.autoClosed {
		d.autoClosed = false
		return nil
	}
	d.exhausted = true
	d.cleanup.Stop()
	return d.st.release()
}

func (st *handleState) isOpen() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return !st.closed
}
