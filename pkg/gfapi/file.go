package gfapi

import (
	"io"
	"runtime"

	"github.com/marmos91/gfapi/pkg/native"
	"golang.org/x/sys/unix"
)

// File is an open file on a volume (FileHandle).
//
// A File owns its native descriptor and releases it exactly once, on Close.
// A File that becomes unreachable without Close is released by a cleanup
// and a warning is logged.
//
// File implements io.Reader, io.Writer, io.ReaderAt, io.WriterAt and
// io.Seeker. The raw ReadFlags and WriteFlags calls keep the native short
// transfer contract instead.
type File struct {
	st      *handleState
	cleanup runtime.Cleanup
}

func newFile(st *handleState) *File {
	f := &File{st: st}
	f.cleanup = runtime.AddCleanup(f, func(st *handleState) { st.leaked() }, f.st)
	return f
}

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.st.name }

// Open opens path with the given open(2) flags.
func (c *Client) Open(path string, flags int) (*File, error) {
	cpath, err := marshal("glfs_open", path)
	if err != nil {
		return nil, err
	}
	st, err := c.invokeFD("glfs_open", path, kindFile, func(vol native.Volume) (native.FD, error) {
		return vol.Open(cpath, flags)
	})
	if err != nil {
		return nil, err
	}
	return newFile(st), nil
}

// Create opens path, creating it with mode if it does not exist.
func (c *Client) Create(path string, flags int, mode uint32) (*File, error) {
	cpath, err := marshal("glfs_creat", path)
	if err != nil {
		return nil, err
	}
	st, err := c.invokeFD("glfs_creat", path, kindFile, func(vol native.Volume) (native.FD, error) {
		return vol.Creat(cpath, flags, mode)
	})
	if err != nil {
		return nil, err
	}
	return newFile(st), nil
}

// Close releases the file. Closing twice returns ErrClosed.
func (f *File) Close() error {
	f.cleanup.Stop()
	return f.st.release()
}

// Dup duplicates the descriptor. The duplicate is an independent File that
// must be closed on its own.
func (f *File) Dup() (*File, error) {
	st, err := f.st.callFD("glfs_dup", func(fd native.FD) (native.FD, error) {
		return fd.Dup()
	})
	if err != nil {
		return nil, err
	}
	return newFile(st), nil
}

// ============================================================================
// Reads
// ============================================================================

// ReadFlags reads up to len(buf) bytes at the current offset. A short read
// is not an error; 0 means end of file.
func (f *File) ReadFlags(buf []byte, flags int) (int, error) {
	n, err := f.st.call("glfs_read", func(fd native.FD) (int, error) {
		return fd.Read(buf, flags)
	})
	f.st.client.metrics.RecordBytes("read", int64(n))
	return n, err
}

// ReadBuf reads up to count bytes into *buf, growing it if needed, and
// leaves len(*buf) equal to the number of bytes read.
func (f *File) ReadBuf(buf *[]byte, count, flags int) (int, error) {
	if count < 0 {
		return 0, &GlusterError{
			Code:    ErrCodeOperation,
			Op:      "glfs_read",
			Path:    f.st.name,
			Message: unix.EINVAL.Error(),
			Errno:   unix.EINVAL,
		}
	}
	if cap(*buf) < count {
		*buf = make([]byte, count)
	}
	*buf = (*buf)[:count]

	n, err := f.ReadFlags(*buf, flags)
	*buf = (*buf)[:n]
	return n, err
}

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := f.ReadFlags(p, 0)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Pread reads up to len(buf) bytes at offset without moving the file offset.
func (f *File) Pread(buf []byte, offset int64, flags int) (int, error) {
	n, err := f.st.call("glfs_pread", func(fd native.FD) (int, error) {
		return fd.Pread(buf, offset, flags)
	})
	f.st.client.metrics.RecordBytes("read", int64(n))
	return n, err
}

// ReadAt implements io.ReaderAt, looping over short reads.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	var total int
	for total < len(p) {
		n, err := f.Pread(p[total:], off+int64(total), 0)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
		total += n
	}
	return total, nil
}

// Readv scatters one read across bufs in order.
func (f *File) Readv(bufs [][]byte, flags int) (int, error) {
	n, err := f.st.call("glfs_readv", func(fd native.FD) (int, error) {
		return fd.Readv(bufs, flags)
	})
	f.st.client.metrics.RecordBytes("read", int64(n))
	return n, err
}

// Preadv is Readv at offset.
func (f *File) Preadv(bufs [][]byte, offset int64, flags int) (int, error) {
	n, err := f.st.call("glfs_preadv", func(fd native.FD) (int, error) {
		return fd.Preadv(bufs, offset, flags)
	})
	f.st.client.metrics.RecordBytes("read", int64(n))
	return n, err
}

// ============================================================================
// Writes
// ============================================================================

// WriteFlags writes buf at the current offset and returns the number of
// bytes accepted, which may be less than len(buf). Callers loop.
func (f *File) WriteFlags(buf []byte, flags int) (int, error) {
	n, err := f.st.call("glfs_write", func(fd native.FD) (int, error) {
		return fd.Write(buf, flags)
	})
	f.st.client.metrics.RecordBytes("write", int64(n))
	return n, err
}

// Write implements io.Writer. A partial write returns io.ErrShortWrite.
func (f *File) Write(p []byte) (int, error) {
	n, err := f.WriteFlags(p, 0)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Pwrite writes buf at offset without moving the file offset.
func (f *File) Pwrite(buf []byte, offset int64, flags int) (int, error) {
	n, err := f.st.call("glfs_pwrite", func(fd native.FD) (int, error) {
		return fd.Pwrite(buf, offset, flags)
	})
	f.st.client.metrics.RecordBytes("write", int64(n))
	return n, err
}

// WriteAt implements io.WriterAt, looping over partial writes.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	var total int
	for total < len(p) {
		n, err := f.Pwrite(p[total:], off+int64(total), 0)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
		total += n
	}
	return total, nil
}

// Writev gathers bufs in order into one write.
func (f *File) Writev(bufs [][]byte, flags int) (int, error) {
	n, err := f.st.call("glfs_writev", func(fd native.FD) (int, error) {
		return fd.Writev(bufs, flags)
	})
	f.st.client.metrics.RecordBytes("write", int64(n))
	return n, err
}

// Pwritev is Writev at offset.
func (f *File) Pwritev(bufs [][]byte, offset int64, flags int) (int, error) {
	n, err := f.st.call("glfs_pwritev", func(fd native.FD) (int, error) {
		return fd.Pwritev(bufs, offset, flags)
	})
	f.st.client.metrics.RecordBytes("write", int64(n))
	return n, err
}

// Seek sets the file offset and returns the new absolute offset.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.st.call64("glfs_lseek", func(fd native.FD) (int64, error) {
		return fd.Lseek(offset, whence)
	})
}

// ============================================================================
// Space management and metadata
// ============================================================================

// Truncate sets the file size.
func (f *File) Truncate(size int64) error {
	_, err := f.st.call("glfs_ftruncate", func(fd native.FD) (int, error) {
		return fd.Ftruncate(size)
	})
	return err
}

// Fallocate allocates length bytes at offset. With keepSize the reported
// file size is not extended.
func (f *File) Fallocate(keepSize bool, offset, length int64) error {
	keep := 0
	if keepSize {
		keep = 1
	}
	_, err := f.st.call("glfs_fallocate", func(fd native.FD) (int, error) {
		return fd.Fallocate(keep, offset, length)
	})
	return err
}

// Discard deallocates length bytes at offset; they read back as zeros.
func (f *File) Discard(offset, length int64) error {
	_, err := f.st.call("glfs_discard", func(fd native.FD) (int, error) {
		return fd.Discard(offset, length)
	})
	return err
}

// Zerofill writes length zero bytes at offset.
func (f *File) Zerofill(offset, length int64) error {
	_, err := f.st.call("glfs_zerofill", func(fd native.FD) (int, error) {
		return fd.Zerofill(offset, length)
	})
	return err
}

// Stat returns the file's metadata.
func (f *File) Stat() (unix.Stat_t, error) {
	var st unix.Stat_t
	_, err := f.st.call("glfs_fstat", func(fd native.FD) (int, error) {
		return fd.Fstat(&st)
	})
	return st, err
}

// Sync flushes data and metadata to the volume.
func (f *File) Sync() error {
	_, err := f.st.call("glfs_fsync", func(fd native.FD) (int, error) {
		return fd.Fsync()
	})
	return err
}

// Datasync flushes data to the volume.
func (f *File) Datasync() error {
	_, err := f.st.call("glfs_fdatasync", func(fd native.FD) (int, error) {
		return fd.Fdatasync()
	})
	return err
}

// Chdir makes the file's directory the client's working directory. It
// fails with ENOTDIR for regular files.
func (f *File) Chdir() error {
	_, err := f.st.call("glfs_fchdir", func(fd native.FD) (int, error) {
		return fd.Fchdir()
	})
	return err
}
