package local

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/native"
)

// direntBufSize is the getdents buffer of a directory descriptor.
const direntBufSize = 8192

type fd struct {
	vol *volume
	fd  int

	mu     sync.Mutex
	closed bool

	// Directory stream state: buf[pos:n] holds undecoded records.
	buf []byte
	pos int
	n   int
}

func (f *fd) call(fn func(n int) (int, error)) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return native.Fail(unix.EBADF)
	}
	return result(fn(f.fd))
}

func (f *fd) do(fn func(n int) error) (int, error) {
	return f.call(func(n int) (int, error) {
		return 0, fn(n)
	})
}

func (f *fd) Close() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return native.Fail(unix.EBADF)
	}
	f.closed = true
	return status(unix.Close(f.fd))
}

func (f *fd) Dup() (native.FD, error) {
	var dup int
	_, err := f.do(func(n int) error {
		var err error
		dup, err = unix.FcntlInt(uintptr(n), unix.F_DUPFD_CLOEXEC, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &fd{vol: f.vol, fd: dup}, nil
}

// ============================================================================
// Data
// ============================================================================

func (f *fd) Read(buf []byte, flags int) (int, error) {
	return f.call(func(n int) (int, error) { return unix.Read(n, buf) })
}

func (f *fd) Write(buf []byte, flags int) (int, error) {
	return f.call(func(n int) (int, error) { return unix.Write(n, buf) })
}

func (f *fd) Readv(iov [][]byte, flags int) (int, error) {
	return f.call(func(n int) (int, error) { return unix.Readv(n, iov) })
}

func (f *fd) Writev(iov [][]byte, flags int) (int, error) {
	return f.call(func(n int) (int, error) { return unix.Writev(n, iov) })
}

func (f *fd) Pread(buf []byte, offset int64, flags int) (int, error) {
	return f.call(func(n int) (int, error) { return unix.Pread(n, buf, offset) })
}

func (f *fd) Pwrite(buf []byte, offset int64, flags int) (int, error) {
	return f.call(func(n int) (int, error) { return unix.Pwrite(n, buf, offset) })
}

func (f *fd) Preadv(iov [][]byte, offset int64, flags int) (int, error) {
	return f.call(func(n int) (int, error) { return unix.Preadv(n, iov, offset) })
}

func (f *fd) Pwritev(iov [][]byte, offset int64, flags int) (int, error) {
	return f.call(func(n int) (int, error) { return unix.Pwritev(n, iov, offset) })
}

func (f *fd) Lseek(offset int64, whence int) (int64, error) {
	var pos int64
	ret, err := f.do(func(n int) error {
		var err error
		pos, err = unix.Seek(n, offset, whence)
		return err
	})
	if ret < 0 {
		return -1, err
	}
	return pos, nil
}

// ============================================================================
// Space
// ============================================================================

func (f *fd) Ftruncate(length int64) (int, error) {
	return f.do(func(n int) error { return unix.Ftruncate(n, length) })
}

func (f *fd) Fallocate(keepSize int, offset, length int64) (int, error) {
	var mode uint32
	if keepSize != 0 {
		mode = unix.FALLOC_FL_KEEP_SIZE
	}
	return f.do(func(n int) error { return unix.Fallocate(n, mode, offset, length) })
}

func (f *fd) Discard(offset, length int64) (int, error) {
	return f.do(func(n int) error {
		return unix.Fallocate(n, unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, offset, length)
	})
}

// Zerofill uses FALLOC_FL_ZERO_RANGE and falls back to writing zeros on
// file systems without it (tmpfs).
func (f *fd) Zerofill(offset, length int64) (int, error) {
	return f.do(func(n int) error {
		err := unix.Fallocate(n, unix.FALLOC_FL_ZERO_RANGE, offset, length)
		if !errors.Is(err, unix.EOPNOTSUPP) {
			return err
		}

		zeros := make([]byte, min(length, 1<<20))
		for length > 0 {
			chunk := zeros[:min(length, int64(len(zeros)))]
			w, err := unix.Pwrite(n, chunk, offset)
			if err != nil {
				return err
			}
			offset += int64(w)
			length -= int64(w)
		}
		return nil
	})
}

// ============================================================================
// Metadata
// ============================================================================

func (f *fd) Fstat(st *unix.Stat_t) (int, error) {
	return f.do(func(n int) error { return unix.Fstat(n, st) })
}

func (f *fd) Fsync() (int, error) {
	return f.do(unix.Fsync)
}

func (f *fd) Fdatasync() (int, error) {
	return f.do(unix.Fdatasync)
}

func (f *fd) Fgetxattr(name native.CString, value []byte) (int, error) {
	return f.call(func(n int) (int, error) { return unix.Fgetxattr(n, name.String(), value) })
}

func (f *fd) Flistxattr(list []byte) (int, error) {
	return f.call(func(n int) (int, error) { return unix.Flistxattr(n, list) })
}

func (f *fd) Fsetxattr(name native.CString, value []byte, flags int) (int, error) {
	return f.do(func(n int) error { return unix.Fsetxattr(n, name.String(), value, flags) })
}

func (f *fd) Fremovexattr(name native.CString) (int, error) {
	return f.do(func(n int) error { return unix.Fremovexattr(n, name.String()) })
}

// Fchdir recovers the descriptor's path through /proc.
func (f *fd) Fchdir() (int, error) {
	return f.do(func(n int) error {
		buf := make([]byte, unix.PathMax)
		l, err := unix.Readlink("/proc/self/fd/"+strconv.Itoa(n), buf)
		if err != nil {
			return err
		}
		return f.vol.chdirHost(string(buf[:l]))
	})
}

// ============================================================================
// Directory Stream
// ============================================================================

// ReadDirent decodes the next linux_dirent64 record:
//
//	u64 d_ino | s64 d_off | u16 d_reclen | u8 d_type | name NUL
func (f *fd) ReadDirent(ent *native.Dirent) (int, error) {
	return f.call(func(n int) (int, error) {
		if f.pos >= f.n {
			if f.buf == nil {
				f.buf = make([]byte, direntBufSize)
			}
			got, err := unix.Getdents(n, f.buf)
			if err != nil {
				return 0, err
			}
			if got == 0 {
				return 0, nil
			}
			f.pos, f.n = 0, got
		}

		rec := f.buf[f.pos:f.n]
		reclen := int(binary.NativeEndian.Uint16(rec[16:18]))
		name := rec[19:reclen]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}

		*ent = native.Dirent{
			Ino:  binary.NativeEndian.Uint64(rec[0:8]),
			Off:  int64(binary.NativeEndian.Uint64(rec[8:16])),
			Type: rec[18],
			Name: append([]byte(nil), name...),
		}
		f.pos += reclen
		return 1, nil
	})
}
