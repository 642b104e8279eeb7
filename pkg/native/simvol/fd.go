package simvol

import (
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/native"
)

// fd is an open descriptor. Its fields are guarded by the volume data lock.
type fd struct {
	vol    *volume
	in     *Inode
	flags  int
	offset int64
	closed bool
}

func (f *fd) run(fn func(vd *volumeData) (int, error)) (int, error) {
	vd, err := f.vol.enter()
	if err != nil {
		return native.Fail(unix.EBADF)
	}
	defer vd.mu.Unlock()

	if f.closed {
		return native.Fail(unix.EBADF)
	}
	n, err := fn(vd)
	if err != nil {
		return native.Fail(native.ErrnoOf(err))
	}
	return n, nil
}

func (f *fd) do(fn func(vd *volumeData) error) (int, error) {
	return f.run(func(vd *volumeData) (int, error) {
		return 0, fn(vd)
	})
}

func (f *fd) readable() error {
	if r, _ := accessMode(f.flags); !r {
		return unix.EBADF
	}
	if f.in.isDir() {
		return unix.EISDIR
	}
	return nil
}

func (f *fd) writable() error {
	if _, w := accessMode(f.flags); !w {
		return unix.EBADF
	}
	if !f.in.isRegular() {
		return unix.EINVAL
	}
	return nil
}

func (f *fd) Close() (int, error) {
	return f.do(func(vd *volumeData) error {
		f.closed = true
		return vd.closeFD(f.in)
	})
}

func (f *fd) Dup() (native.FD, error) {
	var dup *fd
	_, err := f.do(func(vd *volumeData) error {
		dup = vd.newFD(f.vol, f.in, f.flags)
		dup.offset = f.offset
		return nil
	})
	if dup == nil {
		return nil, err
	}
	return dup, nil
}

// ============================================================================
// Data
// ============================================================================

func (f *fd) Read(buf []byte, flags int) (int, error) {
	return f.run(func(vd *volumeData) (int, error) {
		if err := f.readable(); err != nil {
			return 0, err
		}
		n, err := vd.readAt(f.in, buf, f.offset)
		f.offset += int64(n)
		return n, err
	})
}

func (f *fd) Pread(buf []byte, offset int64, flags int) (int, error) {
	return f.run(func(vd *volumeData) (int, error) {
		if err := f.readable(); err != nil {
			return 0, err
		}
		return vd.readAt(f.in, buf, offset)
	})
}

func (f *fd) Write(buf []byte, flags int) (int, error) {
	return f.run(func(vd *volumeData) (int, error) {
		if err := f.writable(); err != nil {
			return 0, err
		}
		if f.flags&unix.O_APPEND != 0 {
			f.offset = f.in.Size
		}
		n, err := vd.writeAt(f.in, buf, f.offset)
		f.offset += int64(n)
		return n, err
	})
}

func (f *fd) Pwrite(buf []byte, offset int64, flags int) (int, error) {
	return f.run(func(vd *volumeData) (int, error) {
		if err := f.writable(); err != nil {
			return 0, err
		}
		return vd.writeAt(f.in, buf, offset)
	})
}

// Vector variants gather into or scatter from one contiguous transfer.

func iovLen(iov [][]byte) int {
	n := 0
	for _, b := range iov {
		n += len(b)
	}
	return n
}

func scatter(iov [][]byte, src []byte) {
	for _, b := range iov {
		if len(src) == 0 {
			return
		}
		src = src[copy(b, src):]
	}
}

func gather(iov [][]byte) []byte {
	buf := make([]byte, 0, iovLen(iov))
	for _, b := range iov {
		buf = append(buf, b...)
	}
	return buf
}

func (f *fd) Readv(iov [][]byte, flags int) (int, error) {
	buf := make([]byte, iovLen(iov))
	n, err := f.Read(buf, flags)
	if n > 0 {
		scatter(iov, buf[:n])
	}
	return n, err
}

func (f *fd) Preadv(iov [][]byte, offset int64, flags int) (int, error) {
	buf := make([]byte, iovLen(iov))
	n, err := f.Pread(buf, offset, flags)
	if n > 0 {
		scatter(iov, buf[:n])
	}
	return n, err
}

func (f *fd) Writev(iov [][]byte, flags int) (int, error) {
	return f.Write(gather(iov), flags)
}

func (f *fd) Pwritev(iov [][]byte, offset int64, flags int) (int, error) {
	return f.Pwrite(gather(iov), offset, flags)
}

// Lseek repositions the file offset. SEEK_DATA and SEEK_HOLE treat the
// whole file as data, with the only hole at end of file.
func (f *fd) Lseek(offset int64, whence int) (int64, error) {
	var pos int64
	n, err := f.run(func(vd *volumeData) (int, error) {
		switch whence {
		case unix.SEEK_SET:
			pos = offset
		case unix.SEEK_CUR:
			pos = f.offset + offset
		case unix.SEEK_END:
			pos = f.in.reportedSize() + offset
		case unix.SEEK_DATA, unix.SEEK_HOLE:
			if offset < 0 {
				return 0, unix.EINVAL
			}
			if offset >= f.in.Size {
				return 0, unix.ENXIO
			}
			pos = offset
			if whence == unix.SEEK_HOLE {
				pos = f.in.Size
			}
		default:
			return 0, unix.EINVAL
		}
		if pos < 0 {
			return 0, unix.EINVAL
		}
		f.offset = pos
		return 0, nil
	})
	if n < 0 {
		return -1, err
	}
	return pos, nil
}

// ============================================================================
// Space
// ============================================================================

func (f *fd) Ftruncate(length int64) (int, error) {
	return f.do(func(vd *volumeData) error {
		if err := f.writable(); err != nil {
			return unix.EINVAL
		}
		if length < 0 {
			return unix.EINVAL
		}
		return vd.truncate(f.in, length)
	})
}

func (f *fd) Fallocate(keepSize int, offset, length int64) (int, error) {
	return f.do(func(vd *volumeData) error {
		if offset < 0 || length <= 0 {
			return unix.EINVAL
		}
		if _, w := accessMode(f.flags); !w {
			return unix.EBADF
		}
		if !f.in.isRegular() {
			return unix.ENODEV
		}
		return vd.fallocate(f.in, keepSize != 0, offset, length)
	})
}

// Discard zeroes the range, clipped to the current size.
func (f *fd) Discard(offset, length int64) (int, error) {
	return f.do(func(vd *volumeData) error {
		if offset < 0 || length <= 0 {
			return unix.EINVAL
		}
		if err := f.writable(); err != nil {
			return err
		}
		end := min(offset+length, f.in.Size)
		if end <= offset {
			return nil
		}
		return vd.zero(f.in, offset, end-offset)
	})
}

// Zerofill writes zeros over the range, growing the file when the range
// ends past it.
func (f *fd) Zerofill(offset, length int64) (int, error) {
	return f.do(func(vd *volumeData) error {
		if offset < 0 || length <= 0 {
			return unix.EINVAL
		}
		if err := f.writable(); err != nil {
			return err
		}
		return vd.zero(f.in, offset, length)
	})
}

// ============================================================================
// Metadata
// ============================================================================

func (f *fd) Fstat(st *unix.Stat_t) (int, error) {
	return f.do(func(vd *volumeData) error {
		vd.fill(f.in, st)
		return nil
	})
}

// Fsync and Fdatasync rewrite the inode record; content stores are written
// through on every write.
func (f *fd) Fsync() (int, error) {
	return f.do(func(vd *volumeData) error {
		if f.in.Nlink == 0 {
			return nil
		}
		return vd.persist(f.in)
	})
}

func (f *fd) Fdatasync() (int, error) {
	return f.Fsync()
}

func (f *fd) Fgetxattr(name native.CString, value []byte) (int, error) {
	return f.run(func(vd *volumeData) (int, error) {
		return vd.getxattr(f.in, name.String(), value)
	})
}

func (f *fd) Flistxattr(list []byte) (int, error) {
	return f.run(func(vd *volumeData) (int, error) {
		return vd.listxattr(f.in, list)
	})
}

func (f *fd) Fsetxattr(name native.CString, value []byte, flags int) (int, error) {
	return f.do(func(vd *volumeData) error {
		return vd.setxattr(f.in, name.String(), value, flags)
	})
}

func (f *fd) Fremovexattr(name native.CString) (int, error) {
	return f.do(func(vd *volumeData) error {
		return vd.removexattr(f.in, name.String())
	})
}

func (f *fd) Fchdir() (int, error) {
	return f.do(func(vd *volumeData) error {
		if f.in.Nlink == 0 {
			return unix.ENOENT
		}
		return f.vol.chdir(vd, f.in)
	})
}

// ============================================================================
// Directory Stream
// ============================================================================

// ReadDirent returns the entry at the cursor. Offsets 0 and 1 are "." and
// "..", offset 2+i is directory slot i. Holes left by removed entries are
// skipped, so a cursor stays valid across concurrent changes.
func (f *fd) ReadDirent(ent *native.Dirent) (int, error) {
	return f.run(func(vd *volumeData) (int, error) {
		dir := f.in
		if !dir.isDir() {
			return 0, unix.ENOTDIR
		}
		if dir.Nlink == 0 {
			return 0, nil
		}

		for {
			pos := f.offset
			var name string
			var ino uint64
			var typ uint8

			switch {
			case pos == 0:
				name, ino, typ = ".", dir.Ino, unix.DT_DIR
			case pos == 1:
				name, ino, typ = "..", dir.Parent, unix.DT_DIR
			case pos-2 < int64(len(dir.Entries)):
				slot := dir.Entries[pos-2]
				name, ino, typ = slot.Name, slot.Ino, slot.Type
			default:
				return 0, nil
			}

			f.offset++
			if name == "" {
				continue
			}
			*ent = native.Dirent{Ino: ino, Off: f.offset, Type: typ, Name: []byte(name)}
			return 1, nil
		}
	})
}
