// Package native defines the capability surface a volume backend exposes to
// the gfapi client.
//
// The surface mirrors the libgfapi C API one call at a time. Every call
// returns a signed result together with the error number observed by that
// same call:
//
//	ret, err := vol.Mkdir(path, 0755)
//	if ret < 0 {
//	    // err carries the errno (syscall.Errno); it is only meaningful here
//	}
//
// Callers must only look at the error when the result reports failure
// (negative result, or nil capability for the calls that return one). A
// backend is allowed to hand back a stale error number alongside a
// successful result, exactly like cgo does for C functions that leave errno
// untouched on success.
//
// Backends:
//   - gfapi: cgo binding to libgfapi (build tag "gfapi")
//   - simvol: simulated in-process volume with pluggable stores
//   - local: loopback volume rooted at a local directory
package native

import (
	"golang.org/x/sys/unix"
)

// Driver allocates native volume contexts (glfs_new).
type Driver interface {
	// Name identifies the backend in logs and metrics labels.
	Name() string

	// New allocates a context for the named volume. A nil Volume means the
	// allocation failed.
	New(volname CString) (Volume, error)
}

// Volume is one native cluster context (glfs_t).
//
// Path arguments are NUL-terminated CStrings produced by NewCString; relative
// paths resolve against the context's working directory.
type Volume interface {
	SetVolfileServer(transport, host CString, port int) (int, error)
	SetLogging(logfile CString, loglevel int) (int, error)
	Init() (int, error)
	Fini() (int, error)

	Open(path CString, flags int) (FD, error)
	Creat(path CString, flags int, mode uint32) (FD, error)
	Opendir(path CString) (FD, error)

	Truncate(path CString, length int64) (int, error)
	Lstat(path CString, st *unix.Stat_t) (int, error)
	Stat(path CString, st *unix.Stat_t) (int, error)
	Statvfs(path CString, st *Statvfs) (int, error)
	Access(path CString, mode int) (int, error)
	Chmod(path CString, mode uint32) (int, error)
	Chown(path CString, uid, gid uint32) (int, error)

	Symlink(oldpath, newpath CString) (int, error)
	// Readlink fills buf with the link target (not NUL-terminated) and
	// returns the number of bytes placed.
	Readlink(path CString, buf []byte) (int, error)
	Mknod(path CString, mode uint32, dev uint64) (int, error)
	Mkdir(path CString, mode uint32) (int, error)
	Unlink(path CString) (int, error)
	Rmdir(path CString) (int, error)
	Rename(oldpath, newpath CString) (int, error)
	Link(oldpath, newpath CString) (int, error)

	// Extended attributes. An empty value/list buffer asks for the size
	// only; a buffer that is too small fails with ERANGE.
	Getxattr(path, name CString, value []byte) (int, error)
	Lgetxattr(path, name CString, value []byte) (int, error)
	Listxattr(path CString, list []byte) (int, error)
	Llistxattr(path CString, list []byte) (int, error)
	Setxattr(path, name CString, value []byte, flags int) (int, error)
	Lsetxattr(path, name CString, value []byte, flags int) (int, error)
	Removexattr(path, name CString) (int, error)
	Lremovexattr(path, name CString) (int, error)

	// Getcwd and Realpath fill buf with a NUL-terminated path and return 0.
	Getcwd(buf []byte) (int, error)
	Realpath(path CString, buf []byte) (int, error)
	Chdir(path CString) (int, error)
}

// FD is one native open file or directory descriptor (glfs_fd_t).
type FD interface {
	Close() (int, error)

	Read(buf []byte, flags int) (int, error)
	Write(buf []byte, flags int) (int, error)
	Readv(iov [][]byte, flags int) (int, error)
	Writev(iov [][]byte, flags int) (int, error)
	Pread(buf []byte, offset int64, flags int) (int, error)
	Pwrite(buf []byte, offset int64, flags int) (int, error)
	Preadv(iov [][]byte, offset int64, flags int) (int, error)
	Pwritev(iov [][]byte, offset int64, flags int) (int, error)
	Lseek(offset int64, whence int) (int64, error)

	Ftruncate(length int64) (int, error)
	Fallocate(keepSize int, offset, length int64) (int, error)
	Discard(offset, length int64) (int, error)
	Zerofill(offset, length int64) (int, error)
	Fstat(st *unix.Stat_t) (int, error)
	Fsync() (int, error)
	Fdatasync() (int, error)

	Fgetxattr(name CString, value []byte) (int, error)
	Flistxattr(list []byte) (int, error)
	Fsetxattr(name CString, value []byte, flags int) (int, error)
	Fremovexattr(name CString) (int, error)

	Fchdir() (int, error)
	Dup() (FD, error)

	// ReadDirent reads the next directory record into ent. It returns 1 when
	// a record was produced, 0 at end of stream and a negative value on
	// failure (glfs_readdir_r).
	ReadDirent(ent *Dirent) (int, error)
}

// Dirent is one raw directory record copied out of the backend.
type Dirent struct {
	Ino  uint64
	Off  int64
	Type uint8
	Name []byte
}

// Statvfs mirrors struct statvfs.
type Statvfs struct {
	Bsize   uint64
	Frsize  uint64
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Favail  uint64
	Fsid    uint64
	Flag    uint64
	Namemax uint64
}

// Directory entry type tags, unchanged from the platform encoding.
const (
	DT_UNKNOWN = unix.DT_UNKNOWN
	DT_FIFO    = unix.DT_FIFO
	DT_CHR     = unix.DT_CHR
	DT_DIR     = unix.DT_DIR
	DT_BLK     = unix.DT_BLK
	DT_REG     = unix.DT_REG
	DT_LNK     = unix.DT_LNK
	DT_SOCK    = unix.DT_SOCK
)

// Extended attribute set flags.
const (
	XATTR_CREATE  = 0x1
	XATTR_REPLACE = 0x2
)

// Transport is the only volfile-server transport the client uses.
const Transport = "tcp"

// DefaultPort is the conventional glusterd port.
const DefaultPort = 24007

// Fail is the conventional failure return for backends.
func Fail(errno unix.Errno) (int, error) {
	return -1, errno
}

// ErrnoOf extracts the error number a failed native call reported. A missing
// or foreign error maps to EIO so a failure is never rendered as success.
func ErrnoOf(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok && errno != 0 {
		return errno
	}
	return unix.EIO
}
