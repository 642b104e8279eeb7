// Package local is a loopback volume backend: each volume is a directory
// under a root on the local file system, and every native call is the
// matching system call on the mapped path.
//
// Paths are confined lexically ("/.." stays at the volume root). Symlinks
// are resolved by the host kernel, so an absolute link target points into
// the host namespace, not the volume.
package local

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/internal/logger"
	"github.com/marmos91/gfapi/pkg/native"
)

var (
	_ native.Driver = (*Driver)(nil)
	_ native.Volume = (*volume)(nil)
	_ native.FD     = (*fd)(nil)
)

// Driver serves volumes stored as subdirectories of Root.
type Driver struct {
	Root string
}

// NewDriver creates a driver rooted at root.
func NewDriver(root string) *Driver {
	return &Driver{Root: root}
}

func (d *Driver) Name() string { return "local" }

func (d *Driver) New(volname native.CString) (native.Volume, error) {
	name := volname.String()
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return nil, unix.EINVAL
	}
	return &volume{base: filepath.Join(d.Root, name), cwd: "/"}, nil
}

// errnoOf extracts the errno from a system call or os-level error.
func errnoOf(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) && errno != 0 {
		return errno
	}
	return unix.EIO
}

func result(n int, err error) (int, error) {
	if err != nil {
		return native.Fail(errnoOf(err))
	}
	return n, nil
}

func status(err error) (int, error) {
	return result(0, err)
}

type volume struct {
	base string

	mu      sync.Mutex
	servers []string
	inited  bool
	finied  bool
	cwd     string
}

// host maps a volume path to the host path under base, keeping a trailing
// slash so the kernel still demands a directory.
func (v *volume) host(p string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.inited || v.finied {
		return "", unix.ENOTCONN
	}
	if p == "" {
		return "", unix.ENOENT
	}

	vp := p
	if !path.IsAbs(vp) {
		vp = path.Join(v.cwd, vp)
	}
	h := filepath.Join(v.base, path.Clean("/"+vp))
	if strings.HasSuffix(p, "/") {
		h += "/"
	}
	return h, nil
}

// pathCall maps path and runs fn on the host path.
func (v *volume) pathCall(p native.CString, fn func(h string) error) (int, error) {
	h, err := v.host(p.String())
	if err != nil {
		return native.Fail(errnoOf(err))
	}
	return status(fn(h))
}

func (v *volume) pathCallN(p native.CString, fn func(h string) (int, error)) (int, error) {
	h, err := v.host(p.String())
	if err != nil {
		return native.Fail(errnoOf(err))
	}
	return result(fn(h))
}

func (v *volume) pathCall2(a, b native.CString, fn func(ha, hb string) error) (int, error) {
	ha, err := v.host(a.String())
	if err != nil {
		return native.Fail(errnoOf(err))
	}
	hb, err := v.host(b.String())
	if err != nil {
		return native.Fail(errnoOf(err))
	}
	return status(fn(ha, hb))
}

// ============================================================================
// Lifecycle
// ============================================================================

func (v *volume) SetVolfileServer(transport, host native.CString, port int) (int, error) {
	if transport.String() != native.Transport || host.String() == "" {
		return native.Fail(unix.EINVAL)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.servers = append(v.servers, host.String())
	return 0, nil
}

func (v *volume) SetLogging(logfile native.CString, loglevel int) (int, error) {
	logger.Debug("local: volume %s ignores volfile log %q", v.base, logfile.String())
	return 0, nil
}

func (v *volume) Init() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.servers) == 0 {
		return native.Fail(unix.EINVAL)
	}

	var st unix.Stat_t
	if err := unix.Stat(v.base, &st); err != nil {
		return native.Fail(errnoOf(err))
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return native.Fail(unix.ENOTDIR)
	}
	v.inited = true
	return 0, nil
}

func (v *volume) Fini() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.finied = true
	return 0, nil
}

// ============================================================================
// Open
// ============================================================================

func (v *volume) open(p native.CString, flags int, mode uint32) (native.FD, error) {
	h, err := v.host(p.String())
	if err != nil {
		return nil, errnoOf(err)
	}
	n, err := unix.Open(h, flags|unix.O_CLOEXEC, mode)
	if err != nil {
		return nil, errnoOf(err)
	}
	return &fd{vol: v, fd: n}, nil
}

// Open opens an existing entry; O_CREAT is stripped.
func (v *volume) Open(p native.CString, flags int) (native.FD, error) {
	return v.open(p, flags&^unix.O_CREAT, 0)
}

func (v *volume) Creat(p native.CString, flags int, mode uint32) (native.FD, error) {
	return v.open(p, flags|unix.O_CREAT, mode)
}

func (v *volume) Opendir(p native.CString) (native.FD, error) {
	return v.open(p, unix.O_RDONLY|unix.O_DIRECTORY, 0)
}

// ============================================================================
// Attributes
// ============================================================================

func (v *volume) Truncate(p native.CString, length int64) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Truncate(h, length) })
}

func (v *volume) Lstat(p native.CString, st *unix.Stat_t) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Lstat(h, st) })
}

func (v *volume) Stat(p native.CString, st *unix.Stat_t) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Stat(h, st) })
}

func (v *volume) Statvfs(p native.CString, st *native.Statvfs) (int, error) {
	return v.pathCall(p, func(h string) error {
		var fs unix.Statfs_t
		if err := unix.Statfs(h, &fs); err != nil {
			return err
		}
		*st = native.Statvfs{
			Bsize:   uint64(fs.Bsize),
			Frsize:  uint64(fs.Frsize),
			Blocks:  fs.Blocks,
			Bfree:   fs.Bfree,
			Bavail:  fs.Bavail,
			Files:   fs.Files,
			Ffree:   fs.Ffree,
			Favail:  fs.Ffree,
			Fsid:    uint64(uint32(fs.Fsid.Val[0]))<<32 | uint64(uint32(fs.Fsid.Val[1])),
			Flag:    uint64(fs.Flags),
			Namemax: uint64(fs.Namelen),
		}
		return nil
	})
}

func (v *volume) Access(p native.CString, mode int) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Access(h, uint32(mode)) })
}

func (v *volume) Chmod(p native.CString, mode uint32) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Chmod(h, mode) })
}

// Chown passes (uid_t)-1 through as -1.
func (v *volume) Chown(p native.CString, uid, gid uint32) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Chown(h, int(int32(uid)), int(int32(gid))) })
}

// ============================================================================
// Namespace
// ============================================================================

// Symlink stores oldpath verbatim as the link target.
func (v *volume) Symlink(oldpath, newpath native.CString) (int, error) {
	return v.pathCall(newpath, func(h string) error { return unix.Symlink(oldpath.String(), h) })
}

func (v *volume) Readlink(p native.CString, buf []byte) (int, error) {
	return v.pathCallN(p, func(h string) (int, error) { return unix.Readlink(h, buf) })
}

func (v *volume) Mknod(p native.CString, mode uint32, dev uint64) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Mknod(h, mode, int(dev)) })
}

func (v *volume) Mkdir(p native.CString, mode uint32) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Mkdir(h, mode) })
}

func (v *volume) Unlink(p native.CString) (int, error) {
	return v.pathCall(p, unix.Unlink)
}

func (v *volume) Rmdir(p native.CString) (int, error) {
	return v.pathCall(p, unix.Rmdir)
}

func (v *volume) Rename(oldpath, newpath native.CString) (int, error) {
	return v.pathCall2(oldpath, newpath, unix.Rename)
}

func (v *volume) Link(oldpath, newpath native.CString) (int, error) {
	return v.pathCall2(oldpath, newpath, unix.Link)
}

// ============================================================================
// Extended Attributes
// ============================================================================

func (v *volume) Getxattr(p, name native.CString, value []byte) (int, error) {
	return v.pathCallN(p, func(h string) (int, error) { return unix.Getxattr(h, name.String(), value) })
}

func (v *volume) Lgetxattr(p, name native.CString, value []byte) (int, error) {
	return v.pathCallN(p, func(h string) (int, error) { return unix.Lgetxattr(h, name.String(), value) })
}

func (v *volume) Listxattr(p native.CString, list []byte) (int, error) {
	return v.pathCallN(p, func(h string) (int, error) { return unix.Listxattr(h, list) })
}

func (v *volume) Llistxattr(p native.CString, list []byte) (int, error) {
	return v.pathCallN(p, func(h string) (int, error) { return unix.Llistxattr(h, list) })
}

func (v *volume) Setxattr(p, name native.CString, value []byte, flags int) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Setxattr(h, name.String(), value, flags) })
}

func (v *volume) Lsetxattr(p, name native.CString, value []byte, flags int) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Lsetxattr(h, name.String(), value, flags) })
}

func (v *volume) Removexattr(p, name native.CString) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Removexattr(h, name.String()) })
}

func (v *volume) Lremovexattr(p, name native.CString) (int, error) {
	return v.pathCall(p, func(h string) error { return unix.Lremovexattr(h, name.String()) })
}

// ============================================================================
// Working Directory
// ============================================================================

func (v *volume) Getcwd(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.inited || v.finied {
		return native.Fail(unix.ENOTCONN)
	}
	if !native.PutString(buf, v.cwd) {
		return native.Fail(unix.ERANGE)
	}
	return 0, nil
}

// resolve returns the symlink-free volume path of h.
func (v *volume) resolve(h string) (string, error) {
	resolved, err := filepath.EvalSymlinks(h)
	if err != nil {
		return "", err
	}
	base, err := filepath.EvalSymlinks(v.base)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", unix.EXDEV
	}
	return path.Clean("/" + filepath.ToSlash(rel)), nil
}

func (v *volume) Realpath(p native.CString, buf []byte) (int, error) {
	return v.pathCall(p, func(h string) error {
		vp, err := v.resolve(h)
		if err != nil {
			return err
		}
		if !native.PutString(buf, vp) {
			return unix.ENAMETOOLONG
		}
		return nil
	})
}

func (v *volume) Chdir(p native.CString) (int, error) {
	return v.pathCall(p, func(h string) error {
		return v.chdirHost(h)
	})
}

func (v *volume) chdirHost(h string) error {
	var st unix.Stat_t
	if err := unix.Stat(h, &st); err != nil {
		return err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return unix.ENOTDIR
	}
	if err := unix.Access(h, unix.X_OK); err != nil {
		return err
	}
	vp, err := v.resolve(h)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.cwd = vp
	v.mu.Unlock()
	return nil
}
