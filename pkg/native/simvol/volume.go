package simvol

import (
	"slices"

	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/internal/logger"
	"github.com/marmos91/gfapi/pkg/native"
)

// volume is one context on a simulated volume. It carries its own working
// directory; the inode table is shared with every other context of the same
// volume.
type volume struct {
	drv  *Driver
	name string

	servers  []string
	logFile  string
	logLevel int

	data   *volumeData
	finied bool

	// cwd is guarded by data.mu.
	cwd uint64
}

// enter locks the volume data for one call.
func (v *volume) enter() (*volumeData, error) {
	vd := v.data
	if vd == nil {
		return nil, unix.ENOTCONN
	}
	vd.mu.Lock()
	if v.finied {
		vd.mu.Unlock()
		return nil, unix.ENOTCONN
	}
	return vd, nil
}

// run executes fn under the volume lock and converts its error into the
// native return convention.
func (v *volume) run(fn func(vd *volumeData) (int, error)) (int, error) {
	vd, err := v.enter()
	if err != nil {
		return native.Fail(native.ErrnoOf(err))
	}
	defer vd.mu.Unlock()

	n, err := fn(vd)
	if err != nil {
		return native.Fail(native.ErrnoOf(err))
	}
	return n, nil
}

// do is run for calls that only report success.
func (v *volume) do(fn func(vd *volumeData) error) (int, error) {
	return v.run(func(vd *volumeData) (int, error) {
		return 0, fn(vd)
	})
}

// openFD is run for calls that return a descriptor.
func (v *volume) openFD(fn func(vd *volumeData) (*fd, error)) (native.FD, error) {
	vd, err := v.enter()
	if err != nil {
		return nil, native.ErrnoOf(err)
	}
	defer vd.mu.Unlock()

	f, err := fn(vd)
	if err != nil {
		return nil, native.ErrnoOf(err)
	}
	return f, nil
}

// ============================================================================
// Lifecycle
// ============================================================================

func (v *volume) SetVolfileServer(transport, host native.CString, port int) (int, error) {
	switch transport.String() {
	case "tcp", "rdma", "unix":
	default:
		return native.Fail(unix.EINVAL)
	}
	if host.String() == "" || port < 0 || port > 65535 {
		return native.Fail(unix.EINVAL)
	}
	v.servers = append(v.servers, host.String())
	return 0, nil
}

func (v *volume) SetLogging(logfile native.CString, loglevel int) (int, error) {
	v.logFile = logfile.String()
	v.logLevel = loglevel
	return 0, nil
}

func (v *volume) Init() (int, error) {
	if v.data != nil {
		return 0, nil
	}
	if len(v.servers) == 0 {
		return native.Fail(unix.EINVAL)
	}

	if hosts := v.drv.cfg.Hosts; len(hosts) > 0 {
		reachable := slices.ContainsFunc(v.servers, func(s string) bool {
			return slices.Contains(hosts, s)
		})
		if !reachable {
			logger.Debug("simvol: no volfile server of %s answers (tried %v)", v.name, v.servers)
			return native.Fail(unix.ENOTCONN)
		}
	}

	vd, err := v.drv.open(v.name)
	if err != nil {
		logger.Error("simvol: %v", err)
		return native.Fail(unix.EIO)
	}
	v.data = vd

	logger.Debug("simvol: context on %s initialized (log file %q, level %d)", v.name, v.logFile, v.logLevel)
	return 0, nil
}

func (v *volume) Fini() (int, error) {
	if vd := v.data; vd != nil {
		vd.mu.Lock()
		defer vd.mu.Unlock()
	}
	v.finied = true
	return 0, nil
}

// ============================================================================
// Open
// ============================================================================

func accessMode(flags int) (read, write bool) {
	switch flags & unix.O_ACCMODE {
	case unix.O_WRONLY:
		return false, true
	case unix.O_RDWR:
		return true, true
	default:
		return true, false
	}
}

// openInode checks flags against an existing inode and opens it.
func (v *volume) openInode(vd *volumeData, in *Inode, flags int) (*fd, error) {
	read, write := accessMode(flags)

	switch {
	case in.isSymlink():
		return nil, unix.ELOOP
	case flags&unix.O_DIRECTORY != 0 && !in.isDir():
		return nil, unix.ENOTDIR
	case in.isDir() && write:
		return nil, unix.EISDIR
	}

	var want uint32
	if read {
		want |= mayRead
	}
	if write {
		want |= mayWrite
	}
	if err := vd.check(in, want); err != nil {
		return nil, err
	}

	if flags&unix.O_TRUNC != 0 && write && in.isRegular() {
		if err := vd.truncate(in, 0); err != nil {
			return nil, err
		}
	}
	return vd.newFD(v, in, flags), nil
}

// Open opens an existing entry. O_CREAT is ignored; creation goes through
// Creat.
func (v *volume) Open(path native.CString, flags int) (native.FD, error) {
	return v.openFD(func(vd *volumeData) (*fd, error) {
		in, err := vd.lookup(v.cwd, path.String(), flags&unix.O_NOFOLLOW == 0)
		if err != nil {
			return nil, err
		}
		return v.openInode(vd, in, flags)
	})
}

func (v *volume) Creat(path native.CString, flags int, mode uint32) (native.FD, error) {
	return v.openFD(func(vd *volumeData) (*fd, error) {
		p := path.String()
		parent, name, err := vd.walkParent(v.cwd, p)
		if err != nil {
			return nil, err
		}
		if name == "" || name == "." || name == ".." {
			return nil, unix.EISDIR
		}

		if _, exists := parent.lookUpChild(name); exists {
			if flags&unix.O_EXCL != 0 {
				return nil, unix.EEXIST
			}
			in, err := vd.lookup(v.cwd, p, flags&unix.O_NOFOLLOW == 0)
			if err != nil {
				return nil, err
			}
			return v.openInode(vd, in, flags)
		}

		in, err := vd.create(parent, name, unix.S_IFREG|mode&0o7777)
		if err != nil {
			return nil, err
		}
		// The creator may write a file whose mode denies it.
		return vd.newFD(v, in, flags), nil
	})
}

func (v *volume) Opendir(path native.CString) (native.FD, error) {
	return v.openFD(func(vd *volumeData) (*fd, error) {
		in, err := vd.lookup(v.cwd, path.String(), true)
		if err != nil {
			return nil, err
		}
		if !in.isDir() {
			return nil, unix.ENOTDIR
		}
		if err := vd.check(in, mayRead); err != nil {
			return nil, err
		}
		return vd.newFD(v, in, unix.O_RDONLY|unix.O_DIRECTORY), nil
	})
}

// ============================================================================
// Attributes
// ============================================================================

func (v *volume) Truncate(path native.CString, length int64) (int, error) {
	return v.do(func(vd *volumeData) error {
		in, err := vd.lookup(v.cwd, path.String(), true)
		if err != nil {
			return err
		}
		switch {
		case in.isDir():
			return unix.EISDIR
		case !in.isRegular() || length < 0:
			return unix.EINVAL
		}
		if err := vd.check(in, mayWrite); err != nil {
			return err
		}
		return vd.truncate(in, length)
	})
}

func (v *volume) stat(path native.CString, st *unix.Stat_t, follow bool) (int, error) {
	return v.do(func(vd *volumeData) error {
		in, err := vd.lookup(v.cwd, path.String(), follow)
		if err != nil {
			return err
		}
		vd.fill(in, st)
		return nil
	})
}

func (v *volume) Stat(path native.CString, st *unix.Stat_t) (int, error) {
	return v.stat(path, st, true)
}

func (v *volume) Lstat(path native.CString, st *unix.Stat_t) (int, error) {
	return v.stat(path, st, false)
}

func (v *volume) Statvfs(path native.CString, st *native.Statvfs) (int, error) {
	return v.do(func(vd *volumeData) error {
		if _, err := vd.lookup(v.cwd, path.String(), true); err != nil {
			return err
		}
		vd.statvfs(st)
		return nil
	})
}

func (v *volume) Access(path native.CString, mode int) (int, error) {
	return v.do(func(vd *volumeData) error {
		if mode&^(unix.R_OK|unix.W_OK|unix.X_OK) != 0 {
			return unix.EINVAL
		}
		in, err := vd.lookup(v.cwd, path.String(), true)
		if err != nil {
			return err
		}
		return vd.check(in, uint32(mode))
	})
}

func (v *volume) Chmod(path native.CString, mode uint32) (int, error) {
	return v.do(func(vd *volumeData) error {
		in, err := vd.lookup(v.cwd, path.String(), true)
		if err != nil {
			return err
		}
		if !vd.owns(in) {
			return unix.EPERM
		}
		in.Mode = in.fileType() | mode&0o7777
		in.changed()
		return vd.persist(in)
	})
}

// noChange is the (uid_t)-1 / (gid_t)-1 argument of chown.
const noChange = ^uint32(0)

func (v *volume) Chown(path native.CString, uid, gid uint32) (int, error) {
	return v.do(func(vd *volumeData) error {
		in, err := vd.lookup(v.cwd, path.String(), true)
		if err != nil {
			return err
		}

		if vd.cfg.Uid != 0 {
			// An owner may only move the file into its own group.
			if in.Uid != vd.cfg.Uid ||
				(uid != noChange && uid != in.Uid) ||
				(gid != noChange && gid != vd.cfg.Gid) {
				return unix.EPERM
			}
		}

		if uid != noChange {
			in.Uid = uid
		}
		if gid != noChange {
			in.Gid = gid
		}
		in.changed()
		return vd.persist(in)
	})
}

// ============================================================================
// Namespace
// ============================================================================

func (v *volume) Mkdir(path native.CString, mode uint32) (int, error) {
	return v.do(func(vd *volumeData) error {
		parent, name, err := vd.walkParent(v.cwd, path.String())
		if err != nil {
			return err
		}
		_, err = vd.create(parent, name, unix.S_IFDIR|mode&0o7777)
		return err
	})
}

func (v *volume) Mknod(path native.CString, mode uint32, dev uint64) (int, error) {
	return v.do(func(vd *volumeData) error {
		typ := mode & unix.S_IFMT
		switch typ {
		case 0:
			typ = unix.S_IFREG
		case unix.S_IFREG, unix.S_IFIFO, unix.S_IFSOCK:
		case unix.S_IFCHR, unix.S_IFBLK:
			if vd.cfg.Uid != 0 {
				return unix.EPERM
			}
		default:
			return unix.EINVAL
		}

		parent, name, err := vd.walkParent(v.cwd, path.String())
		if err != nil {
			return err
		}
		in, err := vd.create(parent, name, typ|mode&0o7777)
		if err != nil {
			return err
		}
		if typ == unix.S_IFCHR || typ == unix.S_IFBLK {
			in.Rdev = dev
			return vd.persist(in)
		}
		return nil
	})
}

func (v *volume) Symlink(oldpath, newpath native.CString) (int, error) {
	return v.do(func(vd *volumeData) error {
		target := oldpath.String()
		if target == "" {
			return unix.ENOENT
		}
		parent, name, err := vd.walkParent(v.cwd, newpath.String())
		if err != nil {
			return err
		}
		in, err := vd.create(parent, name, unix.S_IFLNK|0o777)
		if err != nil {
			return err
		}
		in.Target = target
		return vd.persist(in)
	})
}

func (v *volume) Readlink(path native.CString, buf []byte) (int, error) {
	return v.run(func(vd *volumeData) (int, error) {
		in, err := vd.lookup(v.cwd, path.String(), false)
		if err != nil {
			return 0, err
		}
		if !in.isSymlink() {
			return 0, unix.EINVAL
		}
		return copy(buf, in.Target), nil
	})
}

func (v *volume) Unlink(path native.CString) (int, error) {
	return v.do(func(vd *volumeData) error {
		parent, name, err := vd.walkParent(v.cwd, path.String())
		if err != nil {
			return err
		}
		if name == "" || name == "." || name == ".." {
			return unix.EISDIR
		}
		ino, ok := parent.lookUpChild(name)
		if !ok {
			return unix.ENOENT
		}
		in := vd.inodes[ino]
		if in.isDir() {
			return unix.EISDIR
		}
		if err := vd.check(parent, mayWrite|mayExec); err != nil {
			return err
		}

		parent.removeChild(name)
		if err := vd.persist(parent); err != nil {
			return err
		}
		return vd.release(in)
	})
}

func (v *volume) Rmdir(path native.CString) (int, error) {
	return v.do(func(vd *volumeData) error {
		parent, name, err := vd.walkParent(v.cwd, path.String())
		if err != nil {
			return err
		}
		switch name {
		case "":
			return unix.EBUSY
		case ".":
			return unix.EINVAL
		case "..":
			return unix.ENOTEMPTY
		}
		ino, ok := parent.lookUpChild(name)
		if !ok {
			return unix.ENOENT
		}
		in := vd.inodes[ino]
		switch {
		case !in.isDir():
			return unix.ENOTDIR
		case in.children() > 0:
			return unix.ENOTEMPTY
		}
		if err := vd.check(parent, mayWrite|mayExec); err != nil {
			return err
		}

		parent.removeChild(name)
		parent.Nlink--
		if err := vd.persist(parent); err != nil {
			return err
		}
		return vd.release(in)
	})
}

func (v *volume) Rename(oldpath, newpath native.CString) (int, error) {
	return v.do(func(vd *volumeData) error {
		return vd.rename(v.cwd, oldpath.String(), newpath.String())
	})
}

func (v *volume) Link(oldpath, newpath native.CString) (int, error) {
	return v.do(func(vd *volumeData) error {
		src, err := vd.lookup(v.cwd, oldpath.String(), false)
		if err != nil {
			return err
		}
		if src.isDir() {
			return unix.EPERM
		}
		parent, name, err := vd.walkParent(v.cwd, newpath.String())
		if err != nil {
			return err
		}
		if err := vd.checkNewEntry(parent, name); err != nil {
			return err
		}

		src.Nlink++
		src.changed()
		parent.addChild(name, src.Ino, src.direntType())
		return vd.persist(src, parent)
	})
}

// ============================================================================
// Extended Attributes
// ============================================================================

func (v *volume) getxattr(path, name native.CString, value []byte, follow bool) (int, error) {
	return v.run(func(vd *volumeData) (int, error) {
		in, err := vd.lookup(v.cwd, path.String(), follow)
		if err != nil {
			return 0, err
		}
		return vd.getxattr(in, name.String(), value)
	})
}

func (v *volume) Getxattr(path, name native.CString, value []byte) (int, error) {
	return v.getxattr(path, name, value, true)
}

func (v *volume) Lgetxattr(path, name native.CString, value []byte) (int, error) {
	return v.getxattr(path, name, value, false)
}

func (v *volume) listxattr(path native.CString, list []byte, follow bool) (int, error) {
	return v.run(func(vd *volumeData) (int, error) {
		in, err := vd.lookup(v.cwd, path.String(), follow)
		if err != nil {
			return 0, err
		}
		return vd.listxattr(in, list)
	})
}

func (v *volume) Listxattr(path native.CString, list []byte) (int, error) {
	return v.listxattr(path, list, true)
}

func (v *volume) Llistxattr(path native.CString, list []byte) (int, error) {
	return v.listxattr(path, list, false)
}

func (v *volume) setxattr(path, name native.CString, value []byte, flags int, follow bool) (int, error) {
	return v.do(func(vd *volumeData) error {
		in, err := vd.lookup(v.cwd, path.String(), follow)
		if err != nil {
			return err
		}
		return vd.setxattr(in, name.String(), value, flags)
	})
}

func (v *volume) Setxattr(path, name native.CString, value []byte, flags int) (int, error) {
	return v.setxattr(path, name, value, flags, true)
}

func (v *volume) Lsetxattr(path, name native.CString, value []byte, flags int) (int, error) {
	return v.setxattr(path, name, value, flags, false)
}

func (v *volume) removexattr(path, name native.CString, follow bool) (int, error) {
	return v.do(func(vd *volumeData) error {
		in, err := vd.lookup(v.cwd, path.String(), follow)
		if err != nil {
			return err
		}
		return vd.removexattr(in, name.String())
	})
}

func (v *volume) Removexattr(path, name native.CString) (int, error) {
	return v.removexattr(path, name, true)
}

func (v *volume) Lremovexattr(path, name native.CString) (int, error) {
	return v.removexattr(path, name, false)
}

// ============================================================================
// Working Directory
// ============================================================================

func (v *volume) Getcwd(buf []byte) (int, error) {
	return v.do(func(vd *volumeData) error {
		dir, ok := vd.inodes[v.cwd]
		if !ok || dir.Nlink == 0 {
			return unix.ENOENT
		}
		p, err := vd.pathOf(dir)
		if err != nil {
			return err
		}
		if !native.PutString(buf, p) {
			return unix.ERANGE
		}
		return nil
	})
}

func (v *volume) Realpath(path native.CString, buf []byte) (int, error) {
	return v.do(func(vd *volumeData) error {
		r, err := vd.walk(v.cwd, path.String(), true)
		if err != nil {
			return err
		}
		if !native.PutString(buf, r.String()) {
			return unix.ENAMETOOLONG
		}
		return nil
	})
}

func (v *volume) Chdir(path native.CString) (int, error) {
	return v.do(func(vd *volumeData) error {
		in, err := vd.lookup(v.cwd, path.String(), true)
		if err != nil {
			return err
		}
		return v.chdir(vd, in)
	})
}

func (v *volume) chdir(vd *volumeData, in *Inode) error {
	if !in.isDir() {
		return unix.ENOTDIR
	}
	if err := vd.check(in, mayExec); err != nil {
		return err
	}
	v.cwd = in.Ino
	return nil
}
