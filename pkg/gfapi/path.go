package gfapi

import (
	"github.com/marmos91/gfapi/pkg/native"
	"golang.org/x/sys/unix"
)

// Path operations. Each one marshals its path arguments, failing with
// ErrCodeNul before any native call, then issues exactly one native call.

// pathCall marshals path and issues one native call with it.
func (c *Client) pathCall(op, path string, fn func(vol native.Volume, cpath native.CString) (int, error)) (int, error) {
	cpath, err := marshal(op, path)
	if err != nil {
		return 0, err
	}
	return c.invoke(op, path, func(vol native.Volume) (int, error) {
		return fn(vol, cpath)
	})
}

// pathCall2 marshals both endpoints before issuing the call.
func (c *Client) pathCall2(op, oldpath, newpath string, fn func(vol native.Volume, a, b native.CString) (int, error)) error {
	a, b, err := marshal2(op, oldpath, newpath)
	if err != nil {
		return err
	}
	_, err = c.invoke(op, oldpath+" -> "+newpath, func(vol native.Volume) (int, error) {
		return fn(vol, a, b)
	})
	return err
}

// Truncate sets the size of the file at path.
func (c *Client) Truncate(path string, size int64) error {
	_, err := c.pathCall("glfs_truncate", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Truncate(p, size)
	})
	return err
}

// Stat returns metadata for path, following a terminal symlink.
func (c *Client) Stat(path string) (unix.Stat_t, error) {
	var st unix.Stat_t
	_, err := c.pathCall("glfs_stat", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Stat(p, &st)
	})
	return st, err
}

// Lstat is Stat without following a terminal symlink.
func (c *Client) Lstat(path string) (unix.Stat_t, error) {
	var st unix.Stat_t
	_, err := c.pathCall("glfs_lstat", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Lstat(p, &st)
	})
	return st, err
}

// Statvfs returns file system statistics for the volume holding path.
func (c *Client) Statvfs(path string) (native.Statvfs, error) {
	var st native.Statvfs
	_, err := c.pathCall("glfs_statvfs", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Statvfs(p, &st)
	})
	return st, err
}

// Access checks the permission bits in mode (unix.R_OK, W_OK, X_OK, F_OK).
// Denied and missing paths both fail with an operation error.
func (c *Client) Access(path string, mode int) error {
	_, err := c.pathCall("glfs_access", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Access(p, mode)
	})
	return err
}

// Chmod changes the permission bits of path.
func (c *Client) Chmod(path string, mode uint32) error {
	_, err := c.pathCall("glfs_chmod", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Chmod(p, mode)
	})
	return err
}

// Chown changes the owner of path.
func (c *Client) Chown(path string, uid, gid uint32) error {
	_, err := c.pathCall("glfs_chown", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Chown(p, uid, gid)
	})
	return err
}

// Symlink creates newpath as a symbolic link to oldpath.
func (c *Client) Symlink(oldpath, newpath string) error {
	return c.pathCall2("glfs_symlink", oldpath, newpath, func(vol native.Volume, a, b native.CString) (int, error) {
		return vol.Symlink(a, b)
	})
}

// Link creates newpath as a hard link to oldpath.
func (c *Client) Link(oldpath, newpath string) error {
	return c.pathCall2("glfs_link", oldpath, newpath, func(vol native.Volume, a, b native.CString) (int, error) {
		return vol.Link(a, b)
	})
}

// Rename moves oldpath to newpath, replacing newpath if it exists.
func (c *Client) Rename(oldpath, newpath string) error {
	return c.pathCall2("glfs_rename", oldpath, newpath, func(vol native.Volume, a, b native.CString) (int, error) {
		return vol.Rename(a, b)
	})
}

// Unlink removes a non-directory entry.
func (c *Client) Unlink(path string) error {
	_, err := c.pathCall("glfs_unlink", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Unlink(p)
	})
	return err
}

// Rmdir removes an empty directory.
func (c *Client) Rmdir(path string) error {
	_, err := c.pathCall("glfs_rmdir", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Rmdir(p)
	})
	return err
}

// Mkdir creates a directory.
func (c *Client) Mkdir(path string, mode uint32) error {
	_, err := c.pathCall("glfs_mkdir", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Mkdir(p, mode)
	})
	return err
}

// Mknod creates a special or regular file. mode carries the file type bits.
func (c *Client) Mknod(path string, mode uint32, dev uint64) error {
	_, err := c.pathCall("glfs_mknod", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Mknod(p, mode, dev)
	})
	return err
}

// readlinkStart is the first buffer size tried by Readlink.
const readlinkStart = 256

// Readlink returns the complete target of the symbolic link at path.
//
// The native call neither terminates nor reports truncation, so a result
// that fills the buffer is retried with a larger one.
func (c *Client) Readlink(path string) (string, error) {
	cpath, err := marshal("glfs_readlink", path)
	if err != nil {
		return "", err
	}

	for size := readlinkStart; ; size *= 2 {
		buf := make([]byte, size)
		n, err := c.invoke("glfs_readlink", path, func(vol native.Volume) (int, error) {
			return vol.Readlink(cpath, buf)
		})
		if err != nil {
			return "", err
		}
		if n < size {
			return string(buf[:n]), nil
		}
		if size >= unix.PathMax*16 {
			return "", &GlusterError{
				Code:    ErrCodeOperation,
				Op:      "glfs_readlink",
				Path:    path,
				Message: unix.ENAMETOOLONG.Error(),
				Errno:   unix.ENAMETOOLONG,
			}
		}
	}
}
