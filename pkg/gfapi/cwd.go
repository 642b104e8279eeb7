package gfapi

import (
	"errors"

	"github.com/marmos91/gfapi/pkg/native"
	"golang.org/x/sys/unix"
)

// The working directory belongs to the client's native context, not to the
// process. Relative paths given to any Client method resolve against it.

const (
	getcwdStart = 1024
	getcwdMax   = 64 * 1024
)

// Getcwd returns the client's working directory.
func (c *Client) Getcwd() (string, error) {
	for size := getcwdStart; ; size *= 2 {
		buf := make([]byte, size)
		_, err := c.invoke("glfs_getcwd", "", func(vol native.Volume) (int, error) {
			return vol.Getcwd(buf)
		})
		if errors.Is(err, unix.ERANGE) && size < getcwdMax {
			continue
		}
		if err != nil {
			return "", err
		}
		return goString("glfs_getcwd", "", buf)
	}
}

// Chdir changes the client's working directory.
func (c *Client) Chdir(path string) error {
	_, err := c.pathCall("glfs_chdir", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Chdir(p)
	})
	return err
}

// Realpath resolves path to an absolute path with no symlinks, "." or ".."
// components. The final component must exist.
func (c *Client) Realpath(path string) (string, error) {
	buf := make([]byte, unix.PathMax)
	_, err := c.pathCall("glfs_realpath", path, func(vol native.Volume, p native.CString) (int, error) {
		return vol.Realpath(p, buf)
	})
	if err != nil {
		return "", err
	}
	return goString("glfs_realpath", path, buf)
}

// goString decodes a NUL-terminated native output buffer.
func goString(op, path string, buf []byte) (string, error) {
	s, err := native.GoString(buf)
	if err != nil {
		return "", &GlusterError{Code: ErrCodeStringConversion, Op: op, Path: path, Err: err}
	}
	return s, nil
}
