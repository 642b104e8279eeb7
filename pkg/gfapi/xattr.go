package gfapi

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/marmos91/gfapi/pkg/native"
	"golang.org/x/sys/unix"
)

// ============================================================================
// Extended Attributes
// ============================================================================

// Get and list calls size their buffer with a probe: a call with an empty
// buffer returns the size, then a second call fetches into a buffer of
// exactly that size. If the value grew in between, the fetch fails with
// ERANGE and the pair is repeated up to xattrAttempts times.

const xattrAttempts = 4

// sized runs the probe/fetch pair. call issues one native call with buf.
func sized(call func(buf []byte) (int, error)) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		size, err := call(nil)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return []byte{}, nil
		}

		buf := make([]byte, size)
		n, err := call(buf)
		if err == nil {
			return buf[:n], nil
		}
		if !errors.Is(err, unix.ERANGE) || attempt >= xattrAttempts {
			return nil, err
		}
	}
}

// decodeValue decodes an attribute value as text, replacing invalid UTF-8.
func decodeValue(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// decodeList splits a NUL-separated name list. Names must be valid UTF-8.
func decodeList(op, path string, b []byte) ([]string, error) {
	names := []string{}
	for _, raw := range bytes.Split(b, []byte{0}) {
		if len(raw) == 0 {
			continue
		}
		if !utf8.Valid(raw) {
			return nil, &GlusterError{
				Code:    ErrCodeInvalidUTF8,
				Op:      op,
				Path:    path,
				Message: "attribute name is not valid utf-8: " + decodeValue(raw),
			}
		}
		names = append(names, string(raw))
	}
	return names, nil
}

// getxattrPath implements Getxattr and Lgetxattr.
func (c *Client) getxattrPath(op, path, name string, get func(vol native.Volume, p, n native.CString, buf []byte) (int, error)) ([]byte, error) {
	cpath, cname, err := marshal2(op, path, name)
	if err != nil {
		return nil, err
	}
	return sized(func(buf []byte) (int, error) {
		return c.invoke(op, path, func(vol native.Volume) (int, error) {
			return get(vol, cpath, cname, buf)
		})
	})
}

func (c *Client) listxattrPath(op, path string, list func(vol native.Volume, p native.CString, buf []byte) (int, error)) ([]string, error) {
	cpath, err := marshal(op, path)
	if err != nil {
		return nil, err
	}
	b, err := sized(func(buf []byte) (int, error) {
		return c.invoke(op, path, func(vol native.Volume) (int, error) {
			return list(vol, cpath, buf)
		})
	})
	if err != nil {
		return nil, err
	}
	return decodeList(op, path, b)
}

// GetxattrBytes returns the raw value of attribute name on path.
func (c *Client) GetxattrBytes(path, name string) ([]byte, error) {
	return c.getxattrPath("glfs_getxattr", path, name, native.Volume.Getxattr)
}

// Getxattr returns the value of attribute name on path as text. Invalid
// UTF-8 is replaced with U+FFFD.
func (c *Client) Getxattr(path, name string) (string, error) {
	b, err := c.GetxattrBytes(path, name)
	if err != nil {
		return "", err
	}
	return decodeValue(b), nil
}

// LgetxattrBytes is GetxattrBytes without following a terminal symlink.
func (c *Client) LgetxattrBytes(path, name string) ([]byte, error) {
	return c.getxattrPath("glfs_lgetxattr", path, name, native.Volume.Lgetxattr)
}

// Lgetxattr is Getxattr without following a terminal symlink.
func (c *Client) Lgetxattr(path, name string) (string, error) {
	b, err := c.LgetxattrBytes(path, name)
	if err != nil {
		return "", err
	}
	return decodeValue(b), nil
}

// Listxattr returns the attribute names set on path.
func (c *Client) Listxattr(path string) ([]string, error) {
	return c.listxattrPath("glfs_listxattr", path, native.Volume.Listxattr)
}

// Llistxattr is Listxattr without following a terminal symlink.
func (c *Client) Llistxattr(path string) ([]string, error) {
	return c.listxattrPath("glfs_llistxattr", path, native.Volume.Llistxattr)
}

// Setxattr sets attribute name on path. flags is 0, native.XATTR_CREATE or
// native.XATTR_REPLACE. The value is passed through as bytes.
func (c *Client) Setxattr(path, name string, value []byte, flags int) error {
	cpath, cname, err := marshal2("glfs_setxattr", path, name)
	if err != nil {
		return err
	}
	_, err = c.invoke("glfs_setxattr", path, func(vol native.Volume) (int, error) {
		return vol.Setxattr(cpath, cname, value, flags)
	})
	return err
}

// Lsetxattr is Setxattr without following a terminal symlink.
func (c *Client) Lsetxattr(path, name string, value []byte, flags int) error {
	cpath, cname, err := marshal2("glfs_lsetxattr", path, name)
	if err != nil {
		return err
	}
	_, err = c.invoke("glfs_lsetxattr", path, func(vol native.Volume) (int, error) {
		return vol.Lsetxattr(cpath, cname, value, flags)
	})
	return err
}

// Removexattr removes attribute name from path.
func (c *Client) Removexattr(path, name string) error {
	cpath, cname, err := marshal2("glfs_removexattr", path, name)
	if err != nil {
		return err
	}
	_, err = c.invoke("glfs_removexattr", path, func(vol native.Volume) (int, error) {
		return vol.Removexattr(cpath, cname)
	})
	return err
}

// Lremovexattr is Removexattr without following a terminal symlink.
func (c *Client) Lremovexattr(path, name string) error {
	cpath, cname, err := marshal2("glfs_lremovexattr", path, name)
	if err != nil {
		return err
	}
	_, err = c.invoke("glfs_lremovexattr", path, func(vol native.Volume) (int, error) {
		return vol.Lremovexattr(cpath, cname)
	})
	return err
}

// GetxattrBytes returns the raw value of attribute name on the open file.
func (f *File) GetxattrBytes(name string) ([]byte, error) {
	cname, err := marshal("glfs_fgetxattr", name)
	if err != nil {
		return nil, err
	}
	return sized(func(buf []byte) (int, error) {
		return f.st.call("glfs_fgetxattr", func(fd native.FD) (int, error) {
			return fd.Fgetxattr(cname, buf)
		})
	})
}

// Getxattr returns the value of attribute name on the open file as text.
func (f *File) Getxattr(name string) (string, error) {
	b, err := f.GetxattrBytes(name)
	if err != nil {
		return "", err
	}
	return decodeValue(b), nil
}

// Listxattr returns the attribute names set on the open file.
func (f *File) Listxattr() ([]string, error) {
	b, err := sized(func(buf []byte) (int, error) {
		return f.st.call("glfs_flistxattr", func(fd native.FD) (int, error) {
			return fd.Flistxattr(buf)
		})
	})
	if err != nil {
		return nil, err
	}
	return decodeList("glfs_flistxattr", f.st.name, b)
}

// Setxattr sets attribute name on the open file.
func (f *File) Setxattr(name string, value []byte, flags int) error {
	cname, err := marshal("glfs_fsetxattr", name)
	if err != nil {
		return err
	}
	_, err = f.st.call("glfs_fsetxattr", func(fd native.FD) (int, error) {
		return fd.Fsetxattr(cname, value, flags)
	})
	return err
}

// Removexattr removes attribute name from the open file.
func (f *File) Removexattr(name string) error {
	cname, err := marshal("glfs_fremovexattr", name)
	if err != nil {
		return err
	}
	_, err = f.st.call("glfs_fremovexattr", func(fd native.FD) (int, error) {
		return fd.Fremovexattr(cname)
	})
	return err
}
