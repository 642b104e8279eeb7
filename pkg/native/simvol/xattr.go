package simvol

import (
	"bytes"
	"slices"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/native"
)

// Virtual attributes answered from the inode itself. They are never listed
// and cannot be set or removed.
const (
	gfidXattr       = "glusterfs.gfid"
	gfidStringXattr = "glusterfs.gfid.string"
)

const (
	xattrNameMax  = 255
	xattrValueMax = 64 * 1024
)

var xattrNamespaces = []string{"user.", "trusted.", "security.", "system.", "glusterfs."}

func validXattrName(name string) error {
	switch {
	case name == "" || len(name) > xattrNameMax:
		return unix.ERANGE
	case !slices.ContainsFunc(xattrNamespaces, func(ns string) bool {
		return strings.HasPrefix(name, ns) && len(name) > len(ns)
	}):
		return unix.EOPNOTSUPP
	}
	return nil
}

// virtualXattr returns the value of a virtual attribute.
func virtualXattr(in *Inode, name string) ([]byte, bool) {
	switch name {
	case gfidXattr:
		b, _ := in.GFID.MarshalBinary()
		return b, true
	case gfidStringXattr:
		return []byte(in.GFID.String()), true
	}
	return nil, false
}

// sizedCopy implements the size-probe convention: an empty buf reports the
// size, a short one fails with ERANGE.
func sizedCopy(buf, value []byte) (int, error) {
	if len(buf) == 0 {
		return len(value), nil
	}
	if len(buf) < len(value) {
		return 0, unix.ERANGE
	}
	return copy(buf, value), nil
}

func (vd *volumeData) getxattr(in *Inode, name string, buf []byte) (int, error) {
	if err := validXattrName(name); err != nil {
		return 0, err
	}
	if v, ok := virtualXattr(in, name); ok {
		return sizedCopy(buf, v)
	}
	if strings.HasPrefix(name, "trusted.") && vd.cfg.Uid != 0 {
		return 0, unix.ENODATA
	}

	v, ok := in.Xattrs[name]
	if !ok {
		return 0, unix.ENODATA
	}
	return sizedCopy(buf, v)
}

func (vd *volumeData) listxattr(in *Inode, buf []byte) (int, error) {
	var list bytes.Buffer
	for _, name := range in.xattrNames() {
		if strings.HasPrefix(name, "trusted.") && vd.cfg.Uid != 0 {
			continue
		}
		list.WriteString(name)
		list.WriteByte(0)
	}
	return sizedCopy(buf, list.Bytes())
}

// mayModifyXattr applies the per-namespace rules for set and remove. User
// attributes only live on regular files and directories.
func (vd *volumeData) mayModifyXattr(in *Inode, name string) error {
	switch {
	case strings.HasPrefix(name, "user."):
		if !in.isRegular() && !in.isDir() {
			return unix.EPERM
		}
		return vd.check(in, mayWrite)
	case strings.HasPrefix(name, "trusted."), strings.HasPrefix(name, "glusterfs."):
		if vd.cfg.Uid != 0 {
			return unix.EPERM
		}
	default:
		if !vd.owns(in) {
			return unix.EPERM
		}
	}
	return nil
}

func (vd *volumeData) setxattr(in *Inode, name string, value []byte, flags int) error {
	if err := validXattrName(name); err != nil {
		return err
	}
	if flags&^(native.XATTR_CREATE|native.XATTR_REPLACE) != 0 {
		return unix.EINVAL
	}
	if len(value) > xattrValueMax {
		return unix.E2BIG
	}
	if _, ok := virtualXattr(in, name); ok {
		return unix.EPERM
	}
	if err := vd.mayModifyXattr(in, name); err != nil {
		return err
	}

	_, exists := in.Xattrs[name]
	switch {
	case flags&native.XATTR_CREATE != 0 && exists:
		return unix.EEXIST
	case flags&native.XATTR_REPLACE != 0 && !exists:
		return unix.ENODATA
	}

	if in.Xattrs == nil {
		in.Xattrs = make(map[string][]byte)
	}
	in.Xattrs[name] = bytes.Clone(value)
	if in.Xattrs[name] == nil {
		in.Xattrs[name] = []byte{}
	}
	in.changed()
	return vd.persist(in)
}

func (vd *volumeData) removexattr(in *Inode, name string) error {
	if err := validXattrName(name); err != nil {
		return err
	}
	if _, ok := virtualXattr(in, name); ok {
		return unix.EPERM
	}
	if err := vd.mayModifyXattr(in, name); err != nil {
		return err
	}
	if _, ok := in.Xattrs[name]; !ok {
		return unix.ENODATA
	}

	delete(in.Xattrs, name)
	in.changed()
	return vd.persist(in)
}
