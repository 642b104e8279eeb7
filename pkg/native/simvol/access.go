package simvol

import "golang.org/x/sys/unix"

// Permission bits as passed to access(2).
const (
	mayRead  = unix.R_OK
	mayWrite = unix.W_OK
	mayExec  = unix.X_OK
)

// permits checks want (a mask of may* bits) against the owner, group or
// other class of in that applies to the volume's credentials. Root passes.
func (vd *volumeData) permits(in *Inode, want uint32) bool {
	uid, gid := vd.cfg.Uid, vd.cfg.Gid
	if uid == 0 {
		return true
	}

	var shift uint
	switch {
	case in.Uid == uid:
		shift = 6
	case in.Gid == gid:
		shift = 3
	}
	return (in.Mode>>shift)&want == want
}

func (vd *volumeData) check(in *Inode, want uint32) error {
	if !vd.permits(in, want) {
		return unix.EACCES
	}
	return nil
}

// owns reports whether the caller may change the inode's attributes.
func (vd *volumeData) owns(in *Inode) bool {
	return vd.cfg.Uid == 0 || in.Uid == vd.cfg.Uid
}
