package simvol

import (
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/native"
)

// Stat_t field widths differ between architectures (Nlink and Blksize in
// particular), so the fill goes through these setters instead of per-arch
// files.

func setUint[T ~uint16 | ~uint32 | ~uint64](p *T, v uint64) { *p = T(v) }

func setInt[T ~int32 | ~int64](p *T, v int64) { *p = T(v) }

func roundUp(n, to int64) int64 {
	return (n + to - 1) / to * to
}

// allocated is the number of bytes the inode occupies on the volume.
func (in *Inode) allocated() int64 {
	switch {
	case in.isRegular():
		return roundUp(max(in.Size, in.Alloc), blockSize)
	case in.isDir():
		return blockSize
	default:
		return 0
	}
}

// reportedSize is st_size: the byte count of files, the target length of
// symlinks, one block for directories.
func (in *Inode) reportedSize() int64 {
	switch {
	case in.isDir():
		return blockSize
	case in.isSymlink():
		return int64(len(in.Target))
	default:
		return in.Size
	}
}

func (vd *volumeData) fill(in *Inode, st *unix.Stat_t) {
	*st = unix.Stat_t{}
	setUint(&st.Dev, vd.fsid())
	st.Ino = in.Ino
	setUint(&st.Nlink, uint64(in.Nlink))
	st.Mode = in.Mode
	st.Uid = in.Uid
	st.Gid = in.Gid
	setUint(&st.Rdev, in.Rdev)
	st.Size = in.reportedSize()
	setInt(&st.Blksize, blockSize)
	st.Blocks = in.allocated() / 512
	st.Atim = unix.NsecToTimespec(in.Atime.UnixNano())
	st.Mtim = unix.NsecToTimespec(in.Mtime.UnixNano())
	st.Ctim = unix.NsecToTimespec(in.Ctime.UnixNano())
}

// usedBytes sums the allocation of every inode.
func (vd *volumeData) usedBytes() int64 {
	var used int64
	for _, in := range vd.inodes {
		used += in.allocated()
	}
	return used
}

func (vd *volumeData) statvfs(st *native.Statvfs) {
	blocks := uint64(vd.cfg.Capacity / blockSize)
	used := uint64(vd.usedBytes() / blockSize)
	free := blocks - min(used, blocks)

	files := vd.cfg.MaxInodes
	ffree := files - min(uint64(len(vd.inodes)), files)

	*st = native.Statvfs{
		Bsize:   blockSize,
		Frsize:  blockSize,
		Blocks:  blocks,
		Bfree:   free,
		Bavail:  free,
		Files:   files,
		Ffree:   ffree,
		Favail:  ffree,
		Fsid:    vd.fsid(),
		Namemax: nameMax,
	}
}

// reserve fails with ENOSPC when growing the volume by n bytes would exceed
// its capacity.
func (vd *volumeData) reserve(n int64) error {
	if n > 0 && vd.usedBytes()+n > vd.cfg.Capacity {
		return unix.ENOSPC
	}
	return nil
}
