package simvol

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/internal/logger"
)

// Namespace and content mutations shared by the volume and descriptor
// calls. Every function here runs with volumeData.mu held.

// checkNewEntry verifies that name can be added to parent.
func (vd *volumeData) checkNewEntry(parent *Inode, name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return unix.EEXIST
	case parent.Nlink == 0:
		return unix.ENOENT
	}
	if _, exists := parent.lookUpChild(name); exists {
		return unix.EEXIST
	}
	return vd.check(parent, mayWrite|mayExec)
}

// create allocates an inode and links it into parent as name.
func (vd *volumeData) create(parent *Inode, name string, mode uint32) (*Inode, error) {
	if err := vd.checkNewEntry(parent, name); err != nil {
		return nil, err
	}
	if uint64(len(vd.inodes)) >= vd.cfg.MaxInodes {
		return nil, unix.ENOSPC
	}

	in := vd.alloc(mode)
	if in.isDir() {
		in.Nlink = 2
		in.Parent = parent.Ino
		parent.Nlink++
	}
	parent.addChild(name, in.Ino, in.direntType())

	if err := vd.persist(in, parent); err != nil {
		return nil, err
	}
	return in, nil
}

func (vd *volumeData) rename(cwd uint64, oldpath, newpath string) error {
	op, on, err := vd.walkParent(cwd, oldpath)
	if err != nil {
		return err
	}
	np, nn, err := vd.walkParent(cwd, newpath)
	if err != nil {
		return err
	}
	for _, name := range []string{on, nn} {
		switch name {
		case "":
			return unix.EBUSY
		case ".", "..":
			return unix.EINVAL
		}
	}

	srcIno, ok := op.lookUpChild(on)
	if !ok {
		return unix.ENOENT
	}
	src := vd.inodes[srcIno]

	dstIno, replacing := np.lookUpChild(nn)
	if replacing && dstIno == srcIno {
		return nil
	}
	if src.isDir() && vd.isAncestor(src, np) {
		return unix.EINVAL
	}
	if err := vd.check(op, mayWrite|mayExec); err != nil {
		return err
	}
	if err := vd.check(np, mayWrite|mayExec); err != nil {
		return err
	}

	var dst *Inode
	if replacing {
		dst = vd.inodes[dstIno]
		switch {
		case src.isDir() && !dst.isDir():
			return unix.ENOTDIR
		case !src.isDir() && dst.isDir():
			return unix.EISDIR
		case dst.isDir() && dst.children() > 0:
			return unix.ENOTEMPTY
		}
		np.removeChild(nn)
		if dst.isDir() {
			np.Nlink--
		}
	}

	op.removeChild(on)
	np.addChild(nn, src.Ino, src.direntType())
	if src.isDir() && op.Ino != np.Ino {
		op.Nlink--
		np.Nlink++
		src.Parent = np.Ino
	}
	src.changed()

	if err := vd.persist(op, np, src); err != nil {
		return err
	}
	if dst != nil {
		return vd.release(dst)
	}
	return nil
}

// truncate sets the size of a regular file, zero-extending it.
func (vd *volumeData) truncate(in *Inode, size int64) error {
	if size > in.Size {
		if err := vd.reserve(size - max(in.Size, in.Alloc)); err != nil {
			return err
		}
	}
	if err := vd.cfg.Content.Truncate(context.Background(), in.contentID(), size); err != nil {
		logger.Error("simvol: truncate content of inode %d: %v", in.Ino, err)
		return unix.EIO
	}

	in.Size = size
	in.Alloc = min(in.Alloc, size)
	in.touch()
	return vd.persist(in)
}

// readAt fills p from offset off and returns the byte count, which is short
// only at end of file. Bytes the content store does not hold read as zero.
func (vd *volumeData) readAt(in *Inode, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, unix.EINVAL
	}
	if off >= in.Size || len(p) == 0 {
		return 0, nil
	}
	p = p[:min(int64(len(p)), in.Size-off)]

	n, err := vd.cfg.Content.ReadAt(context.Background(), in.contentID(), p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Error("simvol: read content of inode %d: %v", in.Ino, err)
		return 0, unix.EIO
	}
	clear(p[n:])
	return len(p), nil
}

// writeAt stores p at offset off, extending the file as needed.
func (vd *volumeData) writeAt(in *Inode, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, unix.EINVAL
	}
	if len(p) == 0 {
		return 0, nil
	}

	end := off + int64(len(p))
	if err := vd.reserve(end - max(in.Size, in.Alloc)); err != nil {
		return 0, err
	}
	if err := vd.cfg.Content.WriteAt(context.Background(), in.contentID(), p, off); err != nil {
		if errors.Is(err, ErrInvalidOffset) {
			return 0, unix.EINVAL
		}
		logger.Error("simvol: write content of inode %d: %v", in.Ino, err)
		return 0, unix.EIO
	}

	in.Size = max(in.Size, end)
	in.touch()
	if err := vd.persist(in); err != nil {
		return 0, err
	}
	return len(p), nil
}

const zeroChunk = 1 << 20

// zero writes n zero bytes at off.
func (vd *volumeData) zero(in *Inode, off, n int64) error {
	if z, ok := vd.cfg.Content.(RangeZeroer); ok {
		end := off + n
		if err := vd.reserve(end - max(in.Size, in.Alloc)); err != nil {
			return err
		}
		if err := z.ZeroRange(context.Background(), in.contentID(), off, n); err != nil {
			logger.Error("simvol: zero content of inode %d: %v", in.Ino, err)
			return unix.EIO
		}
		in.Size = max(in.Size, end)
		in.touch()
		return vd.persist(in)
	}

	buf := make([]byte, min(n, zeroChunk))
	for n > 0 {
		chunk := buf[:min(n, int64(len(buf)))]
		if _, err := vd.writeAt(in, chunk, off); err != nil {
			return err
		}
		off += int64(len(chunk))
		n -= int64(len(chunk))
	}
	return nil
}

// fallocate reserves [off, off+length). Without keepSize the file grows to
// cover the range.
func (vd *volumeData) fallocate(in *Inode, keepSize bool, off, length int64) error {
	end := off + length
	if err := vd.reserve(end - max(in.Size, in.Alloc)); err != nil {
		return err
	}
	if !keepSize && end > in.Size {
		if err := vd.truncate(in, end); err != nil {
			return err
		}
	}
	in.Alloc = max(in.Alloc, end)
	in.changed()
	return vd.persist(in)
}

func (vd *volumeData) newFD(v *volume, in *Inode, flags int) *fd {
	vd.openFDs[in.Ino]++
	return &fd{vol: v, in: in, flags: flags}
}

// closeFD drops one descriptor reference and reaps an unlinked inode once
// nothing holds it open.
func (vd *volumeData) closeFD(in *Inode) error {
	vd.openFDs[in.Ino]--
	if vd.openFDs[in.Ino] <= 0 {
		delete(vd.openFDs, in.Ino)
		if in.Nlink == 0 {
			return vd.reap(in)
		}
	}
	return nil
}
