package simvol

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// RootIno is the inode number of every volume's root directory.
const RootIno = 1

// Inode is the persistent record of one file, directory, symlink or special
// file.
type Inode struct {
	Ino  uint64    `json:"ino"`
	GFID uuid.UUID `json:"gfid"`

	// Mode carries the S_IFMT type bits and the permission bits.
	Mode  uint32 `json:"mode"`
	Uid   uint32 `json:"uid"`
	Gid   uint32 `json:"gid"`
	Nlink uint32 `json:"nlink"`
	Rdev  uint64 `json:"rdev,omitempty"`

	// Size is the reported size. Alloc is the allocated extent, which
	// fallocate with keep-size may grow past Size.
	Size  int64 `json:"size"`
	Alloc int64 `json:"alloc,omitempty"`

	Atime time.Time `json:"atime"`
	Mtime time.Time `json:"mtime"`
	Ctime time.Time `json:"ctime"`

	// Parent is the containing directory (directories only; the root is its
	// own parent).
	Parent uint64 `json:"parent,omitempty"`

	// Target is the symlink target.
	Target string `json:"target,omitempty"`

	// Entries are the directory slots. A removed entry leaves a hole (empty
	// Name) that a later entry may reuse, so the position of a live entry
	// never changes and an open cursor stays valid.
	//
	// INVARIANT: no duplicate names among live entries.
	Entries []DirSlot `json:"entries,omitempty"`

	Xattrs map[string][]byte `json:"xattrs,omitempty"`
}

// DirSlot is one directory slot.
type DirSlot struct {
	Name string `json:"name,omitempty"`
	Ino  uint64 `json:"ino,omitempty"`
	Type uint8  `json:"type,omitempty"`
}

func newInode(ino uint64, mode, uid, gid uint32) *Inode {
	now := time.Now()
	return &Inode{
		Ino:   ino,
		GFID:  uuid.New(),
		Mode:  mode,
		Uid:   uid,
		Gid:   gid,
		Nlink: 1,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
}

func (in *Inode) fileType() uint32 { return in.Mode & unix.S_IFMT }

func (in *Inode) isDir() bool     { return in.fileType() == unix.S_IFDIR }
func (in *Inode) isSymlink() bool { return in.fileType() == unix.S_IFLNK }
func (in *Inode) isRegular() bool { return in.fileType() == unix.S_IFREG }

// contentID is the key of the inode's bytes in the ContentStore.
func (in *Inode) contentID() ContentID { return ContentID(in.GFID.String()) }

// direntType maps the mode type bits to a DT_* tag.
func (in *Inode) direntType() uint8 {
	switch in.fileType() {
	case unix.S_IFDIR:
		return unix.DT_DIR
	case unix.S_IFREG:
		return unix.DT_REG
	case unix.S_IFLNK:
		return unix.DT_LNK
	case unix.S_IFIFO:
		return unix.DT_FIFO
	case unix.S_IFCHR:
		return unix.DT_CHR
	case unix.S_IFBLK:
		return unix.DT_BLK
	case unix.S_IFSOCK:
		return unix.DT_SOCK
	default:
		return unix.DT_UNKNOWN
	}
}

func (in *Inode) findChild(name string) (int, bool) {
	for i, e := range in.Entries {
		if e.Name == name {
			return i, true
		}
	}
	return 0, false
}

// lookUpChild returns the inode number of the named entry.
func (in *Inode) lookUpChild(name string) (uint64, bool) {
	if i, ok := in.findChild(name); ok {
		return in.Entries[i].Ino, true
	}
	return 0, false
}

// addChild places an entry in the first hole, or appends it.
//
// REQUIRES: no live entry is named name.
func (in *Inode) addChild(name string, ino uint64, dt uint8) {
	in.touch()

	e := DirSlot{Name: name, Ino: ino, Type: dt}
	for i := range in.Entries {
		if in.Entries[i].Name == "" {
			in.Entries[i] = e
			return
		}
	}
	in.Entries = append(in.Entries, e)
}

// removeChild leaves a hole where the named entry was.
func (in *Inode) removeChild(name string) {
	in.touch()

	if i, ok := in.findChild(name); ok {
		in.Entries[i] = DirSlot{}
	}

	// Trailing holes can go: no cursor can be positioned inside them.
	for len(in.Entries) > 0 && in.Entries[len(in.Entries)-1].Name == "" {
		in.Entries = in.Entries[:len(in.Entries)-1]
	}
}

// children returns the number of live entries.
func (in *Inode) children() int {
	n := 0
	for _, e := range in.Entries {
		if e.Name != "" {
			n++
		}
	}
	return n
}

// touch updates modification and change times.
func (in *Inode) touch() {
	now := time.Now()
	in.Mtime = now
	in.Ctime = now
}

// changed updates the change time only.
func (in *Inode) changed() {
	in.Ctime = time.Now()
}

// xattrNames returns the stored attribute names in a stable order.
func (in *Inode) xattrNames() []string {
	return slices.Sorted(maps.Keys(in.Xattrs))
}
