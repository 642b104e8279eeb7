// Package simvol is an in-process volume backend.
//
// It implements the native surface with POSIX semantics close to what a
// GlusterFS volume exposes through libgfapi: per-context working directory,
// symlink resolution, hard links, extended attributes with the GFID
// virtual attribute, sparse files and stable directory cursors. Volumes
// served by one Driver are shared by every context allocated for the same
// name, like contexts of one real volume.
//
// Metadata and content are kept apart: the inode table is written through
// to a MetadataStore (memory or BadgerDB) and regular-file bytes go to a
// ContentStore (memory or S3).
package simvol

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"

	"github.com/marmos91/gfapi/internal/logger"
	"github.com/marmos91/gfapi/pkg/native"
	"golang.org/x/sys/unix"
)

// Defaults for Config zero values.
const (
	DefaultCapacity  = 1 << 40
	DefaultMaxInodes = 1 << 20
	blockSize        = 4096
	nameMax          = 255
	maxSymlinkHops   = 40
)

// Config configures a Driver.
type Config struct {
	// Metadata persists inode records. Default: a MemoryMetadataStore.
	Metadata MetadataStore

	// Content holds file bytes. Default: a MemoryContentStore.
	Content ContentStore

	// Uid and Gid are the credentials every call runs with. Zero is root,
	// which passes permission checks.
	Uid uint32
	Gid uint32

	// Capacity is the volume size reported by statvfs.
	Capacity int64

	// MaxInodes is the inode count reported by statvfs.
	MaxInodes uint64

	// Hosts, when set, lists the volfile servers that answer. Initializing
	// a context pointed at any other host fails with ENOTCONN.
	Hosts []string
}

var (
	_ native.Driver = (*Driver)(nil)
	_ native.Volume = (*volume)(nil)
	_ native.FD     = (*fd)(nil)
)

// Driver allocates contexts on simulated volumes.
type Driver struct {
	cfg Config

	mu      sync.Mutex
	volumes map[string]*volumeData
}

// NewDriver creates a driver. Missing stores default to memory.
func NewDriver(cfg Config) *Driver {
	if cfg.Metadata == nil {
		cfg.Metadata = NewMemoryMetadataStore()
	}
	if cfg.Content == nil {
		cfg.Content = NewMemoryContentStore()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MaxInodes == 0 {
		cfg.MaxInodes = DefaultMaxInodes
	}
	return &Driver{cfg: cfg, volumes: make(map[string]*volumeData)}
}

func (d *Driver) Name() string { return "sim" }

// New allocates a context for volname. The volume's data is loaded when
// the context is initialized.
func (d *Driver) New(volname native.CString) (native.Volume, error) {
	name := volname.String()
	if name == "" {
		return nil, unix.EINVAL
	}
	return &volume{drv: d, name: name, cwd: RootIno}, nil
}

// Close closes both stores.
func (d *Driver) Close() error {
	return errors.Join(d.cfg.Metadata.Close(), closeContent(d.cfg.Content))
}

func closeContent(cs ContentStore) error {
	if c, ok := cs.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// open returns the shared data of the named volume, loading it on first use.
func (d *Driver) open(name string) (*volumeData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if vd, ok := d.volumes[name]; ok {
		return vd, nil
	}

	vd := &volumeData{
		name:    name,
		cfg:     &d.cfg,
		inodes:  make(map[uint64]*Inode),
		openFDs: make(map[uint64]int),
	}
	if err := vd.load(context.Background()); err != nil {
		return nil, err
	}
	d.volumes[name] = vd
	return vd, nil
}

// ============================================================================
// Volume Data
// ============================================================================

// volumeData is the inode table of one volume. Every field is guarded by mu,
// and every native call holds mu for its whole duration.
type volumeData struct {
	mu   sync.Mutex
	name string
	cfg  *Config

	inodes  map[uint64]*Inode
	nextIno uint64

	// openFDs counts open descriptors per inode. An unlinked inode is kept
	// until its last descriptor closes.
	openFDs map[uint64]int
}

func (vd *volumeData) load(ctx context.Context) error {
	records, err := vd.cfg.Metadata.LoadInodes(ctx, vd.name)
	if err != nil {
		return fmt.Errorf("failed to load volume %s: %w", vd.name, err)
	}

	for _, in := range records {
		vd.inodes[in.Ino] = in
		vd.nextIno = max(vd.nextIno, in.Ino)
	}
	vd.nextIno++

	if _, ok := vd.inodes[RootIno]; !ok {
		root := newInode(RootIno, unix.S_IFDIR|0o755, 0, 0)
		root.Nlink = 2
		root.Parent = RootIno
		vd.inodes[RootIno] = root
		vd.nextIno = max(vd.nextIno, RootIno+1)
		if err := vd.cfg.Metadata.PutInode(ctx, vd.name, root); err != nil {
			return fmt.Errorf("failed to create root of volume %s: %w", vd.name, err)
		}
	}

	// Inodes unlinked while open when the process went away.
	for ino, in := range vd.inodes {
		if in.Nlink == 0 {
			if err := vd.reap(in); err != nil {
				return fmt.Errorf("failed to reap orphan inode %d: %w", ino, err)
			}
			logger.Debug("simvol: reaped orphan inode %d of volume %s", ino, vd.name)
		}
	}

	logger.Debug("simvol: loaded volume %s (%d inodes)", vd.name, len(vd.inodes))
	return nil
}

// alloc creates and registers a new inode.
func (vd *volumeData) alloc(mode uint32) *Inode {
	in := newInode(vd.nextIno, mode, vd.cfg.Uid, vd.cfg.Gid)
	vd.nextIno++
	vd.inodes[in.Ino] = in
	return in
}

// persist writes changed inodes through to the metadata store.
func (vd *volumeData) persist(inodes ...*Inode) error {
	ctx := context.Background()
	for _, in := range inodes {
		if err := vd.cfg.Metadata.PutInode(ctx, vd.name, in); err != nil {
			logger.Error("simvol: persist inode %d of volume %s: %v", in.Ino, vd.name, err)
			return unix.EIO
		}
	}
	return nil
}

// release drops one link from in and reaps it when nothing refers to it.
func (vd *volumeData) release(in *Inode) error {
	if in.isDir() {
		in.Nlink = 0
	} else if in.Nlink > 0 {
		in.Nlink--
	}
	in.changed()

	if in.Nlink == 0 && vd.openFDs[in.Ino] == 0 {
		return vd.reap(in)
	}
	return vd.persist(in)
}

// reap removes an inode and its content.
func (vd *volumeData) reap(in *Inode) error {
	ctx := context.Background()
	delete(vd.inodes, in.Ino)

	if in.isRegular() {
		if err := vd.cfg.Content.Delete(ctx, in.contentID()); err != nil {
			logger.Error("simvol: delete content of inode %d: %v", in.Ino, err)
			return unix.EIO
		}
	}
	if err := vd.cfg.Metadata.DeleteInode(ctx, vd.name, in.Ino); err != nil {
		logger.Error("simvol: delete inode %d of volume %s: %v", in.Ino, vd.name, err)
		return unix.EIO
	}
	return nil
}

// pathOf rebuilds the absolute path of a directory from parent links.
func (vd *volumeData) pathOf(dir *Inode) (string, error) {
	var names []string
	for cur := dir; cur.Ino != RootIno; {
		parent, ok := vd.inodes[cur.Parent]
		if !ok {
			return "", unix.ENOENT
		}
		i := slices.IndexFunc(parent.Entries, func(e DirSlot) bool {
			return e.Name != "" && e.Ino == cur.Ino
		})
		if i < 0 {
			return "", unix.ENOENT
		}
		names = append(names, parent.Entries[i].Name)
		cur = parent
	}

	if len(names) == 0 {
		return "/", nil
	}
	slices.Reverse(names)
	return "/" + strings.Join(names, "/"), nil
}

// fsid derives a stable file system id from the volume name.
func (vd *volumeData) fsid() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(vd.name))
	return h.Sum64()
}
