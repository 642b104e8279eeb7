package badgerstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/native"
	"github.com/marmos91/gfapi/pkg/native/simvol"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{DBPath: path})
	require.NoError(t, err)
	return store
}

func TestStore_PutLoadDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	for ino := uint64(1); ino <= 3; ino++ {
		require.NoError(t, store.PutInode(ctx, "vol", &simvol.Inode{Ino: ino, Mode: unix.S_IFREG | 0o644, Nlink: 1}))
	}
	// A volume whose name extends another's must not leak into its scan.
	require.NoError(t, store.PutInode(ctx, "vol2", &simvol.Inode{Ino: 1, Mode: unix.S_IFDIR | 0o755}))

	inodes, err := store.LoadInodes(ctx, "vol")
	require.NoError(t, err)
	require.Len(t, inodes, 3)
	for i, in := range inodes {
		assert.EqualValues(t, i+1, in.Ino, "records load in inode order")
	}

	require.NoError(t, store.DeleteInode(ctx, "vol", 2))
	require.NoError(t, store.DeleteInode(ctx, "vol", 2), "deleting a missing record succeeds")

	inodes, err = store.LoadInodes(ctx, "vol")
	require.NoError(t, err)
	assert.Len(t, inodes, 2)
}

func TestStore_InMemory(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, Config{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutInode(ctx, "vol", &simvol.Inode{Ino: 9}))
	inodes, err := store.LoadInodes(ctx, "vol")
	require.NoError(t, err)
	assert.Len(t, inodes, 1)
}

type countingMetrics struct {
	mu    sync.Mutex
	ops   map[string]int
	bytes map[string]int64
}

func (m *countingMetrics) ObserveOperation(store, operation string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.ops[store+"/"+operation]++
	}
}

func (m *countingMetrics) RecordBytes(store, direction string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[store+"/"+direction] += n
}

func TestStore_Metrics(t *testing.T) {
	ctx := context.Background()
	m := &countingMetrics{ops: map[string]int{}, bytes: map[string]int64{}}
	store, err := New(ctx, Config{InMemory: true, Metrics: m})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutInode(ctx, "vol", &simvol.Inode{Ino: 1}))
	require.NoError(t, store.PutInode(ctx, "vol", &simvol.Inode{Ino: 2}))
	_, err = store.LoadInodes(ctx, "vol")
	require.NoError(t, err)
	require.NoError(t, store.DeleteInode(ctx, "vol", 2))

	assert.Equal(t, 2, m.ops["badger/PutInode"])
	assert.Equal(t, 1, m.ops["badger/LoadInodes"])
	assert.Equal(t, 1, m.ops["badger/DeleteInode"])
	assert.Positive(t, m.bytes["badger/write"])
	assert.Equal(t, m.bytes["badger/write"], m.bytes["badger/read"], "both records were read back")
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(ctx, Config{InMemory: true})
	assert.ErrorIs(t, err, context.Canceled)
}

// TestStore_VolumeSurvivesReopen drives a simulated volume, closes the
// database and checks a second driver sees the same tree.
func TestStore_VolumeSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	content := simvol.NewMemoryContentStore()

	store := newTestStore(t, dir)
	drv := simvol.NewDriver(simvol.Config{Metadata: store, Content: content})
	vol := attach(t, drv)

	ret, err := vol.Mkdir(native.MustCString("/persisted"), 0o750)
	require.Zero(t, ret, "mkdir: %v", err)
	require.NoError(t, store.Close())

	store = newTestStore(t, dir)
	defer store.Close()
	vol = attach(t, simvol.NewDriver(simvol.Config{Metadata: store, Content: content}))

	var st unix.Stat_t
	ret, err = vol.Stat(native.MustCString("/persisted"), &st)
	require.Zero(t, ret, "stat: %v", err)
	assert.EqualValues(t, unix.S_IFDIR|0o750, st.Mode)
}

func attach(t *testing.T, drv *simvol.Driver) native.Volume {
	t.Helper()
	vol, err := drv.New(native.MustCString("testvol"))
	require.NoError(t, err)
	ret, err := vol.SetVolfileServer(native.MustCString("tcp"), native.MustCString("localhost"), native.DefaultPort)
	require.Zero(t, ret, "set volfile server: %v", err)
	ret, err = vol.Init()
	require.Zero(t, ret, "init: %v", err)
	return vol
}
