package gfapi_test

import (
	"fmt"
	"io"
	"os"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/gfapi"
	"github.com/marmos91/gfapi/pkg/native"
)

func entryNames(entries []gfapi.DirEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	slices.Sort(names)
	return names
}

func TestDirectory_Iterate(t *testing.T) {
	c := connectSim(t)
	require.NoError(t, c.Mkdir("/d", 0o755))
	require.NoError(t, c.Mkdir("/d/sub", 0o755))
	require.NoError(t, c.WriteFile("/d/file", []byte("x"), 0o644))
	require.NoError(t, c.Symlink("file", "/d/link"))

	d, err := c.OpenDir("/d")
	require.NoError(t, err)
	assert.Equal(t, "/d", d.Name())

	types := map[string]uint8{}
	for ent, err := range d.All() {
		require.NoError(t, err)
		types[ent.Name] = ent.Type
	}

	assert.Equal(t, map[string]uint8{
		".":    native.DT_DIR,
		"..":   native.DT_DIR,
		"sub":  native.DT_DIR,
		"file": native.DT_REG,
		"link": native.DT_LNK,
	}, types)

	// Reaching the end released the descriptor.
	assert.Zero(t, c.OpenHandles())
}

func TestDirectory_ManyEntries(t *testing.T) {
	c := connectSim(t)

	var want []string
	for i := range 300 {
		name := fmt.Sprintf("f%03d", i)
		want = append(want, name)
		require.NoError(t, c.WriteFile("/"+name, nil, 0o644))
	}
	want = append(want, ".", "..")
	slices.Sort(want)

	d, err := c.OpenDir("/")
	require.NoError(t, err)
	entries, err := d.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, want, entryNames(entries))
}

func TestDirectory_ExhaustedIsSticky(t *testing.T) {
	m := newRecordingMetrics()
	c := connectSim(t, gfapi.WithMetrics(m))

	d, err := c.OpenDir("/")
	require.NoError(t, err)
	_, err = d.ReadAll()
	require.NoError(t, err)

	calls := m.ops["glfs_readdir_r"]
	for range 3 {
		_, err := d.Next()
		assert.ErrorIs(t, err, io.EOF)
	}
	assert.Equal(t, calls, m.ops["glfs_readdir_r"], "an exhausted cursor must not call into the backend")

	// The automatic release makes the first Close a no-op.
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Close(), gfapi.ErrClosed)
	assert.Equal(t, 1, m.ops["glfs_close"])
}

func TestDirectory_EarlyClose(t *testing.T) {
	c := connectSim(t)
	require.NoError(t, c.WriteFile("/a", nil, 0o644))

	d, err := c.OpenDir("/")
	require.NoError(t, err)
	_, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, c.OpenHandles())

	require.NoError(t, d.Close())
	assert.Zero(t, c.OpenHandles())

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, d.Close(), gfapi.ErrClosed)
}

func TestDirectory_ReadFailureReleasesDescriptor(t *testing.T) {
	drv := newFakeDriver()
	fd := &fakeFD{
		entries: []native.Dirent{{Ino: 7, Type: native.DT_REG, Name: []byte("a")}},
		readErr: unix.EIO,
	}
	drv.vol.opendir = func() (native.FD, error) { return fd, nil }
	c, err := gfapi.Connect("gv0", "localhost", native.DefaultPort, gfapi.WithDriver(drv))
	require.NoError(t, err)
	defer c.Close()

	d, err := c.OpenDir("/")
	require.NoError(t, err)

	ent, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, gfapi.DirEntry{Name: "a", Ino: 7, Type: native.DT_REG}, ent)

	// The failure is reported once and the descriptor is released with it.
	_, err = d.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.EIO)
	assert.Zero(t, c.OpenHandles())

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, d.Close())
	reads, closes := fd.counts()
	assert.Equal(t, 2, reads)
	assert.Equal(t, 1, closes)
	require.NoError(t, c.Disconnect())
}

func TestDirectory_AllYieldsFailureLast(t *testing.T) {
	drv := newFakeDriver()
	fd := &fakeFD{
		entries: []native.Dirent{{Name: []byte("a")}, {Name: []byte("b")}},
		readErr: unix.EIO,
	}
	drv.vol.opendir = func() (native.FD, error) { return fd, nil }
	c, err := gfapi.Connect("gv0", "localhost", native.DefaultPort, gfapi.WithDriver(drv))
	require.NoError(t, err)
	defer c.Close()

	d, err := c.OpenDir("/")
	require.NoError(t, err)
	entries, err := d.ReadAll()
	assert.ErrorIs(t, err, unix.EIO)
	assert.Equal(t, []string{"a", "b"}, entryNames(entries))

	_, closes := fd.counts()
	assert.Equal(t, 1, closes)
	assert.Zero(t, c.OpenHandles())
}

func TestDirectory_StableOrder(t *testing.T) {
	c := connectSim(t)
	for _, name := range []string{"zeta", "alpha", "mid", "beta"} {
		require.NoError(t, c.WriteFile("/"+name, nil, 0o644))
	}

	list := func() []string {
		d, err := c.OpenDir("/")
		require.NoError(t, err)
		var names []string
		for ent, err := range d.All() {
			require.NoError(t, err)
			names = append(names, ent.Name)
		}
		return names
	}

	first := list()
	assert.Len(t, first, 6)
	assert.Equal(t, first, list())
}

func TestDirectory_Chdir(t *testing.T) {
	c := connectSim(t)
	require.NoError(t, c.Mkdir("/work", 0o755))

	d, err := c.OpenDir("/work")
	require.NoError(t, err)
	require.NoError(t, d.Chdir())
	require.NoError(t, d.Close())

	cwd, err := c.Getcwd()
	require.NoError(t, err)
	assert.Equal(t, "/work", cwd)
}

func TestOpenDir_Errors(t *testing.T) {
	c := connectSim(t)
	require.NoError(t, c.WriteFile("/f", nil, 0o644))

	_, err := c.OpenDir("/f")
	assert.ErrorIs(t, err, unix.ENOTDIR)

	_, err = c.OpenDir("/missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, c.OpenHandles())
}
