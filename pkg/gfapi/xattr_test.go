package gfapi_test

import (
	"bytes"
	"os"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/gfapi"
	"github.com/marmos91/gfapi/pkg/native"
)

func TestXattr_RoundTrip(t *testing.T) {
	c := connectSim(t)
	require.NoError(t, c.WriteFile("/f", nil, 0o644))

	// Larger than any fixed first guess a caller might make.
	big := bytes.Repeat([]byte("0123456789"), 500)
	require.NoError(t, c.Setxattr("/f", "user.big", big, 0))
	require.NoError(t, c.Setxattr("/f", "user.small", []byte("v"), 0))

	got, err := c.GetxattrBytes("/f", "user.big")
	require.NoError(t, err)
	assert.Equal(t, big, got)

	s, err := c.Getxattr("/f", "user.small")
	require.NoError(t, err)
	assert.Equal(t, "v", s)

	names, err := c.Listxattr("/f")
	require.NoError(t, err)
	assert.Subset(t, names, []string{"user.big", "user.small"})

	require.NoError(t, c.Removexattr("/f", "user.small"))
	_, err = c.Getxattr("/f", "user.small")
	assert.ErrorIs(t, err, unix.ENODATA)
}

func TestXattr_Flags(t *testing.T) {
	c := connectSim(t)
	require.NoError(t, c.WriteFile("/f", nil, 0o644))

	err := c.Setxattr("/f", "user.a", []byte("1"), native.XATTR_REPLACE)
	assert.ErrorIs(t, err, unix.ENODATA)

	require.NoError(t, c.Setxattr("/f", "user.a", []byte("1"), native.XATTR_CREATE))
	err = c.Setxattr("/f", "user.a", []byte("2"), native.XATTR_CREATE)
	assert.ErrorIs(t, err, unix.EEXIST)

	require.NoError(t, c.Setxattr("/f", "user.a", []byte("2"), native.XATTR_REPLACE))
	s, err := c.Getxattr("/f", "user.a")
	require.NoError(t, err)
	assert.Equal(t, "2", s)
}

func TestXattr_EmptyValue(t *testing.T) {
	c := connectSim(t)
	require.NoError(t, c.WriteFile("/f", nil, 0o644))
	require.NoError(t, c.Setxattr("/f", "user.empty", nil, 0))

	got, err := c.GetxattrBytes("/f", "user.empty")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestXattr_Symlink(t *testing.T) {
	c := connectSim(t)
	require.NoError(t, c.WriteFile("/target", nil, 0o644))
	require.NoError(t, c.Symlink("/target", "/link"))

	require.NoError(t, c.Setxattr("/link", "user.where", []byte("target"), 0))
	require.NoError(t, c.Lsetxattr("/link", "trusted.where", []byte("link"), 0))

	s, err := c.Getxattr("/target", "user.where")
	require.NoError(t, err)
	assert.Equal(t, "target", s)

	s, err = c.Lgetxattr("/link", "trusted.where")
	require.NoError(t, err)
	assert.Equal(t, "link", s)

	names, err := c.Llistxattr("/link")
	require.NoError(t, err)
	assert.Contains(t, names, "trusted.where")
	assert.NotContains(t, names, "user.where")

	require.NoError(t, c.Lremovexattr("/link", "trusted.where"))
	_, err = c.Lgetxattr("/link", "trusted.where")
	assert.ErrorIs(t, err, unix.ENODATA)
}

func TestXattr_OpenFile(t *testing.T) {
	c := connectSim(t)

	f, err := c.Create("/f", os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Setxattr("user.k", []byte("fd"), 0))
	s, err := f.Getxattr("user.k")
	require.NoError(t, err)
	assert.Equal(t, "fd", s)

	names, err := f.Listxattr()
	require.NoError(t, err)
	assert.Contains(t, names, "user.k")

	require.NoError(t, f.Removexattr("user.k"))
	_, err = f.GetxattrBytes("user.k")
	assert.ErrorIs(t, err, unix.ENODATA)
}

func TestXattr_GFID(t *testing.T) {
	c := connectSim(t)
	require.NoError(t, c.WriteFile("/f", nil, 0o644))

	gfid, err := c.Getxattr("/f", "glusterfs.gfid.string")
	require.NoError(t, err)
	assert.Len(t, gfid, 36)
}

// growingValue returns a Getxattr stub whose value grows by one byte after
// every size probe, the way a concurrently updated attribute behaves.
func growingValue(growth int) func([]byte) (int, error) {
	size := 10
	grown := 0
	return func(value []byte) (int, error) {
		if len(value) == 0 {
			n := size
			if grown < growth {
				size++
				grown++
			}
			return n, nil
		}
		if len(value) < size {
			return -1, unix.ERANGE
		}
		return copy(value, bytes.Repeat([]byte{'v'}, size)), nil
	}
}

func TestXattr_RetriesWhenValueGrows(t *testing.T) {
	drv := newFakeDriver()
	drv.vol.getxattr = growingValue(2)
	c, err := gfapi.Connect("gv0", "localhost", native.DefaultPort, gfapi.WithDriver(drv))
	require.NoError(t, err)
	defer c.Close()

	got, err := c.GetxattrBytes("/f", "user.a")
	require.NoError(t, err)
	assert.Len(t, got, 12)

	getxattrs := 0
	for _, call := range drv.vol.Calls() {
		if call == "getxattr" {
			getxattrs++
		}
	}
	assert.Equal(t, 6, getxattrs)
}

func TestXattr_GivesUpOnPersistentGrowth(t *testing.T) {
	drv := newFakeDriver()
	drv.vol.getxattr = growingValue(100)
	c, err := gfapi.Connect("gv0", "localhost", native.DefaultPort, gfapi.WithDriver(drv))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetxattrBytes("/f", "user.a")
	assert.ErrorIs(t, err, unix.ERANGE)
}

func TestXattr_ListDecoding(t *testing.T) {
	tests := []struct {
		name  string
		list  []byte
		want  []string
		utf8E bool
	}{
		{"Empty", nil, []string{}, false},
		{"Names", []byte("user.a\x00user.bb\x00"), []string{"user.a", "user.bb"}, false},
		{"InvalidUTF8", []byte("user.a\x00user.\xff\x00"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := newFakeDriver()
			drv.vol.listxattr = func(list []byte) (int, error) {
				if len(list) == 0 {
					return len(tt.list), nil
				}
				return copy(list, tt.list), nil
			}
			c, err := gfapi.Connect("gv0", "localhost", native.DefaultPort, gfapi.WithDriver(drv))
			require.NoError(t, err)
			defer c.Close()

			names, err := c.Listxattr("/f")
			if tt.utf8E {
				assert.ErrorIs(t, err, gfapi.ErrInvalidUTF8)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, names)
			assert.True(t, slices.IsSorted(names))
		})
	}
}

func TestXattr_InvalidUTF8Value(t *testing.T) {
	drv := newFakeDriver()
	drv.vol.getxattr = func(value []byte) (int, error) {
		raw := []byte("ok\xffok")
		if len(value) == 0 {
			return len(raw), nil
		}
		return copy(value, raw), nil
	}
	c, err := gfapi.Connect("gv0", "localhost", native.DefaultPort, gfapi.WithDriver(drv))
	require.NoError(t, err)
	defer c.Close()

	s, err := c.Getxattr("/f", "user.a")
	require.NoError(t, err)
	assert.Equal(t, "ok�ok", s)

	raw, err := c.GetxattrBytes("/f", "user.a")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok\xffok"), raw)
}
