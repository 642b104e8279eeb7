// Package nativetest is a conformance suite for native.Volume backends.
//
// It checks the call convention (non-negative result on success, -1 and an
// errno on failure) and the POSIX behavior every backend must share. Tests
// only rely on behavior that holds on both a simulated volume and a host
// file system, so directory listings are compared as sets and permission
// checks are left to backend tests.
package nativetest

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/native"
)

// VolumeTestSuite runs against any backend.
//
// Usage:
//
//	func TestMyBackend(t *testing.T) {
//	    suite := &nativetest.VolumeTestSuite{
//	        NewVolume: func(t *testing.T) native.Volume {
//	            return newInitializedVolume(t)
//	        },
//	    }
//	    suite.Run(t)
//	}
type VolumeTestSuite struct {
	// NewVolume returns an initialized context on an empty volume.
	NewVolume func(t *testing.T) native.Volume
}

// Run executes all tests in the suite.
func (suite *VolumeTestSuite) Run(t *testing.T) {
	t.Run("Files", suite.RunFileTests)
	t.Run("Namespace", suite.RunNamespaceTests)
	t.Run("Directories", suite.RunDirectoryTests)
	t.Run("ExtendedAttributes", suite.RunXattrTests)
}

// ============================================================================
// Helpers
// ============================================================================

func cs(s string) native.CString { return native.MustCString(s) }

func succeeds(t *testing.T) func(int, error) {
	return func(ret int, err error) {
		t.Helper()
		require.GreaterOrEqual(t, ret, 0, "native call failed: %v", err)
	}
}

func failsWith(t *testing.T, want unix.Errno) func(int, error) {
	return func(ret int, err error) {
		t.Helper()
		require.Equal(t, -1, ret, "native call should fail with %v", want)
		assert.Equal(t, want, err)
	}
}

func opened(t *testing.T) func(native.FD, error) native.FD {
	return func(fd native.FD, err error) native.FD {
		t.Helper()
		require.NoError(t, err)
		require.NotNil(t, fd)
		return fd
	}
}

func writeFile(t *testing.T, vol native.Volume, path, data string) {
	t.Helper()
	fd := opened(t)(vol.Creat(cs(path), unix.O_WRONLY|unix.O_TRUNC, 0o644))
	defer fd.Close()
	n, err := fd.Write([]byte(data), 0)
	require.Equal(t, len(data), n, "write failed: %v", err)
}

func stat(t *testing.T, vol native.Volume, path string) unix.Stat_t {
	t.Helper()
	var st unix.Stat_t
	succeeds(t)(vol.Stat(cs(path), &st))
	return st
}

func listDir(t *testing.T, vol native.Volume, path string) []string {
	t.Helper()
	fd := opened(t)(vol.Opendir(cs(path)))
	defer fd.Close()

	var names []string
	for {
		var ent native.Dirent
		ret, err := fd.ReadDirent(&ent)
		require.GreaterOrEqual(t, ret, 0, "readdir failed: %v", err)
		if ret == 0 {
			slices.Sort(names)
			return names
		}
		names = append(names, string(ent.Name))
	}
}
