package nativetest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/native"
)

// RunXattrTests covers user-namespace extended attributes. Backends on file
// systems without user xattrs skip.
func (suite *VolumeTestSuite) RunXattrTests(t *testing.T) {
	t.Run("SetGetList", suite.testXattrSetGetList)
	t.Run("SizeProbe", suite.testXattrSizeProbe)
	t.Run("Flags", suite.testXattrFlags)
}

func xattrVolume(t *testing.T, suite *VolumeTestSuite) native.Volume {
	t.Helper()
	vol := suite.NewVolume(t)
	writeFile(t, vol, "/f", "x")

	ret, err := vol.Setxattr(cs("/f"), cs("user.probe"), []byte("1"), 0)
	if ret < 0 && (err == unix.EOPNOTSUPP || err == unix.ENOTSUP) {
		t.Skip("backend has no user xattrs")
	}
	succeeds(t)(ret, err)
	succeeds(t)(vol.Removexattr(cs("/f"), cs("user.probe")))
	return vol
}

func (suite *VolumeTestSuite) testXattrSetGetList(t *testing.T) {
	vol := xattrVolume(t, suite)
	f := cs("/f")

	succeeds(t)(vol.Setxattr(f, cs("user.a"), []byte("1"), 0))
	succeeds(t)(vol.Setxattr(f, cs("user.b"), []byte("22"), 0))

	buf := make([]byte, 16)
	n, _ := vol.Getxattr(f, cs("user.b"), buf)
	assert.Equal(t, "22", string(buf[:n]))

	list := make([]byte, 256)
	n, _ = vol.Listxattr(f, list)
	var names []string
	for name := range bytes.SplitSeq(list[:n], []byte{0}) {
		if strings.HasPrefix(string(name), "user.") {
			names = append(names, string(name))
		}
	}
	assert.ElementsMatch(t, []string{"user.a", "user.b"}, names)

	succeeds(t)(vol.Removexattr(f, cs("user.a")))
	failsWith(t, unix.ENODATA)(vol.Getxattr(f, cs("user.a"), buf))
	failsWith(t, unix.ENODATA)(vol.Removexattr(f, cs("user.a")))
}

func (suite *VolumeTestSuite) testXattrSizeProbe(t *testing.T) {
	vol := xattrVolume(t, suite)
	f := cs("/f")
	value := bytes.Repeat([]byte("v"), 3000)

	succeeds(t)(vol.Setxattr(f, cs("user.big"), value, 0))

	size, err := vol.Getxattr(f, cs("user.big"), nil)
	assert.Equal(t, 3000, size, "size probe: %v", err)
	failsWith(t, unix.ERANGE)(vol.Getxattr(f, cs("user.big"), make([]byte, 100)))

	buf := make([]byte, size)
	n, _ := vol.Getxattr(f, cs("user.big"), buf)
	assert.Equal(t, value, buf[:n])

	fd := opened(t)(vol.Open(f, unix.O_RDONLY))
	defer fd.Close()
	size, _ = fd.Fgetxattr(cs("user.big"), nil)
	assert.Equal(t, 3000, size)
}

func (suite *VolumeTestSuite) testXattrFlags(t *testing.T) {
	vol := xattrVolume(t, suite)
	f := cs("/f")

	succeeds(t)(vol.Setxattr(f, cs("user.k"), []byte("1"), native.XATTR_CREATE))
	failsWith(t, unix.EEXIST)(vol.Setxattr(f, cs("user.k"), []byte("2"), native.XATTR_CREATE))
	failsWith(t, unix.ENODATA)(vol.Setxattr(f, cs("user.none"), []byte("2"), native.XATTR_REPLACE))
	succeeds(t)(vol.Setxattr(f, cs("user.k"), []byte("3"), native.XATTR_REPLACE))
}
