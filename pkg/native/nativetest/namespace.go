package nativetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/native"
)

// RunNamespaceTests covers path operations and their error numbers.
func (suite *VolumeTestSuite) RunNamespaceTests(t *testing.T) {
	t.Run("Errnos", suite.testErrnos)
	t.Run("Symlink", suite.testSymlink)
	t.Run("Link", suite.testLink)
	t.Run("Rename", suite.testRename)
	t.Run("WorkingDirectory", suite.testWorkingDirectory)
	t.Run("Realpath", suite.testRealpath)
	t.Run("Chmod", suite.testChmod)
	t.Run("Statvfs", suite.testStatvfs)
}

func (suite *VolumeTestSuite) testErrnos(t *testing.T) {
	vol := suite.NewVolume(t)
	succeeds(t)(vol.Mkdir(cs("/d"), 0o755))
	writeFile(t, vol, "/d/f", "x")

	var st unix.Stat_t
	failsWith(t, unix.ENOENT)(vol.Stat(cs("/missing"), &st))
	failsWith(t, unix.EEXIST)(vol.Mkdir(cs("/d"), 0o755))
	failsWith(t, unix.ENOTEMPTY)(vol.Rmdir(cs("/d")))
	failsWith(t, unix.ENOTDIR)(vol.Rmdir(cs("/d/f")))
	failsWith(t, unix.EISDIR)(vol.Unlink(cs("/d")))
	failsWith(t, unix.ENOTDIR)(vol.Stat(cs("/d/f/x"), &st))
	failsWith(t, unix.ENOENT)(vol.Unlink(cs("/d/missing")))

	succeeds(t)(vol.Unlink(cs("/d/f")))
	succeeds(t)(vol.Rmdir(cs("/d")))
	failsWith(t, unix.ENOENT)(vol.Stat(cs("/d"), &st))
}

func (suite *VolumeTestSuite) testSymlink(t *testing.T) {
	vol := suite.NewVolume(t)
	writeFile(t, vol, "/target", "data")
	succeeds(t)(vol.Symlink(cs("target"), cs("/link")))

	buf := make([]byte, 64)
	n, err := vol.Readlink(cs("/link"), buf)
	require.Equal(t, 6, n, "readlink: %v", err)
	assert.Equal(t, "target", string(buf[:n]))

	var st unix.Stat_t
	succeeds(t)(vol.Lstat(cs("/link"), &st))
	assert.EqualValues(t, unix.S_IFLNK, st.Mode&unix.S_IFMT)
	succeeds(t)(vol.Stat(cs("/link"), &st))
	assert.EqualValues(t, unix.S_IFREG, st.Mode&unix.S_IFMT)
	assert.EqualValues(t, 4, st.Size)

	failsWith(t, unix.EINVAL)(vol.Readlink(cs("/target"), buf))
}

func (suite *VolumeTestSuite) testLink(t *testing.T) {
	vol := suite.NewVolume(t)
	writeFile(t, vol, "/a", "x")

	succeeds(t)(vol.Link(cs("/a"), cs("/b")))
	assert.EqualValues(t, 2, stat(t, vol, "/a").Nlink)
	assert.Equal(t, stat(t, vol, "/a").Ino, stat(t, vol, "/b").Ino)
	failsWith(t, unix.EEXIST)(vol.Link(cs("/a"), cs("/b")))
}

func (suite *VolumeTestSuite) testRename(t *testing.T) {
	vol := suite.NewVolume(t)
	writeFile(t, vol, "/src", "new")
	writeFile(t, vol, "/dst", "old")
	succeeds(t)(vol.Mkdir(cs("/dir"), 0o755))

	succeeds(t)(vol.Rename(cs("/src"), cs("/dst")))
	assert.EqualValues(t, 3, stat(t, vol, "/dst").Size)

	var st unix.Stat_t
	failsWith(t, unix.ENOENT)(vol.Stat(cs("/src"), &st))
	failsWith(t, unix.EISDIR)(vol.Rename(cs("/dst"), cs("/dir")))
	failsWith(t, unix.EINVAL)(vol.Rename(cs("/dir"), cs("/dir/sub")))

	succeeds(t)(vol.Rename(cs("/dst"), cs("/dir/moved")))
	assert.EqualValues(t, 3, stat(t, vol, "/dir/moved").Size)
}

func (suite *VolumeTestSuite) testWorkingDirectory(t *testing.T) {
	vol := suite.NewVolume(t)
	succeeds(t)(vol.Mkdir(cs("/a"), 0o755))
	succeeds(t)(vol.Mkdir(cs("/a/b"), 0o755))

	buf := make([]byte, 64)
	succeeds(t)(vol.Getcwd(buf))
	cwd, err := native.GoString(buf)
	require.NoError(t, err)
	assert.Equal(t, "/", cwd)

	succeeds(t)(vol.Chdir(cs("a/b")))
	succeeds(t)(vol.Getcwd(buf))
	cwd, _ = native.GoString(buf)
	assert.Equal(t, "/a/b", cwd)

	writeFile(t, vol, "rel", "x")
	stat(t, vol, "/a/b/rel")

	failsWith(t, unix.ENOTDIR)(vol.Chdir(cs("rel")))
	failsWith(t, unix.ERANGE)(vol.Getcwd(make([]byte, 2)))

	dir := opened(t)(vol.Opendir(cs("/a")))
	defer dir.Close()
	succeeds(t)(dir.Fchdir())
	succeeds(t)(vol.Getcwd(buf))
	cwd, _ = native.GoString(buf)
	assert.Equal(t, "/a", cwd)
}

func (suite *VolumeTestSuite) testRealpath(t *testing.T) {
	vol := suite.NewVolume(t)
	succeeds(t)(vol.Mkdir(cs("/a"), 0o755))
	succeeds(t)(vol.Symlink(cs("a"), cs("/s")))

	buf := make([]byte, unix.PathMax)
	succeeds(t)(vol.Realpath(cs("/s/../s/."), buf))
	got, err := native.GoString(buf)
	require.NoError(t, err)
	assert.Equal(t, "/a", got)

	failsWith(t, unix.ENOENT)(vol.Realpath(cs("/missing"), buf))
}

func (suite *VolumeTestSuite) testChmod(t *testing.T) {
	vol := suite.NewVolume(t)
	writeFile(t, vol, "/f", "x")

	succeeds(t)(vol.Chmod(cs("/f"), 0o600))
	assert.EqualValues(t, 0o600, stat(t, vol, "/f").Mode&0o7777)
	succeeds(t)(vol.Access(cs("/f"), unix.F_OK))
}

func (suite *VolumeTestSuite) testStatvfs(t *testing.T) {
	vol := suite.NewVolume(t)

	var st native.Statvfs
	succeeds(t)(vol.Statvfs(cs("/"), &st))
	assert.NotZero(t, st.Bsize)
	assert.NotZero(t, st.Blocks)
	assert.NotZero(t, st.Namemax)
}
