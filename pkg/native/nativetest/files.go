package nativetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// RunFileTests covers descriptor I/O.
func (suite *VolumeTestSuite) RunFileTests(t *testing.T) {
	t.Run("CreateWriteRead", suite.testCreateWriteRead)
	t.Run("ShortReadAtEnd", suite.testShortReadAtEnd)
	t.Run("VectorIO", suite.testVectorIO)
	t.Run("Seek", suite.testSeek)
	t.Run("Truncate", suite.testTruncate)
	t.Run("ExclusiveCreate", suite.testExclusiveCreate)
	t.Run("OpenMissing", suite.testOpenMissing)
	t.Run("Dup", suite.testDup)
	t.Run("DoubleClose", suite.testDoubleClose)
}

func (suite *VolumeTestSuite) testCreateWriteRead(t *testing.T) {
	vol := suite.NewVolume(t)

	fd := opened(t)(vol.Creat(cs("/f"), unix.O_RDWR, 0o644))
	defer fd.Close()

	n, err := fd.Write([]byte("hello world"), 0)
	require.Equal(t, 11, n, "write: %v", err)

	buf := make([]byte, 5)
	n, err = fd.Pread(buf, 6, 0)
	require.Equal(t, 5, n, "pread: %v", err)
	assert.Equal(t, "world", string(buf))

	var st unix.Stat_t
	succeeds(t)(fd.Fstat(&st))
	assert.EqualValues(t, 11, st.Size)
	assert.EqualValues(t, unix.S_IFREG, st.Mode&unix.S_IFMT)
	succeeds(t)(fd.Fsync())
}

func (suite *VolumeTestSuite) testShortReadAtEnd(t *testing.T) {
	vol := suite.NewVolume(t)
	writeFile(t, vol, "/f", "abc")

	fd := opened(t)(vol.Open(cs("/f"), unix.O_RDONLY))
	defer fd.Close()

	buf := make([]byte, 10)
	n, _ := fd.Read(buf, 0)
	assert.Equal(t, 3, n)
	n, _ = fd.Read(buf, 0)
	assert.Equal(t, 0, n)
}

func (suite *VolumeTestSuite) testVectorIO(t *testing.T) {
	vol := suite.NewVolume(t)
	fd := opened(t)(vol.Creat(cs("/v"), unix.O_RDWR, 0o644))
	defer fd.Close()

	n, err := fd.Pwritev([][]byte{[]byte("abc"), []byte("def")}, 0, 0)
	require.Equal(t, 6, n, "pwritev: %v", err)

	a, b := make([]byte, 4), make([]byte, 4)
	n, err = fd.Preadv([][]byte{a, b}, 0, 0)
	require.Equal(t, 6, n, "preadv: %v", err)
	assert.Equal(t, "abcd", string(a))
	assert.Equal(t, "ef", string(b[:2]))
}

func (suite *VolumeTestSuite) testSeek(t *testing.T) {
	vol := suite.NewVolume(t)
	writeFile(t, vol, "/f", "0123456789")

	fd := opened(t)(vol.Open(cs("/f"), unix.O_RDONLY))
	defer fd.Close()

	pos, err := fd.Lseek(-3, unix.SEEK_END)
	require.EqualValues(t, 7, pos, "lseek: %v", err)

	buf := make([]byte, 3)
	n, _ := fd.Read(buf, 0)
	assert.Equal(t, "789", string(buf[:n]))

	pos, err = fd.Lseek(-1, unix.SEEK_SET)
	assert.EqualValues(t, -1, pos)
	assert.Equal(t, unix.EINVAL, err)
}

func (suite *VolumeTestSuite) testTruncate(t *testing.T) {
	vol := suite.NewVolume(t)
	writeFile(t, vol, "/f", "abcdef")

	succeeds(t)(vol.Truncate(cs("/f"), 2))
	assert.EqualValues(t, 2, stat(t, vol, "/f").Size)

	fd := opened(t)(vol.Open(cs("/f"), unix.O_RDWR))
	defer fd.Close()
	succeeds(t)(fd.Ftruncate(8))
	assert.EqualValues(t, 8, stat(t, vol, "/f").Size)
}

func (suite *VolumeTestSuite) testExclusiveCreate(t *testing.T) {
	vol := suite.NewVolume(t)
	writeFile(t, vol, "/f", "x")

	fd, err := vol.Creat(cs("/f"), unix.O_RDWR|unix.O_EXCL, 0o644)
	assert.Nil(t, fd)
	assert.Equal(t, unix.EEXIST, err)
}

func (suite *VolumeTestSuite) testOpenMissing(t *testing.T) {
	vol := suite.NewVolume(t)

	fd, err := vol.Open(cs("/missing"), unix.O_RDONLY)
	assert.Nil(t, fd)
	assert.Equal(t, unix.ENOENT, err)
}

func (suite *VolumeTestSuite) testDup(t *testing.T) {
	vol := suite.NewVolume(t)
	writeFile(t, vol, "/f", "abcdef")

	fd := opened(t)(vol.Open(cs("/f"), unix.O_RDONLY))
	dup := opened(t)(fd.Dup())
	succeeds(t)(fd.Close())

	buf := make([]byte, 6)
	n, err := dup.Pread(buf, 0, 0)
	require.Equal(t, 6, n, "pread on dup: %v", err)
	succeeds(t)(dup.Close())
}

func (suite *VolumeTestSuite) testDoubleClose(t *testing.T) {
	vol := suite.NewVolume(t)
	fd := opened(t)(vol.Creat(cs("/f"), unix.O_RDWR, 0o644))

	succeeds(t)(fd.Close())
	failsWith(t, unix.EBADF)(fd.Close())

	var st unix.Stat_t
	failsWith(t, unix.EBADF)(fd.Fstat(&st))
}
