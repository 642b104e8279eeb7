package simvol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/native"
)

// ============================================================================
// Helpers
// ============================================================================

func cs(s string) native.CString { return native.MustCString(s) }

func newTestVolume(t *testing.T, cfg Config) (*Driver, native.Volume) {
	t.Helper()
	drv := NewDriver(cfg)
	return drv, attach(t, drv)
}

// attach initializes a new context on the driver's test volume.
func attach(t *testing.T, drv *Driver) native.Volume {
	t.Helper()
	vol, err := drv.New(cs("testvol"))
	require.NoError(t, err)
	succeeds(t)(vol.SetVolfileServer(cs("tcp"), cs("localhost"), native.DefaultPort))
	succeeds(t)(vol.Init())
	return vol
}

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

func openFails(t *testing.T, want unix.Errno) func(native.FD, error) {
	return func(fd native.FD, err error) {
		t.Helper()
		assert.Nil(t, fd)
		assert.Equal(t, want, err)
	}
}

func writeFile(t *testing.T, vol native.Volume, path, data string) {
	t.Helper()
	fd := opened(t)(vol.Creat(cs(path), unix.O_WRONLY|unix.O_TRUNC, 0o644))
	defer fd.Close()
	n, err := fd.Write([]byte(data), 0)
	require.Equal(t, len(data), n, "write failed: %v", err)
}

func readFile(t *testing.T, vol native.Volume, path string) string {
	t.Helper()
	fd := opened(t)(vol.Open(cs(path), unix.O_RDONLY))
	defer fd.Close()

	var out []byte
	buf := make([]byte, 5)
	for {
		n, err := fd.Read(buf, 0)
		require.GreaterOrEqual(t, n, 0, "read failed: %v", err)
		if n == 0 {
			return string(out)
		}
		out = append(out, buf[:n]...)
	}
}

func stat(t *testing.T, vol native.Volume, path string) unix.Stat_t {
	t.Helper()
	var st unix.Stat_t
	succeeds(t)(vol.Stat(cs(path), &st))
	return st
}

func readNames(t *testing.T, fd native.FD) []string {
	t.Helper()
	var names []string
	for {
		var ent native.Dirent
		ret, err := fd.ReadDirent(&ent)
		require.GreaterOrEqual(t, ret, 0, "readdir failed: %v", err)
		if ret == 0 {
			return names
		}
		names = append(names, string(ent.Name))
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestInit_RequiresVolfileServer(t *testing.T) {
	drv := NewDriver(Config{})
	vol, err := drv.New(cs("testvol"))
	require.NoError(t, err)

	failsWith(t, unix.EINVAL)(vol.Init())
}

func TestInit_UnreachableHost(t *testing.T) {
	drv := NewDriver(Config{Hosts: []string{"gluster1"}})
	vol, err := drv.New(cs("testvol"))
	require.NoError(t, err)

	succeeds(t)(vol.SetVolfileServer(cs("tcp"), cs("localhost"), native.DefaultPort))
	failsWith(t, unix.ENOTCONN)(vol.Init())
}

func TestSetVolfileServer_RejectsTransport(t *testing.T) {
	drv := NewDriver(Config{})
	vol, err := drv.New(cs("testvol"))
	require.NoError(t, err)

	failsWith(t, unix.EINVAL)(vol.SetVolfileServer(cs("carrier-pigeon"), cs("localhost"), native.DefaultPort))
}

func TestCallsBeforeInitFail(t *testing.T) {
	drv := NewDriver(Config{})
	vol, err := drv.New(cs("testvol"))
	require.NoError(t, err)

	failsWith(t, unix.ENOTCONN)(vol.Mkdir(cs("/d"), 0o755))
}

func TestFini(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	fd := opened(t)(vol.Creat(cs("/f"), unix.O_RDWR, 0o644))

	succeeds(t)(vol.Fini())

	var st unix.Stat_t
	failsWith(t, unix.ENOTCONN)(vol.Stat(cs("/f"), &st))
	failsWith(t, unix.EBADF)(fd.Write([]byte("x"), 0))
}

func TestContextsShareVolume(t *testing.T) {
	drv, a := newTestVolume(t, Config{})
	b := attach(t, drv)

	writeFile(t, a, "/shared", "hello")
	assert.Equal(t, "hello", readFile(t, b, "/shared"))
}

// ============================================================================
// Files
// ============================================================================

func TestCreateWriteRead(t *testing.T) {
	_, vol := newTestVolume(t, Config{})

	fd := opened(t)(vol.Creat(cs("/f"), unix.O_RDWR, 0o640))
	n, err := fd.Write([]byte("hello world"), 0)
	require.Equal(t, 11, n, "write: %v", err)

	buf := make([]byte, 5)
	n, err = fd.Pread(buf, 6, 0)
	require.Equal(t, 5, n, "pread: %v", err)
	assert.Equal(t, "world", string(buf))

	// Short read at end of file, then zero.
	n, _ = fd.Pread(buf, 9, 0)
	assert.Equal(t, 2, n)
	n, _ = fd.Pread(buf, 11, 0)
	assert.Equal(t, 0, n)

	var st unix.Stat_t
	succeeds(t)(fd.Fstat(&st))
	assert.EqualValues(t, 11, st.Size)
	assert.EqualValues(t, unix.S_IFREG|0o640, st.Mode)
	assert.EqualValues(t, 1, st.Nlink)

	succeeds(t)(fd.Close())
	failsWith(t, unix.EBADF)(fd.Close())
}

func TestVectorIO(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	fd := opened(t)(vol.Creat(cs("/v"), unix.O_RDWR, 0o644))
	defer fd.Close()

	n, err := fd.Writev([][]byte{[]byte("abc"), []byte("defg")}, 0)
	require.Equal(t, 7, n, "writev: %v", err)

	a, b := make([]byte, 2), make([]byte, 10)
	n, err = fd.Preadv([][]byte{a, b}, 1, 0)
	require.Equal(t, 6, n, "preadv: %v", err)
	assert.Equal(t, "bc", string(a))
	assert.Equal(t, "defg", string(b[:4]))
}

func TestOpenFlags(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	writeFile(t, vol, "/f", "content")
	succeeds(t)(vol.Mkdir(cs("/d"), 0o755))
	succeeds(t)(vol.Symlink(cs("/f"), cs("/link")))

	t.Run("Missing", func(t *testing.T) {
		openFails(t, unix.ENOENT)(vol.Open(cs("/missing"), unix.O_RDONLY))
	})

	t.Run("CreatIgnoredByOpen", func(t *testing.T) {
		openFails(t, unix.ENOENT)(vol.Open(cs("/missing"), unix.O_RDWR|unix.O_CREAT))
	})

	t.Run("Exclusive", func(t *testing.T) {
		openFails(t, unix.EEXIST)(vol.Creat(cs("/f"), unix.O_RDWR|unix.O_EXCL, 0o644))
	})

	t.Run("Truncate", func(t *testing.T) {
		writeFile(t, vol, "/t", "longer content")
		fd := opened(t)(vol.Open(cs("/t"), unix.O_WRONLY|unix.O_TRUNC))
		defer fd.Close()
		assert.EqualValues(t, 0, stat(t, vol, "/t").Size)
	})

	t.Run("Append", func(t *testing.T) {
		writeFile(t, vol, "/a", "one")
		fd := opened(t)(vol.Open(cs("/a"), unix.O_WRONLY|unix.O_APPEND))
		_, _ = fd.Write([]byte("two"), 0)
		fd.Close()
		assert.Equal(t, "onetwo", readFile(t, vol, "/a"))
	})

	t.Run("DirectoryFlagOnFile", func(t *testing.T) {
		openFails(t, unix.ENOTDIR)(vol.Open(cs("/f"), unix.O_RDONLY|unix.O_DIRECTORY))
	})

	t.Run("WriteDirectory", func(t *testing.T) {
		openFails(t, unix.EISDIR)(vol.Open(cs("/d"), unix.O_RDWR))
	})

	t.Run("NoFollow", func(t *testing.T) {
		openFails(t, unix.ELOOP)(vol.Open(cs("/link"), unix.O_RDONLY|unix.O_NOFOLLOW))
		fd := opened(t)(vol.Open(cs("/link"), unix.O_RDONLY))
		fd.Close()
	})

	t.Run("AccessMode", func(t *testing.T) {
		fd := opened(t)(vol.Open(cs("/f"), unix.O_RDONLY))
		defer fd.Close()
		failsWith(t, unix.EBADF)(fd.Write([]byte("x"), 0))

		wfd := opened(t)(vol.Open(cs("/f"), unix.O_WRONLY))
		defer wfd.Close()
		failsWith(t, unix.EBADF)(wfd.Read(make([]byte, 1), 0))
	})
}

func TestUnlinkWhileOpen(t *testing.T) {
	drv, vol := newTestVolume(t, Config{})
	writeFile(t, vol, "/f", "still here")

	fd := opened(t)(vol.Open(cs("/f"), unix.O_RDONLY))
	succeeds(t)(vol.Unlink(cs("/f")))

	var st unix.Stat_t
	failsWith(t, unix.ENOENT)(vol.Stat(cs("/f"), &st))

	buf := make([]byte, 32)
	n, _ := fd.Pread(buf, 0, 0)
	assert.Equal(t, "still here", string(buf[:n]))

	succeeds(t)(fd.Fstat(&st))
	assert.EqualValues(t, 0, st.Nlink)

	succeeds(t)(fd.Close())
	assert.Len(t, drv.volumes["testvol"].inodes, 1, "only the root should remain")
}

func TestDup(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	writeFile(t, vol, "/f", "abcdef")

	fd := opened(t)(vol.Open(cs("/f"), unix.O_RDONLY))
	buf := make([]byte, 2)
	_, _ = fd.Read(buf, 0)

	dup := opened(t)(fd.Dup())
	succeeds(t)(fd.Close())

	n, _ := dup.Read(buf, 0)
	assert.Equal(t, "cd", string(buf[:n]))
	succeeds(t)(dup.Close())
}

func TestLseek(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	writeFile(t, vol, "/f", "0123456789")
	fd := opened(t)(vol.Open(cs("/f"), unix.O_RDONLY))
	defer fd.Close()

	tests := []struct {
		name   string
		offset int64
		whence int
		want   int64
		errno  unix.Errno
	}{
		{"Set", 4, unix.SEEK_SET, 4, 0},
		{"Cur", 2, unix.SEEK_CUR, 6, 0},
		{"End", -2, unix.SEEK_END, 8, 0},
		{"Data", 3, unix.SEEK_DATA, 3, 0},
		{"Hole", 3, unix.SEEK_HOLE, 10, 0},
		{"DataPastEnd", 10, unix.SEEK_DATA, -1, unix.ENXIO},
		{"Negative", -1, unix.SEEK_SET, -1, unix.EINVAL},
		{"BadWhence", 0, 42, -1, unix.EINVAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := fd.Lseek(tt.offset, tt.whence)
			assert.Equal(t, tt.want, pos)
			if tt.errno != 0 {
				assert.Equal(t, tt.errno, err)
			}
		})
	}
}

func TestSpaceOperations(t *testing.T) {
	_, vol := newTestVolume(t, Config{})

	t.Run("FallocateKeepSize", func(t *testing.T) {
		fd := opened(t)(vol.Creat(cs("/k"), unix.O_RDWR, 0o644))
		defer fd.Close()
		succeeds(t)(fd.Fallocate(1, 0, 8192))

		st := stat(t, vol, "/k")
		assert.EqualValues(t, 0, st.Size)
		assert.EqualValues(t, 16, st.Blocks)
	})

	t.Run("FallocateGrows", func(t *testing.T) {
		fd := opened(t)(vol.Creat(cs("/g"), unix.O_RDWR, 0o644))
		defer fd.Close()
		succeeds(t)(fd.Fallocate(0, 0, 100))
		assert.EqualValues(t, 100, stat(t, vol, "/g").Size)
	})

	t.Run("Discard", func(t *testing.T) {
		writeFile(t, vol, "/d", "abcdef")
		fd := opened(t)(vol.Open(cs("/d"), unix.O_RDWR))
		succeeds(t)(fd.Discard(1, 2))
		succeeds(t)(fd.Discard(4, 100))
		fd.Close()
		assert.Equal(t, "a\x00\x00d\x00\x00", readFile(t, vol, "/d"))
	})

	t.Run("Zerofill", func(t *testing.T) {
		writeFile(t, vol, "/z", "abcdef")
		fd := opened(t)(vol.Open(cs("/z"), unix.O_RDWR))
		succeeds(t)(fd.Zerofill(4, 4))
		fd.Close()
		assert.Equal(t, "abcd\x00\x00\x00\x00", readFile(t, vol, "/z"))
	})

	t.Run("Truncate", func(t *testing.T) {
		writeFile(t, vol, "/t", "abcdef")
		succeeds(t)(vol.Truncate(cs("/t"), 3))
		assert.Equal(t, "abc", readFile(t, vol, "/t"))
		succeeds(t)(vol.Truncate(cs("/t"), 5))
		assert.Equal(t, "abc\x00\x00", readFile(t, vol, "/t"))
		failsWith(t, unix.EINVAL)(vol.Truncate(cs("/t"), -1))
		failsWith(t, unix.EISDIR)(vol.Truncate(cs("/"), 0))
	})
}

func TestSparseContent(t *testing.T) {
	content := NewMemoryContentStore()
	_, vol := newTestVolume(t, Config{Content: content})

	fd := opened(t)(vol.Creat(cs("/f"), unix.O_RDWR, 0o644))
	defer fd.Close()

	succeeds(t)(fd.Ftruncate(1 << 39))
	_, err := fd.Pwrite([]byte("tail"), 1<<38, 0)
	require.NoError(t, err)
	succeeds(t)(fd.Zerofill(1<<30, 1<<36))

	assert.EqualValues(t, 1<<39, stat(t, vol, "/f").Size)
	assert.LessOrEqual(t, content.allocated(), int64(memoryChunkSize), "holes must not be backed by memory")

	buf := make([]byte, 8)
	n, err := fd.Pread(buf, 1<<38-4, 0)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	assert.Equal(t, "\x00\x00\x00\x00tail", string(buf))
}

func TestCapacity(t *testing.T) {
	_, vol := newTestVolume(t, Config{Capacity: 3 * blockSize})
	fd := opened(t)(vol.Creat(cs("/f"), unix.O_RDWR, 0o644))
	defer fd.Close()

	_, err := fd.Write(make([]byte, blockSize), 0)
	require.NoError(t, err)
	failsWith(t, unix.ENOSPC)(fd.Pwrite([]byte("x"), 2*blockSize, 0))
}

func TestMaxInodes(t *testing.T) {
	_, vol := newTestVolume(t, Config{MaxInodes: 2})
	succeeds(t)(vol.Mkdir(cs("/one"), 0o755))
	failsWith(t, unix.ENOSPC)(vol.Mkdir(cs("/two"), 0o755))
}

func TestStatvfs(t *testing.T) {
	_, vol := newTestVolume(t, Config{Capacity: 256 * blockSize, MaxInodes: 100})
	writeFile(t, vol, "/f", strings.Repeat("x", blockSize+1))

	var st native.Statvfs
	succeeds(t)(vol.Statvfs(cs("/"), &st))
	assert.EqualValues(t, blockSize, st.Bsize)
	assert.EqualValues(t, 256, st.Blocks)
	assert.EqualValues(t, 253, st.Bfree)
	assert.EqualValues(t, 98, st.Ffree)
	assert.EqualValues(t, nameMax, st.Namemax)
	assert.NotZero(t, st.Fsid)
}

// ============================================================================
// Namespace
// ============================================================================

func TestMkdirRmdir(t *testing.T) {
	_, vol := newTestVolume(t, Config{})

	succeeds(t)(vol.Mkdir(cs("/d"), 0o750))
	st := stat(t, vol, "/d")
	assert.EqualValues(t, unix.S_IFDIR|0o750, st.Mode)
	assert.EqualValues(t, 2, st.Nlink)
	assert.EqualValues(t, 3, stat(t, vol, "/").Nlink)

	failsWith(t, unix.EEXIST)(vol.Mkdir(cs("/d"), 0o755))
	failsWith(t, unix.ENOENT)(vol.Mkdir(cs("/missing/d"), 0o755))

	writeFile(t, vol, "/d/f", "x")
	failsWith(t, unix.ENOTEMPTY)(vol.Rmdir(cs("/d")))
	failsWith(t, unix.ENOTDIR)(vol.Rmdir(cs("/d/f")))
	failsWith(t, unix.EISDIR)(vol.Unlink(cs("/d")))
	failsWith(t, unix.EBUSY)(vol.Rmdir(cs("/")))
	failsWith(t, unix.EINVAL)(vol.Rmdir(cs("/d/.")))

	succeeds(t)(vol.Unlink(cs("/d/f")))
	succeeds(t)(vol.Rmdir(cs("/d")))
	assert.EqualValues(t, 2, stat(t, vol, "/").Nlink)
}

func TestMknod(t *testing.T) {
	_, vol := newTestVolume(t, Config{})

	succeeds(t)(vol.Mknod(cs("/fifo"), unix.S_IFIFO|0o600, 0))
	succeeds(t)(vol.Mknod(cs("/plain"), 0o644, 0))
	succeeds(t)(vol.Mknod(cs("/null"), unix.S_IFCHR|0o666, unix.Mkdev(1, 3)))
	failsWith(t, unix.EINVAL)(vol.Mknod(cs("/dir"), unix.S_IFDIR|0o755, 0))

	assert.EqualValues(t, unix.S_IFIFO, stat(t, vol, "/fifo").Mode&unix.S_IFMT)
	assert.EqualValues(t, unix.S_IFREG, stat(t, vol, "/plain").Mode&unix.S_IFMT)
	assert.EqualValues(t, unix.Mkdev(1, 3), stat(t, vol, "/null").Rdev)
}

func TestSymlinks(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	succeeds(t)(vol.Mkdir(cs("/a"), 0o755))
	succeeds(t)(vol.Mkdir(cs("/a/b"), 0o755))
	writeFile(t, vol, "/a/b/f", "target")

	succeeds(t)(vol.Symlink(cs("a/b"), cs("/s")))
	succeeds(t)(vol.Symlink(cs("/l2"), cs("/l1")))
	succeeds(t)(vol.Symlink(cs("/l1"), cs("/l2")))

	assert.Equal(t, "target", readFile(t, vol, "/s/f"))

	buf := make([]byte, 64)
	n, err := vol.Readlink(cs("/s"), buf)
	require.Equal(t, 3, n, "readlink: %v", err)
	assert.Equal(t, "a/b", string(buf[:n]))
	failsWith(t, unix.EINVAL)(vol.Readlink(cs("/a"), buf))

	var st unix.Stat_t
	succeeds(t)(vol.Lstat(cs("/s"), &st))
	assert.EqualValues(t, unix.S_IFLNK, st.Mode&unix.S_IFMT)
	assert.EqualValues(t, 3, st.Size)

	failsWith(t, unix.ELOOP)(vol.Stat(cs("/l1"), &st))
	succeeds(t)(vol.Lstat(cs("/l1"), &st))

	path := make([]byte, unix.PathMax)
	succeeds(t)(vol.Realpath(cs("/s/../b/f"), path))
	got, err := native.GoString(path)
	require.NoError(t, err)
	assert.Equal(t, "/a/b/f", got)
}

func TestPathLimits(t *testing.T) {
	_, vol := newTestVolume(t, Config{})

	failsWith(t, unix.ENAMETOOLONG)(vol.Mkdir(cs("/"+strings.Repeat("n", nameMax+1)), 0o755))
	succeeds(t)(vol.Mkdir(cs("/"+strings.Repeat("n", nameMax)), 0o755))

	writeFile(t, vol, "/f", "x")
	var st unix.Stat_t
	failsWith(t, unix.ENOTDIR)(vol.Stat(cs("/f/"), &st))
	failsWith(t, unix.ENOTDIR)(vol.Stat(cs("/f/x"), &st))
	failsWith(t, unix.ENOENT)(vol.Stat(cs(""), &st))
}

func TestLink(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	writeFile(t, vol, "/f", "shared")
	succeeds(t)(vol.Mkdir(cs("/d"), 0o755))

	succeeds(t)(vol.Link(cs("/f"), cs("/g")))
	assert.EqualValues(t, 2, stat(t, vol, "/f").Nlink)
	assert.Equal(t, stat(t, vol, "/f").Ino, stat(t, vol, "/g").Ino)

	failsWith(t, unix.EEXIST)(vol.Link(cs("/f"), cs("/g")))
	failsWith(t, unix.EPERM)(vol.Link(cs("/d"), cs("/d2")))

	succeeds(t)(vol.Unlink(cs("/f")))
	assert.Equal(t, "shared", readFile(t, vol, "/g"))
	assert.EqualValues(t, 1, stat(t, vol, "/g").Nlink)
}

func TestRename(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	succeeds(t)(vol.Mkdir(cs("/a"), 0o755))
	succeeds(t)(vol.Mkdir(cs("/a/b"), 0o755))
	succeeds(t)(vol.Mkdir(cs("/full"), 0o755))
	writeFile(t, vol, "/full/f", "x")
	writeFile(t, vol, "/src", "new")
	writeFile(t, vol, "/dst", "old")

	t.Run("ReplaceFile", func(t *testing.T) {
		succeeds(t)(vol.Rename(cs("/src"), cs("/dst")))
		assert.Equal(t, "new", readFile(t, vol, "/dst"))
		var st unix.Stat_t
		failsWith(t, unix.ENOENT)(vol.Stat(cs("/src"), &st))
	})

	t.Run("SameInode", func(t *testing.T) {
		succeeds(t)(vol.Link(cs("/dst"), cs("/hard")))
		succeeds(t)(vol.Rename(cs("/dst"), cs("/hard")))
		assert.EqualValues(t, 2, stat(t, vol, "/dst").Nlink)
	})

	t.Run("IntoOwnSubtree", func(t *testing.T) {
		failsWith(t, unix.EINVAL)(vol.Rename(cs("/a"), cs("/a/b/c")))
	})

	t.Run("FileOverDirectory", func(t *testing.T) {
		failsWith(t, unix.EISDIR)(vol.Rename(cs("/dst"), cs("/a")))
	})

	t.Run("DirectoryOverFile", func(t *testing.T) {
		failsWith(t, unix.ENOTDIR)(vol.Rename(cs("/a"), cs("/dst")))
	})

	t.Run("DirectoryOverNonEmpty", func(t *testing.T) {
		failsWith(t, unix.ENOTEMPTY)(vol.Rename(cs("/a"), cs("/full")))
	})

	t.Run("MoveDirectory", func(t *testing.T) {
		succeeds(t)(vol.Rename(cs("/a/b"), cs("/full/b")))
		assert.EqualValues(t, 2, stat(t, vol, "/a").Nlink)
		assert.EqualValues(t, 3, stat(t, vol, "/full").Nlink)

		succeeds(t)(vol.Chdir(cs("/full/b")))
		buf := make([]byte, 64)
		succeeds(t)(vol.Getcwd(buf))
		cwd, _ := native.GoString(buf)
		assert.Equal(t, "/full/b", cwd)
	})

	t.Run("Missing", func(t *testing.T) {
		failsWith(t, unix.ENOENT)(vol.Rename(cs("/nope"), cs("/other")))
	})
}

func TestWorkingDirectory(t *testing.T) {
	drv, vol := newTestVolume(t, Config{})
	succeeds(t)(vol.Mkdir(cs("/a"), 0o755))
	succeeds(t)(vol.Mkdir(cs("/a/b"), 0o755))

	succeeds(t)(vol.Chdir(cs("/a/b")))
	writeFile(t, vol, "rel", "relative")
	assert.Equal(t, "relative", readFile(t, vol, "/a/b/rel"))
	assert.Equal(t, "relative", readFile(t, vol, "../b/rel"))

	buf := make([]byte, 64)
	succeeds(t)(vol.Getcwd(buf))
	cwd, _ := native.GoString(buf)
	assert.Equal(t, "/a/b", cwd)

	failsWith(t, unix.ERANGE)(vol.Getcwd(make([]byte, 3)))
	failsWith(t, unix.ENOTDIR)(vol.Chdir(cs("rel")))

	// The working directory is per context.
	other := attach(t, drv)
	succeeds(t)(other.Getcwd(buf))
	cwd, _ = native.GoString(buf)
	assert.Equal(t, "/", cwd)

	dir := opened(t)(other.Opendir(cs("/a")))
	defer dir.Close()
	succeeds(t)(dir.Fchdir())
	succeeds(t)(other.Getcwd(buf))
	cwd, _ = native.GoString(buf)
	assert.Equal(t, "/a", cwd)
}

// ============================================================================
// Directory Stream
// ============================================================================

func TestReadDirent(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	succeeds(t)(vol.Mkdir(cs("/d"), 0o755))
	for _, name := range []string{"a", "b", "c"} {
		writeFile(t, vol, "/d/"+name, name)
	}

	fd := opened(t)(vol.Opendir(cs("/d")))
	defer fd.Close()
	assert.Equal(t, []string{".", "..", "a", "b", "c"}, readNames(t, fd))

	openFails(t, unix.ENOTDIR)(vol.Opendir(cs("/d/a")))
}

func TestReadDirent_StableCursor(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	succeeds(t)(vol.Mkdir(cs("/d"), 0o755))
	for _, name := range []string{"a", "b", "c"} {
		writeFile(t, vol, "/d/"+name, name)
	}

	fd := opened(t)(vol.Opendir(cs("/d")))
	defer fd.Close()

	var ent native.Dirent
	for range 3 {
		succeeds(t)(fd.ReadDirent(&ent))
	}
	require.Equal(t, "a", string(ent.Name))

	succeeds(t)(vol.Unlink(cs("/d/a")))
	succeeds(t)(vol.Unlink(cs("/d/b")))

	assert.Equal(t, []string{"c"}, readNames(t, fd))
}

func TestReadDirent_RemovedDirectory(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	succeeds(t)(vol.Mkdir(cs("/d"), 0o755))

	fd := opened(t)(vol.Opendir(cs("/d")))
	defer fd.Close()
	succeeds(t)(vol.Rmdir(cs("/d")))

	assert.Empty(t, readNames(t, fd))
}

// ============================================================================
// Extended Attributes
// ============================================================================

func TestXattr(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	writeFile(t, vol, "/f", "x")
	f := cs("/f")

	t.Run("LargeValue", func(t *testing.T) {
		value := []byte(strings.Repeat("v", 2000))
		succeeds(t)(vol.Setxattr(f, cs("user.big"), value, 0))

		size, _ := vol.Getxattr(f, cs("user.big"), nil)
		assert.Equal(t, 2000, size)
		failsWith(t, unix.ERANGE)(vol.Getxattr(f, cs("user.big"), make([]byte, 10)))

		buf := make([]byte, size)
		n, _ := vol.Getxattr(f, cs("user.big"), buf)
		assert.Equal(t, value, buf[:n])
	})

	t.Run("Flags", func(t *testing.T) {
		succeeds(t)(vol.Setxattr(f, cs("user.k"), []byte("1"), native.XATTR_CREATE))
		failsWith(t, unix.EEXIST)(vol.Setxattr(f, cs("user.k"), []byte("2"), native.XATTR_CREATE))
		failsWith(t, unix.ENODATA)(vol.Setxattr(f, cs("user.none"), []byte("2"), native.XATTR_REPLACE))
		succeeds(t)(vol.Setxattr(f, cs("user.k"), []byte("3"), native.XATTR_REPLACE))
	})

	t.Run("Namespace", func(t *testing.T) {
		failsWith(t, unix.EOPNOTSUPP)(vol.Setxattr(f, cs("bogus.k"), []byte("v"), 0))
		failsWith(t, unix.EOPNOTSUPP)(vol.Setxattr(f, cs("user."), []byte("v"), 0))
	})

	t.Run("GFID", func(t *testing.T) {
		buf := make([]byte, 64)
		n, err := vol.Getxattr(f, cs(gfidStringXattr), buf)
		require.Equal(t, 36, n, "getxattr: %v", err)
		failsWith(t, unix.EPERM)(vol.Setxattr(f, cs(gfidStringXattr), []byte("x"), 0))
	})

	t.Run("List", func(t *testing.T) {
		size, _ := vol.Listxattr(f, nil)
		buf := make([]byte, size)
		n, _ := vol.Listxattr(f, buf)
		assert.Equal(t, "user.big\x00user.k\x00", string(buf[:n]))
	})

	t.Run("Remove", func(t *testing.T) {
		succeeds(t)(vol.Removexattr(f, cs("user.k")))
		failsWith(t, unix.ENODATA)(vol.Removexattr(f, cs("user.k")))
		failsWith(t, unix.ENODATA)(vol.Getxattr(f, cs("user.k"), nil))
	})

	t.Run("SymlinkNoFollow", func(t *testing.T) {
		succeeds(t)(vol.Symlink(cs("/f"), cs("/l")))
		failsWith(t, unix.EPERM)(vol.Lsetxattr(cs("/l"), cs("user.k"), []byte("v"), 0))
		succeeds(t)(vol.Setxattr(cs("/l"), cs("user.through"), []byte("v"), 0))
		succeeds(t)(vol.Getxattr(f, cs("user.through"), nil))
	})

	t.Run("Descriptor", func(t *testing.T) {
		fd := opened(t)(vol.Open(f, unix.O_RDONLY))
		defer fd.Close()
		succeeds(t)(fd.Fsetxattr(cs("user.fd"), []byte("v"), 0))
		succeeds(t)(vol.Getxattr(f, cs("user.fd"), nil))
		succeeds(t)(fd.Fremovexattr(cs("user.fd")))
		failsWith(t, unix.ENODATA)(fd.Fgetxattr(cs("user.fd"), nil))
	})
}

// ============================================================================
// Permissions
// ============================================================================

func TestPermits(t *testing.T) {
	vd := &volumeData{cfg: &Config{Uid: 1000, Gid: 100}}

	owned := &Inode{Mode: unix.S_IFREG | 0o640, Uid: 1000, Gid: 0}
	group := &Inode{Mode: unix.S_IFREG | 0o640, Uid: 0, Gid: 100}
	other := &Inode{Mode: unix.S_IFREG | 0o604, Uid: 0, Gid: 0}

	assert.True(t, vd.permits(owned, mayRead|mayWrite))
	assert.True(t, vd.permits(group, mayRead))
	assert.False(t, vd.permits(group, mayWrite))
	assert.True(t, vd.permits(other, mayRead))
	assert.False(t, vd.permits(other, mayExec))

	root := &volumeData{cfg: &Config{}}
	assert.True(t, root.permits(&Inode{Mode: unix.S_IFREG}, mayRead|mayWrite))
}

func TestUnprivilegedCaller(t *testing.T) {
	_, vol := newTestVolume(t, Config{Uid: 1000, Gid: 1000})

	succeeds(t)(vol.Access(cs("/"), unix.R_OK|unix.X_OK))
	failsWith(t, unix.EACCES)(vol.Access(cs("/"), unix.W_OK))
	failsWith(t, unix.EACCES)(vol.Mkdir(cs("/d"), 0o755))
	failsWith(t, unix.EPERM)(vol.Chmod(cs("/"), 0o777))
	failsWith(t, unix.EPERM)(vol.Chown(cs("/"), 1000, 1000))
	failsWith(t, unix.ENOENT)(vol.Access(cs("/missing"), unix.F_OK))
}

func TestChmodChown(t *testing.T) {
	_, vol := newTestVolume(t, Config{})
	writeFile(t, vol, "/f", "x")

	succeeds(t)(vol.Chmod(cs("/f"), 0o600))
	assert.EqualValues(t, unix.S_IFREG|0o600, stat(t, vol, "/f").Mode)

	succeeds(t)(vol.Chown(cs("/f"), 42, noChange))
	st := stat(t, vol, "/f")
	assert.EqualValues(t, 42, st.Uid)
	assert.EqualValues(t, 0, st.Gid)
}

// ============================================================================
// Persistence
// ============================================================================

func TestReloadFromStores(t *testing.T) {
	meta, content := NewMemoryMetadataStore(), NewMemoryContentStore()

	_, vol := newTestVolume(t, Config{Metadata: meta, Content: content})
	succeeds(t)(vol.Mkdir(cs("/d"), 0o755))
	writeFile(t, vol, "/d/f", "persisted")
	succeeds(t)(vol.Setxattr(cs("/d/f"), cs("user.k"), []byte("v"), 0))
	gfid := make([]byte, 36)
	succeeds(t)(vol.Getxattr(cs("/d/f"), cs(gfidStringXattr), gfid))

	// Unlinked while open: left as an orphan for the next load to reap.
	fd := opened(t)(vol.Creat(cs("/orphan"), unix.O_RDWR, 0o644))
	_, _ = fd.Write([]byte("bytes"), 0)
	succeeds(t)(vol.Unlink(cs("/orphan")))

	drv2, vol2 := newTestVolume(t, Config{Metadata: meta, Content: content})
	assert.Equal(t, "persisted", readFile(t, vol2, "/d/f"))

	buf := make([]byte, 36)
	succeeds(t)(vol2.Getxattr(cs("/d/f"), cs(gfidStringXattr), buf))
	assert.Equal(t, gfid, buf, "gfid must survive a reload")

	assert.Len(t, drv2.volumes["testvol"].inodes, 3, "root, /d and /d/f")
	size, _ := content.Size(t.Context(), drv2.volumes["testvol"].inodes[stat(t, vol2, "/d/f").Ino].contentID())
	assert.EqualValues(t, 9, size)
}
