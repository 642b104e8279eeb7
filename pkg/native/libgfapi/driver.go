//go:build cgo && gfapi

package libgfapi

/*
#cgo pkg-config: glusterfs-api
#include <stdlib.h>
#include <sys/stat.h>
#include <sys/statvfs.h>
#include <sys/uio.h>
#include <dirent.h>
#include <glusterfs/api/glfs.h>
*/
import "C"

import (
	"runtime"
	"unsafe"

	"github.com/marmos91/gfapi/pkg/native"
	"golang.org/x/sys/unix"
)

// Available reports whether this build carries the libgfapi binding.
const Available = true

type driver struct{}

// Driver returns the libgfapi driver.
func Driver() native.Driver { return driver{} }

func (driver) Name() string { return "gfapi" }

func (driver) New(volname native.CString) (native.Volume, error) {
	fs, err := C.glfs_new(cstr(volname))
	if fs == nil {
		return nil, err
	}
	return &volume{fs: fs}, nil
}

// cstr passes a marshalled string to C. The backing array stays reachable
// for the duration of the call through the caller's argument.
func cstr(s native.CString) *C.char {
	if len(s) == 0 {
		return nil
	}
	return (*C.char)(unsafe.Pointer(&s[0]))
}

func ptr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

// iovecs copies bufs into a C iovec array. The buffers are pinned so their
// addresses may be stored in C memory; call the returned function once the
// native call has returned.
func iovecs(bufs [][]byte) (*C.struct_iovec, C.int, func()) {
	if len(bufs) == 0 {
		return nil, 0, func() {}
	}

	var pinner runtime.Pinner
	arr := (*C.struct_iovec)(C.malloc(C.size_t(len(bufs)) * C.size_t(unsafe.Sizeof(C.struct_iovec{}))))
	iov := unsafe.Slice(arr, len(bufs))
	for i, b := range bufs {
		if len(b) == 0 {
			iov[i].iov_base = nil
			iov[i].iov_len = 0
			continue
		}
		pinner.Pin(&b[0])
		iov[i].iov_base = unsafe.Pointer(&b[0])
		iov[i].iov_len = C.size_t(len(b))
	}

	return arr, C.int(len(bufs)), func() {
		C.free(unsafe.Pointer(arr))
		pinner.Unpin()
	}
}

func result(ret C.int, err error) (int, error) {
	return int(ret), err
}

func sresult(ret C.ssize_t, err error) (int, error) {
	return int(ret), err
}

// ============================================================================
// Volume
// ============================================================================

type volume struct {
	fs *C.glfs_t
}

func (v *volume) SetVolfileServer(transport, host native.CString, port int) (int, error) {
	return result(C.glfs_set_volfile_server(v.fs, cstr(transport), cstr(host), C.int(port)))
}

func (v *volume) SetLogging(logfile native.CString, loglevel int) (int, error) {
	return result(C.glfs_set_logging(v.fs, cstr(logfile), C.int(loglevel)))
}

func (v *volume) Init() (int, error) { return result(C.glfs_init(v.fs)) }

func (v *volume) Fini() (int, error) { return result(C.glfs_fini(v.fs)) }

func (v *volume) Open(path native.CString, flags int) (native.FD, error) {
	fd, err := C.glfs_open(v.fs, cstr(path), C.int(flags))
	if fd == nil {
		return nil, err
	}
	return &file{fd: fd}, nil
}

func (v *volume) Creat(path native.CString, flags int, mode uint32) (native.FD, error) {
	fd, err := C.glfs_creat(v.fs, cstr(path), C.int(flags), C.mode_t(mode))
	if fd == nil {
		return nil, err
	}
	return &file{fd: fd}, nil
}

func (v *volume) Opendir(path native.CString) (native.FD, error) {
	fd, err := C.glfs_opendir(v.fs, cstr(path))
	if fd == nil {
		return nil, err
	}
	return &file{fd: fd}, nil
}

func (v *volume) Truncate(path native.CString, length int64) (int, error) {
	return result(C.glfs_truncate(v.fs, cstr(path), C.off_t(length)))
}

func (v *volume) Lstat(path native.CString, st *unix.Stat_t) (int, error) {
	return result(C.glfs_lstat(v.fs, cstr(path), (*C.struct_stat)(unsafe.Pointer(st))))
}

func (v *volume) Stat(path native.CString, st *unix.Stat_t) (int, error) {
	return result(C.glfs_stat(v.fs, cstr(path), (*C.struct_stat)(unsafe.Pointer(st))))
}

func (v *volume) Statvfs(path native.CString, st *native.Statvfs) (int, error) {
	var cst C.struct_statvfs
	ret, err := C.glfs_statvfs(v.fs, cstr(path), &cst)
	if ret == 0 {
		*st = native.Statvfs{
			Bsize:   uint64(cst.f_bsize),
			Frsize:  uint64(cst.f_frsize),
			Blocks:  uint64(cst.f_blocks),
			Bfree:   uint64(cst.f_bfree),
			Bavail:  uint64(cst.f_bavail),
			Files:   uint64(cst.f_files),
			Ffree:   uint64(cst.f_ffree),
			Favail:  uint64(cst.f_favail),
			Fsid:    uint64(cst.f_fsid),
			Flag:    uint64(cst.f_flag),
			Namemax: uint64(cst.f_namemax),
		}
	}
	return result(ret, err)
}

func (v *volume) Access(path native.CString, mode int) (int, error) {
	return result(C.glfs_access(v.fs, cstr(path), C.int(mode)))
}

func (v *volume) Chmod(path native.CString, mode uint32) (int, error) {
	return result(C.glfs_chmod(v.fs, cstr(path), C.mode_t(mode)))
}

func (v *volume) Chown(path native.CString, uid, gid uint32) (int, error) {
	return result(C.glfs_chown(v.fs, cstr(path), C.uid_t(uid), C.gid_t(gid)))
}

func (v *volume) Symlink(oldpath, newpath native.CString) (int, error) {
	return result(C.glfs_symlink(v.fs, cstr(oldpath), cstr(newpath)))
}

func (v *volume) Readlink(path native.CString, buf []byte) (int, error) {
	return result(C.glfs_readlink(v.fs, cstr(path), (*C.char)(ptr(buf)), C.size_t(len(buf))))
}

func (v *volume) Mknod(path native.CString, mode uint32, dev uint64) (int, error) {
	return result(C.glfs_mknod(v.fs, cstr(path), C.mode_t(mode), C.dev_t(dev)))
}

func (v *volume) Mkdir(path native.CString, mode uint32) (int, error) {
	return result(C.glfs_mkdir(v.fs, cstr(path), C.mode_t(mode)))
}

func (v *volume) Unlink(path native.CString) (int, error) {
	return result(C.glfs_unlink(v.fs, cstr(path)))
}

func (v *volume) Rmdir(path native.CString) (int, error) {
	return result(C.glfs_rmdir(v.fs, cstr(path)))
}

func (v *volume) Rename(oldpath, newpath native.CString) (int, error) {
	return result(C.glfs_rename(v.fs, cstr(oldpath), cstr(newpath)))
}

func (v *volume) Link(oldpath, newpath native.CString) (int, error) {
	return result(C.glfs_link(v.fs, cstr(oldpath), cstr(newpath)))
}

func (v *volume) Getxattr(path, name native.CString, value []byte) (int, error) {
	return sresult(C.glfs_getxattr(v.fs, cstr(path), cstr(name), ptr(value), C.size_t(len(value))))
}

func (v *volume) Lgetxattr(path, name native.CString, value []byte) (int, error) {
	return sresult(C.glfs_lgetxattr(v.fs, cstr(path), cstr(name), ptr(value), C.size_t(len(value))))
}

func (v *volume) Listxattr(path native.CString, list []byte) (int, error) {
	return sresult(C.glfs_listxattr(v.fs, cstr(path), ptr(list), C.size_t(len(list))))
}

func (v *volume) Llistxattr(path native.CString, list []byte) (int, error) {
	return sresult(C.glfs_llistxattr(v.fs, cstr(path), ptr(list), C.size_t(len(list))))
}

func (v *volume) Setxattr(path, name native.CString, value []byte, flags int) (int, error) {
	return result(C.glfs_setxattr(v.fs, cstr(path), cstr(name), ptr(value), C.size_t(len(value)), C.int(flags)))
}

func (v *volume) Lsetxattr(path, name native.CString, value []byte, flags int) (int, error) {
	return result(C.glfs_lsetxattr(v.fs, cstr(path), cstr(name), ptr(value), C.size_t(len(value)), C.int(flags)))
}

func (v *volume) Removexattr(path, name native.CString) (int, error) {
	return result(C.glfs_removexattr(v.fs, cstr(path), cstr(name)))
}

func (v *volume) Lremovexattr(path, name native.CString) (int, error) {
	return result(C.glfs_lremovexattr(v.fs, cstr(path), cstr(name)))
}

func (v *volume) Getcwd(buf []byte) (int, error) {
	ret, err := C.glfs_getcwd(v.fs, (*C.char)(ptr(buf)), C.size_t(len(buf)))
	if ret == nil {
		return -1, err
	}
	return 0, nil
}

func (v *volume) Realpath(path native.CString, buf []byte) (int, error) {
	if len(buf) < unix.PathMax {
		return native.Fail(unix.ERANGE)
	}
	ret, err := C.glfs_realpath(v.fs, cstr(path), (*C.char)(ptr(buf)))
	if ret == nil {
		return -1, err
	}
	return 0, nil
}

func (v *volume) Chdir(path native.CString) (int, error) {
	return result(C.glfs_chdir(v.fs, cstr(path)))
}

// ============================================================================
// FD
// ============================================================================

type file struct {
	fd *C.glfs_fd_t

	// dirent and next are allocated in C memory on the first ReadDirent.
	dirent *C.struct_dirent
	next   **C.struct_dirent
}

func (f *file) Close() (int, error) {
	ret, err := C.glfs_close(f.fd)
	if f.dirent != nil {
		C.free(unsafe.Pointer(f.dirent))
		C.free(unsafe.Pointer(f.next))
		f.dirent, f.next = nil, nil
	}
	return result(ret, err)
}

func (f *file) Read(buf []byte, flags int) (int, error) {
	return sresult(C.glfs_read(f.fd, ptr(buf), C.size_t(len(buf)), C.int(flags)))
}

func (f *file) Write(buf []byte, flags int) (int, error) {
	return sresult(C.glfs_write(f.fd, ptr(buf), C.size_t(len(buf)), C.int(flags)))
}

func (f *file) Readv(bufs [][]byte, flags int) (int, error) {
	iov, cnt, done := iovecs(bufs)
	defer done()
	return sresult(C.glfs_readv(f.fd, iov, cnt, C.int(flags)))
}

func (f *file) Writev(bufs [][]byte, flags int) (int, error) {
	iov, cnt, done := iovecs(bufs)
	defer done()
	return sresult(C.glfs_writev(f.fd, iov, cnt, C.int(flags)))
}

func (f *file) Pread(buf []byte, offset int64, flags int) (int, error) {
	return sresult(C.glfs_pread(f.fd, ptr(buf), C.size_t(len(buf)), C.off_t(offset), C.int(flags), nil))
}

func (f *file) Pwrite(buf []byte, offset int64, flags int) (int, error) {
	return sresult(C.glfs_pwrite(f.fd, ptr(buf), C.size_t(len(buf)), C.off_t(offset), C.int(flags), nil, nil))
}

func (f *file) Preadv(bufs [][]byte, offset int64, flags int) (int, error) {
	iov, cnt, done := iovecs(bufs)
	defer done()
	return sresult(C.glfs_preadv(f.fd, iov, cnt, C.off_t(offset), C.int(flags)))
}

func (f *file) Pwritev(bufs [][]byte, offset int64, flags int) (int, error) {
	iov, cnt, done := iovecs(bufs)
	defer done()
	return sresult(C.glfs_pwritev(f.fd, iov, cnt, C.off_t(offset), C.int(flags)))
}

func (f *file) Lseek(offset int64, whence int) (int64, error) {
	ret, err := C.glfs_lseek(f.fd, C.off_t(offset), C.int(whence))
	return int64(ret), err
}

func (f *file) Ftruncate(length int64) (int, error) {
	return result(C.glfs_ftruncate(f.fd, C.off_t(length), nil, nil))
}

func (f *file) Fallocate(keepSize int, offset, length int64) (int, error) {
	return result(C.glfs_fallocate(f.fd, C.int(keepSize), C.off_t(offset), C.size_t(length)))
}

func (f *file) Discard(offset, length int64) (int, error) {
	return result(C.glfs_discard(f.fd, C.off_t(offset), C.size_t(length)))
}

func (f *file) Zerofill(offset, length int64) (int, error) {
	return result(C.glfs_zerofill(f.fd, C.off_t(offset), C.off_t(length)))
}

func (f *file) Fstat(st *unix.Stat_t) (int, error) {
	return result(C.glfs_fstat(f.fd, (*C.struct_stat)(unsafe.Pointer(st))))
}

func (f *file) Fsync() (int, error) {
	return result(C.glfs_fsync(f.fd, nil, nil))
}

func (f *file) Fdatasync() (int, error) {
	return result(C.glfs_fdatasync(f.fd, nil, nil))
}

func (f *file) Fgetxattr(name native.CString, value []byte) (int, error) {
	return sresult(C.glfs_fgetxattr(f.fd, cstr(name), ptr(value), C.size_t(len(value))))
}

func (f *file) Flistxattr(list []byte) (int, error) {
	return sresult(C.glfs_flistxattr(f.fd, ptr(list), C.size_t(len(list))))
}

func (f *file) Fsetxattr(name native.CString, value []byte, flags int) (int, error) {
	return result(C.glfs_fsetxattr(f.fd, cstr(name), ptr(value), C.size_t(len(value)), C.int(flags)))
}

func (f *file) Fremovexattr(name native.CString) (int, error) {
	return result(C.glfs_fremovexattr(f.fd, cstr(name)))
}

func (f *file) Fchdir() (int, error) {
	return result(C.glfs_fchdir(f.fd))
}

func (f *file) Dup() (native.FD, error) {
	fd, err := C.glfs_dup(f.fd)
	if fd == nil {
		return nil, err
	}
	return &file{fd: fd}, nil
}

func (f *file) ReadDirent(ent *native.Dirent) (int, error) {
	if f.dirent == nil {
		f.dirent = (*C.struct_dirent)(C.malloc(C.size_t(unsafe.Sizeof(C.struct_dirent{}))))
		f.next = (**C.struct_dirent)(C.malloc(C.size_t(unsafe.Sizeof(uintptr(0)))))
	}

	ret, err := C.glfs_readdir_r(f.fd, f.dirent, f.next)
	if ret != 0 {
		if ret > 0 {
			// readdir_r reports the error number as its result.
			return -1, unix.Errno(ret)
		}
		return -1, err
	}
	if *f.next == nil {
		return 0, nil
	}

	d := *f.next
	ent.Ino = uint64(d.d_ino)
	ent.Off = int64(d.d_off)
	ent.Type = uint8(d.d_type)
	ent.Name = []byte(C.GoString(&d.d_name[0]))
	return 1, nil
}
