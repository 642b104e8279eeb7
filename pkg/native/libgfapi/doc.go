// Package libgfapi binds the native surface to the GlusterFS client library.
//
// The binding is compiled only with cgo and the "gfapi" build tag:
//
//	go build -tags gfapi ./...
//
// It needs the glusterfs-api development package (pkg-config name
// "glusterfs-api", GlusterFS 6 or later). Builds without the tag get a
// driver whose allocations fail with ENOSYS, so the rest of the module
// builds and tests without the library installed.
package libgfapi
