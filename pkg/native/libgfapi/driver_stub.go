//go:build !(cgo && gfapi)

package libgfapi

import (
	"github.com/marmos91/gfapi/pkg/native"
	"golang.org/x/sys/unix"
)

// Available reports whether this build carries the libgfapi binding.
const Available = false

type driver struct{}

// Driver returns the libgfapi driver. This build was made without the
// "gfapi" tag (or without cgo), so every allocation fails with ENOSYS.
func Driver() native.Driver { return driver{} }

func (driver) Name() string { return "gfapi" }

func (driver) New(native.CString) (native.Volume, error) {
	return nil, unix.ENOSYS
}
