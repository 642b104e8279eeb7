package gfapi

import (
	"errors"
	"strconv"

	"github.com/marmos91/gfapi/pkg/native"
	"golang.org/x/sys/unix"
)

// ============================================================================
// Error Model
// ============================================================================

// Every failing call returns exactly one error value. Native failures are
// reported as *GlusterError with Code ErrCodeOperation; the error number the
// call observed is kept in Errno and exposed through Unwrap, so callers can
// branch on it with the standard library:
//
//	_, err := client.Stat("/missing")
//	if errors.Is(err, fs.ErrNotExist) {
//	    ...
//	}
//
// Inputs that cannot be marshalled (interior NUL) fail with ErrCodeNul before
// any native call is issued.

// ErrorCode is the coarse kind of a GlusterError.
type ErrorCode int

const (
	// ErrCodeOperation indicates a native call reported failure. Message is
	// rendered from the error number the call observed.
	ErrCodeOperation ErrorCode = iota

	// ErrCodeNul indicates an input path, name or value contained an
	// interior NUL byte. No native call was made.
	ErrCodeNul

	// ErrCodeInvalidUTF8 indicates the backend returned bytes that had to be
	// text and were not valid UTF-8.
	ErrCodeInvalidUTF8

	// ErrCodeIO indicates a failure of a caller-supplied reader or writer
	// used by the convenience copy helpers.
	ErrCodeIO

	// ErrCodeStringConversion indicates a native output buffer that should
	// hold a NUL-terminated string did not.
	ErrCodeStringConversion
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOperation:
		return "operation failed"
	case ErrCodeNul:
		return "invalid path encoding"
	case ErrCodeInvalidUTF8:
		return "invalid utf-8 output"
	case ErrCodeIO:
		return "i/o failure"
	case ErrCodeStringConversion:
		return "string conversion failure"
	default:
		return "unknown"
	}
}

// Sentinels matching each ErrorCode through errors.Is.
var (
	ErrOperation        = errors.New("gfapi: operation failed")
	ErrNulByte          = errors.New("gfapi: interior nul byte")
	ErrInvalidUTF8      = errors.New("gfapi: invalid utf-8 output")
	ErrIO               = errors.New("gfapi: i/o failure")
	ErrStringConversion = errors.New("gfapi: string conversion failure")
)

// Lifecycle errors.
var (
	// ErrClosed is returned when a handle or client is used or released
	// after it has been released.
	ErrClosed = errors.New("gfapi: use of released handle")

	// ErrNotConnected is returned by operations issued after the client has
	// been disconnected.
	ErrNotConnected = errors.New("gfapi: client is not connected")

	// ErrHandlesOpen is returned by Disconnect while files or directories
	// obtained from the client are still open.
	ErrHandlesOpen = errors.New("gfapi: handles still open")
)

// GlusterError is the structured error returned by every fallible operation.
type GlusterError struct {
	// Code is the error kind.
	Code ErrorCode

	// Op is the native call (or client operation) that failed.
	Op string

	// Path is the path or handle name involved, if any.
	Path string

	// Message is the human-readable cause.
	Message string

	// Errno is the error number the native call observed (ErrCodeOperation).
	Errno unix.Errno

	// Err is the underlying cause for construction and I/O failures.
	Err error
}

// Error implements the error interface.
func (e *GlusterError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	path := e.Path
	if e.Code == ErrCodeNul {
		path = strconv.Quote(path)
	}

	switch {
	case e.Op != "" && path != "":
		return e.Op + " " + path + ": " + msg
	case e.Op != "":
		return e.Op + ": " + msg
	default:
		return msg
	}
}

// Unwrap returns the wrapped cause, or the error number for native failures.
func (e *GlusterError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.Errno != 0 {
		return e.Errno
	}
	return nil
}

// Is matches the per-code sentinels.
func (e *GlusterError) Is(target error) bool {
	switch target {
	case ErrOperation:
		return e.Code == ErrCodeOperation
	case ErrNulByte:
		return e.Code == ErrCodeNul
	case ErrInvalidUTF8:
		return e.Code == ErrCodeInvalidUTF8
	case ErrIO:
		return e.Code == ErrCodeIO
	case ErrStringConversion:
		return e.Code == ErrCodeStringConversion
	}
	return false
}

// getError renders the error number a failed native call observed.
//
// It must only be called with the error captured by the call that just
// reported failure.
func getError(err error) (unix.Errno, string) {
	errno := native.ErrnoOf(err)
	return errno, errno.Error()
}

// newOpError builds the error for a native call that reported failure.
func newOpError(op, path string, err error) *GlusterError {
	errno, msg := getError(err)
	return &GlusterError{
		Code:    ErrCodeOperation,
		Op:      op,
		Path:    path,
		Message: msg,
		Errno:   errno,
	}
}

// newError builds an operation error with a fixed message.
func newError(op, msg string) *GlusterError {
	return &GlusterError{Code: ErrCodeOperation, Op: op, Message: msg}
}

// marshal converts s to its native form, failing with ErrCodeNul on an
// interior NUL byte.
func marshal(op, s string) (native.CString, error) {
	c, err := native.NewCString(s)
	if err != nil {
		return nil, &GlusterError{Code: ErrCodeNul, Op: op, Path: s, Err: err}
	}
	return c, nil
}

// marshal2 converts both endpoints of a two-path call before any native call.
func marshal2(op, a, b string) (native.CString, native.CString, error) {
	ca, err := marshal(op, a)
	if err != nil {
		return nil, nil, err
	}
	cb, err := marshal(op, b)
	if err != nil {
		return nil, nil, err
	}
	return ca, cb, nil
}

// ioError wraps a failure of a caller-supplied reader or writer.
func ioError(op, path string, err error) *GlusterError {
	return &GlusterError{Code: ErrCodeIO, Op: op, Path: path, Err: err}
}

// closedError reports use of a released handle.
func closedError(op, path string) *GlusterError {
	return &GlusterError{Code: ErrCodeOperation, Op: op, Path: path, Err: ErrClosed}
}
