package native

import (
	"bytes"
	"errors"
	"fmt"
)

// CString is the marshalled form of a path, name or value handed to a
// backend: the original bytes followed by exactly one NUL terminator.
//
// INVARIANT: len(c) >= 1, c[len(c)-1] == 0, no other byte of c is 0.
type CString []byte

// NulError reports an interior NUL byte in a string that must be marshalled.
type NulError struct {
	// Pos is the index of the first NUL byte in Data.
	Pos int

	// Data is the rejected input.
	Data []byte
}

func (e *NulError) Error() string {
	return fmt.Sprintf("nul byte found in provided data at position: %d", e.Pos)
}

// ErrNotTerminated is returned when a native buffer that should hold a
// NUL-terminated string contains no terminator.
var ErrNotTerminated = errors.New("native string is not NUL-terminated")

// NewCString marshals s, rejecting interior NUL bytes.
func NewCString(s string) (CString, error) {
	if i := bytes.IndexByte([]byte(s), 0); i >= 0 {
		return nil, &NulError{Pos: i, Data: []byte(s)}
	}

	c := make(CString, len(s)+1)
	copy(c, s)
	return c, nil
}

// MustCString is NewCString for compile-time constants. It panics on an
// interior NUL.
func MustCString(s string) CString {
	c, err := NewCString(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the marshalled bytes without the terminator.
func (c CString) String() string {
	return string(c.Bytes())
}

// Bytes returns the marshalled bytes without the terminator.
func (c CString) Bytes() []byte {
	if len(c) == 0 {
		return nil
	}
	return c[:len(c)-1]
}

// GoString decodes a NUL-terminated string from a native output buffer.
func GoString(buf []byte) (string, error) {
	i := bytes.IndexByte(buf, 0)
	if i < 0 {
		return "", ErrNotTerminated
	}
	return string(buf[:i]), nil
}

// PutString writes s NUL-terminated into buf, as a C library would for an
// output path. It reports false when buf is too small.
func PutString(buf []byte, s string) bool {
	if len(s)+1 > len(buf) {
		return false
	}
	copy(buf, s)
	buf[len(s)] = 0
	return true
}
