package gfapi

import (
	"sync"

	"github.com/marmos91/gfapi/internal/logger"
	"github.com/marmos91/gfapi/pkg/native"
)

type handleKind string

const (
	kindFile      handleKind = "file"
	kindDirectory handleKind = "directory"
)

// handleState is the releasable part of a File or Directory. The client
// registry and the leak cleanup hold the state, never the File or Directory
// itself, so an unreachable handle can still be collected.
type handleState struct {
	id     uint64
	kind   handleKind
	name   string
	client *Client

	// mu is held for reading by calls on the descriptor and for writing by
	// release.
	mu     sync.RWMutex
	fd     native.FD
	closed bool
}

func newHandleState(c *Client, kind handleKind, name string, fd native.FD) *handleState {
	st := &handleState{kind: kind, name: name, client: c, fd: fd}
	c.register(st)
	return st
}

// call issues one native call on the descriptor.
func (st *handleState) call(op string, fn func(fd native.FD) (int, error)) (int, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if st.closed {
		return 0, closedError(op, st.name)
	}
	return st.client.invoke(op, st.name, func(native.Volume) (int, error) {
		return fn(st.fd)
	})
}

func (st *handleState) call64(op string, fn func(fd native.FD) (int64, error)) (int64, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if st.closed {
		return 0, closedError(op, st.name)
	}
	return st.client.invoke64(op, st.name, func(native.Volume) (int64, error) {
		return fn(st.fd)
	})
}

// callFD issues a native call on the descriptor that yields a new handle
// of the same kind (dup).
func (st *handleState) callFD(op string, fn func(fd native.FD) (native.FD, error)) (*handleState, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if st.closed {
		return nil, closedError(op, st.name)
	}
	return st.client.invokeFD(op, st.name, st.kind, func(native.Volume) (native.FD, error) {
		return fn(st.fd)
	})
}

// release closes the descriptor exactly once. The handle is considered
// released even if the native close reports failure, as with close(2).
func (st *handleState) release() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return closedError("glfs_close", st.name)
	}

	fd := st.fd
	_, err := st.client.invoke("glfs_close", st.name, func(native.Volume) (int, error) {
		return fd.Close()
	})
	st.closed = true
	st.fd = nil
	st.client.forget(st)
	return err
}

// leaked releases a handle whose File or Directory became unreachable.
func (st *handleState) leaked() {
	st.mu.RLock()
	closed := st.closed
	st.mu.RUnlock()
	if closed {
		return
	}

	logger.Warn("gfapi: %s %s was not closed; releasing", st.kind, st.name)
	if err := st.release(); err != nil {
		logger.Debug("gfapi: release of leaked %s %s: %v", st.kind, st.name, err)
	}
}
