package gfapi

import (
	"context"
	"time"

	"github.com/marmos91/gfapi/internal/logger"
	"github.com/marmos91/gfapi/pkg/native"
)

// ============================================================================
// Dispatch
// ============================================================================

// Every native call of a connected client goes through begin/end. The error
// number a call reports is captured together with its result, so nothing is
// read from shared state after the call returns.
//
// Lock order: handleState.mu, then lifecycle.mu, then the serial mutex,
// then Client.mu.

// begin admits one native call. On success the returned function must be
// called once the native call has returned.
func (c *Client) begin(op, path string) (native.Volume, func(), error) {
	c.life.mu.RLock()
	if c.life.closed {
		c.life.mu.RUnlock()
		return nil, nil, &GlusterError{
			Code:    ErrCodeOperation,
			Op:      op,
			Path:    path,
			Message: ErrNotConnected.Error(),
			Err:     ErrNotConnected,
		}
	}

	if c.limiter != nil {
		// Background context: calls are synchronous and never cancelled.
		if err := c.limiter.Wait(context.Background()); err != nil {
			c.life.mu.RUnlock()
			return nil, nil, &GlusterError{Code: ErrCodeOperation, Op: op, Path: path, Err: err}
		}
	}
	if c.serial != nil {
		c.serial.Lock()
	}

	return c.life.vol, func() {
		if c.serial != nil {
			c.serial.Unlock()
		}
		c.life.mu.RUnlock()
	}, nil
}

// end records a finished native call.
func (c *Client) end(op, path string, start time.Time, err error) {
	c.metrics.ObserveOperation(op, time.Since(start), errnoOrNil(err))
	if err != nil {
		logger.Debug("gfapi: %s %s failed: %v", op, path, err)
	}
}

// invoke issues one native call returning an int result. A negative result
// becomes an operation error carrying the error number the call reported.
func (c *Client) invoke(op, path string, fn func(vol native.Volume) (int, error)) (int, error) {
	vol, done, err := c.begin(op, path)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	ret, cerr := fn(vol)
	done()

	if ret < 0 {
		e := newOpError(op, path, cerr)
		c.end(op, path, start, e)
		return 0, e
	}
	c.end(op, path, start, nil)
	return ret, nil
}

// invoke64 is invoke for calls with a 64-bit result (lseek).
func (c *Client) invoke64(op, path string, fn func(vol native.Volume) (int64, error)) (int64, error) {
	vol, done, err := c.begin(op, path)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	ret, cerr := fn(vol)
	done()

	if ret < 0 {
		e := newOpError(op, path, cerr)
		c.end(op, path, start, e)
		return 0, e
	}
	c.end(op, path, start, nil)
	return ret, nil
}

// invokeFD issues one native call returning a capability and registers the
// new handle. A nil capability is a failure like a negative result.
//
// The handle is registered before the call is admitted as finished, so a
// concurrent Disconnect either runs first or sees the handle.
func (c *Client) invokeFD(op, path string, kind handleKind, fn func(vol native.Volume) (native.FD, error)) (*handleState, error) {
	vol, done, err := c.begin(op, path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	fd, cerr := fn(vol)
	if fd == nil {
		done()
		e := newOpError(op, path, cerr)
		c.end(op, path, start, e)
		return nil, e
	}
	st := newHandleState(c, kind, path, fd)
	done()

	c.end(op, path, start, nil)
	return st, nil
}

func errnoOrNil(err error) error {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*GlusterError); ok && ge.Errno != 0 {
		return ge.Errno
	}
	return err
}
