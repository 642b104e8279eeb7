package gfapi

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/marmos91/gfapi/internal/logger"
	"github.com/marmos91/gfapi/internal/ratelimiter"
	"github.com/marmos91/gfapi/pkg/metrics"
	"github.com/marmos91/gfapi/pkg/native"
	"github.com/marmos91/gfapi/pkg/probe"
)

// Client is a connection to one volume (ClusterConnection).
//
// A Client owns exactly one native context. It is released by Disconnect,
// by Close, or by a cleanup once the Client becomes unreachable. Files and
// directories opened through the client must be closed before Disconnect;
// Close closes them itself.
//
// Thread safety:
// Client methods are safe for concurrent use. Whether the native calls
// themselves may overlap depends on the backend; WithSerializedCalls makes
// the client issue them one at a time.
type Client struct {
	volume string
	server string
	port   uint16
	driver string

	life    *lifecycle
	metrics metrics.ClientMetrics
	limiter *ratelimiter.RateLimiter
	serial  *sync.Mutex

	// mu protects handles and nextID.
	mu      sync.Mutex
	handles map[uint64]*handleState
	nextID  uint64

	cleanup runtime.Cleanup
}

// lifecycle is the part of a Client the release cleanup needs. It must not
// reference the Client itself.
type lifecycle struct {
	mu     sync.RWMutex
	vol    native.Volume
	closed bool
	volume string
}

// Connect allocates a native context for volume, points it at the volfile
// server host:port over tcp and initializes it.
//
// Inputs containing a NUL byte fail with ErrCodeNul before any native call.
// On any failure nothing is left to release.
func Connect(volume, server string, port uint16, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cvol, err := marshal("glfs_new", volume)
	if err != nil {
		return nil, err
	}
	transport := native.MustCString(native.Transport)
	chost, err := marshal("glfs_set_volfile_server", server)
	if err != nil {
		return nil, err
	}
	var clog native.CString
	if o.setLogging && o.logFile != "" {
		if clog, err = marshal("glfs_set_logging", o.logFile); err != nil {
			return nil, err
		}
	}

	if o.probe {
		ctx, cancel := context.WithTimeout(context.Background(), o.probeTimeout)
		err := probe.Probe(ctx, server, int(port))
		cancel()
		if err != nil {
			o.metrics.RecordConnection("failed")
			logger.Debug("gfapi: volfile server %s:%d unreachable: %v", server, port, err)
			return nil, &GlusterError{
				Code:    ErrCodeOperation,
				Op:      "probe",
				Path:    server,
				Message: err.Error(),
				Errno:   probe.Errno(err),
				Err:     err,
			}
		}
	}

	start := time.Now()
	vol, err := o.driver.New(cvol)
	o.metrics.ObserveOperation("glfs_new", time.Since(start), errIf(vol == nil, err))
	if vol == nil {
		o.metrics.RecordConnection("failed")
		e := newError("glfs_new", "glfs_new failed")
		e.Path = volume
		if err != nil {
			e.Errno = native.ErrnoOf(err)
		}
		return nil, e
	}

	// fail releases the half-built context. The error number has already
	// been captured by the caller.
	fail := func(e *GlusterError) (*Client, error) {
		_, _ = vol.Fini()
		o.metrics.RecordConnection("failed")
		logger.Debug("gfapi: connect %s@%s:%d failed: %v", volume, server, port, e)
		return nil, e
	}

	if o.setLogging {
		if ret, err := timed(o.metrics, "glfs_set_logging", func() (int, error) {
			return vol.SetLogging(clog, o.logLevel)
		}); ret < 0 {
			return fail(newOpError("glfs_set_logging", o.logFile, err))
		}
	}
	if ret, err := timed(o.metrics, "glfs_set_volfile_server", func() (int, error) {
		return vol.SetVolfileServer(transport, chost, int(port))
	}); ret < 0 {
		return fail(newOpError("glfs_set_volfile_server", server, err))
	}
	if ret, err := timed(o.metrics, "glfs_init", vol.Init); ret < 0 {
		return fail(newOpError("glfs_init", volume, err))
	}

	c := &Client{
		volume:  volume,
		server:  server,
		port:    port,
		driver:  o.driver.Name(),
		life:    &lifecycle{vol: vol, volume: volume},
		metrics: o.metrics,
		handles: make(map[uint64]*handleState),
	}
	if o.serialize {
		c.serial = &sync.Mutex{}
	}
	if o.throttleOps > 0 {
		c.limiter = ratelimiter.New(o.throttleOps, o.throttleBurst)
	}
	c.cleanup = runtime.AddCleanup(c, func(l *lifecycle) { l.leaked() }, c.life)

	o.metrics.RecordConnection("connected")
	logger.Info("gfapi: connected to volume %s on %s:%d (driver %s)", volume, server, port, c.driver)
	return c, nil
}

// Volume returns the volume name.
func (c *Client) Volume() string { return c.volume }

// Server returns the volfile server host.
func (c *Client) Server() string { return c.server }

// Port returns the volfile server port.
func (c *Client) Port() uint16 { return c.port }

// OpenHandles returns the number of files and directories opened through the
// client and not yet released.
func (c *Client) OpenHandles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Disconnect releases the native context.
//
// It refuses with ErrHandlesOpen while files or directories obtained from
// the client are still open, and returns ErrClosed if the client has already
// been released.
func (c *Client) Disconnect() error {
	return c.release(func() error {
		if c.OpenHandles() > 0 {
			return &GlusterError{
				Code:    ErrCodeOperation,
				Op:      "glfs_fini",
				Path:    c.volume,
				Message: ErrHandlesOpen.Error(),
				Err:     ErrHandlesOpen,
			}
		}
		return nil
	})
}

// Close closes every outstanding handle and releases the native context.
//
// Errors closing handles are joined with the release error. Calling Close on
// a released client returns ErrClosed.
func (c *Client) Close() error {
	var errs []error

	// Handles opened concurrently with Close are picked up by the next pass.
	for pass := 0; pass < 3; pass++ {
		states := c.snapshot()
		if len(states) == 0 {
			break
		}
		for _, st := range states {
			logger.Debug("gfapi: closing outstanding %s handle %s", st.kind, st.name)
			if err := st.release(); err != nil && !errors.Is(err, ErrClosed) {
				errs = append(errs, err)
			}
		}
	}

	if err := c.release(nil); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// release runs glfs_fini exactly once. check, when set, runs with every
// native call excluded and may refuse the release.
func (c *Client) release(check func() error) error {
	c.life.mu.Lock()
	defer c.life.mu.Unlock()

	if c.life.closed {
		return closedError("glfs_fini", c.volume)
	}
	if check != nil {
		if err := check(); err != nil {
			return err
		}
	}
	c.life.closed = true
	c.cleanup.Stop()

	vol := c.life.vol
	c.life.vol = nil

	ret, err := timed(c.metrics, "glfs_fini", vol.Fini)
	c.metrics.RecordConnection("disconnected")
	if ret < 0 {
		e := newOpError("glfs_fini", c.volume, err)
		logger.Warn("gfapi: disconnect from volume %s: %v", c.volume, e)
		return e
	}

	logger.Info("gfapi: disconnected from volume %s", c.volume)
	return nil
}

// leaked releases a context whose Client became unreachable without being
// closed. It runs on the runtime's cleanup goroutine.
func (l *lifecycle) leaked() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	logger.Warn("gfapi: client for volume %s was not closed; releasing", l.volume)
	if l.vol != nil {
		_, _ = l.vol.Fini()
		l.vol = nil
	}
}

// ============================================================================
// Handle Registry
// ============================================================================

func (c *Client) register(st *handleState) {
	c.mu.Lock()
	c.nextID++
	st.id = c.nextID
	c.handles[st.id] = st
	c.mu.Unlock()

	c.metrics.SetOpenHandles(string(st.kind), 1)
}

func (c *Client) forget(st *handleState) {
	c.mu.Lock()
	_, ok := c.handles[st.id]
	delete(c.handles, st.id)
	c.mu.Unlock()

	if ok {
		c.metrics.SetOpenHandles(string(st.kind), -1)
	}
}

func (c *Client) snapshot() []*handleState {
	c.mu.Lock()
	defer c.mu.Unlock()

	states := make([]*handleState, 0, len(c.handles))
	for _, st := range c.handles {
		states = append(states, st)
	}
	return states
}

// timed runs one native call outside the client dispatch (connect and
// release) and records it.
func timed(m metrics.ClientMetrics, op string, fn func() (int, error)) (int, error) {
	start := time.Now()
	ret, err := fn()
	m.ObserveOperation(op, time.Since(start), errIf(ret < 0, err))
	return ret, err
}

// errIf returns the captured error number of a failed call for metrics, and
// nil for a successful one regardless of what the backend reported.
func errIf(failed bool, err error) error {
	if !failed {
		return nil
	}
	return native.ErrnoOf(err)
}
