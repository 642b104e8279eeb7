package gfapi_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/gfapi/pkg/gfapi"
	"github.com/marmos91/gfapi/pkg/native"
	"github.com/marmos91/gfapi/pkg/native/simvol"
)

// connectSim connects a client to a fresh simulated volume.
func connectSim(t *testing.T, opts ...gfapi.Option) *gfapi.Client {
	t.Helper()
	drv := simvol.NewDriver(simvol.Config{})
	t.Cleanup(func() { _ = drv.Close() })

	opts = append([]gfapi.Option{gfapi.WithDriver(drv)}, opts...)
	c, err := gfapi.Connect("gv0", "localhost", native.DefaultPort, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// ============================================================================
// Recording fake backend
// ============================================================================

// fakeDriver hands out one fakeVolume and counts allocations.
type fakeDriver struct {
	vol  *fakeVolume
	news int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{vol: &fakeVolume{}}
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) New(native.CString) (native.Volume, error) {
	d.news++
	return d.vol, nil
}

// fakeVolume records every call it receives. Only the calls stubbed below
// are implemented; any other call hits the nil embedded interface and
// panics, so a test using it also proves which calls were never issued.
type fakeVolume struct {
	native.Volume

	mu    sync.Mutex
	calls []string

	getxattr  func(value []byte) (int, error)
	listxattr func(list []byte) (int, error)
	getcwd    func(buf []byte) (int, error)
	open      func() (native.FD, error)
	opendir   func() (native.FD, error)
	initErr   error
}

func (v *fakeVolume) record(op string) {
	v.mu.Lock()
	v.calls = append(v.calls, op)
	v.mu.Unlock()
}

func (v *fakeVolume) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

func (v *fakeVolume) SetVolfileServer(_, _ native.CString, _ int) (int, error) {
	v.record("set_volfile_server")
	return 0, nil
}

func (v *fakeVolume) SetLogging(native.CString, int) (int, error) {
	v.record("set_logging")
	return 0, nil
}

func (v *fakeVolume) Init() (int, error) {
	v.record("init")
	if v.initErr != nil {
		return -1, v.initErr
	}
	return 0, nil
}

func (v *fakeVolume) Fini() (int, error) {
	v.record("fini")
	return 0, nil
}

func (v *fakeVolume) Getxattr(_, _ native.CString, value []byte) (int, error) {
	v.record("getxattr")
	return v.getxattr(value)
}

func (v *fakeVolume) Listxattr(_ native.CString, list []byte) (int, error) {
	v.record("listxattr")
	return v.listxattr(list)
}

func (v *fakeVolume) Getcwd(buf []byte) (int, error) {
	v.record("getcwd")
	return v.getcwd(buf)
}

func (v *fakeVolume) Open(native.CString, int) (native.FD, error) {
	v.record("open")
	return v.open()
}

func (v *fakeVolume) Opendir(native.CString) (native.FD, error) {
	v.record("opendir")
	return v.opendir()
}

// fakeFD is a descriptor backed by a scripted list of directory records.
// Once the records run out, ReadDirent returns readErr, or end of stream
// when readErr is nil.
type fakeFD struct {
	native.FD

	mu      sync.Mutex
	entries []native.Dirent
	readErr error
	reads   int
	closes  int
}

func (fd *fakeFD) ReadDirent(ent *native.Dirent) (int, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.reads++
	if len(fd.entries) > 0 {
		*ent = fd.entries[0]
		fd.entries = fd.entries[1:]
		return 1, nil
	}
	if fd.readErr != nil {
		return -1, fd.readErr
	}
	return 0, nil
}

func (fd *fakeFD) Close() (int, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.closes++
	return 0, nil
}

func (fd *fakeFD) counts() (reads, closes int) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.reads, fd.closes
}

// ============================================================================
// Recording metrics
// ============================================================================

type recordingMetrics struct {
	mu          sync.Mutex
	ops         map[string]int
	failures    map[string]int
	bytes       map[string]int64
	handles     map[string]int
	connections []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		ops:      make(map[string]int),
		failures: make(map[string]int),
		bytes:    make(map[string]int64),
		handles:  make(map[string]int),
	}
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
	if err != nil {
		m.failures[op]++
	}
}

func (m *recordingMetrics) RecordBytes(direction string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[direction] += n
}

func (m *recordingMetrics) SetOpenHandles(kind string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles[kind] += delta
}

func (m *recordingMetrics) RecordConnection(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections = append(m.connections, event)
}
