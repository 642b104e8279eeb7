package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/internal/rpc"
)

// fakeGlusterd answers calls on a loopback listener with reply.
func fakeGlusterd(t *testing.T, reply func(call *rpc.CallMessage) ([]byte, error)) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				record, err := rpc.ReadRecord(conn)
				if err != nil {
					return
				}
				call, _, err := rpc.ReadCall(record)
				if err != nil {
					return
				}
				msg, err := reply(call)
				if err != nil || msg == nil {
					return
				}
				_ = rpc.WriteRecord(conn, msg)
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestProbe_Success(t *testing.T) {
	var got rpc.CallMessage
	host, port := fakeGlusterd(t, func(call *rpc.CallMessage) ([]byte, error) {
		got = *call
		return rpc.MakeSuccessReply(call.XID, nil)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, Probe(ctx, host, port))
	assert.Equal(t, uint32(rpc.ProgramGlusterHandshake), got.Program)
	assert.Equal(t, uint32(rpc.VersionGlusterHandshake), got.Version)
	assert.Equal(t, uint32(rpc.ProcNull), got.Procedure)
}

func TestProbe_ProgramUnavailable(t *testing.T) {
	host, port := fakeGlusterd(t, func(call *rpc.CallMessage) ([]byte, error) {
		return rpc.MakeErrorReply(call.XID, rpc.RPCProgUnavail)
	})

	err := Probe(context.Background(), host, port)
	require.Error(t, err)
	assert.Equal(t, unix.EPROTONOSUPPORT, Errno(err))
}

func TestProbe_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	err = Probe(context.Background(), "127.0.0.1", port)
	require.Error(t, err)
	assert.Equal(t, unix.ECONNREFUSED, Errno(err))
}

func TestProbe_Timeout(t *testing.T) {
	host, port := fakeGlusterd(t, func(call *rpc.CallMessage) ([]byte, error) {
		time.Sleep(time.Second)
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Probe(ctx, host, port)
	require.Error(t, err)
	assert.Equal(t, unix.ETIMEDOUT, Errno(err))
}

func TestProbe_InvalidArguments(t *testing.T) {
	assert.Error(t, Probe(context.Background(), "", 24007))
	assert.Error(t, Probe(context.Background(), "localhost", 0))
	assert.Error(t, Probe(context.Background(), "localhost", 70000))
}

func TestErrno(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want unix.Errno
	}{
		{"Nil", nil, 0},
		{"Deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), unix.ETIMEDOUT},
		{"Canceled", context.Canceled, unix.ECANCELED},
		{"Errno", fmt.Errorf("dial: %w", unix.EHOSTUNREACH), unix.EHOSTUNREACH},
		{"DNS", &net.DNSError{Err: "no such host", Name: "nowhere"}, unix.EHOSTUNREACH},
		{"Denied", &rpc.DeniedError{Stat: rpc.RPCAuthErr}, unix.EPROTO},
		{"Other", errors.New("boom"), unix.ENOTCONN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Errno(tt.err))
		})
	}
}
