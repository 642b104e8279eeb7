// Package probe checks that a GlusterFS volfile server answers before a
// context is allocated against it.
//
// A probe dials the server and issues a SunRPC NULL call to the GlusterFS
// handshake program, the program clients fetch volfiles from. Any accepted
// reply means glusterd is up.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/internal/logger"
	"github.com/marmos91/gfapi/internal/rpc"
)

// Probe dials host:port over TCP and pings the handshake program. ctx bounds
// both the dial and the call.
func Probe(ctx context.Context, host string, port int) error {
	if host == "" {
		return fmt.Errorf("probe: empty host")
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("probe: invalid port %d", port)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := rpc.Call(ctx, conn, rpc.ProgramGlusterHandshake, rpc.VersionGlusterHandshake, rpc.ProcNull, nil); err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}

	logger.Debug("probe: volfile server %s is up", addr)
	return nil
}

// Errno maps a probe failure to the error number a failed glfs_init would
// report for the same condition.
func Errno(err error) unix.Errno {
	var (
		errno  unix.Errno
		dnsErr *net.DNSError
		accErr *rpc.AcceptError
		denied *rpc.DeniedError
		netErr net.Error
	)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return unix.ETIMEDOUT
	case errors.Is(err, context.Canceled):
		return unix.ECANCELED
	case errors.As(err, &errno) && errno != 0:
		return errno
	case errors.As(err, &dnsErr):
		return unix.EHOSTUNREACH
	case errors.As(err, &accErr):
		return unix.EPROTONOSUPPORT
	case errors.As(err, &denied):
		return unix.EPROTO
	case errors.As(err, &netErr) && netErr.Timeout():
		return unix.ETIMEDOUT
	default:
		return unix.ENOTCONN
	}
}
