package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/marmos91/gfapi/internal/logger"
)

var nextXID atomic.Uint32

func init() {
	nextXID.Store(uint32(time.Now().UnixNano()))
}

// NewXID returns a transaction id distinct from recent ones.
func NewXID() uint32 {
	return nextXID.Add(1)
}

// Call sends one call on conn and waits for the matching reply, returning
// the procedure results. Replies to other transactions are skipped.
//
// The exchange is bounded by ctx: its deadline becomes the connection
// deadline, and cancellation interrupts a blocked read.
func Call(ctx context.Context, conn net.Conn, program, version, procedure uint32, args []byte) ([]byte, error) {
	xid := NewXID()
	msg, err := EncodeCall(xid, program, version, procedure, args)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	logger.Debug("rpc: call XID=0x%x Program=%d Version=%d Procedure=%d to %s",
		xid, program, version, procedure, conn.RemoteAddr())

	if err := WriteRecord(conn, msg); err != nil {
		return nil, callErr(ctx, "send call", err)
	}

	for {
		record, err := ReadRecord(conn)
		if err != nil {
			return nil, callErr(ctx, "read reply", err)
		}

		reply, results, err := DecodeReply(record)
		if reply != nil && reply.XID != xid {
			logger.Debug("rpc: skipping reply XID=0x%x, want 0x%x", reply.XID, xid)
			continue
		}
		if err != nil {
			return nil, err
		}
		return results, nil
	}
}

// callErr prefers the context's error when it caused the failure. The
// connection deadline may fire just before the context records its own.
func callErr(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", what, ctxErr)
	}
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s: %w", what, context.DeadlineExceeded)
	}
	return fmt.Errorf("%s: %w", what, err)
}
