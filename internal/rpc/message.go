package rpc

import "fmt"

// CallMessage is the header of an RPC call. Procedure arguments follow it
// on the wire.
//
// Reference: RFC 5531 Section 9
type CallMessage struct {
	XID        uint32
	MsgType    uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       OpaqueAuth
	Verf       OpaqueAuth
}

// replyHeader is the part every reply shares.
type replyHeader struct {
	XID        uint32
	MsgType    uint32
	ReplyState uint32
}

// acceptedReply follows replyHeader when ReplyState is RPCMsgAccepted.
type acceptedReply struct {
	Verf       OpaqueAuth
	AcceptStat uint32
}

// ReplyMessage is a decoded reply header.
type ReplyMessage struct {
	XID        uint32
	ReplyState uint32

	// AcceptStat is set for accepted replies, RejectStat for denied ones.
	AcceptStat uint32
	RejectStat uint32

	Verf OpaqueAuth
}

// OpaqueAuth carries credentials or a verifier. The RPC layer does not
// interpret Body; its format depends on Flavor.
type OpaqueAuth struct {
	Flavor uint32
	Body   []byte `xdr:"opaque"`
}

// AcceptError reports an accepted reply whose status is not SUCCESS.
type AcceptError struct {
	XID  uint32
	Stat uint32
}

func (e *AcceptError) Error() string {
	return fmt.Sprintf("rpc call %#x not executed: %s", e.XID, acceptStatName(e.Stat))
}

// DeniedError reports a denied reply.
type DeniedError struct {
	XID  uint32
	Stat uint32
}

func (e *DeniedError) Error() string {
	if e.Stat == RPCAuthErr {
		return fmt.Sprintf("rpc call %#x denied: authentication error", e.XID)
	}
	return fmt.Sprintf("rpc call %#x denied: rpc version mismatch", e.XID)
}

func acceptStatName(stat uint32) string {
	switch stat {
	case RPCProgUnavail:
		return "program unavailable"
	case RPCProgMismatch:
		return "program version mismatch"
	case RPCProcUnavail:
		return "procedure unavailable"
	case RPCGarbageArgs:
		return "garbage arguments"
	case RPCSystemErr:
		return "system error"
	default:
		return fmt.Sprintf("accept status %d", stat)
	}
}
