package rpc

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// EncodeCall marshals a call header with AUTH_NULL credentials followed by
// the already-encoded procedure arguments.
func EncodeCall(xid, program, version, procedure uint32, args []byte) ([]byte, error) {
	call := CallMessage{
		XID:        xid,
		MsgType:    RPCCall,
		RPCVersion: RPCVersion,
		Program:    program,
		Version:    version,
		Procedure:  procedure,
		Cred:       OpaqueAuth{Flavor: AuthNull, Body: []byte{}},
		Verf:       OpaqueAuth{Flavor: AuthNull, Body: []byte{}},
	}

	buf := bytes.NewBuffer(make([]byte, 0, 40+len(args)))
	if _, err := xdr.Marshal(buf, &call); err != nil {
		return nil, fmt.Errorf("marshal RPC call: %w", err)
	}
	buf.Write(args)
	return buf.Bytes(), nil
}

// ReadCall parses a call header and returns the procedure arguments that
// follow it.
func ReadCall(data []byte) (*CallMessage, []byte, error) {
	call := &CallMessage{}
	n, err := xdr.Unmarshal(bytes.NewReader(data), call)
	if err != nil {
		return nil, nil, fmt.Errorf("unmarshal RPC call: %w", err)
	}
	if call.MsgType != RPCCall {
		return nil, nil, fmt.Errorf("expected CALL (0), got %d", call.MsgType)
	}
	return call, data[n:], nil
}

// DecodeReply parses a reply header and returns the results that follow it.
// Replies that are denied or not executed are returned as *DeniedError or
// *AcceptError along with the decoded header.
func DecodeReply(data []byte) (*ReplyMessage, []byte, error) {
	r := bytes.NewReader(data)

	var hdr replyHeader
	if _, err := xdr.Unmarshal(r, &hdr); err != nil {
		return nil, nil, fmt.Errorf("unmarshal RPC reply: %w", err)
	}
	if hdr.MsgType != RPCReply {
		return nil, nil, fmt.Errorf("expected REPLY (1), got %d", hdr.MsgType)
	}
	reply := &ReplyMessage{XID: hdr.XID, ReplyState: hdr.ReplyState}

	switch hdr.ReplyState {
	case RPCMsgAccepted:
		var acc acceptedReply
		if _, err := xdr.Unmarshal(r, &acc); err != nil {
			return nil, nil, fmt.Errorf("unmarshal accepted reply: %w", err)
		}
		reply.Verf = acc.Verf
		reply.AcceptStat = acc.AcceptStat
		if acc.AcceptStat != RPCSuccess {
			return reply, nil, &AcceptError{XID: hdr.XID, Stat: acc.AcceptStat}
		}
	case RPCMsgDenied:
		var stat uint32
		if _, err := xdr.Unmarshal(r, &stat); err != nil {
			return nil, nil, fmt.Errorf("unmarshal denied reply: %w", err)
		}
		reply.RejectStat = stat
		return reply, nil, &DeniedError{XID: hdr.XID, Stat: stat}
	default:
		return nil, nil, fmt.Errorf("unknown reply state %d", hdr.ReplyState)
	}

	return reply, data[len(data)-r.Len():], nil
}

// MakeSuccessReply encodes an accepted SUCCESS reply carrying data.
func MakeSuccessReply(xid uint32, data []byte) ([]byte, error) {
	return makeAcceptedReply(xid, RPCSuccess, data)
}

// MakeErrorReply encodes an accepted reply with a failure status.
func MakeErrorReply(xid uint32, acceptStat uint32) ([]byte, error) {
	return makeAcceptedReply(xid, acceptStat, nil)
}

func makeAcceptedReply(xid, stat uint32, data []byte) ([]byte, error) {
	hdr := replyHeader{XID: xid, MsgType: RPCReply, ReplyState: RPCMsgAccepted}
	acc := acceptedReply{
		Verf:       OpaqueAuth{Flavor: AuthNull, Body: []byte{}},
		AcceptStat: stat,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 24+len(data)))
	if _, err := xdr.Marshal(buf, &hdr); err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	if _, err := xdr.Marshal(buf, &acc); err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	buf.Write(data)
	return buf.Bytes(), nil
}

// MakeDeniedReply encodes a denied reply. An RPC_MISMATCH rejection carries
// the supported version range, which is always [2, 2] here.
func MakeDeniedReply(xid uint32, rejectStat uint32) ([]byte, error) {
	hdr := replyHeader{XID: xid, MsgType: RPCReply, ReplyState: RPCMsgDenied}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &hdr); err != nil {
		return nil, fmt.Errorf("marshal denied reply: %w", err)
	}
	body := []uint32{rejectStat}
	if rejectStat == RPCMismatch {
		body = append(body, RPCVersion, RPCVersion)
	}
	for _, v := range body {
		if _, err := xdr.Marshal(&buf, v); err != nil {
			return nil, fmt.Errorf("marshal denied reply: %w", err)
		}
	}
	return buf.Bytes(), nil
}
