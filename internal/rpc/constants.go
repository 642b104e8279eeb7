package rpc

// Program numbers
const (
	// ProgramPortmap is the port mapper program number (RFC 1833).
	ProgramPortmap = 100000

	// ProgramGlusterHandshake is the GlusterFS handshake program served by
	// glusterd on the volfile port. Clients fetch the volfile through it.
	ProgramGlusterHandshake = 14398633

	// VersionGlusterHandshake is the handshake version current servers speak.
	VersionGlusterHandshake = 2

	// ProcNull is procedure 0 of every program: no arguments, no results.
	ProcNull = 0
)

// RPCVersion is the only ONC RPC protocol version (RFC 5531).
const RPCVersion = 2

// RPC Message Types
const (
	// RPCCall indicates an RPC call message.
	RPCCall = 0

	// RPCReply indicates an RPC reply message.
	RPCReply = 1
)

// RPC Reply States
const (
	// RPCMsgAccepted indicates the RPC call was accepted.
	RPCMsgAccepted = 0

	// RPCMsgDenied indicates the RPC call was denied, for an RPC version
	// mismatch or an authentication failure.
	RPCMsgDenied = 1
)

// RPC Accept Status
const (
	RPCSuccess      = 0
	RPCProgUnavail  = 1
	RPCProgMismatch = 2
	RPCProcUnavail  = 3
	RPCGarbageArgs  = 4
	RPCSystemErr    = 5
)

// RPC Reject Status
const (
	RPCMismatch = 0
	RPCAuthErr  = 1
)

// Authentication flavors
const (
	AuthNull = 0
	AuthUnix = 1
)

// Record marking (RFC 5531 Section 11)
const (
	lastFragment = 0x80000000
	fragmentMask = 0x7FFFFFFF

	// MaxRecordSize bounds a reassembled record.
	MaxRecordSize = 1 << 20
)
