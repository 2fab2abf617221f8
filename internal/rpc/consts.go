// Package rpc implements the ONC-RPC v2 (RFC 5531) wire protocol pieces a
// client needs: call/reply framing, AUTH_SYS credentials, the request
// registry that matches replies to outstanding requests by XID, the RTO
// estimator, and the error taxonomy used to decide retry/reconnect policy.
package rpc

// Message types (rpc_msg.mtype).
const (
	Call  uint32 = 0
	Reply uint32 = 1
)

// RPCVersion2 is the only ONC-RPC version this client speaks.
const RPCVersion2 uint32 = 2

// Reply status (reply_stat).
const (
	MsgAccepted uint32 = 0
	MsgDenied   uint32 = 1
)

// Accepted-reply status (accept_stat).
const (
	Success      uint32 = 0
	ProgUnavail  uint32 = 1
	ProgMismatch uint32 = 2
	ProcUnavail  uint32 = 3
	GarbageArgs  uint32 = 4
	SystemErr    uint32 = 5
)

// Rejected-reply status (reject_stat).
const (
	RpcMismatch uint32 = 0
	AuthError   uint32 = 1
)

// Auth flavors (RFC 5531 Section 9, RFC 2203 Section 1).
const (
	AuthNull uint32 = 0
	AuthUnix uint32 = 1
	AuthShort uint32 = 2
	AuthDES   uint32 = 3
	// AuthRPCSECGSS is also defined in internal/rpc/gss; kept here too so
	// callers that only need the flavor number don't have to import gss.
	AuthRPCSECGSS uint32 = 6
)

// Pseudo-flavors for RPCSEC_GSS over krb5, used in MOUNT auth_flavors<> lists.
const (
	PseudoFlavorKrb5  uint32 = 390003
	PseudoFlavorKrb5i uint32 = 390004
	PseudoFlavorKrb5p uint32 = 390005
)

// ProcNull is procedure 0 on every RPC program: a no-op ping used by the
// connect search to verify reachability and probe version windows.
const ProcNull uint32 = 0

// Procedure classes used to index the per-mount RTO estimator (§4.3).
const (
	ClassDefault uint32 = 0
	ClassGetattr uint32 = 1
	ClassLookup  uint32 = 2
	ClassRead    uint32 = 3
	ClassWrite   uint32 = 4

	NumRTOClasses = 5
)

// NFSMaxPacket bounds a single STREAM-reassembled RPC record (§4.5, §6.1).
const NFSMaxPacket = 1 << 20

// NFSCwndScale is the Van Jacobson-style congestion window scale factor.
const NFSCwndScale = 256

// MaxCwnd caps outstanding DGRAM RPCs at 32 requests.
const MaxCwnd = 32 * NFSCwndScale
