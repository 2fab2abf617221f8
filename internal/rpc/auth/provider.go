// Package auth implements the RPC authentication capability set (§9
// Polymorphism): a small trait-style contract the transport core calls
// through to build call headers, verify replies, and tear down state,
// without needing to know whether the underlying scheme is AUTH_NONE,
// AUTH_SYS, or RPCSEC_GSS (krb5/krb5i/krb5p).
package auth

import (
	"fmt"

	"github.com/marmos91/nfsmount/internal/rpc"
)

// Provider is implemented once per auth flavor. The mount endpoint
// (internal/client) calls the single Provider in its Config for every
// request, through this interface exclusively — it never branches on
// flavor itself.
type Provider interface {
	// Flavor returns the RPC auth flavor this provider implements.
	Flavor() uint32

	// BuildCredential returns the credential and (initial) verifier to
	// attach to an outbound call header.
	BuildCredential(req *rpc.Request) (cred, verf rpc.OpaqueAuth, err error)

	// VerifyReply checks the verifier a server attaches to an accepted
	// reply. For AUTH_NONE this is a no-op; for AUTH_SYS it is typically a
	// no-op too (the server rarely echoes anything meaningful); for
	// RPCSEC_GSS it verifies a MIC over the call's seq_num.
	VerifyReply(h *rpc.ReplyHeader, sentSeqNum uint32) error

	// WrapCall transforms a call body for the security service level this
	// provider negotiated (krb5i wraps with a MIC, krb5p seals it); for
	// AUTH_NONE/AUTH_SYS it returns the body unchanged.
	WrapCall(body []byte) ([]byte, error)

	// UnwrapReply is the inverse of WrapCall, applied to reply bodies.
	UnwrapReply(body []byte) ([]byte, error)

	// RenewContext re-establishes any underlying security context (GSS)
	// that has expired or been rejected by the server; a no-op for
	// AUTH_NONE/AUTH_SYS.
	RenewContext() error

	// Destroy releases any server-side state this provider is responsible
	// for tearing down (a GSS DESTROY call); a no-op for AUTH_NONE/AUTH_SYS.
	Destroy() error
}

// ErrUnsupportedFlavor is returned by Select when asked for a flavor with
// no registered Provider.
var ErrUnsupportedFlavor = fmt.Errorf("auth: unsupported flavor")

// Select maps a negotiated auth flavor to its Provider. Nothing in this
// module calls it; Dial and Call use Config.Auth directly.
func Select(providers map[uint32]Provider, flavor uint32) (Provider, error) {
	p, ok := providers[flavor]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFlavor, flavor)
	}
	return p, nil
}
