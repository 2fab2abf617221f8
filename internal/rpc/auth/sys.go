package auth

import (
	"fmt"

	"github.com/marmos91/nfsmount/internal/rpc"
)

// SysProvider implements AUTH_SYS (RFC 5531 Section 9): a credential
// carrying the calling machine's name, uid, gid, and supplementary groups.
// The verifier it attaches is always AUTH_NONE; a server that wants to
// upgrade the caller to AUTH_SHORT returns an opaque verifier the caller
// should cache and replay, which RenewContext refreshes if rejected.
type SysProvider struct {
	cred *rpc.UnixAuth

	// shortVerifier, if set, is replayed as the credential's opaque short
	// form on subsequent calls instead of re-sending the full UnixAuth
	// body, mirroring AUTH_SHORT (flavor 2).
	shortVerifier []byte
}

// NewSysProvider builds a provider for the given machine/uid/gid/groups.
func NewSysProvider(machineName string, uid, gid uint32, gids []uint32) *SysProvider {
	return &SysProvider{
		cred: &rpc.UnixAuth{
			MachineName: machineName,
			UID:         uid,
			GID:         gid,
			GIDs:        gids,
		},
	}
}

func (p *SysProvider) Flavor() uint32 { return rpc.AuthUnix }

func (p *SysProvider) BuildCredential(req *rpc.Request) (rpc.OpaqueAuth, rpc.OpaqueAuth, error) {
	if p.shortVerifier != nil {
		return rpc.OpaqueAuth{Flavor: rpc.AuthShort, Body: p.shortVerifier},
			rpc.OpaqueAuth{Flavor: rpc.AuthNull}, nil
	}

	p.cred.Stamp = uint32(requestStamp())
	body, err := rpc.BuildUnixAuth(p.cred)
	if err != nil {
		return rpc.OpaqueAuth{}, rpc.OpaqueAuth{}, fmt.Errorf("build auth_sys credential: %w", err)
	}
	return rpc.OpaqueAuth{Flavor: rpc.AuthUnix, Body: body}, rpc.OpaqueAuth{Flavor: rpc.AuthNull}, nil
}

func (p *SysProvider) VerifyReply(h *rpc.ReplyHeader, sentSeqNum uint32) error {
	// Per RFC 5531 Section 9, a server may return an AUTH_SHORT verifier
	// the client should use as its credential on future calls.
	if h.Verf.Flavor == rpc.AuthShort && len(h.Verf.Body) > 0 {
		p.shortVerifier = h.Verf.Body
	}
	return nil
}

func (p *SysProvider) WrapCall(body []byte) ([]byte, error) { return body, nil }

func (p *SysProvider) UnwrapReply(body []byte) ([]byte, error) { return body, nil }

func (p *SysProvider) RenewContext() error {
	// A rejected AUTH_SHORT verifier means the server forgot our cached
	// credential; fall back to resending the full UnixAuth body.
	p.shortVerifier = nil
	return nil
}

func (p *SysProvider) Destroy() error { return nil }
