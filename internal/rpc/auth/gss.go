package auth

import (
	"fmt"

	"github.com/marmos91/nfsmount/internal/rpc"
	"github.com/marmos91/nfsmount/internal/rpc/gss"
)

// GSSProvider implements RPCSEC_GSS (krb5/krb5i/krb5p) from the client
// side, wrapping a gss.Context. One GSSProvider handles exactly one
// (principal, service-level) pair; a mount negotiating krb5i for one
// export and krb5p for another owns two.
type GSSProvider struct {
	ctx     *gss.Context
	service uint32 // RPCGSSSvcNone/Integrity/Privacy

	initCred *rpc.OpaqueAuth
	initTok  []byte

	lastSeq uint32
}

// NewGSSProvider wraps an established-or-establishing gss.Context for the
// given service level. Call Init before the first BuildCredential if the
// context hasn't completed its handshake yet.
func NewGSSProvider(ctx *gss.Context, service uint32) *GSSProvider {
	return &GSSProvider{ctx: ctx, service: service}
}

// Flavor is AUTH_RPCSEC_GSS regardless of service level: integrity vs
// privacy is carried in the credential body's service field, not the
// flavor number.
func (p *GSSProvider) Flavor() uint32 { return gss.AuthRPCSECGSS }

// Init performs (or re-performs) the INIT handshake and must complete
// before any DATA call is built.
func (p *GSSProvider) Init() error {
	cred, tok, err := p.ctx.BuildInitCred(p.service)
	if err != nil {
		return fmt.Errorf("gss init: %w", err)
	}
	body, err := gss.EncodeGSSCred(cred)
	if err != nil {
		return fmt.Errorf("encode gss init credential: %w", err)
	}
	p.initCred = &rpc.OpaqueAuth{Flavor: gss.AuthRPCSECGSS, Body: body}
	p.initTok = tok
	return nil
}

// InitToken returns the AP-REQ token to send as the INIT call's body, once
// Init has been called.
func (p *GSSProvider) InitToken() []byte { return p.initTok }

func (p *GSSProvider) BuildCredential(req *rpc.Request) (rpc.OpaqueAuth, rpc.OpaqueAuth, error) {
	if !p.ctx.Established() {
		if p.initCred == nil {
			return rpc.OpaqueAuth{}, rpc.OpaqueAuth{}, fmt.Errorf("gss: call Init before BuildCredential")
		}
		return *p.initCred, rpc.OpaqueAuth{Flavor: rpc.AuthNull}, nil
	}

	seq, err := p.ctx.NextSeqNum()
	if err != nil {
		return rpc.OpaqueAuth{}, rpc.OpaqueAuth{}, fmt.Errorf("gss: next seq_num: %w", err)
	}
	p.lastSeq = seq

	cred := &gss.RPCGSSCredV1{
		GSSProc: gss.RPCGSSData,
		SeqNum:  seq,
		Service: p.service,
		Handle:  p.ctx.Handle(),
	}
	body, err := gss.EncodeGSSCred(cred)
	if err != nil {
		return rpc.OpaqueAuth{}, rpc.OpaqueAuth{}, fmt.Errorf("encode gss credential: %w", err)
	}

	verf, err := p.ctx.BuildCallVerifier(seq)
	if err != nil {
		return rpc.OpaqueAuth{}, rpc.OpaqueAuth{}, fmt.Errorf("build gss call verifier: %w", err)
	}

	return rpc.OpaqueAuth{Flavor: gss.AuthRPCSECGSS, Body: body},
		rpc.OpaqueAuth{Flavor: gss.AuthRPCSECGSS, Body: verf}, nil
}

func (p *GSSProvider) VerifyReply(h *rpc.ReplyHeader, sentSeqNum uint32) error {
	if h.Verf.Flavor != gss.AuthRPCSECGSS {
		return fmt.Errorf("gss: expected RPCSEC_GSS verifier, got flavor %d", h.Verf.Flavor)
	}
	return p.ctx.VerifyCallVerifier(sentSeqNum, h.Verf.Body)
}

func (p *GSSProvider) WrapCall(body []byte) ([]byte, error) {
	switch p.service {
	case gss.RPCGSSSvcIntegrity:
		return gss.WrapCallIntegrity(p.ctx.SessionKey(), p.lastSeq, body)
	case gss.RPCGSSSvcPrivacy:
		return gss.WrapCallPrivacy(p.ctx.SessionKey(), p.lastSeq, body)
	default:
		return body, nil
	}
}

func (p *GSSProvider) UnwrapReply(body []byte) ([]byte, error) {
	switch p.service {
	case gss.RPCGSSSvcIntegrity:
		return gss.UnwrapReplyIntegrity(p.ctx.SessionKey(), p.lastSeq, body)
	case gss.RPCGSSSvcPrivacy:
		return gss.UnwrapReplyPrivacy(p.ctx.SessionKey(), p.lastSeq, body)
	default:
		return body, nil
	}
}

func (p *GSSProvider) RenewContext() error {
	return p.Init()
}

func (p *GSSProvider) Destroy() error {
	_, err := p.ctx.Destroy()
	return err
}
