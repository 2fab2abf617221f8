package auth

import "github.com/marmos91/nfsmount/internal/rpc"

// NoneProvider implements AUTH_NONE: an empty credential and verifier, no
// wrapping, nothing to renew or destroy. Used for portmapper/rpcbind
// pings and for servers that don't require authentication.
type NoneProvider struct{}

func NewNoneProvider() *NoneProvider { return &NoneProvider{} }

func (p *NoneProvider) Flavor() uint32 { return rpc.AuthNull }

func (p *NoneProvider) BuildCredential(req *rpc.Request) (rpc.OpaqueAuth, rpc.OpaqueAuth, error) {
	return rpc.OpaqueAuth{Flavor: rpc.AuthNull}, rpc.OpaqueAuth{Flavor: rpc.AuthNull}, nil
}

func (p *NoneProvider) VerifyReply(h *rpc.ReplyHeader, sentSeqNum uint32) error { return nil }

func (p *NoneProvider) WrapCall(body []byte) ([]byte, error) { return body, nil }

func (p *NoneProvider) UnwrapReply(body []byte) ([]byte, error) { return body, nil }

func (p *NoneProvider) RenewContext() error { return nil }

func (p *NoneProvider) Destroy() error { return nil }
