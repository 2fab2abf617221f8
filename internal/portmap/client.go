// Package portmap implements an RPC client for the portmapper (v2) and
// rpcbind (v3/v4) services, built on top of internal/client's Mount
// endpoint rather than duplicating the transport core: resolving a
// program/version to a port or universal address is just another RPC
// call once a mount to the well-known portmapper port is established.
package portmap

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/marmos91/nfsmount/internal/client"
	"github.com/marmos91/nfsmount/internal/portmap/types"
	pxdr "github.com/marmos91/nfsmount/internal/portmap/xdr"
	"github.com/marmos91/nfsmount/internal/rpc"
	"github.com/marmos91/nfsmount/internal/rpc/auth"
	"github.com/marmos91/nfsmount/internal/transport"
	coreXDR "github.com/marmos91/nfsmount/internal/xdr"
)

// portmapPort is the portmapper/rpcbind well-known port (RFC 1057).
const portmapPort = 111

// Client talks to a single portmapper/rpcbind endpoint over a dedicated
// *client.Mount, resolving (program, version, protocol) tuples to the
// port or universal address an NFS or MOUNT client should dial next.
type Client struct {
	mount *client.Mount
}

// Dial establishes a mount to the portmapper/rpcbind service on host,
// over network ("tcp" or "udp"), negotiating the widest version window
// this client understands: [PortmapVersion2, RPCBVersion4].
func Dial(ctx context.Context, network, host string, timeout time.Duration) (*Client, error) {
	sotype := transport.SockDgram
	if network == "tcp" {
		sotype = transport.SockStream
	}

	cfg := client.DefaultConfig()
	cfg.Program = types.ProgramPortmap
	cfg.Version = types.RPCBVersion4
	cfg.MinVers = types.PortmapVersion2
	cfg.MaxVers = types.RPCBVersion4
	cfg.SoType = sotype
	cfg.SoTypeSet = true
	cfg.Soft = true
	cfg.Timeo = timeout
	cfg.SearchTimeout = timeout
	cfg.Locations = []client.Location{{Network: network, Addr: fmt.Sprintf("%s:%d", host, portmapPort)}}
	cfg.Auth = auth.NewNoneProvider()

	m, err := client.Dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("portmap: dial %s: %w", host, err)
	}
	return &Client{mount: m}, nil
}

// Close tears down the underlying mount.
func (c *Client) Close() error { return c.mount.Close() }

// GetPort issues portmap v2 GETPORT, resolving prog/vers/prot to the port
// the server has registered for it, or 0 if unregistered.
func (c *Client) GetPort(ctx context.Context, prog, vers, prot uint32) (uint32, error) {
	arg := pxdr.EncodeMapping(&pxdr.Mapping{Prog: prog, Vers: vers, Prot: prot})
	reply, err := c.mount.Call(ctx, types.ProcGetport, rpc.ClassDefault, arg)
	if err != nil {
		return 0, fmt.Errorf("portmap: getport: %w", err)
	}
	return pxdr.DecodeGetportReply(reply)
}

// GetAddr issues rpcbind v3/v4 GETADDR, resolving prog/vers/netid to a
// universal address string (e.g. "10.0.0.1.0.111").
func (c *Client) GetAddr(ctx context.Context, prog, vers uint32, netid string) (string, error) {
	buf := &bytes.Buffer{}
	if err := encodeRPCBArgs(buf, prog, vers, netid); err != nil {
		return "", fmt.Errorf("portmap: encode getaddr args: %w", err)
	}
	reply, err := c.mount.Call(ctx, types.RPCBProcGetaddr, rpc.ClassDefault, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("portmap: getaddr: %w", err)
	}
	return decodeRPCBAddr(reply)
}

// GetVersAddr issues rpcbind v4 GETVERSADDR for prog/vers/netid and
// returns the universal address from the reply. The reply carries no
// version number, so negotiatedVers is always the vers passed in.
func (c *Client) GetVersAddr(ctx context.Context, prog, vers uint32, netid string) (addr string, negotiatedVers uint32, err error) {
	buf := &bytes.Buffer{}
	if err := encodeRPCBArgs(buf, prog, vers, netid); err != nil {
		return "", 0, fmt.Errorf("portmap: encode getversaddr args: %w", err)
	}
	reply, err := c.mount.Call(ctx, types.RPCBProcGetversaddr, rpc.ClassDefault, buf.Bytes())
	if err != nil {
		return "", 0, fmt.Errorf("portmap: getversaddr: %w", err)
	}
	addr, err = decodeRPCBAddr(reply)
	return addr, vers, err
}

// Dump issues portmap v2 DUMP, listing every mapping the server has
// registered.
func (c *Client) Dump(ctx context.Context) ([]*pxdr.Mapping, error) {
	reply, err := c.mount.Call(ctx, types.ProcDump, rpc.ClassDefault, nil)
	if err != nil {
		return nil, fmt.Errorf("portmap: dump: %w", err)
	}
	return pxdr.DecodeDumpReply(reply)
}

// encodeRPCBArgs encodes the rpcb request struct (RFC 1833 Section 5.3):
// program, version, netid, and the (unused on a request) addr/owner
// strings, which the wire format still requires as empty placeholders.
func encodeRPCBArgs(buf *bytes.Buffer, prog, vers uint32, netid string) error {
	if err := coreXDR.WriteUint32(buf, prog); err != nil {
		return err
	}
	if err := coreXDR.WriteUint32(buf, vers); err != nil {
		return err
	}
	if err := coreXDR.WriteXDRString(buf, netid); err != nil {
		return err
	}
	if err := coreXDR.WriteXDRString(buf, ""); err != nil {
		return err
	}
	return coreXDR.WriteXDRString(buf, "")
}

func decodeRPCBAddr(data []byte) (string, error) {
	return coreXDR.DecodeString(bytes.NewReader(data))
}
