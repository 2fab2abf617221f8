// Package mount implements an RPC client for the MOUNT protocol (RFC 1813
// Appendix I, program 100005): mounting and unmounting exports, listing a
// server's active client mounts, and listing its exported directories.
// Like internal/portmap, it is built on top of internal/client's Mount
// endpoint rather than duplicating the transport core.
package mount

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/nfsmount/internal/client"
	"github.com/marmos91/nfsmount/internal/rpc"
	"github.com/marmos91/nfsmount/internal/rpc/auth"
)

// Program is the MOUNT protocol's RPC program number. Version3 is what
// this client requests; Version1 is offered as the floor of its version
// window so NFSv2 servers (no version 3 MOUNT support) still negotiate a
// usable version through Connect Search's PROG_MISMATCH handling.
const (
	Program  uint32 = 100005
	Version1 uint32 = 1
	Version3 uint32 = 3
)

// Client issues MOUNT protocol RPCs (Mnt/Umnt/UmntAll/Export/Dump) over a
// dedicated *client.Mount.
type Client struct {
	mount *client.Mount
}

// Dial establishes a mount to the MOUNT service at network/addr, typically
// an address a moment earlier resolved via a portmap.Client GETPORT or
// GETADDR call. authProvider selects the credential MNT itself is sent
// with; the flavor the server is willing to accept for the mounted export
// is reported back in MountResult.AuthFlavors, to be used for subsequent
// NFS calls against the resulting file handle.
func Dial(ctx context.Context, network, addr string, authProvider auth.Provider, timeout time.Duration) (*Client, error) {
	cfg := client.DefaultConfig()
	cfg.Program = Program
	cfg.Version = Version3
	cfg.MinVers = Version1
	cfg.MaxVers = Version3
	cfg.Soft = true
	cfg.Timeo = timeout
	cfg.SearchTimeout = timeout
	cfg.Locations = []client.Location{{Network: network, Addr: addr}}
	if authProvider == nil {
		authProvider = auth.NewNoneProvider()
	}
	cfg.Auth = authProvider

	m, err := client.Dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("mount: dial %s: %w", addr, err)
	}
	return &Client{mount: m}, nil
}

// Close tears down the underlying mount.
func (c *Client) Close() error { return c.mount.Close() }

// Mnt issues MNT for dirpath, returning the root file handle and the
// server's advertised auth flavors on success.
func (c *Client) Mnt(ctx context.Context, dirpath string) (*MountResult, error) {
	reply, err := c.mount.Call(ctx, MountProcMnt, rpc.ClassDefault, EncodeDirPath(dirpath))
	if err != nil {
		return nil, fmt.Errorf("mount: mnt %s: %w", dirpath, err)
	}
	res, err := DecodeMountResult(reply)
	if err != nil {
		return nil, fmt.Errorf("mount: decode mnt reply: %w", err)
	}
	if res.Status != MountOK {
		return res, fmt.Errorf("mount: mnt %s: server status %d", dirpath, res.Status)
	}
	return res, nil
}

// Umnt issues UMNT for dirpath.
func (c *Client) Umnt(ctx context.Context, dirpath string) error {
	if _, err := c.mount.Call(ctx, MountProcUmnt, rpc.ClassDefault, EncodeDirPath(dirpath)); err != nil {
		return fmt.Errorf("mount: umnt %s: %w", dirpath, err)
	}
	return nil
}

// UmntAll issues UMNTALL, removing every mount entry the server has
// recorded for this client.
func (c *Client) UmntAll(ctx context.Context) error {
	if _, err := c.mount.Call(ctx, MountProcUmntAll, rpc.ClassDefault, nil); err != nil {
		return fmt.Errorf("mount: umntall: %w", err)
	}
	return nil
}

// Export issues EXPORT, listing the directories this server exports and
// the client groups authorized to mount each one.
func (c *Client) Export(ctx context.Context) ([]Export, error) {
	reply, err := c.mount.Call(ctx, MountProcExport, rpc.ClassDefault, nil)
	if err != nil {
		return nil, fmt.Errorf("mount: export: %w", err)
	}
	return DecodeExports(reply)
}

// Dump issues the MOUNT protocol's DUMP, listing active client mounts the
// server has recorded (distinct from portmap's DUMP of registered RPC
// programs).
func (c *Client) Dump(ctx context.Context) ([]MountEntry, error) {
	reply, err := c.mount.Call(ctx, MountProcDump, rpc.ClassDefault, nil)
	if err != nil {
		return nil, fmt.Errorf("mount: dump: %w", err)
	}
	return DecodeMountList(reply)
}
