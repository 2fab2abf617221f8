// Package client assembles the six transport-core components
// (internal/rpc, internal/rpc/auth, internal/transport) into one mount
// endpoint: Dial negotiates a connection the way Connect Search
// describes, and the resulting *Mount exposes a Call entry point that
// drives the Send Engine, waits on the Request Registry, and is kept
// alive by a background worker implementing Timer & Reconnect.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/marmos91/nfsmount/internal/rpc/auth"
	"github.com/marmos91/nfsmount/internal/transport"
)

// Location is one (network, address) candidate a Dial will race against
// the others, mirroring the source's location-cursor fallback hierarchy
// (§3 "Location cursor"). Network is a net.Dial-style network name
// ("tcp", "udp", "unix", ...).
type Location struct {
	Network string
	Addr    string
}

// Config carries the mount-wide knobs §6.4 names, surfaced as a plain
// struct so library callers can build one with Go syntax and the CLI
// (cmd/nfsmount) can bind it to spf13/pflag flags.
type Config struct {
	// Program/Version select which RPC program this mount talks to (NFS,
	// the MOUNT protocol, or the portmapper/rpcbind during discovery).
	Program uint32
	Version uint32

	// Locations is the ordered fallback list Connect Search steps
	// through; Dial tries them with up to MaxConcurrentCandidates
	// outstanding at once.
	Locations []Location

	// SoType pins the transport to DGRAM or STREAM when SoTypeSet is
	// true. Otherwise Dial and reconnects use STREAM for every version;
	// a failed STREAM search is not retried over DGRAM.
	SoType transport.SockType
	SoTypeSet bool

	Soft        bool
	Intr        bool
	NoConnect   bool
	ResvPort    bool
	CallUmnt    bool
	MntUDP      bool
	MuteJukebox bool
	NoCallback  bool
	DumbTimer   bool

	// Squishy marks the mount eligible for accelerated dead-server
	// detection (§4.6 "squishy"), typically set for automounted or
	// mobile-network mounts.
	Squishy bool

	Timeo   time.Duration
	Retry   int
	MaxVers uint32
	MinVers uint32

	TprintfDelay        time.Duration
	TprintfInitialDelay time.Duration
	DeadTimeout         time.Duration

	// SearchTimeout bounds how long Connect Search will keep racing
	// candidates before giving up (§5 "search timeout is caller-provided").
	SearchTimeout time.Duration

	Auth auth.Provider

	// RegisterMetrics, if true, registers Prometheus collectors for this
	// mount's rpc/transport metrics (default disabled so library callers
	// without a registry don't get MustRegister panics on reuse).
	RegisterMetrics bool
}

// DefaultConfig returns a hard-mount configuration with the historical
// client's defaults (§6.2): 60s timeout class, NFS_MAXREXMIT+1 retries,
// 8s dead timeout.
func DefaultConfig() Config {
	return Config{
		Program:             100003, // NFS
		Version:             3,
		SoType:              transport.SockStream,
		Timeo:               60 * time.Second,
		Retry:               3,
		MaxVers:             3,
		MinVers:             2,
		TprintfDelay:        12 * time.Second,
		TprintfInitialDelay: 12 * time.Second,
		DeadTimeout:         8 * time.Second,
		SearchTimeout:       30 * time.Second,
		Auth:                auth.NewNoneProvider(),
	}
}

// Validate checks the configuration is internally consistent before Dial
// spends network effort on it.
func (c Config) Validate() error {
	if len(c.Locations) == 0 {
		return fmt.Errorf("client config: at least one location is required")
	}
	if c.MinVers > c.MaxVers {
		return fmt.Errorf("client config: min_vers %d > max_vers %d", c.MinVers, c.MaxVers)
	}
	if c.Retry < 0 {
		return fmt.Errorf("client config: retry must be >= 0")
	}
	if c.Auth == nil {
		return fmt.Errorf("client config: auth provider is required")
	}
	return nil
}

// socketTimeout implements §4.1 socket_configure's 5s/60s timeout class
// selection: soft or squishy mounts get the short timeout.
func (c Config) socketTimeout() time.Duration {
	if c.Soft || c.Squishy {
		return 5 * time.Second
	}
	return 60 * time.Second
}

func (c Config) transportConfig() transport.Config {
	return transport.Config{
		Soft:         c.Soft || c.Squishy,
		Intr:         c.Intr,
		ReservedPort: c.ResvPort,
	}
}

// locAddr adapts a Location to net.Addr so it can travel through
// transport.Search, which is transport-agnostic and only deals in
// net.Addr plus a network-name callback.
type locAddr struct {
	network string
	addr    string
}

func (a locAddr) Network() string { return a.network }
func (a locAddr) String() string  { return a.addr }

func toNetAddrs(locs []Location) []net.Addr {
	addrs := make([]net.Addr, len(locs))
	for i, l := range locs {
		addrs[i] = locAddr{network: l.Network, addr: l.Addr}
	}
	return addrs
}

func dialNetwork(a net.Addr) string { return a.Network() }
