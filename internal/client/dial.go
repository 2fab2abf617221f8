package client

import (
	"context"
	"fmt"
	"net"

	"github.com/marmos91/nfsmount/internal/logger"
	"github.com/marmos91/nfsmount/internal/transport"
)

// Dial performs Connect Search (§4.2) against cfg.Locations and returns a
// live *Mount once a candidate has verified with a NULL RPC. The receive
// loop and the background Timer & Reconnect worker (§4.6) are both
// running by the time Dial returns.
func Dial(ctx context.Context, cfg Config) (*Mount, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sotype := cfg.SoType
	if !cfg.SoTypeSet {
		sotype = transport.SockStream
	}

	searchCtx := ctx
	if cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, cfg.SearchTimeout)
		defer cancel()
	}

	m := newMount(cfg)

	search := transport.NewSearch(
		toNetAddrs(cfg.Locations),
		dialNetwork,
		sotype,
		cfg.transportConfig(),
		pingFunc(cfg),
		m.transportMetrics,
	)

	winner, err := search.Run(searchCtx)
	if err != nil {
		return nil, fmt.Errorf("dial: connect search: %w", err)
	}

	m.setSocket(winner.Socket)
	m.version.Store(winner.Version)
	m.locIndex = indexOfAddr(cfg.Locations, winner.Addr)

	m.startReceiveLoop()
	m.startWorker()

	logger.Info("dial: mount established",
		"mount_id", m.id, "addr", winner.Addr, "version", winner.Version, "sotype", sotype)
	return m, nil
}

func indexOfAddr(locs []Location, addr net.Addr) int {
	for i, l := range locs {
		if l.Addr == addr.String() {
			return i
		}
	}
	return 0
}
