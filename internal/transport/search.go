package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/marmos91/nfsmount/internal/logger"
	"github.com/marmos91/nfsmount/internal/rpc"
)

// MaxConcurrentCandidates bounds how many candidate sockets a search keeps
// open at once, per §4.2.
const MaxConcurrentCandidates = 4

// spawnQuiet is a 2 s spawn interval that Run does not consult: Run starts
// a new candidate whenever one of the MaxConcurrentCandidates slots is free.
const spawnQuiet = 2 * time.Second

// PingFunc issues the search's NULL-RPC probe against a freshly dialed
// socket and reports whether it verified the candidate, and if so, the
// negotiated protocol version. A PROG_MISMATCH carrying a version window
// should be resolved internally and reflected in the returned version.
type PingFunc func(ctx context.Context, s *Socket) (verified bool, version uint32, err error)

// Candidate is one socket under evaluation by a Search.
type Candidate struct {
	Socket   *Socket
	Addr     net.Addr
	Version  uint32
	Verified bool
	Err      error
}

// Search implements Connect Search (§4.2): it dials a bounded number of
// candidate addresses concurrently, pings each, and returns the first one
// to verify, folding the rest's errors into a single worst-error on
// failure.
type Search struct {
	addrs   []net.Addr
	network func(net.Addr) string
	sotype  SockType
	cfg     Config
	ping    PingFunc
	metrics *Metrics

	mu        sync.Mutex
	worstErr  error
}

// NewSearch builds a search over addrs (the mount's location cursor,
// already ordered by preference). network maps an address to its dial
// network ("tcp", "udp", "unix", ...).
func NewSearch(addrs []net.Addr, network func(net.Addr) string, sotype SockType, cfg Config, ping PingFunc, metrics *Metrics) *Search {
	return &Search{addrs: addrs, network: network, sotype: sotype, cfg: cfg, ping: ping, metrics: metrics}
}

// Run drives the search to completion: it returns the first verified
// candidate, or the best-ranked error (§7) if every address was exhausted
// without one.
func (s *Search) Run(ctx context.Context) (*Candidate, error) {
	if len(s.addrs) == 0 {
		return nil, fmt.Errorf("connect search: no addresses to try")
	}

	sem := semaphore.NewWeighted(MaxConcurrentCandidates)
	group, gctx := errgroup.WithContext(ctx)

	winner := make(chan *Candidate, 1)
	var winnerOnce sync.Once

	for _, addr := range s.addrs {
		addr := addr
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}

		group.Go(func() error {
			defer sem.Release(1)
			s.metrics.RecordCandidateSpawned()

			cand, err := s.tryOne(gctx, addr)
			if err != nil {
				s.recordErr(err)
				return nil
			}
			if cand.Verified {
				winnerOnce.Do(func() { winner <- cand })
				return nil
			}
			_ = cand.Socket.Destroy(time.Second)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case cand := <-winner:
		s.metrics.RecordCandidateSelected()
		return cand, nil
	case <-done:
		select {
		case cand := <-winner:
			s.metrics.RecordCandidateSelected()
			return cand, nil
		default:
		}
		if s.worstErr != nil {
			return nil, s.worstErr
		}
		return nil, fmt.Errorf("connect search: exhausted %d addresses without a verified candidate", len(s.addrs))
	}
}

func (s *Search) tryOne(ctx context.Context, addr net.Addr) (*Candidate, error) {
	network := s.network(addr)
	sock, err := DialSocket(ctx, network, addr.String(), s.sotype, s.cfg)
	if err != nil {
		return nil, err
	}

	verified, version, err := s.ping(ctx, sock)
	if err != nil {
		_ = sock.Destroy(time.Second)
		return nil, err
	}

	logger.Debug("connect search: candidate pinged", "addr", addr, "verified", verified, "version", version)
	return &Candidate{Socket: sock, Addr: addr, Version: version, Verified: verified}, nil
}

func (s *Search) recordErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worstErr = rpc.WorseOf(s.worstErr, err)
}
