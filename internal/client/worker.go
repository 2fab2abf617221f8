package client

import (
	"context"
	"time"

	"github.com/marmos91/nfsmount/internal/logger"
	"github.com/marmos91/nfsmount/internal/rpc"
	"github.com/marmos91/nfsmount/internal/transport"
)

// tickInterval is how often the background worker scans for resendable
// async requests and dead-server conditions (§4.6 step 1).
const tickInterval = 500 * time.Millisecond

// startReceiveLoop launches the socket's upcall goroutine, matching every
// complete reply against the process-wide registry (§4.3 match_reply). A
// non-transient read error (the socket went away under us) triggers a
// reconnect rather than killing the mount outright.
func (m *Mount) startReceiveLoop() {
	sock, _ := m.currentSocket()
	if sock == nil {
		return
	}
	go func() {
		err := transport.ReceiveLoop(context.Background(), sock, func(msg []byte) {
			if _, err := m.registry.MatchReply(m, msg); err != nil {
				logger.Debug("receive: dropping unmatched record", "mount_id", m.id, "error", err)
			}
		}, m.transportMetrics)
		if err != nil && !m.IsDead() {
			logger.Warn("receive: loop exited, reconnecting", "mount_id", m.id, "error", err)
			go m.triggerReconnect()
		}
	}()
}

// startWorker launches the Timer & Reconnect background goroutine (§4.6).
func (m *Mount) startWorker() {
	ctx, cancel := context.WithCancel(context.Background())
	m.workerCancel = cancel
	go m.runWorker(ctx)
}

func (m *Mount) runWorker(ctx context.Context) {
	defer close(m.workerDone)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick implements one Timer & Reconnect scan (§4.6): check for a dead
// server, then service the asynchronous resend queue.
func (m *Mount) tick() {
	if m.IsDead() {
		return
	}
	m.checkDeadServer()
	m.resendAsync()
}

// checkDeadServer implements the "squishy" dead-server rule (§4.6): a
// squishy mount with no reply in DeadTimeout is declared dead rather than
// retried forever, the accelerated detection automounted/mobile mounts
// want over the default hard-mount behavior of retrying indefinitely.
func (m *Mount) checkDeadServer() {
	if !m.cfg.Squishy || m.cfg.DeadTimeout <= 0 {
		return
	}
	last := time.Unix(0, m.lastReplyAt.Load())
	if time.Since(last) > m.cfg.DeadTimeout {
		m.markDead()
	}
}

// resendAsync sets FlagMustResend on any outstanding asynchronous request
// (FlagAsync) that has waited longer than the current RTO estimate for its
// class. It sends nothing itself, and no code path reads FlagMustResend,
// so a flagged request is not retransmitted.
// Synchronous calls run their own retry loop in Call and are skipped here
// (FlagIOInProgress), so the worker and a blocked caller never race to
// resend the same request.
func (m *Mount) resendAsync() {
	for _, req := range m.registry.Outstanding(m) {
		if !req.HasFlag(rpc.FlagAsync) || req.HasFlag(rpc.FlagIOInProgress) {
			continue
		}

		timeo := m.rto.Timeout(req.Class, m.cfg.Timeo)
		if time.Since(req.SentAt) < timeo {
			continue
		}

		req.SetFlag(rpc.FlagMustResend)
		logger.Debug("worker: flagged async request for resend", "mount_id", m.id, "xid", req.XID)
	}
}

// triggerReconnect runs Connect Search again over the mount's configured
// locations and installs the winner, implementing §4.6 "Reconnect". Only
// one reconnect attempt runs at a time; concurrent callers (a failed send
// and a failed receive loop racing each other) collapse into the one
// already in flight.
func (m *Mount) triggerReconnect() {
	if !m.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer m.reconnecting.Store(false)

	if m.IsDead() {
		return
	}

	logger.Warn("mount: reconnecting", "mount_id", m.id)

	old, _ := m.currentSocket()
	m.clearSocket()
	if old != nil {
		_ = old.Destroy(2 * time.Second)
	}

	searchTimeout := m.cfg.SearchTimeout
	if searchTimeout <= 0 {
		searchTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()

	search := transport.NewSearch(
		toNetAddrs(m.cfg.Locations),
		dialNetwork,
		m.socketType(),
		m.cfg.transportConfig(),
		pingFunc(m.cfg),
		m.transportMetrics,
	)

	winner, err := search.Run(ctx)
	if err != nil {
		logger.Warn("mount: reconnect failed", "mount_id", m.id, "error", err)
		if m.cfg.Squishy {
			m.markDead()
		}
		return
	}

	m.setSocket(winner.Socket)
	m.version.Store(winner.Version)
	m.locIndex = indexOfAddr(m.cfg.Locations, winner.Addr)
	m.startReceiveLoop()

	for _, req := range m.registry.Outstanding(m) {
		req.SetFlag(rpc.FlagMustResend)
	}

	if m.rpcMetrics != nil {
		m.rpcMetrics.RecordReconnect()
	}
}

func (m *Mount) socketType() transport.SockType {
	if sock, _ := m.currentSocket(); sock != nil {
		return sock.Type()
	}
	if m.cfg.SoTypeSet {
		return m.cfg.SoType
	}
	return transport.SockStream
}
