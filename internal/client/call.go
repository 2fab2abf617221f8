package client

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/nfsmount/internal/logger"
	"github.com/marmos91/nfsmount/internal/rpc"
	"github.com/marmos91/nfsmount/internal/transport"
)

// Call implements the Send Engine (§4.4) for a synchronous RPC: it
// acquires the send lock, waits for the socket to be READY, charges the
// DGRAM congestion window, serializes the call, and retries according to
// the RTO estimator and backoff table until the reply arrives, the
// retry budget is exhausted (soft mounts), or ctx is done. proc/class
// select the procedure number on the wire and the RTO bucket (§3); body
// is the already-XDR-encoded procedure arguments.
func (m *Mount) Call(ctx context.Context, proc, class uint32, body []byte) ([]byte, error) {
	if m.IsDead() {
		return nil, rpc.NewError("call", rpc.KindOther, fmt.Errorf("mount is dead"))
	}

	retry := m.cfg.Retry
	if !m.cfg.Soft {
		retry = maxHardRexmit
	}

	req := m.registry.Create(m, proc, class, m.cfg.Auth.Flavor(), !m.cfg.Soft, retry)
	req.SetFlag(rpc.FlagIOInProgress)
	wireXID := m.registry.AddHeader(req)
	m.registry.Enqueue(req)
	defer func() {
		req.ClearFlag(rpc.FlagIOInProgress)
		m.registry.Destroy(req)
	}()

	cred, verf, err := m.cfg.Auth.BuildCredential(req)
	if err != nil {
		return nil, fmt.Errorf("call: build credential: %w", err)
	}
	header := &rpc.CallHeader{XID: wireXID, Prog: m.cfg.Program, Vers: m.cfg.Version, Proc: proc, Cred: cred, Verf: verf}
	headerBytes, err := header.Encode()
	if err != nil {
		return nil, fmt.Errorf("call: encode header: %w", err)
	}
	wireBody, err := m.cfg.Auth.WrapCall(append(headerBytes, body...))
	if err != nil {
		return nil, fmt.Errorf("call: wrap body: %w", err)
	}

	maxtime := m.maxtime()
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if err := m.acquireSendLock(ctx, req); err != nil {
			return nil, err
		}

		sock, err := m.waitReady(ctx)
		if err != nil {
			m.releaseSendLock()
			return nil, err
		}

		if m.cwnd != nil && !req.HasFlag(rpc.FlagInCwndQueue) {
			if err := m.cwnd.Charge(ctx); err != nil {
				m.releaseSendLock()
				return nil, err
			}
			req.SetFlag(rpc.FlagInCwndQueue)
			if m.rpcMetrics != nil {
				m.rpcMetrics.SetCwnd(m.cwnd.Window())
			}
		}

		wire := wireBody
		if sock.Type() == transport.SockStream {
			wire = transport.FrameRecord(wireBody)
		}

		req.SentAt = time.Now()
		outcome, sendErr := transport.Send(ctx, sock, wire, m.transportMetrics)
		m.releaseSendLock()

		switch outcome {
		case transport.SendOK:
			req.SetFlag(rpc.FlagSent)
			if attempt > 0 {
				req.Rexmit++
				if m.rpcMetrics != nil {
					m.rpcMetrics.RecordRetransmit()
				}
			}
		case transport.SendMustReconnect:
			go m.triggerReconnect()
		case transport.SendFatal:
			return nil, sendErr
		default:
			logger.Debug("call: send failed, will retry", "proc", proc, "xid", wireXID, "error", sendErr)
		}

		timeo := m.rto.Timeout(class, m.cfg.Timeo)
		timeo = rpc.BackoffTimeout(timeo, int(m.timeoutCount.Load()), maxtime)

		select {
		case <-req.Done:
			reply := req.Reply
			unwrapped, err := m.cfg.Auth.UnwrapReply(reply)
			if err != nil {
				return nil, fmt.Errorf("call: unwrap reply: %w", err)
			}
			if m.rpcMetrics != nil {
				m.rpcMetrics.RecordRequest("success", time.Since(start))
			}
			return unwrapped, nil

		case <-ctx.Done():
			return nil, ctx.Err()

		case <-time.After(timeo):
			m.timeoutCount.Add(1)
			if m.cwnd != nil {
				m.cwnd.Halve()
				req.ClearFlag(rpc.FlagTiming)
			}
			if attempt+1 >= req.Retry || (m.cfg.Soft && time.Since(start) > maxtime) {
				if m.rpcMetrics != nil {
					m.rpcMetrics.RecordRequest("timeout", time.Since(start))
				}
				return nil, rpc.NewError("call", rpc.KindTransient, fmt.Errorf("rpc timeout after %d attempts", attempt+1))
			}
			// loop around and resend
		}
	}
}

// maxHardRexmit mirrors NFS_MAXREXMIT+1 from the historical client: hard
// mounts retry effectively indefinitely rather than giving up, bounded
// only by the caller's context.
const maxHardRexmit = 1 << 30

// maxtime implements §4.6 step 4: the ceiling a single request's total
// retry budget is clamped to.
func (m *Mount) maxtime() time.Duration {
	if !m.cfg.Soft {
		return m.cfg.Timeo * time.Duration(maxHardRexmit)
	}
	n := m.timeoutCount.Load() + 1
	t := (30 * time.Second) / time.Duration(n) / 2
	floor := 2500 * time.Millisecond / 4
	if t < floor {
		t = floor
	}
	return t
}

// acquireSendLock implements §4.4 step 1: at most one goroutine holds
// the mount's send lock at a time. Acquisition is abandoned as soon as ctx
// is done, whatever the mount's Intr setting; Intr is not consulted here.
func (m *Mount) acquireSendLock(ctx context.Context, req *rpc.Request) error {
	select {
	case <-m.sendMu:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mount) releaseSendLock() {
	m.sendMu <- struct{}{}
}

// waitReady implements §4.4 step 4: block until the active socket is
// READY, or ctx is done. A reconnect racing this wait simply produces
// another iteration: clearSocket installs a fresh, open ready channel,
// so a stale closed one can never be mistaken for current readiness.
func (m *Mount) waitReady(ctx context.Context) (*transport.Socket, error) {
	for {
		sock, readyCh := m.currentSocket()
		select {
		case <-readyCh:
			if sock != nil {
				return sock, nil
			}
			// ready closed but socket already cleared again; re-check.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
