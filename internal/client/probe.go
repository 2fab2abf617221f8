package client

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/nfsmount/internal/rpc"
	"github.com/marmos91/nfsmount/internal/rpc/auth"
	"github.com/marmos91/nfsmount/internal/transport"
)

// probeXIDs hands out XIDs for connect-search pings, independently of any
// mount's registry: a ping is answered synchronously off the raw socket
// before a Mount (and its registry entry) exists at all.
var probeXIDs = rpc.NewXIDGenerator(uint64(time.Now().UnixNano()))

// pingFunc builds the Connect Search NULL-RPC probe (§4.2) for cfg: call
// procedure 0 against cfg.Program/cfg.Version on a freshly dialed
// candidate, and resolve a PROG_MISMATCH by negotiating within
// [cfg.MinVers, cfg.MaxVers].
func pingFunc(cfg Config) transport.PingFunc {
	none := auth.NewNoneProvider()
	return func(ctx context.Context, s *transport.Socket) (bool, uint32, error) {
		return probeNull(ctx, s, cfg.Program, cfg.Version, cfg.MinVers, cfg.MaxVers, none)
	}
}

// probeNull sends a NULL call and classifies the reply: SUCCESS verifies
// the candidate at the requested version; PROG_MISMATCH verifies it at
// whatever version the two windows agree on, if any.
func probeNull(ctx context.Context, s *transport.Socket, prog, vers, minVers, maxVers uint32, authProvider auth.Provider) (bool, uint32, error) {
	_, wireXID := probeXIDs.Next()

	cred, verf, err := authProvider.BuildCredential(&rpc.Request{})
	if err != nil {
		return false, 0, fmt.Errorf("probe: build credential: %w", err)
	}
	header := &rpc.CallHeader{XID: wireXID, Prog: prog, Vers: vers, Proc: rpc.ProcNull, Cred: cred, Verf: verf}
	headerBytes, err := header.Encode()
	if err != nil {
		return false, 0, fmt.Errorf("probe: encode header: %w", err)
	}

	wire := headerBytes
	if s.Type() == transport.SockStream {
		wire = transport.FrameRecord(headerBytes)
	}

	if outcome, sendErr := transport.Send(ctx, s, wire, nil); outcome != transport.SendOK {
		if sendErr != nil {
			return false, 0, sendErr
		}
		return false, 0, fmt.Errorf("probe: send did not complete (outcome %d)", outcome)
	}

	record, err := readOneRecord(ctx, s)
	if err != nil {
		return false, 0, fmt.Errorf("probe: read reply: %w", err)
	}

	reply, _, err := rpc.ParseReplyHeader(record)
	if err != nil {
		return false, 0, fmt.Errorf("probe: parse reply: %w", err)
	}
	if reply.XID != wireXID {
		return false, 0, fmt.Errorf("probe: xid mismatch: got %d want %d", reply.XID, wireXID)
	}

	switch {
	case reply.ReplyStat == rpc.MsgAccepted && reply.AcceptStat == rpc.Success:
		return true, vers, nil

	case reply.ReplyStat == rpc.MsgAccepted && reply.AcceptStat == rpc.ProgMismatch:
		lo, hi := reply.MismatchLow, reply.MismatchHigh
		if lo > maxVers || hi < minVers {
			return false, 0, fmt.Errorf("probe: server window [%d,%d] does not overlap [%d,%d]", lo, hi, minVers, maxVers)
		}
		negotiated := hi
		if negotiated > maxVers {
			negotiated = maxVers
		}
		return true, negotiated, nil

	default:
		return false, 0, fmt.Errorf("probe: rejected: reply_stat=%d accept_stat=%d reject_stat=%d",
			reply.ReplyStat, reply.AcceptStat, reply.RejectStat)
	}
}

// readOneRecord performs a single blocking read for one complete RPC
// message: through the reassembler for STREAM, or one datagram for DGRAM.
// Only used during the connect search, before a receive loop is running.
func readOneRecord(ctx context.Context, s *transport.Socket) ([]byte, error) {
	if err := s.ArmDeadline(); err != nil {
		return nil, err
	}

	buf := make([]byte, 64*1024)

	if s.Type() == transport.SockDgram {
		n, err := s.Conn().Read(buf)
		if err != nil {
			return nil, err
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}

	r := s.Reassembler()
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, err := s.Conn().Read(buf)
		if err != nil {
			return nil, err
		}
		records, ferr := r.Feed(buf[:n])
		if ferr != nil {
			return nil, ferr
		}
		if len(records) > 0 {
			return records[0], nil
		}
	}
}
