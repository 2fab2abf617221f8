package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/marmos91/nfsmount/internal/logger"
)

// ReplyHandler is invoked once per complete RPC message read off a socket;
// it implements match_reply (§4.3) without this package needing to know
// about the request registry.
type ReplyHandler func(msg []byte)

// dgramPollInterval is the read-deadline granularity the DGRAM receive loop
// polls at, standing in for MSG_DONTWAIT.
const dgramPollInterval = 200 * time.Millisecond

// ReceiveLoop runs the upcall for one socket until ctx is canceled or a
// non-transient read error occurs, dispatching complete RPC messages to
// handle. It selects the DGRAM or STREAM path from the socket's type.
func ReceiveLoop(ctx context.Context, s *Socket, handle ReplyHandler, metrics *Metrics) error {
	defer s.MarkUpcallDone()

	if s.Type() == SockDgram {
		return receiveDgram(ctx, s, handle, metrics)
	}
	return receiveStream(ctx, s, handle, metrics)
}

func receiveDgram(ctx context.Context, s *Socket, handle ReplyHandler, metrics *Metrics) error {
	buf := make([]byte, NFSMaxPacket)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(dgramPollInterval)); err != nil {
			return err
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		metrics.AddBytesReceived(n)
		msg := make([]byte, n)
		copy(msg, buf[:n])
		handle(msg)
	}
}

func receiveStream(ctx context.Context, s *Socket, handle ReplyHandler, metrics *Metrics) error {
	r := s.Reassembler()
	buf := make([]byte, 64*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(dgramPollInterval)); err != nil {
			return err
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		metrics.AddBytesReceived(n)

		records, ferr := r.Feed(buf[:n])
		for _, record := range records {
			handle(record)
		}
		if ferr != nil {
			metrics.RecordReassemblyError()
			logger.Warn("receive: record reassembly failed, abandoning socket", "addr", s.Addr(), "error", ferr)
			return ferr
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
