package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/marmos91/nfsmount/internal/logger"
)

// Cwnd implements the Van Jacobson-style congestion window used to throttle
// outstanding DGRAM requests (§4.4 step 5). All methods are safe for
// concurrent use.
type Cwnd struct {
	mu       sync.Mutex
	sent     int
	window   int
	waiters  []chan struct{}
}

// NFSCwndScale and MaxCwnd mirror the historical client's fixed-point
// congestion window scale and ceiling.
const (
	NFSCwndScale = 256
	MaxCwnd      = 32 * NFSCwndScale
)

// NewCwnd returns a cwnd initialized to one scale unit, the historical
// client's starting window.
func NewCwnd() *Cwnd {
	return &Cwnd{window: NFSCwndScale}
}

// Charge blocks (respecting ctx) until a congestion-window slot is
// available, then charges NFS_CWNDSCALE against it.
func (c *Cwnd) Charge(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.sent < c.window {
			c.sent += NFSCwndScale
			c.mu.Unlock()
			return nil
		}
		wake := make(chan struct{})
		c.waiters = append(c.waiters, wake)
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release returns a charged slot, e.g. once a reply arrives.
func (c *Cwnd) Release() {
	c.mu.Lock()
	c.sent -= NFSCwndScale
	if c.sent < 0 {
		c.sent = 0
	}
	var wake chan struct{}
	if len(c.waiters) > 0 {
		wake = c.waiters[0]
		c.waiters = c.waiters[1:]
	}
	c.mu.Unlock()
	if wake != nil {
		close(wake)
	}
}

// Halve shrinks the window on a retransmission, flooring at one scale unit.
func (c *Cwnd) Halve() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window /= 2
	if c.window < NFSCwndScale {
		c.window = NFSCwndScale
	}
}

// Grow widens the window by one scale unit, capping at MaxCwnd; the mount
// calls it on a reply to a timed request that was not retransmitted.
func (c *Cwnd) Grow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window += NFSCwndScale
	if c.window > MaxCwnd {
		c.window = MaxCwnd
	}
}

func (c *Cwnd) Window() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// SendOutcome classifies the result of one Send attempt (§4.4 step 7).
type SendOutcome int

const (
	SendOK SendOutcome = iota
	SendMustReconnect
	SendMustResend
	SendFatal
)

// Send writes body to the socket (DGRAM candidates not yet connected
// address it explicitly), classifying the outcome per the disconnect-error
// table in §4.4 step 7.
func Send(ctx context.Context, s *Socket, body []byte, metrics *Metrics) (SendOutcome, error) {
	if err := s.ArmDeadline(); err != nil {
		return SendFatal, fmt.Errorf("send: arm deadline: %w", err)
	}

	var n int
	var err error
	if pc, ok := s.Conn().(net.PacketConn); ok && s.Type() == SockDgram && s.Conn().RemoteAddr() == nil {
		n, err = pc.WriteTo(body, s.Addr())
	} else {
		n, err = s.Conn().Write(body)
	}
	if err == nil {
		metrics.AddBytesSent(n)
		if n < len(body) {
			logger.Warn("send: short write on stream socket", "addr", s.Addr(), "wrote", n, "want", len(body))
			return SendMustReconnect, nil
		}
		return SendOK, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return SendFatal, err
	}
	if isDisconnectError(err) {
		logger.Debug("send: disconnect error, flagging socket for reconnect", "addr", s.Addr(), "error", err)
		return SendMustReconnect, nil
	}
	return SendMustResend, err
}

// isDisconnectError reports whether err is one of the common transport
// disconnect conditions (§4.4 step 7) that should trigger reconnection
// rather than being surfaced to the caller.
func isDisconnectError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return errors.As(opErr.Err, &errno) && disconnectErrnos[errno]
		}
		return false
	}
	return disconnectErrnos[errno]
}

var disconnectErrnos = map[syscall.Errno]bool{
	syscall.EPIPE:        true,
	syscall.EADDRNOTAVAIL: true,
	syscall.ENETDOWN:     true,
	syscall.ENETUNREACH:  true,
	syscall.ENETRESET:    true,
	syscall.ECONNABORTED: true,
	syscall.ECONNRESET:   true,
	syscall.ECONNREFUSED: true,
	syscall.ENOTCONN:     true,
	syscall.ESHUTDOWN:    true,
	syscall.EHOSTDOWN:    true,
	syscall.EHOSTUNREACH: true,
}
