// Package transport implements the per-candidate-server transport core: socket
// lifecycle, connect search, the request send path and DGRAM congestion
// window, and receive upcalls. The reconnect/dead-server timer is driven by
// the mount endpoint in internal/client. It treats the RPC wire format (internal/rpc)
// and the authentication capability set (internal/rpc/auth) as collaborators
// and knows nothing about NFS/MOUNT procedure semantics above the XID.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsmount/internal/bytesize"
	"github.com/marmos91/nfsmount/internal/logger"
)

// SockType distinguishes the two wire transports a candidate socket can use.
type SockType int

const (
	SockDgram SockType = iota
	SockStream
)

func (t SockType) String() string {
	if t == SockStream {
		return "stream"
	}
	return "dgram"
}

// NFSUDPSockBuf is the send/receive buffer reserve requested on DGRAM
// sockets, matching the historical NFS client's NFS_UDPSOCKBUF.
const NFSUDPSockBuf = 224 * 1024

// localDomainSockBuf is the 2 MiB buffer reserve configure applies to every
// STREAM socket; configure does not tell UNIX-domain sockets apart from TCP ones.
const localDomainSockBuf = 2 * int(bytesize.MiB)

// Config carries the knobs socket_configure needs that aren't properties of
// a single candidate address: timeout class, interruptibility, reserved-port
// use. The owning mount fills this in once and shares it across candidates.
type Config struct {
	// Soft selects the 5s send/receive timeout class used by soft/"squishy"
	// mounts; hard mounts (the default) get 60s.
	Soft bool

	// Intr allows a blocked socket operation to be interrupted by context
	// cancellation rather than only by the deadline.
	Intr bool

	// ReservedPort requests a bind to a privileged source port (<1024),
	// historically required by some server-side export policies.
	ReservedPort bool
}

func (c Config) timeout() time.Duration {
	if c.Soft {
		return 5 * time.Second
	}
	return 60 * time.Second
}

// Socket is one candidate transport endpoint: a single connected (STREAM) or
// associated (DGRAM) net.Conn to one server address, plus the reassembler
// state STREAM framing needs. Connect Search owns a small pool of these
// while probing; Timer & Reconnect owns exactly one, the "current" socket,
// once a mount is established.
type Socket struct {
	mu sync.Mutex

	conn     net.Conn
	sotype   SockType
	addr     net.Addr
	cfg      Config
	destroyed bool

	// reassembler is non-nil only for SockStream; DGRAM transports have no
	// record framing to reassemble (one datagram is one RPC message).
	reassembler *Reassembler

	// upcallDone is closed once the socket's receive loop has returned,
	// letting socket_destroy wait for it to quiesce before closing the conn.
	upcallDone chan struct{}
}

// reservedPortRange is the privileged source port window (IANA well-known
// range) socket_create binds from when the mount requests a reserved port.
const (
	reservedPortLow  = 600
	reservedPortHigh = 1023
)

// DialSocket performs socket_create: it builds (and for STREAM, connects) a
// transport endpoint to addr. Unlike a bare net.Dial, reserved-port requests
// bind a privileged source port before connect(2) by trying the reserved
// range directly — Linux exposes no portable "next low port" sockopt the way
// IP_PORTRANGE does on BSD — and it tags the result with the record
// reassembler STREAM transports need.
func DialSocket(ctx context.Context, network string, addr string, sotype SockType, cfg Config) (*Socket, error) {
	dialer := &net.Dialer{Timeout: cfg.timeout()}

	var conn net.Conn
	var err error
	if cfg.ReservedPort {
		conn, err = dialReservedPort(ctx, dialer, network, addr)
	} else {
		conn, err = dialer.DialContext(ctx, network, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("socket_create %s %s: %w", network, addr, err)
	}

	s := &Socket{
		conn:       conn,
		sotype:     sotype,
		addr:       conn.RemoteAddr(),
		cfg:        cfg,
		upcallDone: make(chan struct{}),
	}
	if sotype == SockStream {
		s.reassembler = NewReassembler()
	}

	if err := s.configure(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// dialReservedPort tries each port in the reserved range as the dial's local
// address until one binds and connects, mirroring the historical client's
// bind-low-port-then-connect sequence for servers that authorize callers by
// source port. Ports already in use by another local socket are skipped.
func dialReservedPort(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	var lastErr error
	for port := reservedPortHigh; port >= reservedPortLow; port-- {
		d := *dialer
		switch network {
		case "tcp", "tcp4", "tcp6":
			d.LocalAddr = &net.TCPAddr{Port: port}
		case "udp", "udp4", "udp6":
			d.LocalAddr = &net.UDPAddr{Port: port}
		}
		conn, err := d.DialContext(ctx, network, addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no reserved port available in [%d,%d]: %w", reservedPortLow, reservedPortHigh, lastErr)
}

// configure performs socket_configure: timeouts, keepalive/NODELAY on
// STREAM, and buffer reserves, applied through the connection's raw fd where
// net.Conn exposes no portable setter.
func (s *Socket) configure() error {
	if err := s.conn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("socket_configure: clear deadline: %w", err)
	}

	syscallConn, ok := s.conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := syscallConn.SyscallConn()
	if err != nil {
		return fmt.Errorf("socket_configure: raw conn: %w", err)
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		bufSize := NFSUDPSockBuf
		if s.sotype == SockStream {
			bufSize = localDomainSockBuf
			if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); sockErr != nil {
				return
			}
			if sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); sockErr != nil {
				return
			}
		}
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, bufSize); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bufSize)
	})
	if err != nil {
		return fmt.Errorf("socket_configure: control: %w", err)
	}
	if sockErr != nil {
		logger.Warn("socket_configure: setsockopt failed, continuing with defaults",
			"addr", s.addr, "sotype", s.sotype, "error", sockErr)
	}
	return nil
}

// ArmDeadline sets the per-operation send/receive timeout appropriate to the
// mount's soft/hard class; callers re-arm before every blocking read/write.
func (s *Socket) ArmDeadline() error {
	return s.conn.SetDeadline(time.Now().Add(s.cfg.timeout()))
}

func (s *Socket) Conn() net.Conn        { return s.conn }
func (s *Socket) Type() SockType        { return s.sotype }
func (s *Socket) Addr() net.Addr        { return s.addr }
func (s *Socket) Reassembler() *Reassembler { return s.reassembler }

// MarkUpcallDone signals that this socket's receive loop has returned,
// unblocking a concurrent socket_destroy waiting in Destroy.
func (s *Socket) MarkUpcallDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.upcallDone:
	default:
		close(s.upcallDone)
	}
}

// Destroy performs socket_destroy: quiesce the upcall, shut down both
// directions, close. Safe to call more than once.
func (s *Socket) Destroy(quiesce time.Duration) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	s.mu.Unlock()

	if tcp, ok := s.conn.(*net.TCPConn); ok {
		_ = tcp.CloseRead()
		_ = tcp.CloseWrite()
	}

	select {
	case <-s.upcallDone:
	case <-time.After(quiesce):
		logger.Warn("socket_destroy: upcall did not quiesce in time", "addr", s.addr)
	}

	return s.conn.Close()
}
