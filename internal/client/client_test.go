package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfsmount/internal/rpc"
	"github.com/marmos91/nfsmount/internal/transport"
)

// acceptedSuccessReply builds a minimal MSG_ACCEPTED/SUCCESS reply for
// xid, with an AUTH_NONE verifier, matching the wire shape call.go expects.
func acceptedSuccessReply(xid uint32) []byte {
	buf := make([]byte, 0, 24)
	put := func(v uint32) {
		buf = append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	put(xid)
	put(rpc.Reply)
	put(rpc.MsgAccepted)
	put(rpc.AuthNull) // verifier flavor
	put(0)            // verifier body length
	put(rpc.Success)
	return buf
}

// runNullPingServer starts a UDP loopback server that replies to every
// datagram it receives with an accepted-success reply carrying the same
// XID, implementing §8 scenario 1 ("Trivial NULL ping").
func runNullPingServer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			xid, isReply, err := rpc.PeekXID(buf[:n])
			if err != nil || isReply {
				continue
			}
			_, _ = conn.WriteToUDP(acceptedSuccessReply(xid), addr)
		}
	}()
	return conn
}

func TestDialAndCallNullPing(t *testing.T) {
	srv := runNullPingServer(t)
	addr := srv.LocalAddr().(*net.UDPAddr)

	cfg := DefaultConfig()
	cfg.SoType = transport.SockDgram
	cfg.SoTypeSet = true
	cfg.Soft = true
	cfg.Timeo = 2 * time.Second
	cfg.SearchTimeout = 2 * time.Second
	cfg.MinVers = 3
	cfg.MaxVers = 3
	cfg.Version = 3
	cfg.Locations = []Location{{Network: "udp", Addr: addr.String()}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, err := Dial(ctx, cfg)
	require.NoError(t, err)
	defer m.Close()

	reply, err := m.Call(ctx, rpc.ProcNull, rpc.ClassDefault, nil)
	require.NoError(t, err)
	require.Empty(t, reply)
	require.Equal(t, uint32(3), m.Version())
}
