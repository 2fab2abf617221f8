package rpc

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMount struct {
	id          uint64
	lastClass   uint32
	lastRTT     time.Duration
	replyCount  int
	wasRetransm bool
}

func (f *fakeMount) ID() uint64 { return f.id }
func (f *fakeMount) OnReply(class uint32, rtt time.Duration, wasRetransmit bool) {
	f.lastClass = class
	f.lastRTT = rtt
	f.wasRetransm = wasRetransmit
	f.replyCount++
}

func buildReply(xid uint32) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], xid)
	binary.BigEndian.PutUint32(buf[4:8], Reply)
	binary.BigEndian.PutUint32(buf[8:12], MsgAccepted)
	return buf
}

func TestRegistryEnqueueAndMatch(t *testing.T) {
	reg := NewRegistry(1)
	mount := &fakeMount{id: 1}

	req := reg.Create(mount, ProcNull, ClassLookup, AuthUnix, true, 3)
	wireXID := reg.AddHeader(req)
	reg.Enqueue(req)
	req.SentAt = time.Now()

	matched, err := reg.MatchReply(mount, buildReply(wireXID))
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Same(t, req, matched)
	assert.Equal(t, 1, mount.replyCount)
	assert.Equal(t, ClassLookup, mount.lastClass)

	select {
	case <-req.Done:
	default:
		t.Fatal("Done channel should be closed after a match")
	}
}

func TestRegistryMatchReplyXIDUniqueness(t *testing.T) {
	reg := NewRegistry(1)
	mount := &fakeMount{id: 1}

	req1 := reg.Create(mount, ProcNull, ClassDefault, AuthUnix, true, 3)
	xid1 := reg.AddHeader(req1)
	reg.Enqueue(req1)

	req2 := reg.Create(mount, ProcNull, ClassDefault, AuthUnix, true, 3)
	xid2 := reg.AddHeader(req2)
	reg.Enqueue(req2)

	assert.NotEqual(t, xid1, xid2)

	matched, err := reg.MatchReply(mount, buildReply(xid2))
	require.NoError(t, err)
	assert.Same(t, req2, matched)
}

func TestRegistryMatchReplyDropsNonReply(t *testing.T) {
	reg := NewRegistry(1)
	mount := &fakeMount{id: 1}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], 42)
	binary.BigEndian.PutUint32(buf[4:8], Call)

	matched, err := reg.MatchReply(mount, buf)
	require.NoError(t, err)
	assert.Nil(t, matched)
}

func TestRegistryMatchReplyIgnoresAlreadyMatched(t *testing.T) {
	reg := NewRegistry(1)
	mount := &fakeMount{id: 1}

	req := reg.Create(mount, ProcNull, ClassDefault, AuthUnix, true, 3)
	xid := reg.AddHeader(req)
	reg.Enqueue(req)

	first, err := reg.MatchReply(mount, buildReply(xid))
	require.NoError(t, err)
	require.NotNil(t, first)

	// A duplicate reply for the same XID must not re-match: the reply slot
	// is no longer empty (§3 invariant 2).
	second, err := reg.MatchReply(mount, buildReply(xid))
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestRegistryDestroyIsIdempotent(t *testing.T) {
	reg := NewRegistry(1)
	mount := &fakeMount{id: 1}

	req := reg.Create(mount, ProcNull, ClassDefault, AuthUnix, true, 3)
	reg.AddHeader(req)
	reg.Enqueue(req)

	reg.Destroy(req)
	assert.Equal(t, 0, reg.Len())

	// Calling Destroy again must not panic or double-free.
	require.NotPanics(t, func() { reg.Destroy(req) })
}

func TestRegistryOutstandingScopesByOwner(t *testing.T) {
	reg := NewRegistry(1)
	mountA := &fakeMount{id: 1}
	mountB := &fakeMount{id: 2}

	reqA := reg.Create(mountA, ProcNull, ClassDefault, AuthUnix, true, 3)
	reg.AddHeader(reqA)
	reg.Enqueue(reqA)

	reqB := reg.Create(mountB, ProcNull, ClassDefault, AuthUnix, true, 3)
	reg.AddHeader(reqB)
	reg.Enqueue(reqB)

	out := reg.Outstanding(mountA)
	require.Len(t, out, 1)
	assert.Same(t, reqA, out[0])
}

func TestGlobalRegistryIsSingleton(t *testing.T) {
	assert.Same(t, Global(), Global())
}

func TestXIDGeneratorUniqueness(t *testing.T) {
	gen := NewXIDGenerator(0)
	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		_, wire := gen.Next()
		assert.False(t, seen[wire], "xid %d reused", wire)
		seen[wire] = true
	}
}
