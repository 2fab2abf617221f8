package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallHeaderEncode(t *testing.T) {
	h := &CallHeader{
		XID:  0xdeadbeef,
		Prog: 100003,
		Vers: 3,
		Proc: ProcNull,
		Cred: OpaqueAuth{Flavor: AuthNull},
		Verf: OpaqueAuth{Flavor: AuthNull},
	}

	encoded, err := h.Encode()
	require.NoError(t, err)
	// xid, msg_type(CALL=0), rpcvers(2), prog, vers, proc, cred(flavor+len), verf(flavor+len)
	require.Len(t, encoded, 4*10)
	assert.Equal(t, uint32(0xdeadbeef), be32(encoded[0:4]))
	assert.Equal(t, Call, be32(encoded[4:8]))
	assert.Equal(t, RPCVersion2, be32(encoded[8:12]))
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func TestParseReplyHeaderAcceptedSuccess(t *testing.T) {
	data := buildAcceptedReply(t, 0x1234, Success, nil)

	h, bodyOffset, err := ParseReplyHeader(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), h.XID)
	assert.Equal(t, MsgAccepted, h.ReplyStat)
	assert.Equal(t, Success, h.AcceptStat)
	assert.Equal(t, len(data), bodyOffset)
}

func TestParseReplyHeaderProgMismatch(t *testing.T) {
	mismatch := []byte{0, 0, 0, 2, 0, 0, 0, 3}
	data := buildAcceptedReply(t, 0x5678, ProgMismatch, mismatch)

	h, _, err := ParseReplyHeader(data)
	require.NoError(t, err)
	assert.Equal(t, ProgMismatch, h.AcceptStat)
	assert.Equal(t, uint32(2), h.MismatchLow)
	assert.Equal(t, uint32(3), h.MismatchHigh)
}

func TestParseReplyHeaderRejectsCallMessage(t *testing.T) {
	data := []byte{0, 0, 0, 1, 0, 0, 0, 0}
	_, _, err := ParseReplyHeader(data)
	require.Error(t, err)
}

func TestPeekXID(t *testing.T) {
	data := buildAcceptedReply(t, 0x99, Success, nil)
	xid, isReply, err := PeekXID(data)
	require.NoError(t, err)
	assert.True(t, isReply)
	assert.Equal(t, uint32(0x99), xid)
}

// buildAcceptedReply constructs a minimal MSG_ACCEPTED reply with an empty
// AUTH_NONE verifier, optionally followed by extra accept-stat-specific
// fields (e.g. the PROG_MISMATCH version window).
func buildAcceptedReply(t *testing.T, xid uint32, acceptStat uint32, extra []byte) []byte {
	t.Helper()
	buf := []byte{}
	buf = appendU32(buf, xid)
	buf = appendU32(buf, Reply)
	buf = appendU32(buf, MsgAccepted)
	buf = appendU32(buf, AuthNull) // verifier flavor
	buf = appendU32(buf, 0)        // verifier body length
	buf = appendU32(buf, acceptStat)
	buf = append(buf, extra...)
	return buf
}

func appendU32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
