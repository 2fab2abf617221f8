package rpc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// OpaqueAuth is the opaque_auth structure (RFC 5531 Section 8.2): a flavor
// tag plus an opaque body whose encoding depends on the flavor.
type OpaqueAuth struct {
	Flavor uint32
	Body   []byte
}

// CallHeader is the fixed portion of an RPC call message, up to and
// including the credential and verifier (RFC 5531 Section 8.1).
type CallHeader struct {
	XID     uint32
	Prog    uint32
	Vers    uint32
	Proc    uint32
	Cred    OpaqueAuth
	Verf    OpaqueAuth
}

// Encode serializes the call header. The caller appends the XDR-encoded
// procedure arguments after the returned bytes.
func (h *CallHeader) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}

	fields := []uint32{h.XID, Call, RPCVersion2, h.Prog, h.Vers, h.Proc}
	for _, f := range fields {
		if err := binary.Write(buf, binary.BigEndian, f); err != nil {
			return nil, fmt.Errorf("write call header field: %w", err)
		}
	}

	if err := encodeOpaqueAuth(buf, h.Cred); err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	if err := encodeOpaqueAuth(buf, h.Verf); err != nil {
		return nil, fmt.Errorf("encode verifier: %w", err)
	}

	return buf.Bytes(), nil
}

func encodeOpaqueAuth(buf *bytes.Buffer, a OpaqueAuth) error {
	if err := binary.Write(buf, binary.BigEndian, a.Flavor); err != nil {
		return err
	}
	length := uint32(len(a.Body))
	if err := binary.Write(buf, binary.BigEndian, length); err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	if _, err := buf.Write(a.Body); err != nil {
		return err
	}
	padding := (4 - (length % 4)) % 4
	for range int(padding) {
		if err := buf.WriteByte(0); err != nil {
			return err
		}
	}
	return nil
}

func decodeOpaqueAuth(r *bytes.Reader) (OpaqueAuth, error) {
	var a OpaqueAuth
	if err := binary.Read(r, binary.BigEndian, &a.Flavor); err != nil {
		return a, fmt.Errorf("read flavor: %w", err)
	}
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return a, fmt.Errorf("read auth body length: %w", err)
	}
	const maxAuthBody = 1 << 16
	if length > maxAuthBody {
		return a, fmt.Errorf("auth body length %d exceeds maximum %d", length, maxAuthBody)
	}
	if length > 0 {
		a.Body = make([]byte, length)
		if _, err := r.Read(a.Body); err != nil {
			return a, fmt.Errorf("read auth body: %w", err)
		}
		padding := (4 - (length % 4)) % 4
		for range int(padding) {
			if _, err := r.ReadByte(); err != nil {
				return a, fmt.Errorf("skip auth body padding: %w", err)
			}
		}
	}
	return a, nil
}

// ReplyHeader is the fixed portion of an RPC reply message up to (but not
// including) the procedure results (RFC 5531 Section 8.1).
type ReplyHeader struct {
	XID uint32

	// ReplyStat is MsgAccepted or MsgDenied.
	ReplyStat uint32

	// Verf is present only when ReplyStat == MsgAccepted.
	Verf OpaqueAuth

	// AcceptStat is valid only when ReplyStat == MsgAccepted.
	AcceptStat uint32

	// MismatchLow/MismatchHigh are valid only when AcceptStat ==
	// ProgMismatch: the server's supported version window.
	MismatchLow  uint32
	MismatchHigh uint32

	// RejectStat is valid only when ReplyStat == MsgDenied.
	RejectStat uint32

	// RPCMismatchLow/RPCMismatchHigh are valid only when RejectStat ==
	// RpcMismatch.
	RPCMismatchLow  uint32
	RPCMismatchHigh uint32

	// AuthStat is valid only when RejectStat == AuthError.
	AuthStat uint32
}

// ParseReplyHeader decodes an RPC reply header from the front of a
// reassembled record, returning the header and the offset at which the
// caller-specific reply body begins.
func ParseReplyHeader(data []byte) (*ReplyHeader, int, error) {
	r := bytes.NewReader(data)

	var xid, mtype uint32
	if err := binary.Read(r, binary.BigEndian, &xid); err != nil {
		return nil, 0, fmt.Errorf("read xid: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &mtype); err != nil {
		return nil, 0, fmt.Errorf("read msg_type: %w", err)
	}
	if mtype != Reply {
		return nil, 0, fmt.Errorf("not a reply message: msg_type=%d", mtype)
	}

	h := &ReplyHeader{XID: xid}

	if err := binary.Read(r, binary.BigEndian, &h.ReplyStat); err != nil {
		return nil, 0, fmt.Errorf("read reply_stat: %w", err)
	}

	switch h.ReplyStat {
	case MsgAccepted:
		verf, err := decodeOpaqueAuth(r)
		if err != nil {
			return nil, 0, fmt.Errorf("read verifier: %w", err)
		}
		h.Verf = verf

		if err := binary.Read(r, binary.BigEndian, &h.AcceptStat); err != nil {
			return nil, 0, fmt.Errorf("read accept_stat: %w", err)
		}
		if h.AcceptStat == ProgMismatch {
			if err := binary.Read(r, binary.BigEndian, &h.MismatchLow); err != nil {
				return nil, 0, fmt.Errorf("read mismatch low: %w", err)
			}
			if err := binary.Read(r, binary.BigEndian, &h.MismatchHigh); err != nil {
				return nil, 0, fmt.Errorf("read mismatch high: %w", err)
			}
		}
	case MsgDenied:
		if err := binary.Read(r, binary.BigEndian, &h.RejectStat); err != nil {
			return nil, 0, fmt.Errorf("read reject_stat: %w", err)
		}
		switch h.RejectStat {
		case RpcMismatch:
			if err := binary.Read(r, binary.BigEndian, &h.RPCMismatchLow); err != nil {
				return nil, 0, fmt.Errorf("read rpc mismatch low: %w", err)
			}
			if err := binary.Read(r, binary.BigEndian, &h.RPCMismatchHigh); err != nil {
				return nil, 0, fmt.Errorf("read rpc mismatch high: %w", err)
			}
		case AuthError:
			if err := binary.Read(r, binary.BigEndian, &h.AuthStat); err != nil {
				return nil, 0, fmt.Errorf("read auth_stat: %w", err)
			}
		default:
			return nil, 0, fmt.Errorf("unknown reject_stat: %d", h.RejectStat)
		}
	default:
		return nil, 0, fmt.Errorf("unknown reply_stat: %d", h.ReplyStat)
	}

	return h, len(data) - r.Len(), nil
}

// PeekXID reads just the XID and message type from a reassembled record,
// without validating the rest of the header. Used by match_reply (§4.3) to
// cheaply reject non-reply traffic before doing full header parsing.
func PeekXID(data []byte) (xid uint32, isReply bool, err error) {
	if len(data) < 8 {
		return 0, false, fmt.Errorf("record too short for rpc header: %d bytes", len(data))
	}
	xid = binary.BigEndian.Uint32(data[0:4])
	mtype := binary.BigEndian.Uint32(data[4:8])
	return xid, mtype == Reply, nil
}
