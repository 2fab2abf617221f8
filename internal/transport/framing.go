package transport

import "encoding/binary"

// FrameRecord wraps an outbound RPC message in RPC record-marking framing
// (§6.1) for a STREAM transport: a single fragment carrying the whole
// message, marked last. The client never needs to split an outbound
// message across fragments since it always knows the full length up
// front; only the reassembler on the receive side has to cope with a
// server (or network) splitting a record arbitrarily.
func FrameRecord(body []byte) []byte {
	framed := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(framed[0:4], lastFragmentBit|uint32(len(body)))
	copy(framed[4:], body)
	return framed
}
