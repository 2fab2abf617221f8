package transport

import (
	"encoding/binary"
	"fmt"
)

// NFSMaxPacket bounds the total length a STREAM record may reach before the
// reassembler treats the stream as desynchronized and gives up.
const NFSMaxPacket = 1 << 20

// lastFragmentBit marks the final fragment of a record in a record-mark
// marker; the remaining 31 bits carry that fragment's length.
const lastFragmentBit = 0x80000000

type reassemblerPhase int

const (
	phaseMarker reassemblerPhase = iota
	phaseFragment
)

// Reassembler incrementally parses RPC record-marking framing (RFC 5531
// Appendix): a sequence of (uint32 marker, payload) fragments, reassembled
// into complete RPC messages. Feed is the sole entry point and tolerates
// being fed any number of bytes at a time, including zero — a caller doing
// non-blocking reads can call it once per successful Read.
type Reassembler struct {
	phase      reassemblerPhase
	markerBuf  [4]byte
	markerFill int
	fragLeft   uint32
	lastFrag   bool
	total      uint32
	record     []byte
}

// NewReassembler returns a reassembler ready to parse the start of a record.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed consumes all of buf (bytes already read off the socket) and returns
// every RPC message it completed along the way — a single Read can contain
// more than one record back-to-back, so callers must not assume at most one
// result per call. The reassembler resets itself after each completed
// record, ready for the next.
func (r *Reassembler) Feed(buf []byte) (records [][]byte, err error) {
	for len(buf) > 0 {
		switch r.phase {
		case phaseMarker:
			n := copy(r.markerBuf[r.markerFill:4], buf)
			r.markerFill += n
			buf = buf[n:]
			if r.markerFill < 4 {
				return records, nil
			}

			marker := binary.BigEndian.Uint32(r.markerBuf[:])
			r.lastFrag = marker&lastFragmentBit != 0
			r.fragLeft = marker &^ lastFragmentBit
			r.markerFill = 0
			r.total += r.fragLeft

			if r.total > NFSMaxPacket {
				r.reset()
				return records, fmt.Errorf("record exceeds NFS_MAXPACKET (%d > %d)", r.total, NFSMaxPacket)
			}
			r.phase = phaseFragment

		case phaseFragment:
			if r.fragLeft > 0 {
				n := uint32(len(buf))
				if n > r.fragLeft {
					n = r.fragLeft
				}
				r.record = append(r.record, buf[:n]...)
				buf = buf[n:]
				r.fragLeft -= n
				if r.fragLeft > 0 {
					continue
				}
			}

			// This fragment is fully drained.
			if r.lastFrag {
				records = append(records, r.record)
				r.reset()
				continue
			}
			r.phase = phaseMarker
		}
	}
	return records, nil
}

func (r *Reassembler) reset() {
	r.phase = phaseMarker
	r.markerFill = 0
	r.fragLeft = 0
	r.lastFrag = false
	r.total = 0
	r.record = nil
}
