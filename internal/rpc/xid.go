package rpc

import "sync/atomic"

// XIDGenerator hands out RPC transaction identifiers. The source keeps a
// 64-bit counter internally and truncates to 32 bits on the wire so that a
// long-running mount can distinguish "the same wire XID came around again"
// from "this is a fresh request" for diagnostic purposes, even though the
// wire format only carries the low 32 bits.
type XIDGenerator struct {
	counter atomic.Uint64
}

// NewXIDGenerator seeds the counter. A non-zero seed (e.g. derived from the
// current time) avoids handing out the same XID sequence across process
// restarts talking to a server that might still remember the old ones.
func NewXIDGenerator(seed uint64) *XIDGenerator {
	g := &XIDGenerator{}
	g.counter.Store(seed)
	return g
}

// Next returns the next (64-bit internal, 32-bit wire) XID pair.
func (g *XIDGenerator) Next() (internal uint64, wire uint32) {
	internal = g.counter.Add(1)
	wire = uint32(internal)
	return internal, wire
}
