package rpc

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Flag is a bitset of per-request state (§3).
type Flag uint32

const (
	FlagWired Flag = 1 << iota
	FlagSent
	FlagMustResend
	FlagSoftTerm
	FlagResendErr
	FlagTiming
	FlagWaitSent
	FlagRestart
	FlagInCwndQueue
	FlagAsync
	FlagIOInProgress
	FlagInResendQueue
	FlagInitialized
)

// Mount is the subset of mount-endpoint behavior the registry needs to
// update congestion and RTO state on a matched reply, without importing
// internal/client (which in turn depends on the registry). Concrete mount
// endpoints implement this directly.
type Mount interface {
	// ID uniquely identifies the mount for XID-scoped matching (§3 invariant 1).
	ID() uint64
	// OnReply is invoked with the matched request's class and measured RTT
	// once a reply has been attached, so the mount can update its RTO
	// estimator and (DGRAM only) its congestion window. wasRetransmit is
	// also true for a request that is not timing-eligible (FlagTiming
	// clear), so that its RTT is not sampled.
	OnReply(class uint32, rtt time.Duration, wasRetransmit bool)
}

// Request is one RPC in flight (§3).
type Request struct {
	mu sync.Mutex

	Owner   Mount
	Proc    uint32
	Class   uint32
	XID     uint32
	XID64   uint64

	Body  []byte
	Reply []byte

	AuthFlavor uint32
	Retry      int
	Rexmit     int

	Flags Flag

	SentAt time.Time

	// Done is closed exactly once, by MatchReply when a reply is matched,
	// waking any blocked caller. A timeout or cancellation does not close
	// it; the waiting caller observes those through its own timer and ctx.
	Done chan struct{}
	Err  error

	// Callback, if non-nil, is invoked asynchronously on completion instead
	// of (or in addition to) closing Done, for async/IOD requests.
	Callback func(*Request)

	refs int32

	elem *list.Element // link in Registry.requests, guarded by Registry.mu
}

func newRequest(owner Mount, proc, class uint32) *Request {
	return &Request{
		Owner: owner,
		Proc:  proc,
		Class: class,
		Done:  make(chan struct{}),
		refs:  1,
	}
}

func (r *Request) hasFlag(f Flag) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Flags&f != 0
}

func (r *Request) setFlag(f Flag) {
	r.mu.Lock()
	r.Flags |= f
	r.mu.Unlock()
}

func (r *Request) clearFlag(f Flag) {
	r.mu.Lock()
	r.Flags &^= f
	r.mu.Unlock()
}

// HasFlag, SetFlag, and ClearFlag expose the same flag bookkeeping to
// callers outside this package (internal/client's send engine), which
// needs to set/query flags like FlagIOInProgress and FlagInCwndQueue on
// a request it doesn't otherwise touch the internals of.
func (r *Request) HasFlag(f Flag) bool { return r.hasFlag(f) }
func (r *Request) SetFlag(f Flag)      { r.setFlag(f) }
func (r *Request) ClearFlag(f Flag)    { r.clearFlag(f) }

// addRef/release implement the refcount discipline (§3 invariant 7): a
// request pinned on the resend queue holds one extra reference.
func (r *Request) addRef() {
	r.mu.Lock()
	r.refs++
	r.mu.Unlock()
}

func (r *Request) release() int32 {
	r.mu.Lock()
	r.refs--
	n := r.refs
	r.mu.Unlock()
	return n
}

// Registry is the single process-wide table of outstanding requests (§4.3).
// A mount's private resend/cwnd queues live on the mount endpoint itself
// (internal/client), not here: the registry only owns the global,
// XID-matched list.
type Registry struct {
	mu       sync.Mutex
	requests *list.List // of *Request, oldest first (FIFO, for timer fairness)
	xids     *XIDGenerator
}

// NewRegistry constructs an empty registry with its own XID generator.
func NewRegistry(seed uint64) *Registry {
	return &Registry{
		requests: list.New(),
		xids:     NewXIDGenerator(seed),
	}
}

// Create allocates and initializes a Request, recording the auth flavor
// preference and timing eligibility (§4.3 create).
func (reg *Registry) Create(owner Mount, proc, class uint32, authFlavor uint32, hardMount bool, retry int) *Request {
	req := newRequest(owner, proc, class)
	req.AuthFlavor = authFlavor
	req.Retry = retry
	if class != ClassDefault {
		req.setFlag(FlagTiming)
	}
	req.setFlag(FlagInitialized)
	return req
}

// AddHeader assigns a fresh XID (§4.3 add_header); the retry budget was
// already set by Create from its retry argument. The caller still has to
// build the actual RPC call header (rpc.CallHeader) using the returned XID
// and its chosen auth.Provider.
func (reg *Registry) AddHeader(req *Request) uint32 {
	internalXID, wireXID := reg.xids.Next()
	req.mu.Lock()
	req.XID64 = internalXID
	req.XID = wireXID
	req.mu.Unlock()
	return wireXID
}

// Enqueue appends req to the global FIFO list (§4.3 enqueue).
func (reg *Registry) Enqueue(req *Request) {
	reg.mu.Lock()
	req.elem = reg.requests.PushBack(req)
	reg.mu.Unlock()
}

// Dequeue removes req from the global list (§4.3 dequeue). It is safe to
// call on a request that is not (or no longer) enqueued.
func (reg *Registry) Dequeue(req *Request) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if req.elem != nil {
		reg.requests.Remove(req.elem)
		req.elem = nil
	}
}

// Len reports the number of outstanding requests, used by the timer to
// decide whether to keep running (§4.6 step 1).
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.requests.Len()
}

// Outstanding returns a snapshot of every request currently enqueued for
// the given owner, oldest first. The timer (§4.6) walks this snapshot
// rather than the live list so that resends and completions triggered
// mid-scan can't race the iteration itself.
func (reg *Registry) Outstanding(owner Mount) []*Request {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var out []*Request
	for e := reg.requests.Front(); e != nil; e = e.Next() {
		req := e.Value.(*Request)
		if req.Owner == owner {
			out = append(out, req)
		}
	}
	return out
}

var (
	globalRegistryOnce sync.Once
	globalRegistry     *Registry
)

// Global returns the single process-wide request registry (§9 "Global
// mutable state"), constructing it on first use. Every mount endpoint in
// the process shares this instance so that XID matching is scoped
// correctly across concurrently mounted targets.
func Global() *Registry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewRegistry(uint64(time.Now().UnixNano()))
	})
	return globalRegistry
}

// MatchReply implements §4.3 match_reply: peeks the XID and message type,
// and on the first request (on the given mount) whose reply slot is empty
// and whose XID matches, attaches the reply and returns it. Returns nil,
// nil if no request matched (a stray or duplicate reply, which the caller
// should simply drop).
func (reg *Registry) MatchReply(owner Mount, replyBytes []byte) (*Request, error) {
	xid, isReply, err := PeekXID(replyBytes)
	if err != nil {
		return nil, fmt.Errorf("match_reply: %w", err)
	}
	if !isReply {
		return nil, nil
	}

	reg.mu.Lock()
	var matched *Request
	for e := reg.requests.Front(); e != nil; e = e.Next() {
		req := e.Value.(*Request)
		if req.Owner != owner {
			continue
		}
		req.mu.Lock()
		empty := req.Reply == nil
		sameXID := req.XID == xid
		req.mu.Unlock()
		if empty && sameXID {
			matched = req
			break
		}
	}
	reg.mu.Unlock()

	if matched == nil {
		return nil, nil
	}

	matched.mu.Lock()
	matched.Reply = replyBytes
	wasRetransmit := matched.Rexmit > 0
	rtt := time.Since(matched.SentAt)
	class := matched.Class
	timing := matched.Flags&FlagTiming != 0
	matched.mu.Unlock()

	// Every matched reply reaches the mount so its congestion-window charge
	// is released; only timing-eligible requests contribute an RTT sample.
	owner.OnReply(class, rtt, wasRetransmit || !timing)

	close(matched.Done)
	if matched.Callback != nil {
		go matched.Callback(matched)
	}

	return matched, nil
}

// Destroy releases a request's resources (§4.3 destroy). The caller must
// have already detached any reply buffer it still wants to use; Destroy is
// idempotent (§8 property 6).
func (reg *Registry) Destroy(req *Request) {
	reg.Dequeue(req)
	req.mu.Lock()
	req.Body = nil
	req.Reply = nil
	req.Callback = nil
	req.mu.Unlock()
}
