package gss

import (
	"fmt"
	"sync"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"
	"github.com/marmos91/nfsmount/internal/logger"
)

// Context tracks client-side RPCSEC_GSS context establishment state for one
// mount. A mount owns exactly one Context per (principal, service-level)
// pair; a single mount speaking both krb5i and krb5p to the same server
// keeps two.
//
// The handshake is: BuildInitCred builds an INIT credential and AP-REQ
// token for the caller to send, the server returns a handle and (usually)
// an AP-REP in one round trip, and ProcessInitReply consumes that reply;
// ContinueNeeded is only exercised by mechanisms with mutual multi-leg
// negotiation, which krb5 normally does not require.
type Context struct {
	mu sync.Mutex

	krbClient *client.Client
	spn       string // service principal name, e.g. "nfs/fileserver.example.com"

	established bool
	handle      []byte
	sessionKey  types.EncryptionKey
	seqWindow   uint32
	nextSeq     uint32

	metrics *GSSMetrics
}

// NewContext creates an unestablished context for the given Kerberos client
// and target service principal name. Call BuildInitCred and
// ProcessInitReply to perform the handshake.
func NewContext(krbClient *client.Client, spn string, metrics *GSSMetrics) *Context {
	return &Context{
		krbClient: krbClient,
		spn:       spn,
		nextSeq:   1,
		metrics:   metrics,
	}
}

// Established reports whether the context has completed the handshake and
// has a usable session key.
func (c *Context) Established() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.established
}

// BuildInitCred builds the RPCSEC_GSS credential and AP-REQ token for the
// INIT call that starts context establishment.
//
// Per RFC 2203 Section 5.2.2, the INIT credential carries gss_proc=INIT,
// seq_num=0, service=the requested level, and an empty handle; the call
// body itself (not wrapped) is the raw AP-REQ token.
func (c *Context) BuildInitCred(service uint32) (*RPCGSSCredV1, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.established {
		return nil, nil, fmt.Errorf("gss: context already established")
	}

	start := time.Now()
	tkt, key, err := c.krbClient.GetServiceTicket(c.spn)
	if err != nil {
		c.metrics.RecordContextCreation(false)
		return nil, nil, fmt.Errorf("get service ticket for %s: %w", c.spn, err)
	}

	apReq, err := messages.NewAPReq(tkt, key, types.NewAuthenticator(c.krbClient.Credentials.Domain(), c.krbClient.Credentials.CName()))
	if err != nil {
		c.metrics.RecordContextCreation(false)
		return nil, nil, fmt.Errorf("build AP-REQ: %w", err)
	}

	tokenBytes, err := apReq.Marshal()
	if err != nil {
		c.metrics.RecordContextCreation(false)
		return nil, nil, fmt.Errorf("marshal AP-REQ: %w", err)
	}

	c.metrics.RecordInitDuration(time.Since(start))

	cred := &RPCGSSCredV1{
		GSSProc: RPCGSSInit,
		SeqNum:  0,
		Service: service,
		Handle:  nil,
	}
	return cred, tokenBytes, nil
}

// ProcessInitReply consumes the server's rpc_gss_init_res and, on success,
// stores the context handle, session key, and sequence window.
func (c *Context) ProcessInitReply(res *RPCGSSInitRes, sessionKey types.EncryptionKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch res.GSSMajor {
	case GSSComplete:
		c.handle = res.Handle
		c.sessionKey = sessionKey
		c.seqWindow = res.SeqWindow
		c.established = true
		c.metrics.RecordContextCreation(true)
		logger.Debug("gss context established", "seq_window", res.SeqWindow, "handle_len", len(res.Handle))
		return nil
	case GSSContinueNeeded:
		c.handle = res.Handle
		return fmt.Errorf("gss: multi-leg context establishment not supported by this mechanism binding")
	default:
		c.metrics.RecordContextCreation(false)
		c.metrics.RecordAuthFailure("credential_problem")
		return fmt.Errorf("gss: init failed, major=%d minor=%d", res.GSSMajor, res.GSSMinor)
	}
}

// NextSeqNum returns the next sequence number to use for a DATA call and
// advances the counter. Sequence numbers must stay under MAXSEQ and within
// seqWindow of the highest number the server has acknowledged; callers that
// hit either bound should tear down and re-establish the context.
func (c *Context) NextSeqNum() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.established {
		return 0, fmt.Errorf("gss: context not established")
	}
	if c.nextSeq >= MAXSEQ {
		return 0, fmt.Errorf("gss: sequence number space exhausted, context must be re-established")
	}
	seq := c.nextSeq
	c.nextSeq++
	return seq, nil
}

// Handle returns the server-assigned context handle to carry in subsequent
// DATA/DESTROY credentials.
func (c *Context) Handle() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// SessionKey returns the negotiated session key used for MIC/Wrap
// operations on this context.
func (c *Context) SessionKey() types.EncryptionKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey
}

// VerifyCallVerifier checks the RPC verifier a server must echo back on a
// successful INIT/DATA reply: per RFC 2203 Section 5.3.3.3, it is a MIC over
// the seq_num the client sent, computed with KeyUsageAcceptorSign.
func (c *Context) VerifyCallVerifier(sentSeqNum uint32, verifierBody []byte) error {
	c.mu.Lock()
	key := c.sessionKey
	c.mu.Unlock()

	seqBytes := make([]byte, 4)
	seqBytes[0] = byte(sentSeqNum >> 24)
	seqBytes[1] = byte(sentSeqNum >> 16)
	seqBytes[2] = byte(sentSeqNum >> 8)
	seqBytes[3] = byte(sentSeqNum)

	var micToken gssapi.MICToken
	if err := micToken.Unmarshal(verifierBody, true /* from acceptor */); err != nil {
		return fmt.Errorf("unmarshal verifier MIC: %w", err)
	}
	micToken.Payload = seqBytes

	ok, err := micToken.Verify(key, KeyUsageAcceptorSign)
	if err != nil {
		return fmt.Errorf("verify reply verifier: %w", err)
	}
	if !ok {
		c.metrics.RecordAuthFailure("context_problem")
		return fmt.Errorf("reply verifier mismatch")
	}
	return nil
}

// BuildCallVerifier builds the RPC verifier the client attaches to every
// RPCSEC_GSS call: a MIC over the call's seq_num, signed with
// KeyUsageInitiatorSign.
func (c *Context) BuildCallVerifier(seqNum uint32) ([]byte, error) {
	c.mu.Lock()
	key := c.sessionKey
	c.mu.Unlock()

	seqBytes := make([]byte, 4)
	seqBytes[0] = byte(seqNum >> 24)
	seqBytes[1] = byte(seqNum >> 16)
	seqBytes[2] = byte(seqNum >> 8)
	seqBytes[3] = byte(seqNum)

	micToken := gssapi.MICToken{
		Flags:     0,
		SndSeqNum: uint64(seqNum),
		Payload:   seqBytes,
	}
	if err := micToken.SetChecksum(key, KeyUsageInitiatorSign); err != nil {
		return nil, fmt.Errorf("compute call verifier: %w", err)
	}
	return micToken.Marshal()
}

// Destroy builds the credential for a GSS DESTROY call and marks the
// context as no longer usable for new calls. The caller is still
// responsible for sending the RPC call; on any reply (even an error) the
// server is expected to have freed its side.
func (c *Context) Destroy() (*RPCGSSCredV1, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.established {
		return nil, fmt.Errorf("gss: context not established")
	}
	cred := &RPCGSSCredV1{
		GSSProc: RPCGSSDestroy,
		SeqNum:  c.nextSeq,
		Service: RPCGSSSvcNone,
		Handle:  c.handle,
	}
	c.established = false
	c.metrics.RecordContextDestruction()
	return cred, nil
}
