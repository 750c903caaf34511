package transfer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/bKV/lib/util"
	"github.com/ValentinKolb/bKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transfer")

var (
	// ErrTimeout is returned when a transfer saw no valid traffic for the transfer timeout
	ErrTimeout = errors.New("transfer timed out")
	// ErrTransferFailed is returned when a transfer was aborted after a fatal error
	ErrTransferFailed = errors.New("transfer failed")
	// ErrStopped is returned for transfers still running when the engine stops
	ErrStopped = errors.New("transfer engine stopped")
	// ErrNoQuorum is returned by RequestEach if all peers settled without a resolving response
	ErrNoQuorum = errors.New("no quorum reached")
	// ErrRejected is returned by RequestEach if the response callback rejected
	ErrRejected = errors.New("response rejected")
)

// RequestHandler computes the response to a complete request of peerID.
// The context expires after the handler timeout.
type RequestHandler func(ctx context.Context, peerID string, req []byte) (resp []byte, err error)

// Engine runs the transfers of one peer over a datagram transport
type Engine struct {
	net  transport.IDatagramTransport
	opts Options
	m    *engineMetrics

	handler   atomic.Pointer[RequestHandler]
	transfers *xsync.MapOf[transferKey, *transfer]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates an engine on top of net. Call Start to begin processing datagrams.
func New(net transport.IDatagramTransport, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		net:       net,
		opts:      opts,
		m:         newEngineMetrics(opts.Metrics),
		transfers: xsync.NewMapOf[transferKey, *transfer](),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// SetHandler sets the handler answering requests of other peers.
// Requests arriving without a handler fail and time out at the initiator.
func (e *Engine) SetHandler(h RequestHandler) {
	e.handler.Store(&h)
}

// Start registers the engine with the transport and starts the cleanup sweep
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.net.SetHandler(e.onDatagram)
		e.wg.Add(1)
		go e.cleanupLoop()
		Logger.Infof("transfer engine started (chunk %d bytes, resend %v, timeout %v)",
			e.opts.MaxChunkLength, e.opts.ResendInterval, e.opts.TransferTimeout)
	})
}

// Stop fails all live transfers with ErrStopped and stops the cleanup sweep
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.cancel()
		e.wg.Wait()

		var live []*transfer
		e.transfers.Range(func(_ transferKey, t *transfer) bool {
			live = append(live, t)
			return true
		})
		for _, t := range live {
			t.mu.Lock()
			e.remove(t, ErrStopped)
			t.mu.Unlock()
		}
		Logger.Infof("transfer engine stopped (%d transfers aborted)", len(live))
	})
}

// ActiveTransfers returns the number of transfers in the table
func (e *Engine) ActiveTransfers() int {
	return e.transfers.Size()
}

// PeerIDs returns the peers of the underlying transport
func (e *Engine) PeerIDs() []string {
	return e.net.PeerIDs()
}

// --------------------------------------------------------------------------
// Inbound Packets
// --------------------------------------------------------------------------

func (e *Engine) onDatagram(peerID string, data []byte) {
	if e.ctx.Err() != nil {
		return
	}

	p, err := decodePacket(data)
	if err != nil {
		e.m.decodeErrors.Inc()
		Logger.Debugf("dropped packet from %s: %v", peerID, err)
		return
	}

	key := transferKey{peer: peerID, reqID: p.reqID, role: roleInitiator}
	if p.toResponder() {
		key.role = roleResponder
	}

	t, ok := e.transfers.Load(key)
	if !ok {
		// only the first request chunk may open a transfer
		if p.flags != flagsFirstDataIR {
			Logger.Debugf("dropped packet 0x%02x for unknown %s transfer %d from %s", p.flags, key.role, p.reqID, peerID)
			return
		}
		t, _ = e.transfers.LoadOrCompute(key, func() *transfer {
			return newResponder(peerID, p.reqID)
		})
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return
	}
	e.act(t, t.apply(&p), &p)
}

// act performs the side effects of a state change. t.mu must be held.
func (e *Engine) act(t *transfer, change stateChange, p *packet) {
	switch change {
	case changeError:
		// lastUpdated stays untouched so a transfer receiving only garbage times out
		e.m.stateErrors.Inc()
		Logger.Debugf("unexpected packet 0x%02x for %s transfer %d from %s", p.flags, t.key.role, t.key.reqID, t.key.peer)

	case changeReqChunkFilled:
		e.refresh(t, true)
		n := min(len(t.reqData)-t.reqPos, e.opts.MaxChunkLength)
		e.sendAndSetResend(t, appendGet(nil, typeGetRI, t.key.reqID, t.reqPos, n))

	case changeResChunkFilled:
		e.refresh(t, true)
		n := min(len(t.resData)-t.resPos, e.opts.MaxChunkLength)
		e.sendAndSetResend(t, appendGet(nil, typeGetIR, t.key.reqID, t.resPos, n))

	case changeReqDataOk:
		e.refresh(t, true)
		go e.handle(t, t.reqData)

	case changeResDataOk:
		// stay in the table without refreshing so a lost ack can be resent until the sweep
		e.refresh(t, false)
		if !t.resDataOk {
			t.resDataOk = true
			t.settle(t.resData, nil)
			e.m.completed.Inc()
			e.m.duration.Update(time.Since(t.started).Seconds())
		}
		e.send(t, appendAck(nil, t.key.reqID))

	case changeSendPendingIR:
		offset, n, ok := e.chunk(t.reqData, p)
		if !ok {
			e.m.stateErrors.Inc()
			return
		}
		e.refresh(t, true)
		e.send(t, appendData(nil, typeDataIR, t.key.reqID, t.reqData, offset, n))

	case changeSendPendingRI:
		offset, n, ok := e.chunk(t.resData, p)
		if !ok {
			e.m.stateErrors.Inc()
			return
		}
		e.refresh(t, true)
		// keep resending so a lost ack is answered by another ack
		e.sendAndSetResend(t, appendData(nil, typeDataRI, t.key.reqID, t.resData, offset, n))

	case changeCompletion:
		e.refresh(t, false)
		t.deleted = true
		e.m.handled.Inc()
	}
}

// chunk clamps a get-chunk request to the payload and the max chunk length
func (e *Engine) chunk(payload []byte, p *packet) (offset, n int, ok bool) {
	offset = int(p.offset)
	if offset >= len(payload) {
		return 0, 0, false
	}
	n = min(int(p.length), len(payload)-offset, e.opts.MaxChunkLength)
	return offset, n, true
}

// handle runs the request handler of a complete responder transfer
func (e *Engine) handle(t *transfer, req []byte) {
	resp, err := e.callHandler(t.key.peer, req)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.deleted {
		return
	}
	if err != nil {
		Logger.Warningf("request %d from %s failed: %v", t.key.reqID, t.key.peer, err)
		e.m.failed.Inc()
		e.refresh(t, false)
		t.deleted = true
		return
	}

	t.resData = resp
	t.reqDataOk = true
	n := min(len(resp), e.opts.MaxChunkLength)
	e.sendAndSetResend(t, appendData(nil, typeDataRI, t.key.reqID, resp, 0, n))
}

func (e *Engine) callHandler(peerID string, req []byte) ([]byte, error) {
	h := e.handler.Load()
	if h == nil {
		return nil, fmt.Errorf("no request handler registered")
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.opts.HandlerTimeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("request handler panicked: %v", r)}
			}
		}()
		resp, err := (*h)(ctx, peerID, req)
		done <- result{payload: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if len(r.payload) == 0 {
			return nil, fmt.Errorf("request handler returned an empty response")
		}
		if len(r.payload) > math.MaxUint32 {
			return nil, fmt.Errorf("response of %d bytes is too large", len(r.payload))
		}
		return r.payload, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request handler did not finish within %v", e.opts.HandlerTimeout)
	}
}

// --------------------------------------------------------------------------
// Outbound Packets & Resends
// --------------------------------------------------------------------------

func (e *Engine) send(t *transfer, pkt []byte) {
	if err := e.net.Send(t.key.peer, pkt); err != nil {
		Logger.Debugf("failed to send to %s: %v", t.key.peer, err)
	}
}

// refresh cancels the pending resend and, if update is set, records activity. t.mu must be held.
func (e *Engine) refresh(t *transfer, update bool) {
	t.resendGen++
	if t.resendTimer != nil {
		t.resendTimer.Stop()
		t.resendTimer = nil
	}
	t.resendPacket = nil
	if update {
		t.lastUpdated = time.Now()
	}
}

// sendAndSetResend sends pkt now and every resend interval until the next refresh.
// t.mu must be held.
func (e *Engine) sendAndSetResend(t *transfer, pkt []byte) {
	e.refresh(t, false)
	e.send(t, pkt)

	t.resendPacket = pkt
	gen := t.resendGen
	var resend func()
	resend = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.resendGen != gen || t.deleted {
			return
		}
		e.m.resends.Inc()
		e.send(t, t.resendPacket)
		t.resendTimer = time.AfterFunc(e.opts.ResendInterval, resend)
	}
	t.resendTimer = time.AfterFunc(e.opts.ResendInterval, resend)
}

// remove deletes t from the table and settles a waiting initiator with err. t.mu must be held.
func (e *Engine) remove(t *transfer, err error) {
	e.refresh(t, false)
	t.deleted = true
	e.transfers.Compute(t.key, func(old *transfer, loaded bool) (*transfer, bool) {
		return old, !loaded || old == t
	})
	t.settle(nil, err)
}

// --------------------------------------------------------------------------
// Cleanup
// --------------------------------------------------------------------------

func (e *Engine) cleanupLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.cleanup()
		}
	}
}

// cleanup deletes idle and marked transfers
func (e *Engine) cleanup() {
	var all []*transfer
	e.transfers.Range(func(_ transferKey, t *transfer) bool {
		all = append(all, t)
		return true
	})

	timedOut, failed := 0, 0
	for _, t := range all {
		t.mu.Lock()
		switch {
		case time.Since(t.lastUpdated) >= e.opts.TransferTimeout:
			if !t.settled && t.done != nil {
				timedOut++
				e.m.timedOut.Inc()
			}
			e.remove(t, ErrTimeout)
		case t.deleted:
			if !t.settled && t.done != nil {
				failed++
				e.m.failed.Inc()
			}
			e.remove(t, ErrTransferFailed)
		}
		t.mu.Unlock()
	}
	if timedOut > 0 || failed > 0 {
		Logger.Debugf("cleanup: %d requests timed out, %d failed, %d transfers live", timedOut, failed, e.transfers.Size())
	}
}

// --------------------------------------------------------------------------
// Initiator
// --------------------------------------------------------------------------

// Request sends payload to peerID and waits for the response
func (e *Engine) Request(ctx context.Context, peerID string, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("request payload must not be empty")
	}
	if len(payload) > math.MaxUint32 {
		return nil, fmt.Errorf("request of %d bytes is too large", len(payload))
	}
	if e.ctx.Err() != nil {
		return nil, ErrStopped
	}

	// the buffer must not change while chunks of it are in flight
	payload = append([]byte(nil), payload...)

	var t *transfer
	for {
		t = newInitiator(peerID, util.GenerateReqID(), payload)
		if _, loaded := e.transfers.LoadOrStore(t.key, t); !loaded {
			break
		}
	}
	e.m.started.Inc()

	t.mu.Lock()
	n := min(len(payload), e.opts.MaxChunkLength)
	e.sendAndSetResend(t, appendData(nil, typeDataIR, t.key.reqID, payload, 0, n))
	t.mu.Unlock()

	select {
	case r := <-t.done:
		return r.payload, r.err
	case <-ctx.Done():
		t.mu.Lock()
		e.remove(t, ctx.Err())
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}
