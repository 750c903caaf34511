package transfer

import (
	"context"
	"fmt"
	"time"
)

// Decision is returned by the RequestEach callback for every response
type Decision int

const (
	// Continue waits for more responses
	Continue Decision = iota
	// Resolve finishes RequestEach with all accepted responses
	Resolve
	// Reject fails RequestEach
	Reject
)

// Response is the outcome of a request to one peer
type Response struct {
	PeerID  string
	Payload []byte
	// Err is set if the request failed, Payload is nil then
	Err error
	// RTT is the time from sending the first chunk to the complete response
	RTT time.Duration
}

func (e *Engine) requestPeer(ctx context.Context, peerID string, payload []byte) Response {
	start := time.Now()
	resp, err := e.Request(ctx, peerID, payload)
	if err != nil {
		err = fmt.Errorf("request to %s: %w", peerID, err)
	}
	return Response{PeerID: peerID, Payload: resp, Err: err, RTT: time.Since(start)}
}

// RequestAll sends payload to every peer concurrently and waits until all requests
// settled. The result has one entry per peer in PeerIDs order. It never fails as a whole.
func (e *Engine) RequestAll(ctx context.Context, payload []byte) []Response {
	peers := e.net.PeerIDs()
	out := make([]Response, len(peers))

	done := make(chan struct{}, len(peers))
	for i, peer := range peers {
		go func(i int, peer string) {
			out[i] = e.requestPeer(ctx, peer, payload)
			done <- struct{}{}
		}(i, peer)
	}
	for range peers {
		<-done
	}
	return out
}

// RequestEach sends payload to every peer concurrently and passes every successful
// response to onResponse in arrival order. Resolve returns all responses accepted so far,
// the resolving one included. Reject fails with ErrRejected. If all peers settle while
// onResponse only returned Continue, RequestEach fails with ErrNoQuorum.
//
// Requests still outstanding when RequestEach returns keep running in the background
// until they settle, so slow peers still receive the payload.
func (e *Engine) RequestEach(ctx context.Context, payload []byte, onResponse func(Response) Decision) ([]Response, error) {
	peers := e.net.PeerIDs()
	if len(peers) == 0 {
		return nil, ErrNoQuorum
	}

	results := make(chan Response, len(peers))
	for _, peer := range peers {
		go func(peer string) {
			results <- e.requestPeer(e.ctx, peer, payload)
		}(peer)
	}

	var accepted []Response
	for settled := 0; settled < len(peers); {
		select {
		case r := <-results:
			settled++
			if r.Err != nil {
				Logger.Debugf("%v", r.Err)
				continue
			}
			switch onResponse(r) {
			case Resolve:
				return append(accepted, r), nil
			case Reject:
				return nil, fmt.Errorf("%w by callback for %s", ErrRejected, r.PeerID)
			default:
				accepted = append(accepted, r)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %d peers settled", ErrNoQuorum, len(peers))
}
