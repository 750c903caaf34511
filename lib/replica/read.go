package replica

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/bKV/lib/sandbox"
	"github.com/ValentinKolb/bKV/lib/store"
	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/rpc/common"
	"github.com/ValentinKolb/bKV/rpc/transport/transfer"
)

// --------------------------------------------------------------------------
// Read Path
// --------------------------------------------------------------------------

func (r *Replica) executeRead(ctx context.Context, t tx.Transaction) ([]tx.Result, error) {
	results, err := r.readKeys(ctx, t.Keys(), false)
	if err != nil {
		return nil, err
	}

	out := make([]tx.Result, len(results))
	for i, res := range results {
		out[i] = tx.Result{Key: res.Key, Available: res.ValueAvailable}
		if res.ValueAvailable {
			out[i].Value = res.Value
		}
	}
	return out, nil
}

// readKeys returns the state of keys agreed on by a read quorum and repairs the local
// store if it diverges. Unless allowUnwritten is set, a key without certificate fails
// the read with ErrNotWritten.
func (r *Replica) readKeys(ctx context.Context, keys []string, allowUnwritten bool) ([]store.ReadResult, error) {
	var quorum []store.ReadResult
	err := r.retry(ctx, "read", r.cfg.ReadRetryCount+1, r.cfg.ReadTimeout, func() (err error) {
		quorum, err = r.readOnce(ctx, keys)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !allowUnwritten {
		for _, res := range quorum {
			if len(res.Certificate) == 0 {
				return nil, fmt.Errorf("%w: %q", ErrNotWritten, res.Key)
			}
		}
	}

	if err := r.store.Lock(ctx, keys); err != nil {
		return nil, err
	}
	defer r.store.Unlock(keys)

	local, err := r.localResults(keys)
	if err != nil {
		return nil, err
	}
	if !store.ResultsMatch(quorum, local, r.writeQuorum) {
		if err := r.scrubLocked(quorum, local); err != nil {
			return nil, err
		}
	}
	return quorum, nil
}

// readOnce runs one read round. Equal result lists are grouped, the first group reaching
// the read quorum wins.
func (r *Replica) readOnce(ctx context.Context, keys []string) ([]store.ReadResult, error) {
	payload, err := r.encode(common.NewReadRequest(tx.Read(keys...)))
	if err != nil {
		return nil, err
	}

	type segment struct {
		results []store.ReadResult
		count   int
	}
	var segments []*segment
	var agreed []store.ReadResult

	_, err = r.net.RequestEach(ctx, payload, func(resp transfer.Response) transfer.Decision {
		msg, err := r.decode(resp.Payload)
		if err != nil {
			Logger.Debugf("invalid read response from %s: %v", resp.PeerID, err)
			return transfer.Continue
		}
		if msg.MsgType != common.MsgTRead || msg.Err != "" || !resultsFor(keys, msg.Results) {
			Logger.Debugf("unusable read response from %s: %s %s", resp.PeerID, msg.MsgType, msg.Err)
			return transfer.Continue
		}

		for _, s := range segments {
			if store.ResultsMatch(s.results, msg.Results, r.writeQuorum) {
				s.count++
				if s.count >= r.readQuorum {
					agreed = s.results
					return transfer.Resolve
				}
				return transfer.Continue
			}
		}
		segments = append(segments, &segment{results: msg.Results, count: 1})
		if r.readQuorum <= 1 {
			agreed = msg.Results
			return transfer.Resolve
		}
		return transfer.Continue
	})
	if err != nil {
		return nil, err
	}
	return agreed, nil
}

// resultsFor reports whether results holds exactly one result per key, in order
func resultsFor(keys []string, results []store.ReadResult) bool {
	if len(keys) != len(results) {
		return false
	}
	for i, key := range keys {
		if results[i].Key != key {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Execute
// --------------------------------------------------------------------------

// executeCompute replaces the code of every execute operation with the value the executor
// computes from the agreed current value, then writes the transaction like any other
func (r *Replica) executeCompute(ctx context.Context, t tx.Transaction) ([]tx.Result, error) {
	var keys []string
	for _, op := range t {
		if op.Action == tx.ActionExecute {
			keys = append(keys, op.Key)
		}
	}

	current, err := r.readKeys(ctx, keys, true)
	if err != nil {
		return nil, err
	}
	values := make(map[string][]byte, len(current))
	for _, res := range current {
		if res.ValueAvailable {
			values[res.Key] = res.Value
		}
	}

	computed := t.Clone()
	for i, op := range computed {
		if op.Action != tx.ActionExecute {
			continue
		}
		value, err := sandbox.Run(ctx, r.executor, r.cfg.ExecuteTimeout, op.Key, values[op.Key], string(op.Value))
		if err != nil {
			return nil, fmt.Errorf("execute on %q: %w", op.Key, err)
		}
		computed[i].Value = value
	}

	return r.executeWrite(ctx, computed)
}
