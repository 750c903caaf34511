package replica

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/bKV/lib/store"
	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/lib/util"
	"github.com/ValentinKolb/bKV/rpc/common"
)

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

func (r *Replica) gcLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := r.CollectGarbage(ctx)
			switch {
			case errors.Is(err, ErrMaintenanceInProgress), ctx.Err() != nil:
			case err != nil:
				Logger.Warningf("garbage collection failed: %v", err)
			case pruned > 0:
				Logger.Debugf("garbage collection removed %d grants", pruned)
			}
		}
	}
}

// CollectGarbage removes every pending grant at least two epochs behind the certified
// epoch of its key and returns the number of removed grants. It fails with
// ErrMaintenanceInProgress while an integrity check runs.
func (r *Replica) CollectGarbage(ctx context.Context) (int, error) {
	if !r.maintenance.TryLock() {
		return 0, ErrMaintenanceInProgress
	}
	defer r.maintenance.Unlock()
	r.m.gcRuns.Inc()

	pruned := 0
	for key, err := range r.store.Keys() {
		if err != nil {
			return pruned, err
		}
		n, err := r.collectKey(ctx, key)
		if err != nil {
			return pruned, err
		}
		pruned += n
		r.m.gcPruned.Add(n)

		if r.cfg.GCKeyDelay > 0 {
			select {
			case <-time.After(r.cfg.GCKeyDelay):
			case <-ctx.Done():
				return pruned, ctx.Err()
			}
		}
	}
	return pruned, nil
}

func (r *Replica) collectKey(ctx context.Context, key string) (int, error) {
	keys := []string{key}
	if err := r.store.Lock(ctx, keys); err != nil {
		return 0, err
	}
	defer r.store.Unlock(keys)

	obj, found, err := r.store.Get(key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	current, ok := obj.CurrentTimestamp(key)
	if !ok {
		// never committed, the grants are kept
		return 0, nil
	}

	n := obj.PruneHistory(util.EpochOf(current))
	if n == 0 {
		return 0, nil
	}
	if err := r.store.Set(key, obj); err != nil {
		return 0, fmt.Errorf("failed to store %q: %w", key, err)
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Integrity Check
// --------------------------------------------------------------------------

// FullIntegrityCheck reads every local key from all peers and reports how the results
// group. Unlike a read it waits for every peer, so it may take long. fn returning false
// stops the check. Garbage collection is paused while the check runs; a second check
// fails with ErrMaintenanceInProgress.
func (r *Replica) FullIntegrityCheck(ctx context.Context, fn func(common.KeyIntegrity) bool) error {
	if !r.maintenance.TryLock() {
		return ErrMaintenanceInProgress
	}
	defer r.maintenance.Unlock()

	for key, err := range r.store.Keys() {
		if err != nil {
			return err
		}
		ki, err := r.checkKey(ctx, key)
		if err != nil {
			return err
		}
		if !fn(ki) {
			return nil
		}
	}
	return nil
}

func (r *Replica) checkKey(ctx context.Context, key string) (common.KeyIntegrity, error) {
	payload, err := r.encode(common.NewReadRequest(tx.Read(key)))
	if err != nil {
		return common.KeyIntegrity{}, err
	}

	ki := common.KeyIntegrity{Key: key, LocalSegment: -1}
	var segments []store.ReadResult

	add := func(res store.ReadResult) int {
		for i := range segments {
			if segments[i].Matches(&res, r.writeQuorum) {
				ki.Segments[i]++
				return i
			}
		}
		segments = append(segments, res)
		ki.Segments = append(ki.Segments, 1)
		return len(segments) - 1
	}

	for _, resp := range r.net.RequestAll(ctx, payload) {
		if resp.Err != nil {
			ki.Unreachable++
			continue
		}
		msg, err := r.decode(resp.Payload)
		if err != nil || msg.MsgType != common.MsgTRead || msg.Err != "" || !resultsFor([]string{key}, msg.Results) {
			ki.Unreachable++
			continue
		}
		add(msg.Results[0])
	}

	keys := []string{key}
	if err := r.store.Lock(ctx, keys); err != nil {
		return ki, err
	}
	obj, found, err := r.store.Get(key)
	r.store.Unlock(keys)
	if err != nil {
		return ki, err
	}
	if found {
		ki.LocalSegment = add(obj.ReadResult(key))
	}
	if ki.Segments == nil {
		ki.Segments = []int{}
	}
	return ki, nil
}

// --------------------------------------------------------------------------
// Peer Statistics
// --------------------------------------------------------------------------

// PeerStats sends an echo to every peer, records the round trip times and returns the
// statistics of every peer
func (r *Replica) PeerStats(ctx context.Context) ([]common.PeerStats, error) {
	sent := r.now()
	payload, err := r.encode(common.NewEchoRequest(sent.UnixMilli()))
	if err != nil {
		return nil, err
	}

	for _, resp := range r.net.RequestAll(ctx, payload) {
		if resp.Err != nil {
			r.peers.failure(resp.PeerID)
			continue
		}
		msg, err := r.decode(resp.Payload)
		if err != nil || msg.MsgType != common.MsgTEcho || msg.ReqTime != sent.UnixMilli() {
			r.peers.failure(resp.PeerID)
			continue
		}
		r.peers.success(resp.PeerID, resp.RTT)
	}
	return r.peers.snapshot(), nil
}
