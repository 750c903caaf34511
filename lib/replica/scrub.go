package replica

import (
	"fmt"

	"github.com/ValentinKolb/bKV/lib/store"
)

// scrubLocked overwrites the local state with the quorum state wherever they differ.
// Every quorum certificate is verified before anything is written; if one fails the local
// store is left unchanged. The keys must be locked.
func (r *Replica) scrubLocked(quorum, local []store.ReadResult) error {
	var repair []int
	for i := range quorum {
		if quorum[i].Matches(&local[i], r.writeQuorum) {
			continue
		}
		if len(quorum[i].Certificate) == 0 {
			// the quorum has not seen a commit yet, there is nothing to verify
			Logger.Warningf("local state of %q is ahead of the read quorum, keeping it", quorum[i].Key)
			continue
		}
		if err := r.verifyQuorumResult(&quorum[i]); err != nil {
			r.m.scrubFailures.Inc()
			Logger.Errorf("cannot repair %q: %v", quorum[i].Key, err)
			return fmt.Errorf("%w: %q: %v", ErrScrubFailed, quorum[i].Key, err)
		}
		repair = append(repair, i)
	}

	now := r.now().UnixMilli()
	for _, i := range repair {
		res := &quorum[i]
		obj, found, err := r.store.Get(res.Key)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrScrubFailed, res.Key, err)
		}
		if !found {
			obj = store.NewStoredObject()
		}

		obj.Certificate = res.Certificate.Clone()
		obj.ValueAvailable = res.ValueAvailable
		obj.Value = nil
		if res.ValueAvailable {
			obj.Value = append([]byte{}, res.Value...)
		}
		ts, _ := obj.CurrentTimestamp(res.Key)
		obj.AddPendingGrant(ts, store.PendingGrant{Grant: obj.Certificate[0].Clone(), IssuedAt: now})

		if err := r.store.Set(res.Key, obj); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrScrubFailed, res.Key, err)
		}
		r.m.scrubs.Inc()
		Logger.Infof("repaired %q to timestamp %d", res.Key, ts)
	}
	return nil
}

// verifyQuorumResult checks the certificate of a quorum result with the rules of a commit.
// The transaction itself is unknown here, so the hash cannot be recomputed.
func (r *Replica) verifyQuorumResult(res *store.ReadResult) error {
	if err := r.all.VerifyCertificate(res.Certificate); err != nil {
		return err
	}
	if _, ok := res.Certificate.Timestamp(res.Key); !ok {
		return fmt.Errorf("certificate does not cover the key")
	}
	if !res.ValueAvailable && res.Value != nil {
		return fmt.Errorf("value present although not available")
	}
	return nil
}
