package replica

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ValentinKolb/bKV/lib/cert"
	"github.com/ValentinKolb/bKV/lib/store"
	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/lib/util"
	"github.com/ValentinKolb/bKV/rpc/common"
	"github.com/ValentinKolb/bKV/rpc/transport/transfer"
)

// --------------------------------------------------------------------------
// Write Path
// --------------------------------------------------------------------------

// executeWrite certifies t with a write quorum (Write1), commits it on a write quorum
// (Write2) and finally commits it locally
func (r *Replica) executeWrite(ctx context.Context, t tx.Transaction) ([]tx.Result, error) {
	hash := cert.HashTransaction(t)

	var wc cert.WriteCertificate
	err := r.retry(ctx, "write1", r.cfg.Write1RetryCount+1, r.cfg.Write1Timeout, func() (err error) {
		wc, err = r.write1Once(ctx, t, hash)
		return err
	})
	if err != nil {
		return nil, err
	}

	var hashes [][]byte
	err = r.retry(ctx, "write2", r.cfg.Write2RetryCount+1, r.cfg.Write2Timeout, func() (err error) {
		hashes, err = r.write2Once(ctx, wc, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	local, err := r.commit(ctx, wc, t)
	if err != nil {
		return nil, fmt.Errorf("local commit failed: %w", err)
	}
	for _, h := range hashes {
		if !bytes.Equal(h, local) {
			return nil, ErrInconsistentCommit
		}
	}

	results := make([]tx.Result, len(t))
	for i, op := range t {
		results[i] = tx.Result{Key: op.Key, Available: op.Action != tx.ActionDelete}
	}
	return results, nil
}

// write1Once asks every peer for a grant on the keys of t under a fresh sub epoch.
// The own grant is issued locally. Grants with identical grant maps are grouped; the first
// group reaching the write quorum becomes the certificate.
func (r *Replica) write1Once(ctx context.Context, t tx.Transaction, hash []byte) (cert.WriteCertificate, error) {
	subEpoch := util.RandomSubEpoch()
	payload, err := r.encode(common.NewWrite1Request(t, subEpoch, hash))
	if err != nil {
		return nil, err
	}

	var segments []cert.WriteCertificate
	var certificate cert.WriteCertificate

	if own, err := r.grant(ctx, r.ID(), t.WithoutValues(), subEpoch, hash); err != nil {
		Logger.Debugf("no own grant for %v: %v", t.Keys(), err)
	} else {
		segments = append(segments, cert.WriteCertificate{own})
	}

	_, err = r.net.RequestEach(ctx, payload, func(resp transfer.Response) transfer.Decision {
		msg, err := r.decode(resp.Payload)
		if err != nil {
			Logger.Debugf("invalid write1 response from %s: %v", resp.PeerID, err)
			return transfer.Continue
		}
		if msg.MsgType == common.MsgTWrite1Refused {
			r.m.refusedWrite1.Inc()
			Logger.Debugf("write1 refused by %s: %s", resp.PeerID, msg.Err)
			return transfer.Continue
		}
		if msg.MsgType != common.MsgTWrite1 || msg.MultiGrant == nil {
			return transfer.Continue
		}

		mg := *msg.MultiGrant
		if err := r.checkGrant(resp.PeerID, &mg, t, hash); err != nil {
			Logger.Warningf("discarding grant of %s: %v", resp.PeerID, err)
			return transfer.Continue
		}

		for i := range segments {
			if segments[i][0].Grants.Equal(mg.Grants) {
				segments[i] = append(segments[i], mg)
				if len(segments[i]) >= r.writeQuorum {
					certificate = segments[i]
					return transfer.Resolve
				}
				return transfer.Continue
			}
		}
		segments = append(segments, cert.WriteCertificate{mg})
		return transfer.Continue
	})
	if err != nil {
		return nil, err
	}
	return certificate, nil
}

// checkGrant verifies a grant received from peerID for the write attempt of t
func (r *Replica) checkGrant(peerID string, mg *cert.MultiGrant, t tx.Transaction, hash []byte) error {
	if string(mg.Responder) != peerID {
		return fmt.Errorf("grant issued by %s", mg.Responder)
	}
	if err := r.remote.VerifyGrant(mg); err != nil {
		return err
	}
	if mg.Initiator != r.ID() || !bytes.Equal(mg.TransactionHash, hash) {
		return fmt.Errorf("grant belongs to another write attempt")
	}
	if len(mg.Grants) != len(t) {
		return fmt.Errorf("grant covers %d keys, transaction has %d", len(mg.Grants), len(t))
	}
	for _, op := range t {
		if _, ok := mg.Grants[op.Key]; !ok {
			return fmt.Errorf("key %q not granted", op.Key)
		}
	}
	return nil
}

// write2Once sends the certificate with the full transaction to every peer and returns
// the transaction hashes of 2f commits. The local commit completes the write quorum.
func (r *Replica) write2Once(ctx context.Context, wc cert.WriteCertificate, t tx.Transaction) ([][]byte, error) {
	payload, err := r.encode(common.NewWrite2Request(wc, t))
	if err != nil {
		return nil, err
	}

	var hashes [][]byte
	_, err = r.net.RequestEach(ctx, payload, func(resp transfer.Response) transfer.Decision {
		msg, err := r.decode(resp.Payload)
		if err != nil {
			Logger.Debugf("invalid write2 response from %s: %v", resp.PeerID, err)
			return transfer.Continue
		}
		if msg.MsgType == common.MsgTWrite2Refused {
			r.m.refusedWrite2.Inc()
			Logger.Warningf("write2 refused by %s: %s", resp.PeerID, msg.Err)
			return transfer.Continue
		}
		if msg.MsgType != common.MsgTWrite2 || msg.TransactionHash == nil {
			return transfer.Continue
		}

		hashes = append(hashes, msg.TransactionHash)
		if len(hashes) >= r.writeQuorum-1 {
			return transfer.Resolve
		}
		return transfer.Continue
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// --------------------------------------------------------------------------
// Commit
// --------------------------------------------------------------------------

// commit verifies wc for t and applies t to the local store under the key lock
func (r *Replica) commit(ctx context.Context, wc cert.WriteCertificate, t tx.Transaction) ([]byte, error) {
	keys := t.Keys()
	if err := r.store.Lock(ctx, keys); err != nil {
		return nil, err
	}
	defer r.store.Unlock(keys)
	return r.commitLocked(wc, t)
}

// commitLocked verifies wc for t and applies t. The keys of t must be locked.
// Nothing is written unless every check passed.
func (r *Replica) commitLocked(wc cert.WriteCertificate, t tx.Transaction) ([]byte, error) {
	if readOnly, err := t.Validate(); err != nil {
		return nil, err
	} else if readOnly {
		return nil, fmt.Errorf("%w: read operations cannot be committed", tx.ErrInvalidTransaction)
	}
	if err := r.all.VerifyCertificateFor(wc, t); err != nil {
		return nil, err
	}

	keys := t.Keys()
	objs, err := r.loadLocked(keys)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		if objs[i] == nil {
			continue
		}
		current, ok := objs[i].CurrentTimestamp(key)
		if !ok {
			continue
		}
		if next, _ := wc.Timestamp(key); next <= current {
			return nil, fmt.Errorf("%w: key %q at %d, certificate at %d", ErrStaleCertificate, key, current, next)
		}
	}

	hash := wc.TransactionHash()
	for i, op := range t {
		obj := objs[i]
		if obj == nil {
			obj = store.NewStoredObject()
		}
		obj.Certificate = wc.Clone()
		if op.Action == tx.ActionDelete {
			obj.Value, obj.ValueAvailable = nil, false
		} else {
			obj.Value, obj.ValueAvailable = append([]byte{}, op.Value...), true
		}
		ts, _ := wc.Timestamp(op.Key)
		obj.RemovePendingGrant(ts, hash)

		if err := r.store.Set(op.Key, obj); err != nil {
			return nil, fmt.Errorf("failed to store %q: %w", op.Key, err)
		}
	}
	return hash, nil
}
