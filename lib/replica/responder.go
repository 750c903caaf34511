package replica

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/bKV/lib/cert"
	"github.com/ValentinKolb/bKV/lib/store"
	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/lib/util"
	"github.com/ValentinKolb/bKV/rpc/common"
)

// --------------------------------------------------------------------------
// Request Handler
// --------------------------------------------------------------------------

// handle answers a request of another peer. Requests that cannot be decoded fail the
// transfer, protocol violations are answered with a refusal.
func (r *Replica) handle(ctx context.Context, peerID string, req []byte) ([]byte, error) {
	msg, err := r.decode(req)
	if err != nil {
		Logger.Debugf("dropping request from %s: %v", peerID, err)
		return nil, err
	}

	var resp *common.Message
	switch msg.MsgType {
	case common.MsgTRead:
		resp = r.onRead(ctx, msg)
	case common.MsgTWrite1:
		resp = r.onWrite1(ctx, cert.PeerID(peerID), msg)
	case common.MsgTWrite2:
		resp = r.onWrite2(ctx, msg)
	case common.MsgTEcho:
		resp = common.NewEchoResponse(msg.ReqTime, r.now().UnixMilli())
	default:
		return nil, fmt.Errorf("unexpected %s request from %s", msg.MsgType, peerID)
	}
	return r.encode(resp)
}

// onRead returns the local state of the requested keys
func (r *Replica) onRead(ctx context.Context, msg *common.Message) *common.Message {
	readOnly, err := msg.Transaction.Validate()
	if err == nil && !readOnly {
		err = fmt.Errorf("%w: read request with mutating operations", tx.ErrInvalidTransaction)
	}
	if err != nil {
		return common.NewReadResponse(nil, err)
	}

	keys := msg.Transaction.Keys()
	if err := r.store.Lock(ctx, keys); err != nil {
		return common.NewReadResponse(nil, err)
	}
	defer r.store.Unlock(keys)

	results, err := r.localResults(keys)
	return common.NewReadResponse(results, err)
}

// onWrite1 grants the next timestamp of every key to the initiator's write attempt
func (r *Replica) onWrite1(ctx context.Context, initiator cert.PeerID, msg *common.Message) *common.Message {
	mg, err := r.grant(ctx, initiator, msg.Transaction, msg.SubEpoch, msg.TransactionHash)
	if err != nil {
		Logger.Debugf("refusing write1 of %s: %v", initiator, err)
		return common.NewWrite1RefusedResponse(err)
	}
	return common.NewWrite1Response(mg)
}

func (r *Replica) grant(ctx context.Context, initiator cert.PeerID, t tx.Transaction, subEpoch uint16, hash []byte) (cert.MultiGrant, error) {
	if initiator != r.ID() && !r.remote.Knows(initiator) {
		return cert.MultiGrant{}, fmt.Errorf("unknown initiator %s", initiator)
	}
	if err := t.ValidateMutationShape(); err != nil {
		return cert.MultiGrant{}, err
	}
	if len(hash) != cert.HashSize {
		return cert.MultiGrant{}, fmt.Errorf("transaction hash has %d bytes, expected %d", len(hash), cert.HashSize)
	}

	keys := t.Keys()
	if err := r.store.Lock(ctx, keys); err != nil {
		return cert.MultiGrant{}, err
	}
	defer r.store.Unlock(keys)

	objs, err := r.loadLocked(keys)
	if err != nil {
		return cert.MultiGrant{}, err
	}

	attempt := cert.MultiGrant{Initiator: initiator, TransactionHash: hash}
	now := r.now().UnixMilli()
	grants := make(cert.Grants, len(keys))

	for i, key := range keys {
		next := util.Timestamp{Epoch: 1, SubEpoch: subEpoch}
		if objs[i] != nil {
			if current, ok := objs[i].CurrentTimestamp(key); ok {
				cur, err := util.NumberToTimestamp(current)
				if err != nil {
					return cert.MultiGrant{}, fmt.Errorf("stored timestamp of %q: %w", key, err)
				}
				if next, err = cur.Next(subEpoch); err != nil {
					return cert.MultiGrant{}, fmt.Errorf("no next timestamp for %q: %w", key, err)
				}
			}
		}
		ts, err := next.Number()
		if err != nil {
			return cert.MultiGrant{}, err
		}

		if objs[i] != nil {
			if existing, ok := objs[i].PendingGrant(ts); ok {
				if existing.Grant.SameAttempt(&attempt) {
					// the initiator lost the previous response
					return existing.Grant, nil
				}
				return cert.MultiGrant{}, fmt.Errorf("another initiator has a grant at timestamp %s of %q", next, key)
			}
			if err := r.checkContention(objs[i], key, next.Epoch, &attempt, now); err != nil {
				return cert.MultiGrant{}, err
			}
		}
		grants[key] = ts
	}

	mg := r.signer.NewMultiGrant(grants, initiator, append([]byte{}, hash...))
	pending := store.PendingGrant{Grant: mg, IssuedAt: now}
	for i, key := range keys {
		obj := objs[i]
		if obj == nil {
			obj = store.NewStoredObject()
		}
		obj.AddPendingGrant(grants[key], pending)
		if err := r.store.Set(key, obj); err != nil {
			return cert.MultiGrant{}, fmt.Errorf("failed to store grant for %q: %w", key, err)
		}
	}
	return mg, nil
}

// checkContention refuses a grant at epoch while a live grant of another write attempt
// exists at the same epoch
func (r *Replica) checkContention(obj *store.StoredObject, key string, epoch uint64, attempt *cert.MultiGrant, now int64) error {
	lease := r.cfg.GrantLease.Milliseconds()
	if lease <= 0 {
		return nil
	}
	for _, pg := range obj.PendingGrantsAt(epoch) {
		if pg.Grant.SameAttempt(attempt) {
			continue
		}
		if now-pg.IssuedAt < lease {
			return fmt.Errorf("key %q has a live grant for another transaction at epoch %d", key, epoch)
		}
	}
	return nil
}

// onWrite2 verifies the certificate and commits the transaction
func (r *Replica) onWrite2(ctx context.Context, msg *common.Message) *common.Message {
	hash, err := r.commit(ctx, msg.WriteCertificate, msg.Transaction)
	if err != nil {
		Logger.Warningf("refusing write2: %v", err)
		return common.NewWrite2RefusedResponse(err)
	}
	return common.NewWrite2Response(hash)
}
