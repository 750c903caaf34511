package server

import (
	"context"
	"errors"
	"testing"

	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/rpc/common"
)

type fakeReplica struct {
	keys []common.KeyIntegrity
	err  error
}

func (f *fakeReplica) ExecuteTransaction(_ context.Context, t tx.Transaction) ([]tx.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	results := make([]tx.Result, len(t))
	for i, op := range t {
		results[i] = tx.Result{Key: op.Key, Value: []byte("value"), Available: true}
	}
	return results, nil
}

func (f *fakeReplica) FullIntegrityCheck(_ context.Context, fn func(common.KeyIntegrity) bool) error {
	for _, ki := range f.keys {
		if !fn(ki) {
			return nil
		}
	}
	return f.err
}

func (f *fakeReplica) PeerStats(context.Context) ([]common.PeerStats, error) {
	return []common.PeerStats{{PeerID: "a", Reachable: true, Samples: 1}}, f.err
}

func TestReplicaAdapter(t *testing.T) {
	keys := []common.KeyIntegrity{
		{Key: "a", Segments: []int{4}},
		{Key: "b", Segments: []int{3, 1}, LocalSegment: 1},
	}
	adapter := NewReplicaServerAdapter(&fakeReplica{keys: keys})
	ctx := context.Background()

	t.Run("ExecTx", func(t *testing.T) {
		resp := adapter.Handle(ctx, common.NewExecTxRequest(tx.Read("a", "b")))
		if resp.MsgType != common.MsgTExecTx || resp.Err != "" || len(resp.TxResults) != 2 {
			t.Errorf("Unexpected response: %+v", resp)
		}
	})

	t.Run("IntegrityCheck", func(t *testing.T) {
		resp := adapter.Handle(ctx, common.NewIntegrityCheckRequest())
		if resp.Err != "" || len(resp.Integrity) != 2 || resp.Integrity[1].Key != "b" {
			t.Errorf("Unexpected response: %+v", resp)
		}
	})

	t.Run("PeerStats", func(t *testing.T) {
		resp := adapter.Handle(ctx, common.NewPeerStatsRequest())
		if resp.Err != "" || len(resp.PeerStats) != 1 || !resp.PeerStats[0].Reachable {
			t.Errorf("Unexpected response: %+v", resp)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		resp := adapter.Handle(ctx, common.NewEchoRequest(1))
		if resp.MsgType != common.MsgTError || resp.Err == "" {
			t.Errorf("Expected an error response, got %+v", resp)
		}
	})
}

func TestReplicaAdapterErrors(t *testing.T) {
	adapter := NewReplicaServerAdapter(&fakeReplica{err: errors.New("quorum not reached")})
	ctx := context.Background()

	for _, req := range []*common.Message{
		common.NewExecTxRequest(tx.Write("a", []byte("1"))),
		common.NewIntegrityCheckRequest(),
		common.NewPeerStatsRequest(),
	} {
		resp := adapter.Handle(ctx, req)
		if resp.MsgType != req.MsgType || resp.Err != "quorum not reached" {
			t.Errorf("%s: expected the error in the response, got %+v", req.MsgType, resp)
		}
	}

	// a cancelled check reports the keys collected so far
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	adapter = NewReplicaServerAdapter(&fakeReplica{keys: []common.KeyIntegrity{{Key: "a"}, {Key: "b"}}})
	resp := adapter.Handle(cancelled, common.NewIntegrityCheckRequest())
	if len(resp.Integrity) != 1 || !errors.Is(cancelled.Err(), context.Canceled) || resp.Err == "" {
		t.Errorf("Expected one key and the cancellation, got %+v", resp)
	}
}
