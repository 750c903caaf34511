package replica

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/bKV/lib/cert"
	"github.com/ValentinKolb/bKV/lib/sandbox"
	"github.com/ValentinKolb/bKV/lib/store"
	"github.com/ValentinKolb/bKV/lib/store/memstore"
	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/rpc/common"
	"github.com/ValentinKolb/bKV/rpc/transport/memnet"
	"github.com/ValentinKolb/bKV/rpc/transport/transfer"
	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Test Cluster
// --------------------------------------------------------------------------

type testPeer struct {
	id      string
	replica *Replica
	store   store.IStore
	metrics *metrics.Set
}

// appendExecutor appends the code to the current value
var appendExecutor = sandbox.ExecutorFunc(func(_ context.Context, _ string, current []byte, code string) ([]byte, error) {
	return append(append([]byte{}, current...), code...), nil
})

// newTestCluster starts n peers with f = 1 on an in-memory network
func newTestCluster(t *testing.T, n int, configure func(cfg *common.PeerConfig)) (*memnet.Network, []*testPeer) {
	t.Helper()

	privs, pubs := make([]string, n), make([]string, n)
	for i := range privs {
		var err error
		if privs[i], pubs[i], err = cert.GenerateKey(); err != nil {
			t.Fatalf("Failed to generate key: %v", err)
		}
	}

	network := memnet.NewNetwork()
	nodes := make([]*memnet.Node, n)
	for i := range nodes {
		nodes[i] = network.Add(pubs[i])
	}

	peers := make([]*testPeer, n)
	for i := range peers {
		cfg := common.DefaultPeerConfig()
		cfg.PrivateKey = privs[i]
		for j := range pubs {
			if j != i {
				cfg.PeerPublicKeys = append(cfg.PeerPublicKeys, pubs[j])
				cfg.PeerAddresses = append(cfg.PeerAddresses, fmt.Sprintf("127.0.0.1:%d", 27918+j))
			}
		}
		cfg.ReadTimeout = 20 * time.Millisecond
		cfg.Write1Timeout = 20 * time.Millisecond
		cfg.Write2Timeout = 20 * time.Millisecond
		cfg.ReadRetryCount, cfg.Write1RetryCount, cfg.Write2RetryCount = 2, 2, 2
		cfg.ExecuteTimeout = 500 * time.Millisecond
		cfg.GCInterval = time.Hour
		if configure != nil {
			configure(&cfg)
		}

		engine, err := transfer.New(nodes[i], transfer.Options{
			ResendInterval:  20 * time.Millisecond,
			CleanupInterval: 50 * time.Millisecond,
			TransferTimeout: 600 * time.Millisecond,
			HandlerTimeout:  300 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("Failed to create transfer engine: %v", err)
		}

		set := metrics.NewSet()
		st := memstore.NewMemStore()
		r, err := New(cfg, st, engine, appendExecutor, Options{Metrics: set})
		if err != nil {
			t.Fatalf("Failed to create replica: %v", err)
		}
		r.Start(context.Background())
		engine.Start()

		t.Cleanup(func() {
			r.Stop()
			engine.Stop()
		})
		peers[i] = &testPeer{id: pubs[i], replica: r, store: st, metrics: set}
	}

	t.Cleanup(network.Close)
	return network, peers
}

func (p *testPeer) execute(t *testing.T, transaction tx.Transaction) []tx.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := p.replica.ExecuteTransaction(ctx, transaction)
	if err != nil {
		t.Fatalf("Transaction %v failed: %v", transaction.Keys(), err)
	}
	return results
}

func (p *testPeer) counter(name string) uint64 {
	return p.metrics.GetOrCreateCounter(name).Get()
}

// object returns the stored object of key, failing the test if it is missing
func (p *testPeer) object(t *testing.T, key string) *store.StoredObject {
	t.Helper()
	obj, found, err := p.store.Get(key)
	if err != nil || !found {
		t.Fatalf("Expected %q to be stored (found=%v, err=%v)", key, found, err)
	}
	return obj
}

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// committedEverywhere waits until every peer holds the value for key
func committedEverywhere(t *testing.T, peers []*testPeer, key string, value []byte) {
	t.Helper()
	eventually(t, "commit of "+key, func() bool {
		for _, p := range peers {
			obj, found, err := p.store.Get(key)
			if err != nil || !found || !bytes.Equal(obj.Value, value) {
				return false
			}
		}
		return true
	})
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

func TestWriteThenRead(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)

	results := peers[0].execute(t, tx.Write("k", []byte("v1")))
	if len(results) != 1 || !results[0].Available {
		t.Fatalf("Unexpected write results: %+v", results)
	}

	for i, p := range peers {
		got := p.execute(t, tx.Read("k"))
		if len(got) != 1 || !got[0].Available || string(got[0].Value) != "v1" {
			t.Errorf("Peer %d read %+v, expected v1", i, got)
		}
	}

	obj := peers[0].object(t, "k")
	if len(obj.Certificate) != 3 {
		t.Errorf("Expected a certificate of 3 grants, got %d", len(obj.Certificate))
	}
	if ts, _ := obj.CurrentTimestamp("k"); ts/1000 != 1 {
		t.Errorf("Expected the first write at epoch 1, got timestamp %d", ts)
	}
}

func TestWriteWithPeerOffline(t *testing.T) {
	network, peers := newTestCluster(t, 4, nil)
	network.SetOffline(peers[3].id, true)

	peers[0].execute(t, tx.Write("k", []byte("v1")))

	got := peers[1].execute(t, tx.Read("k"))
	if string(got[0].Value) != "v1" {
		t.Errorf("Expected v1, got %+v", got)
	}
	if _, found, _ := peers[3].store.Get("k"); found {
		t.Errorf("Offline peer should not have received the write")
	}
}

func TestWriteFailsWithoutQuorum(t *testing.T) {
	network, peers := newTestCluster(t, 4, func(cfg *common.PeerConfig) {
		cfg.Write1RetryCount = 0
	})
	network.SetOffline(peers[2].id, true)
	network.SetOffline(peers[3].id, true)

	_, err := peers[0].replica.ExecuteTransaction(context.Background(), tx.Write("k", []byte("v")))
	if !errors.Is(err, ErrQuorum) {
		t.Fatalf("Expected ErrQuorum, got %v", err)
	}
	if !strings.Contains(err.Error(), "write1") {
		t.Errorf("Expected the write1 phase in the error, got %v", err)
	}
	if peers[0].counter(`bkv_transaction_failures_total`) != 1 {
		t.Errorf("Expected the failure to be counted")
	}
}

func TestReadNeverWritten(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)

	_, err := peers[0].replica.ExecuteTransaction(context.Background(), tx.Read("missing"))
	if !errors.Is(err, ErrNotWritten) {
		t.Fatalf("Expected ErrNotWritten, got %v", err)
	}
}

func TestMultiKeyTransactionAndDelete(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)

	peers[0].execute(t, tx.Transaction{
		{Action: tx.ActionWrite, Key: "a", Value: []byte("1")},
		{Action: tx.ActionWrite, Key: "b", Value: []byte("2")},
	})

	results := peers[1].execute(t, tx.Delete("a"))
	if results[0].Available {
		t.Errorf("Expected a deleted key to be unavailable")
	}

	got := peers[2].execute(t, tx.Read("a", "b"))
	if got[0].Key != "a" || got[0].Available || got[0].Value != nil {
		t.Errorf("Expected a to be deleted, got %+v", got[0])
	}
	if got[1].Key != "b" || !got[1].Available || string(got[1].Value) != "2" {
		t.Errorf("Expected b = 2, got %+v", got[1])
	}

	// the delete certificate covers only a
	if ts, _ := peers[1].object(t, "a").CurrentTimestamp("a"); ts/1000 != 2 {
		t.Errorf("Expected a at epoch 2, got %d", ts)
	}
}

func TestConcurrentWritesOnDistinctKeys(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)

	var wg sync.WaitGroup
	errs := make(chan error, len(peers))
	for i, p := range peers {
		wg.Add(1)
		go func(i int, p *testPeer) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			if _, err := p.replica.ExecuteTransaction(context.Background(), tx.Write(key, []byte(key))); err != nil {
				errs <- fmt.Errorf("%s: %w", key, err)
			}
		}(i, p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Concurrent write failed: %v", err)
	}

	for i := range peers {
		key := fmt.Sprintf("key-%d", i)
		got := peers[(i+1)%len(peers)].execute(t, tx.Read(key))
		if string(got[0].Value) != key {
			t.Errorf("Expected %s, got %+v", key, got)
		}
	}
}

func TestInvalidTransaction(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)

	mixed := tx.Transaction{
		{Action: tx.ActionRead, Key: "a"},
		{Action: tx.ActionDelete, Key: "b"},
	}
	if _, err := peers[0].replica.ExecuteTransaction(context.Background(), mixed); !errors.Is(err, tx.ErrInvalidTransaction) {
		t.Errorf("Expected ErrInvalidTransaction, got %v", err)
	}
}

func TestExecute(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)

	peers[0].execute(t, tx.Execute("counter", "a"))
	peers[1].execute(t, tx.Execute("counter", "b"))

	got := peers[2].execute(t, tx.Read("counter"))
	if string(got[0].Value) != "ab" {
		t.Errorf("Expected ab, got %q", got[0].Value)
	}
	if peers[0].counter(`bkv_transactions_total{type="execute"}`) != 1 {
		t.Errorf("Expected one counted execute transaction")
	}
}

func TestExecuteDisabled(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)
	peers[0].replica.executor = sandbox.Disabled()

	_, err := peers[0].replica.ExecuteTransaction(context.Background(), tx.Execute("k", "x"))
	if !errors.Is(err, sandbox.ErrDisabled) {
		t.Fatalf("Expected ErrDisabled, got %v", err)
	}
}

// --------------------------------------------------------------------------
// Responder
// --------------------------------------------------------------------------

func write1Request(t *testing.T, r *Replica, transaction tx.Transaction, subEpoch uint16) []byte {
	t.Helper()
	req, err := r.encode(common.NewWrite1Request(transaction, subEpoch, cert.HashTransaction(transaction)))
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	return req
}

func respond(t *testing.T, responder *testPeer, from *testPeer, req []byte) ([]byte, *common.Message) {
	t.Helper()
	resp, err := responder.replica.handle(context.Background(), from.id, req)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	msg, err := responder.replica.decode(resp)
	if err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp, msg
}

func TestWrite1Idempotence(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)
	initiator, responder := peers[0], peers[1]

	req := write1Request(t, initiator.replica, tx.Write("k", []byte("v")), 42)
	first, msg := respond(t, responder, initiator, req)
	second, _ := respond(t, responder, initiator, req)

	if msg.MsgType != common.MsgTWrite1 || msg.MultiGrant == nil {
		t.Fatalf("Expected a grant, got %s %q", msg.MsgType, msg.Err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("Expected a byte identical grant for the repeated request")
	}
	if ts := msg.MultiGrant.Grants["k"]; ts != 1042 {
		t.Errorf("Expected timestamp 1042, got %d", ts)
	}
	if n := responder.object(t, "k").PendingGrantCount(); n != 1 {
		t.Errorf("Expected one pending grant, got %d", n)
	}
}

func TestWrite1Contention(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)
	first, second, responder := peers[0], peers[2], peers[1]

	_, msg := respond(t, responder, first, write1Request(t, first.replica, tx.Write("k", []byte("a")), 5))
	if msg.MsgType != common.MsgTWrite1 {
		t.Fatalf("Expected the first initiator to get a grant, got %s %q", msg.MsgType, msg.Err)
	}

	tests := []struct {
		name     string
		subEpoch uint16
		want     string
	}{
		{"SameTimestamp", 5, "another initiator"},
		{"SameEpoch", 7, "live grant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, msg := respond(t, responder, second, write1Request(t, second.replica, tx.Write("k", []byte("b")), tt.subEpoch))
			if msg.MsgType != common.MsgTWrite1Refused {
				t.Fatalf("Expected a refusal, got %s", msg.MsgType)
			}
			if !strings.Contains(msg.Err, tt.want) {
				t.Errorf("Expected %q in the refusal, got %q", tt.want, msg.Err)
			}
		})
	}

	// once the lease expired the epoch is free again
	responder.replica.cfg.GrantLease = 0
	_, msg = respond(t, responder, second, write1Request(t, second.replica, tx.Write("k", []byte("b")), 7))
	if msg.MsgType != common.MsgTWrite1 {
		t.Errorf("Expected a grant after the lease, got %s %q", msg.MsgType, msg.Err)
	}
}

func TestWrite2Monotonicity(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)

	peers[0].execute(t, tx.Write("k", []byte("v1")))
	committedEverywhere(t, peers, "k", []byte("v1"))
	old := peers[1].object(t, "k").Certificate

	peers[0].execute(t, tx.Write("k", []byte("v2")))
	committedEverywhere(t, peers, "k", []byte("v2"))
	current := peers[1].object(t, "k").Certificate

	tests := []struct {
		name string
		wc   cert.WriteCertificate
		t    tx.Transaction
		want string
	}{
		{"ReplayOld", old, tx.Write("k", []byte("v1")), "not newer"},
		{"ReplayCurrent", current, tx.Write("k", []byte("v2")), "not newer"},
		{"OtherTransaction", current, tx.Write("k", []byte("evil")), "hash mismatch"},
		{"TooFewGrants", current[:2], tx.Write("k", []byte("v2")), "has 2 grants"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := peers[0].replica.encode(common.NewWrite2Request(tt.wc, tt.t))
			if err != nil {
				t.Fatalf("Failed to encode: %v", err)
			}
			_, msg := respond(t, peers[1], peers[0], req)
			if msg.MsgType != common.MsgTWrite2Refused {
				t.Fatalf("Expected a refusal, got %s", msg.MsgType)
			}
			if !strings.Contains(msg.Err, tt.want) {
				t.Errorf("Expected %q in the refusal, got %q", tt.want, msg.Err)
			}
			if got := peers[1].object(t, "k").Value; string(got) != "v2" {
				t.Errorf("Store changed to %q", got)
			}
		})
	}
}

func TestEcho(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)

	req, _ := peers[0].replica.encode(common.NewEchoRequest(1234))
	_, msg := respond(t, peers[1], peers[0], req)
	if msg.MsgType != common.MsgTEcho || msg.ReqTime != 1234 || msg.ResTime == 0 {
		t.Errorf("Unexpected echo response: %+v", msg)
	}

	if _, err := peers[1].replica.handle(context.Background(), peers[0].id, []byte{0xff}); err == nil {
		t.Errorf("Expected an error for an undecodable request")
	}
}

// --------------------------------------------------------------------------
// Scrub
// --------------------------------------------------------------------------

func TestQuorumReadRepairsLocalState(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)

	peers[0].execute(t, tx.Write("k", []byte("v1")))
	committedEverywhere(t, peers, "k", []byte("v1"))

	// peer 1 lost the key
	if err := peers[1].store.Set("k", store.NewStoredObject()); err != nil {
		t.Fatalf("Failed to reset key: %v", err)
	}

	got := peers[1].execute(t, tx.Read("k"))
	if string(got[0].Value) != "v1" {
		t.Fatalf("Expected the quorum value v1, got %+v", got)
	}

	obj := peers[1].object(t, "k")
	if string(obj.Value) != "v1" || !obj.ValueAvailable {
		t.Errorf("Expected the local store to be repaired, got %q", obj.Value)
	}
	if !obj.Certificate.Matches(peers[0].object(t, "k").Certificate, 3) {
		t.Errorf("Expected the quorum certificate to be stored")
	}
	if peers[1].counter(`bkv_scrubs_total`) != 1 {
		t.Errorf("Expected one scrub")
	}
}

func TestScrubRejectsForgedCertificate(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)

	peers[0].execute(t, tx.Write("k", []byte("v1")))
	committedEverywhere(t, peers, "k", []byte("v1"))

	// every other peer reports the same forged state
	for _, p := range peers[1:] {
		obj := p.object(t, "k")
		obj.Value = []byte("evil")
		obj.Certificate[0].Signature[0] ^= 0xff
		if err := p.store.Set("k", obj); err != nil {
			t.Fatalf("Failed to forge key: %v", err)
		}
	}

	_, err := peers[0].replica.ExecuteTransaction(context.Background(), tx.Read("k"))
	if !errors.Is(err, ErrScrubFailed) {
		t.Fatalf("Expected ErrScrubFailed, got %v", err)
	}
	if got := peers[0].object(t, "k").Value; string(got) != "v1" {
		t.Errorf("Local store must stay unchanged, got %q", got)
	}
	if peers[0].counter(`bkv_scrub_failures_total`) != 1 {
		t.Errorf("Expected one counted scrub failure")
	}
}

// --------------------------------------------------------------------------
// Maintenance
// --------------------------------------------------------------------------

func TestCollectGarbage(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)
	p := peers[0]

	for _, v := range []string{"1", "2", "3"} {
		p.execute(t, tx.Write("k", []byte(v)))
	}

	obj := p.object(t, "k")
	grant := obj.Certificate[0]
	obj.GrantHistory = store.GrantHistory{}
	obj.AddPendingGrant(1005, store.PendingGrant{Grant: grant})
	obj.AddPendingGrant(2005, store.PendingGrant{Grant: grant})
	obj.AddPendingGrant(4005, store.PendingGrant{Grant: grant})
	if err := p.store.Set("k", obj); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	// a key that was granted but never committed keeps its grants
	if _, err := p.replica.grant(context.Background(), p.replica.ID(), tx.Delete("orphan"), 1, cert.HashTransaction(tx.Delete("orphan"))); err != nil {
		t.Fatalf("Failed to grant: %v", err)
	}

	pruned, err := p.replica.CollectGarbage(context.Background())
	if err != nil {
		t.Fatalf("Garbage collection failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Expected 1 pruned grant, got %d", pruned)
	}

	obj = p.object(t, "k")
	if _, ok := obj.PendingGrant(1005); ok {
		t.Errorf("Expected the grant two epochs behind to be removed")
	}
	if obj.PendingGrantCount() != 2 {
		t.Errorf("Expected 2 remaining grants, got %d", obj.PendingGrantCount())
	}
	if p.object(t, "orphan").PendingGrantCount() != 1 {
		t.Errorf("Expected the uncommitted grant to stay")
	}
	if p.counter(`bkv_gc_pruned_grants_total`) != 1 {
		t.Errorf("Expected the pruned grant to be counted")
	}
}

func TestMaintenanceExclusion(t *testing.T) {
	_, peers := newTestCluster(t, 4, nil)
	r := peers[0].replica

	r.maintenance.Lock()
	if _, err := r.CollectGarbage(context.Background()); !errors.Is(err, ErrMaintenanceInProgress) {
		t.Errorf("Expected ErrMaintenanceInProgress from the garbage collection, got %v", err)
	}
	err := r.FullIntegrityCheck(context.Background(), func(common.KeyIntegrity) bool { return true })
	if !errors.Is(err, ErrMaintenanceInProgress) {
		t.Errorf("Expected ErrMaintenanceInProgress from the integrity check, got %v", err)
	}
	r.maintenance.Unlock()

	if _, err := r.CollectGarbage(context.Background()); err != nil {
		t.Errorf("Expected the garbage collection to run again, got %v", err)
	}
}

func TestFullIntegrityCheck(t *testing.T) {
	network, peers := newTestCluster(t, 4, nil)

	peers[0].execute(t, tx.Write("a", []byte("1")))
	peers[0].execute(t, tx.Write("b", []byte("2")))
	committedEverywhere(t, peers, "a", []byte("1"))
	committedEverywhere(t, peers, "b", []byte("2"))

	obj := peers[3].object(t, "b")
	obj.Value = []byte("diverged")
	if err := peers[3].store.Set("b", obj); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	report := map[string]common.KeyIntegrity{}
	err := peers[0].replica.FullIntegrityCheck(context.Background(), func(ki common.KeyIntegrity) bool {
		report[ki.Key] = ki
		return true
	})
	if err != nil {
		t.Fatalf("Integrity check failed: %v", err)
	}

	a := report["a"]
	if !a.Consistent() || len(a.Segments) != 1 || a.Segments[0] != 4 || a.LocalSegment != 0 {
		t.Errorf("Expected a to be consistent on 4 peers, got %+v", a)
	}

	b := report["b"]
	segments := append([]int{}, b.Segments...)
	sort.Ints(segments)
	if b.Consistent() || len(segments) != 2 || segments[0] != 1 || segments[1] != 3 {
		t.Errorf("Expected b to split 3/1, got %+v", b)
	}
	if b.LocalSegment < 0 || b.Segments[b.LocalSegment] != 3 {
		t.Errorf("Expected the local result in the majority, got %+v", b)
	}

	// stop after the first key with one peer offline
	network.SetOffline(peers[2].id, true)
	calls := 0
	err = peers[0].replica.FullIntegrityCheck(context.Background(), func(ki common.KeyIntegrity) bool {
		calls++
		if ki.Unreachable != 1 {
			t.Errorf("Expected one unreachable peer, got %+v", ki)
		}
		return false
	})
	if err != nil || calls != 1 {
		t.Errorf("Expected the check to stop after one key (calls=%d, err=%v)", calls, err)
	}
}

func TestPeerStats(t *testing.T) {
	network, peers := newTestCluster(t, 4, nil)

	stats, err := peers[0].replica.PeerStats(context.Background())
	if err != nil {
		t.Fatalf("PeerStats failed: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("Expected stats for 3 peers, got %d", len(stats))
	}
	for _, s := range stats {
		if !s.Reachable || s.Samples != 1 || s.Failures != 0 {
			t.Errorf("Unexpected stats: %+v", s)
		}
	}

	network.SetOffline(peers[3].id, true)
	stats, _ = peers[0].replica.PeerStats(context.Background())
	for _, s := range stats {
		if s.PeerID != peers[3].id {
			continue
		}
		if s.Reachable || s.Failures != 1 || s.Samples != 1 {
			t.Errorf("Expected the offline peer to be unreachable, got %+v", s)
		}
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := common.DefaultPeerConfig()
	if _, err := New(cfg, memstore.NewMemStore(), nil, nil, Options{}); err == nil {
		t.Errorf("Expected an error for a config without peers")
	}
}
