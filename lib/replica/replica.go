package replica

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/bKV/lib/cert"
	"github.com/ValentinKolb/bKV/lib/sandbox"
	"github.com/ValentinKolb/bKV/lib/store"
	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/rpc/common"
	"github.com/ValentinKolb/bKV/rpc/serializer"
	"github.com/ValentinKolb/bKV/rpc/transport/transfer"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("replica")

var (
	// ErrQuorum is returned when a protocol round failed on every attempt
	ErrQuorum = errors.New("quorum not reached")
	// ErrNotWritten is returned when a read touches a key that was never written
	ErrNotWritten = errors.New("key not yet written")
	// ErrScrubFailed is returned when the quorum state could not be verified during a repair
	ErrScrubFailed = errors.New("scrub failed")
	// ErrMaintenanceInProgress is returned when a garbage collection or integrity check is running
	ErrMaintenanceInProgress = errors.New("maintenance in progress")
	// ErrStaleCertificate is returned when a certificate is not newer than the stored one
	ErrStaleCertificate = errors.New("certificate timestamp is not newer than the stored one")
	// ErrInconsistentCommit is returned when peers acknowledged a commit with different hashes
	ErrInconsistentCommit = errors.New("commit hashes are inconsistent")
)

// IRequester sends requests to all peers and serves their requests, see transfer.Engine
type IRequester interface {
	SetHandler(h transfer.RequestHandler)
	RequestAll(ctx context.Context, payload []byte) []transfer.Response
	RequestEach(ctx context.Context, payload []byte, onResponse func(transfer.Response) transfer.Decision) ([]transfer.Response, error)
}

// Options holds the optional dependencies of a replica
type Options struct {
	// Metrics receives the replica counters. A private set is used if nil.
	Metrics *metrics.Set
	// PeerMetrics receives the per peer round trip timers. A private registry is used if nil.
	PeerMetrics gometrics.Registry
	// Now returns the current time, used for grant leases and echo timestamps
	Now func() time.Time
}

// Replica is one peer of the replicated store. It initiates transactions on behalf of its
// clients and answers the protocol requests of the other peers.
type Replica struct {
	cfg      common.PeerConfig
	store    store.IStore
	net      IRequester
	executor sandbox.IExecutor
	codec    serializer.IRPCSerializer
	now      func() time.Time

	signer *cert.Signer
	// remote trusts the keys of the other peers, grants received as initiator are checked with it
	remote *cert.Verifier
	// all additionally trusts the own key since a certificate may hold an own grant
	all *cert.Verifier

	readQuorum  int
	writeQuorum int

	m     *replicaMetrics
	peers *peerTracker

	// maintenance is held by the garbage collector and the integrity check
	maintenance sync.Mutex

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a replica on top of st and net. Execute operations fail with
// sandbox.ErrDisabled if executor is nil.
func New(cfg common.PeerConfig, st store.IStore, net IRequester, executor sandbox.IExecutor, opts Options) (*Replica, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid peer config: %w", err)
	}
	if st == nil || net == nil {
		return nil, fmt.Errorf("store and requester are required")
	}

	priv, err := cert.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	signer := cert.NewSigner(priv)

	keys := make([]ed25519.PublicKey, 0, len(cfg.PeerPublicKeys)+1)
	for i, s := range cfg.PeerPublicKeys {
		pub, err := cert.ParsePublicKey(s)
		if err != nil {
			return nil, fmt.Errorf("peer %d: %w", i, err)
		}
		keys = append(keys, pub)
	}

	if executor == nil {
		executor = sandbox.Disabled()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewSet()
	}
	if opts.PeerMetrics == nil {
		opts.PeerMetrics = gometrics.NewRegistry()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Replica{
		cfg:         cfg,
		store:       st,
		net:         net,
		executor:    executor,
		codec:       serializer.NewBinarySerializer(),
		now:         opts.Now,
		signer:      signer,
		remote:      cert.NewVerifier(cfg.MaxFaultyPeers, keys...),
		all:         cert.NewVerifier(cfg.MaxFaultyPeers, append(keys, signer.PublicKey())...),
		readQuorum:  cfg.MaxFaultyPeers + 1,
		writeQuorum: 2*cfg.MaxFaultyPeers + 1,
		m:           newReplicaMetrics(opts.Metrics),
		peers:       newPeerTracker(opts.PeerMetrics),
	}, nil
}

// ID returns the peer id of this replica
func (r *Replica) ID() cert.PeerID {
	return r.signer.ID()
}

// Start registers the request handler and starts the garbage collector
func (r *Replica) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	r.net.SetHandler(r.handle)

	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.gcLoop(ctx)

	Logger.Infof("replica %s started (f=%d, %d remote peers)", r.ID(), r.cfg.MaxFaultyPeers, len(r.cfg.PeerPublicKeys))
}

// Stop ends the garbage collector and waits for it to finish.
// Requests of other peers are still answered until the requester stops.
func (r *Replica) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	Logger.Infof("replica %s stopped", r.ID())
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// ExecuteTransaction runs a complete transaction. Read-only transactions return one result
// per operation with the agreed value. Mutating transactions are certified and committed on
// a write quorum; their results report whether the key holds a value afterwards.
func (r *Replica) ExecuteTransaction(ctx context.Context, t tx.Transaction) ([]tx.Result, error) {
	readOnly, err := t.Validate()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var results []tx.Result
	switch {
	case readOnly:
		r.m.reads.Inc()
		results, err = r.executeRead(ctx, t)
	case hasExecute(t):
		r.m.executes.Inc()
		results, err = r.executeCompute(ctx, t)
	default:
		r.m.writes.Inc()
		results, err = r.executeWrite(ctx, t)
	}
	r.m.duration.UpdateDuration(start)

	if err != nil {
		r.m.failures.Inc()
		Logger.Debugf("transaction on %v failed after %v: %v", t.Keys(), time.Since(start), err)
		return nil, err
	}
	return results, nil
}

func hasExecute(t tx.Transaction) bool {
	for _, op := range t {
		if op.Action == tx.ActionExecute {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// retry runs round up to attempts times and waits delay after every failed attempt
// but the last
func (r *Replica) retry(ctx context.Context, phase string, attempts int, delay time.Duration, round func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = round(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.m.retries(phase).Inc()
		Logger.Debugf("%s attempt %d/%d failed: %v", phase, i+1, attempts, err)

		if i+1 < attempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	plural := ""
	if attempts > 1 {
		plural = "s"
	}
	return fmt.Errorf("%w: %s request%s failed: %v", ErrQuorum, phase, plural, err)
}

func (r *Replica) encode(msg *common.Message) ([]byte, error) {
	return r.codec.Serialize(*msg)
}

func (r *Replica) decode(data []byte) (*common.Message, error) {
	var msg common.Message
	if err := r.codec.Deserialize(data, &msg); err != nil {
		r.m.decodeErrors.Inc()
		return nil, err
	}
	return &msg, nil
}

// loadLocked returns the objects of keys, nil for missing ones. The keys must be locked.
func (r *Replica) loadLocked(keys []string) ([]*store.StoredObject, error) {
	objs := make([]*store.StoredObject, len(keys))
	for i, key := range keys {
		obj, found, err := r.store.Get(key)
		if err != nil {
			return nil, fmt.Errorf("failed to load %q: %w", key, err)
		}
		if found {
			objs[i] = obj
		}
	}
	return objs, nil
}

// localResults returns the local state of keys. The keys must be locked.
func (r *Replica) localResults(keys []string) ([]store.ReadResult, error) {
	objs, err := r.loadLocked(keys)
	if err != nil {
		return nil, err
	}
	results := make([]store.ReadResult, len(keys))
	for i, key := range keys {
		if objs[i] == nil {
			results[i] = store.EmptyReadResult(key)
		} else {
			results[i] = objs[i].ReadResult(key)
		}
	}
	return results, nil
}
