package replica

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/bKV/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Replica Metrics
// --------------------------------------------------------------------------

type replicaMetrics struct {
	set *metrics.Set

	reads    *metrics.Counter
	writes   *metrics.Counter
	executes *metrics.Counter
	failures *metrics.Counter
	duration *metrics.Histogram

	refusedWrite1 *metrics.Counter
	refusedWrite2 *metrics.Counter
	decodeErrors  *metrics.Counter

	scrubs        *metrics.Counter
	scrubFailures *metrics.Counter
	gcRuns        *metrics.Counter
	gcPruned      *metrics.Counter
}

func newReplicaMetrics(set *metrics.Set) *replicaMetrics {
	return &replicaMetrics{
		set:           set,
		reads:         set.GetOrCreateCounter(`bkv_transactions_total{type="read"}`),
		writes:        set.GetOrCreateCounter(`bkv_transactions_total{type="write"}`),
		executes:      set.GetOrCreateCounter(`bkv_transactions_total{type="execute"}`),
		failures:      set.GetOrCreateCounter(`bkv_transaction_failures_total`),
		duration:      set.GetOrCreateHistogram(`bkv_transaction_duration_seconds`),
		refusedWrite1: set.GetOrCreateCounter(`bkv_refusals_total{phase="write1"}`),
		refusedWrite2: set.GetOrCreateCounter(`bkv_refusals_total{phase="write2"}`),
		decodeErrors:  set.GetOrCreateCounter(`bkv_message_decode_errors_total`),
		scrubs:        set.GetOrCreateCounter(`bkv_scrubs_total`),
		scrubFailures: set.GetOrCreateCounter(`bkv_scrub_failures_total`),
		gcRuns:        set.GetOrCreateCounter(`bkv_gc_runs_total`),
		gcPruned:      set.GetOrCreateCounter(`bkv_gc_pruned_grants_total`),
	}
}

// retries returns the retry counter of a protocol phase
func (m *replicaMetrics) retries(phase string) *metrics.Counter {
	return m.set.GetOrCreateCounter(`bkv_quorum_retries_total{phase="` + phase + `"}`)
}

// --------------------------------------------------------------------------
// Peer Round Trip Tracking
// --------------------------------------------------------------------------

type peerState struct {
	rtt       gometrics.Timer
	failures  gometrics.Counter
	lastRTT   atomic.Int64
	reachable atomic.Bool
}

// peerTracker keeps the echo round trip times of every peer
type peerTracker struct {
	registry gometrics.Registry
	peers    *xsync.MapOf[string, *peerState]
}

func newPeerTracker(registry gometrics.Registry) *peerTracker {
	return &peerTracker{
		registry: registry,
		peers:    xsync.NewMapOf[string, *peerState](),
	}
}

func (p *peerTracker) state(peerID string) *peerState {
	st, _ := p.peers.LoadOrCompute(peerID, func() *peerState {
		return &peerState{
			rtt:      gometrics.GetOrRegisterTimer("peer."+peerID+".rtt", p.registry),
			failures: gometrics.GetOrRegisterCounter("peer."+peerID+".failures", p.registry),
		}
	})
	return st
}

func (p *peerTracker) success(peerID string, rtt time.Duration) {
	st := p.state(peerID)
	st.rtt.Update(rtt)
	st.lastRTT.Store(rtt.Milliseconds())
	st.reachable.Store(true)
}

func (p *peerTracker) failure(peerID string) {
	st := p.state(peerID)
	st.failures.Inc(1)
	st.reachable.Store(false)
}

// snapshot returns the statistics of every known peer ordered by peer id
func (p *peerTracker) snapshot() []common.PeerStats {
	stats := make([]common.PeerStats, 0, p.peers.Size())
	p.peers.Range(func(id string, st *peerState) bool {
		stats = append(stats, common.PeerStats{
			PeerID:    id,
			Reachable: st.reachable.Load(),
			LastRTT:   st.lastRTT.Load(),
			MeanRTT:   st.rtt.Mean() / float64(time.Millisecond),
			P95RTT:    st.rtt.Percentile(0.95) / float64(time.Millisecond),
			Samples:   st.rtt.Count(),
			Failures:  st.failures.Count(),
		})
		return true
	})
	sort.Slice(stats, func(i, j int) bool { return stats[i].PeerID < stats[j].PeerID })
	return stats
}
