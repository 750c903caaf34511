package transfer

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Options tune the transfer engine. The zero value of every field selects its default.
type Options struct {
	// MaxChunkLength is the largest chunk put into one datagram
	MaxChunkLength int
	// ResendInterval is the delay between resends of the packet a transfer waits on
	ResendInterval time.Duration
	// CleanupInterval is the period of the cleanup sweep
	CleanupInterval time.Duration
	// TransferTimeout is the inactivity after which a transfer is deleted
	TransferTimeout time.Duration
	// HandlerTimeout bounds the request handler. It must be shorter than TransferTimeout.
	HandlerTimeout time.Duration
	// Metrics receives the transfer counters. A private set is used if nil.
	Metrics *metrics.Set
}

// DefaultOptions returns the defaults
func DefaultOptions() Options {
	return Options{
		MaxChunkLength:  512,
		ResendInterval:  300 * time.Millisecond,
		CleanupInterval: 2 * time.Second,
		TransferTimeout: 5 * time.Second,
		HandlerTimeout:  3 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxChunkLength <= 0 {
		o.MaxChunkLength = def.MaxChunkLength
	}
	if o.ResendInterval <= 0 {
		o.ResendInterval = def.ResendInterval
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = def.CleanupInterval
	}
	if o.TransferTimeout <= 0 {
		o.TransferTimeout = def.TransferTimeout
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = def.HandlerTimeout
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewSet()
	}
	return o
}

func (o Options) validate() error {
	if o.HandlerTimeout >= o.TransferTimeout {
		return fmt.Errorf("handler timeout (%v) must be shorter than the transfer timeout (%v)", o.HandlerTimeout, o.TransferTimeout)
	}
	if o.MaxChunkLength > 60*1024 {
		return fmt.Errorf("max chunk length %d does not fit into a datagram", o.MaxChunkLength)
	}
	return nil
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

type engineMetrics struct {
	started      *metrics.Counter
	handled      *metrics.Counter
	completed    *metrics.Counter
	timedOut     *metrics.Counter
	failed       *metrics.Counter
	resends      *metrics.Counter
	decodeErrors *metrics.Counter
	stateErrors  *metrics.Counter
	duration     *metrics.Histogram
}

func newEngineMetrics(set *metrics.Set) *engineMetrics {
	return &engineMetrics{
		started:      set.GetOrCreateCounter(`bkv_transfers_started_total`),
		handled:      set.GetOrCreateCounter(`bkv_transfers_handled_total`),
		completed:    set.GetOrCreateCounter(`bkv_transfers_completed_total`),
		timedOut:     set.GetOrCreateCounter(`bkv_transfers_timeout_total`),
		failed:       set.GetOrCreateCounter(`bkv_transfers_failed_total`),
		resends:      set.GetOrCreateCounter(`bkv_transfer_resends_total`),
		decodeErrors: set.GetOrCreateCounter(`bkv_transfer_packet_errors_total{kind="decode"}`),
		stateErrors:  set.GetOrCreateCounter(`bkv_transfer_packet_errors_total{kind="state"}`),
		duration:     set.GetOrCreateHistogram(`bkv_transfer_request_duration_seconds`),
	}
}
