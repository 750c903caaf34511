package store

import (
	"bytes"

	"github.com/ValentinKolb/bKV/lib/cert"
	"github.com/ValentinKolb/bKV/lib/util"
)

// PendingGrant is a grant this peer issued that was not committed yet
type PendingGrant struct {
	Grant cert.MultiGrant `json:"grant"`
	// IssuedAt is the unix time in milliseconds the grant was signed
	IssuedAt int64 `json:"issuedAt"`
}

// GrantHistory indexes pending grants by target epoch, then by full timestamp number
type GrantHistory map[uint64]map[uint64]PendingGrant

// StoredObject is the record kept for every key.
// ValueAvailable == false implies Value == nil.
type StoredObject struct {
	Value          []byte                `json:"value,omitempty"`
	ValueAvailable bool                  `json:"valueAvailable"`
	Certificate    cert.WriteCertificate `json:"certificate,omitempty"`
	GrantHistory   GrantHistory          `json:"grantHistory,omitempty"`
}

// NewStoredObject creates an object without value and certificate
func NewStoredObject() *StoredObject {
	return &StoredObject{GrantHistory: GrantHistory{}}
}

// CurrentTimestamp returns the certified timestamp number of key
func (o *StoredObject) CurrentTimestamp(key string) (uint64, bool) {
	return o.Certificate.Timestamp(key)
}

// PendingGrant returns the pending grant at the given timestamp number
func (o *StoredObject) PendingGrant(ts uint64) (PendingGrant, bool) {
	byTs, ok := o.GrantHistory[util.EpochOf(ts)]
	if !ok {
		return PendingGrant{}, false
	}
	pg, ok := byTs[ts]
	return pg, ok
}

// PendingGrantsAt returns all pending grants targeting epoch
func (o *StoredObject) PendingGrantsAt(epoch uint64) map[uint64]PendingGrant {
	return o.GrantHistory[epoch]
}

// AddPendingGrant records a grant at the given timestamp number
func (o *StoredObject) AddPendingGrant(ts uint64, pg PendingGrant) {
	if o.GrantHistory == nil {
		o.GrantHistory = GrantHistory{}
	}
	epoch := util.EpochOf(ts)
	byTs, ok := o.GrantHistory[epoch]
	if !ok {
		byTs = map[uint64]PendingGrant{}
		o.GrantHistory[epoch] = byTs
	}
	byTs[ts] = pg
}

// RemovePendingGrant removes the grant at ts if it was issued for txHash.
// It reports whether a grant was removed.
func (o *StoredObject) RemovePendingGrant(ts uint64, txHash []byte) bool {
	epoch := util.EpochOf(ts)
	byTs, ok := o.GrantHistory[epoch]
	if !ok {
		return false
	}
	pg, ok := byTs[ts]
	if !ok || !bytes.Equal(pg.Grant.TransactionHash, txHash) {
		return false
	}
	delete(byTs, ts)
	if len(byTs) == 0 {
		delete(o.GrantHistory, epoch)
	}
	return true
}

// PruneHistory removes every history epoch that is two or more epochs behind
// currentEpoch and returns the number of removed grants
func (o *StoredObject) PruneHistory(currentEpoch uint64) int {
	removed := 0
	for epoch, byTs := range o.GrantHistory {
		if epoch+2 <= currentEpoch {
			removed += len(byTs)
			delete(o.GrantHistory, epoch)
		}
	}
	return removed
}

// PendingGrantCount returns the number of grants in the history
func (o *StoredObject) PendingGrantCount() int {
	n := 0
	for _, byTs := range o.GrantHistory {
		n += len(byTs)
	}
	return n
}

// ReadResult projects the object onto what a read of key returns
func (o *StoredObject) ReadResult(key string) ReadResult {
	res := ReadResult{
		Key:            key,
		ValueAvailable: o.ValueAvailable,
		Certificate:    o.Certificate,
	}
	if o.ValueAvailable {
		res.Value = o.Value
	}
	return res
}

// --------------------------------------------------------------------------
// Read Results
// --------------------------------------------------------------------------

// ReadResult is the state of one key as reported by a replica
type ReadResult struct {
	Key            string                `json:"key"`
	ValueAvailable bool                  `json:"valueAvailable"`
	Value          []byte                `json:"value,omitempty"`
	Certificate    cert.WriteCertificate `json:"certificate,omitempty"`
}

// Matches reports whether two results describe the same state. Certificates are compared
// by responder and signature at every position and must have certSize entries.
func (r *ReadResult) Matches(o *ReadResult, certSize int) bool {
	return r.Key == o.Key &&
		r.ValueAvailable == o.ValueAvailable &&
		bytes.Equal(r.Value, o.Value) &&
		r.Certificate.Matches(o.Certificate, certSize)
}

// ResultsMatch compares two result lists position by position
func ResultsMatch(a, b []ReadResult, certSize int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Matches(&b[i], certSize) {
			return false
		}
	}
	return true
}

// EmptyReadResult is the result for a key that does not exist
func EmptyReadResult(key string) ReadResult {
	return ReadResult{Key: key}
}
