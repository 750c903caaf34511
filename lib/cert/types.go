package cert

import (
	"bytes"
	"sort"
)

// PeerID identifies a peer by its base64 encoded public key
type PeerID string

// --------------------------------------------------------------------------
// Grants
// --------------------------------------------------------------------------

// Grants maps each key of a transaction to its granted timestamp number
type Grants map[string]uint64

// Equal reports whether both maps hold the same keys with the same timestamps
func (g Grants) Equal(o Grants) bool {
	if len(g) != len(o) {
		return false
	}
	for k, v := range g {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// SortedKeys returns the granted keys in lexicographic order
func (g Grants) SortedKeys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of the map
func (g Grants) Clone() Grants {
	out := make(Grants, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}

// --------------------------------------------------------------------------
// MultiGrant
// --------------------------------------------------------------------------

// MultiGrant is a responder's signed promise for one write attempt
type MultiGrant struct {
	Grants          Grants `json:"grants"`
	Initiator       PeerID `json:"initiator"`
	Responder       PeerID `json:"responder"`
	TransactionHash []byte `json:"transactionHash"`
	Signature       []byte `json:"signature"`
}

// Equal reports whether two grants are identical, signature included
func (m *MultiGrant) Equal(o *MultiGrant) bool {
	return m.Initiator == o.Initiator &&
		m.Responder == o.Responder &&
		bytes.Equal(m.TransactionHash, o.TransactionHash) &&
		bytes.Equal(m.Signature, o.Signature) &&
		m.Grants.Equal(o.Grants)
}

// SameAttempt reports whether o was issued for the same initiator and transaction
func (m *MultiGrant) SameAttempt(o *MultiGrant) bool {
	return m.Initiator == o.Initiator && bytes.Equal(m.TransactionHash, o.TransactionHash)
}

// Clone returns a deep copy
func (m MultiGrant) Clone() MultiGrant {
	m.Grants = m.Grants.Clone()
	m.TransactionHash = append([]byte{}, m.TransactionHash...)
	m.Signature = append([]byte{}, m.Signature...)
	return m
}

// --------------------------------------------------------------------------
// WriteCertificate
// --------------------------------------------------------------------------

// WriteCertificate is the list of MultiGrants that authorizes a commit
type WriteCertificate []MultiGrant

// Timestamp returns the certified timestamp number for key
func (wc WriteCertificate) Timestamp(key string) (uint64, bool) {
	if len(wc) == 0 {
		return 0, false
	}
	ts, ok := wc[0].Grants[key]
	return ts, ok
}

// TransactionHash returns the hash the certificate commits to
func (wc WriteCertificate) TransactionHash() []byte {
	if len(wc) == 0 {
		return nil
	}
	return wc[0].TransactionHash
}

// Matches compares two certificates by responder and signature at every position.
// Two empty certificates match. Non-empty ones must both have exactly size entries.
func (wc WriteCertificate) Matches(o WriteCertificate, size int) bool {
	if len(wc) == 0 || len(o) == 0 {
		return len(wc) == 0 && len(o) == 0
	}
	if len(wc) != size || len(o) != size {
		return false
	}
	for i := range wc {
		if wc[i].Responder != o[i].Responder || !bytes.Equal(wc[i].Signature, o[i].Signature) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy
func (wc WriteCertificate) Clone() WriteCertificate {
	if wc == nil {
		return nil
	}
	out := make(WriteCertificate, len(wc))
	for i, mg := range wc {
		out[i] = mg.Clone()
	}
	return out
}
