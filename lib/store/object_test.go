package store

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ValentinKolb/bKV/lib/cert"
)

func testGrant(ts uint64, hash byte) cert.MultiGrant {
	return cert.MultiGrant{
		Grants:          cert.Grants{"k": ts},
		Initiator:       "i",
		Responder:       "r",
		TransactionHash: []byte{hash},
		Signature:       []byte{hash, hash},
	}
}

func TestGrantHistory(t *testing.T) {
	obj := NewStoredObject()

	obj.AddPendingGrant(3017, PendingGrant{Grant: testGrant(3017, 1)})
	obj.AddPendingGrant(3500, PendingGrant{Grant: testGrant(3500, 2)})
	obj.AddPendingGrant(4001, PendingGrant{Grant: testGrant(4001, 3)})
	obj.AddPendingGrant(7001, PendingGrant{Grant: testGrant(7001, 4)})

	if n := obj.PendingGrantCount(); n != 4 {
		t.Fatalf("Expected 4 grants, got %d", n)
	}
	if n := len(obj.PendingGrantsAt(3)); n != 2 {
		t.Errorf("Expected 2 grants at epoch 3, got %d", n)
	}
	if _, ok := obj.PendingGrant(3500); !ok {
		t.Errorf("Grant at 3500 not found")
	}

	if obj.RemovePendingGrant(3500, []byte{9}) {
		t.Errorf("Removed grant with a different transaction hash")
	}
	if !obj.RemovePendingGrant(3500, []byte{2}) {
		t.Errorf("Failed to remove grant at 3500")
	}
	if obj.RemovePendingGrant(3500, []byte{2}) {
		t.Errorf("Removed grant at 3500 twice")
	}

	// epochs 3 and 4 are at least two behind 6, epoch 7 is ahead
	if removed := obj.PruneHistory(6); removed != 2 {
		t.Errorf("Expected 2 pruned grants, got %d", removed)
	}
	if !reflect.DeepEqual(keysOf(obj.GrantHistory), []uint64{7}) {
		t.Errorf("Unexpected epochs after prune: %v", keysOf(obj.GrantHistory))
	}

	// the epoch right behind is kept
	obj.AddPendingGrant(6001, PendingGrant{Grant: testGrant(6001, 5)})
	if removed := obj.PruneHistory(7); removed != 0 {
		t.Errorf("Pruned %d grants of the previous epoch", removed)
	}
}

func keysOf(h GrantHistory) []uint64 {
	var out []uint64
	for k := range h {
		out = append(out, k)
	}
	return out
}

func TestReadResultMatches(t *testing.T) {
	g := testGrant(1000, 1)
	other := testGrant(1000, 2)
	wc := cert.WriteCertificate{g, g, g}

	base := ReadResult{Key: "k", ValueAvailable: true, Value: []byte("v"), Certificate: wc}

	tests := []struct {
		name  string
		other ReadResult
		want  bool
	}{
		{"Equal", ReadResult{Key: "k", ValueAvailable: true, Value: []byte("v"), Certificate: wc}, true},
		{"OtherKey", ReadResult{Key: "x", ValueAvailable: true, Value: []byte("v"), Certificate: wc}, false},
		{"OtherValue", ReadResult{Key: "k", ValueAvailable: true, Value: []byte("w"), Certificate: wc}, false},
		{"NoValue", ReadResult{Key: "k", Certificate: wc}, false},
		{"OtherSignature", ReadResult{Key: "k", ValueAvailable: true, Value: []byte("v"), Certificate: cert.WriteCertificate{g, g, other}}, false},
		{"ShortCertificate", ReadResult{Key: "k", ValueAvailable: true, Value: []byte("v"), Certificate: cert.WriteCertificate{g, g}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Matches(&tt.other, 3); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}

	empty := EmptyReadResult("k")
	if !empty.Matches(&ReadResult{Key: "k"}, 3) {
		t.Errorf("Empty results do not match")
	}

	obj := &StoredObject{Value: []byte("v"), ValueAvailable: true, Certificate: wc}
	res := obj.ReadResult("k")
	if !ResultsMatch([]ReadResult{res}, []ReadResult{base}, 3) {
		t.Errorf("Projected result does not match")
	}
}

func TestRecordCorruption(t *testing.T) {
	obj := &StoredObject{Value: []byte("v"), ValueAvailable: true, GrantHistory: GrantHistory{}}
	obj.AddPendingGrant(2001, PendingGrant{Grant: testGrant(2001, 1), IssuedAt: 42})
	rec := EncodeRecord(obj)

	got, err := DecodeRecord(rec)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !reflect.DeepEqual(obj, got) {
		t.Errorf("Decoded record differs: %#v", got)
	}

	cases := map[string][]byte{
		"Empty":       {},
		"BadVersion":  append([]byte{99}, rec[1:]...),
		"Truncated":   rec[:len(rec)-3],
		"Trailing":    append(append([]byte{}, rec...), 0),
		"Unavailable": {recordVersion, 0, 1, 1, 'v', 0, 0},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRecord(b)
			var serr *Error
			if !errors.As(err, &serr) || serr.Code != RetCCorruptRecord {
				t.Errorf("Expected corrupt record error, got %v", err)
			}
		})
	}

	if !reflect.DeepEqual(EncodeRecord(obj), rec) {
		t.Errorf("Encoding is not deterministic")
	}
}
