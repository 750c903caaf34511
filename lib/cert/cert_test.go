package cert

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"reflect"
	"testing"

	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/lib/util"
)

// testPeers creates n signers with deterministic keys
func testPeers(t *testing.T, n int) []*Signer {
	t.Helper()
	signers := make([]*Signer, n)
	for i := range signers {
		seed := bytes.Repeat([]byte{byte(i + 1)}, ed25519.SeedSize)
		signers[i] = NewSigner(ed25519.NewKeyFromSeed(seed))
	}
	return signers
}

func publicKeys(signers []*Signer) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, len(signers))
	for i, s := range signers {
		keys[i] = s.PublicKey()
	}
	return keys
}

// testCertificate builds a valid certificate for t signed by responders
func testCertificate(initiator PeerID, responders []*Signer, t tx.Transaction, ts uint64) WriteCertificate {
	hash := HashTransaction(t)
	grants := Grants{}
	for _, k := range t.Keys() {
		grants[k] = ts
	}
	wc := make(WriteCertificate, len(responders))
	for i, r := range responders {
		wc[i] = r.NewMultiGrant(grants.Clone(), initiator, hash)
	}
	return wc
}

// TestSignAndVerify tests signing and verifying a single grant
func TestSignAndVerify(t *testing.T) {
	peers := testPeers(t, 2)
	v := NewVerifier(1, publicKeys(peers)...)

	mg := peers[1].NewMultiGrant(Grants{"a": 1005, "b": 2005}, peers[0].ID(), []byte("hash"))
	if err := v.VerifyGrant(&mg); err != nil {
		t.Fatalf("Failed to verify grant: %v", err)
	}

	// signing is deterministic, the second grant must be byte identical
	again := peers[1].NewMultiGrant(Grants{"b": 2005, "a": 1005}, peers[0].ID(), []byte("hash"))
	if !mg.Equal(&again) {
		t.Errorf("Grant with same content differs")
	}

	tampered := mg.Clone()
	tampered.Grants["a"] = 1006
	if err := v.VerifyGrant(&tampered); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("Expected ErrInvalidGrant for tampered grants, got %v", err)
	}

	forged := mg.Clone()
	forged.Responder = peers[0].ID()
	if err := v.VerifyGrant(&forged); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("Expected ErrInvalidGrant for forged responder, got %v", err)
	}

	unknown := testPeers(t, 3)[2].NewMultiGrant(Grants{"a": 1}, peers[0].ID(), []byte("hash"))
	if err := v.VerifyGrant(&unknown); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("Expected ErrInvalidGrant for unknown responder, got %v", err)
	}
}

// TestVerifyCertificate tests every certificate rule
func TestVerifyCertificate(t *testing.T) {
	peers := testPeers(t, 5)
	initiator := peers[0].ID()
	responders := peers[1:4]
	v := NewVerifier(1, publicKeys(peers)...)
	transaction := tx.Transaction{
		{Action: tx.ActionWrite, Key: "a", Value: []byte("1")},
		{Action: tx.ActionDelete, Key: "b"},
	}

	valid := testCertificate(initiator, responders, transaction, 1042)
	if err := v.VerifyCertificateFor(valid, transaction); err != nil {
		t.Fatalf("Valid certificate rejected: %v", err)
	}

	tests := map[string]func() (WriteCertificate, tx.Transaction){
		"too few grants": func() (WriteCertificate, tx.Transaction) {
			return valid[:2], transaction
		},
		"too many grants": func() (WriteCertificate, tx.Transaction) {
			return testCertificate(initiator, peers[1:5], transaction, 1042), transaction
		},
		"duplicate responder": func() (WriteCertificate, tx.Transaction) {
			wc := valid.Clone()
			wc[2] = wc[1].Clone()
			return wc, transaction
		},
		"two initiators": func() (WriteCertificate, tx.Transaction) {
			wc := valid.Clone()
			wc[2] = responders[2].NewMultiGrant(wc[0].Grants.Clone(), peers[4].ID(), wc[0].TransactionHash)
			return wc, transaction
		},
		"two hashes": func() (WriteCertificate, tx.Transaction) {
			wc := valid.Clone()
			wc[2] = responders[2].NewMultiGrant(wc[0].Grants.Clone(), initiator, []byte("other"))
			return wc, transaction
		},
		"different grants": func() (WriteCertificate, tx.Transaction) {
			wc := valid.Clone()
			wc[2] = responders[2].NewMultiGrant(Grants{"a": 1043, "b": 1043}, initiator, wc[0].TransactionHash)
			return wc, transaction
		},
		"bad signature": func() (WriteCertificate, tx.Transaction) {
			wc := valid.Clone()
			wc[1].Signature[0] ^= 0xff
			return wc, transaction
		},
		"hash mismatch": func() (WriteCertificate, tx.Transaction) {
			other := transaction.Clone()
			other[0].Value = []byte("2")
			return valid, other
		},
		"key not granted": func() (WriteCertificate, tx.Transaction) {
			// same hash and size, but the grants name a different key
			other := tx.Write("a", []byte("1"))
			wc := make(WriteCertificate, len(responders))
			for i, r := range responders {
				wc[i] = r.NewMultiGrant(Grants{"z": 1042}, initiator, HashTransaction(other))
			}
			return wc, other
		},
	}

	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			wc, transaction := build()
			if err := v.VerifyCertificateFor(wc, transaction); !errors.Is(err, ErrInvalidCertificate) {
				t.Errorf("Expected ErrInvalidCertificate, got %v", err)
			}
		})
	}
}

// TestVerifierOwnKey tests that a responder accepts its own grant only if it trusts itself
func TestVerifierOwnKey(t *testing.T) {
	peers := testPeers(t, 4)
	transaction := tx.Write("k", []byte("v"))
	wc := testCertificate(peers[1].ID(), []*Signer{peers[0], peers[2], peers[3]}, transaction, 1001)

	withoutSelf := NewVerifier(1, publicKeys(peers[1:])...)
	if err := withoutSelf.VerifyCertificateFor(wc, transaction); err == nil {
		t.Errorf("Expected certificate with an unknown signer to be rejected")
	}
	withSelf := NewVerifier(1, publicKeys(peers)...)
	if err := withSelf.VerifyCertificateFor(wc, transaction); err != nil {
		t.Errorf("Expected certificate to be accepted: %v", err)
	}
}

// TestCertificateEncoding tests the binary encoding of certificates
func TestCertificateEncoding(t *testing.T) {
	peers := testPeers(t, 4)
	wc := testCertificate(peers[0].ID(), peers[1:], tx.Write("k", []byte("v")), 7003)

	r := util.NewWireReader(AppendCertificate(nil, wc))
	decoded := ReadCertificate(r)
	if r.Err() != nil {
		t.Fatalf("Failed to decode certificate: %v", r.Err())
	}
	if !reflect.DeepEqual(wc, decoded) {
		t.Errorf("Decoded certificate differs")
	}
	if !wc.Matches(decoded, 3) {
		t.Errorf("Decoded certificate does not match")
	}

	r = util.NewWireReader(AppendCertificate(nil, nil))
	if decoded := ReadCertificate(r); decoded != nil || r.Err() != nil {
		t.Errorf("Empty certificate decoded to %v (err %v)", decoded, r.Err())
	}
}

// TestCertificateMatches tests positional comparison of certificates
func TestCertificateMatches(t *testing.T) {
	peers := testPeers(t, 5)
	a := testCertificate(peers[0].ID(), peers[1:4], tx.Write("k", []byte("v")), 2001)
	b := testCertificate(peers[0].ID(), peers[2:5], tx.Write("k", []byte("v")), 2001)

	if !a.Matches(a.Clone(), 3) {
		t.Errorf("Certificate does not match its clone")
	}
	if a.Matches(b, 3) {
		t.Errorf("Certificates from different responders match")
	}
	if a.Matches(a, 4) {
		t.Errorf("Certificates match with wrong size")
	}
	if !WriteCertificate(nil).Matches(nil, 3) || a.Matches(nil, 3) {
		t.Errorf("Unexpected result for empty certificates")
	}
	if ts, ok := a.Timestamp("k"); !ok || ts != 2001 {
		t.Errorf("Timestamp returned %d %v", ts, ok)
	}
}

// TestParseKeys tests key parsing and generation
func TestParseKeys(t *testing.T) {
	priv, pub, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	key, err := ParsePrivateKey(priv)
	if err != nil {
		t.Fatalf("Failed to parse private key: %v", err)
	}
	pubKey, err := ParsePublicKey(pub)
	if err != nil {
		t.Fatalf("Failed to parse public key: %v", err)
	}
	if NewSigner(key).ID() != IDFromPublicKey(pubKey) {
		t.Errorf("Signer id does not match public key")
	}
	if _, err := ParsePrivateKey("AAAA"); err == nil {
		t.Errorf("Expected error for short private key")
	}
	if _, err := ParsePublicKey("not base64!"); err == nil {
		t.Errorf("Expected error for invalid base64")
	}
}
