package cert

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/ValentinKolb/bKV/lib/tx"
)

var (
	// ErrInvalidGrant is wrapped by every grant verification error
	ErrInvalidGrant = errors.New("invalid multi grant")

	// ErrInvalidCertificate is wrapped by every certificate verification error
	ErrInvalidCertificate = errors.New("invalid write certificate")
)

// Verifier checks grants and certificates against a fixed set of peer keys
type Verifier struct {
	maxFaulty int
	keys      map[PeerID]ed25519.PublicKey
}

// NewVerifier creates a verifier trusting the given keys. Initiators pass only the other
// peers' keys; responders also pass their own key since a certificate may contain a grant
// they issued themselves.
func NewVerifier(maxFaulty int, keys ...ed25519.PublicKey) *Verifier {
	v := &Verifier{
		maxFaulty: maxFaulty,
		keys:      make(map[PeerID]ed25519.PublicKey, len(keys)),
	}
	for _, k := range keys {
		v.keys[IDFromPublicKey(k)] = k
	}
	return v
}

// QuorumSize returns 2f+1, the number of grants in a certificate
func (v *Verifier) QuorumSize() int {
	return 2*v.maxFaulty + 1
}

// Knows reports whether id belongs to a trusted key
func (v *Verifier) Knows(id PeerID) bool {
	_, ok := v.keys[id]
	return ok
}

// VerifyGrant checks that the grant is signed by the responder it names
func (v *Verifier) VerifyGrant(m *MultiGrant) error {
	key, ok := v.keys[m.Responder]
	if !ok {
		return fmt.Errorf("%w: unknown responder %s", ErrInvalidGrant, m.Responder)
	}
	if len(m.Grants) == 0 {
		return fmt.Errorf("%w: no keys granted", ErrInvalidGrant)
	}
	if !ed25519.Verify(key, signingDigest(m), m.Signature) {
		return fmt.Errorf("%w: bad signature from %s", ErrInvalidGrant, m.Responder)
	}
	return nil
}

// VerifyCertificate checks the structure and every signature of a certificate
func (v *Verifier) VerifyCertificate(wc WriteCertificate) error {
	if len(wc) != v.QuorumSize() {
		return fmt.Errorf("%w: has %d grants, expected %d", ErrInvalidCertificate, len(wc), v.QuorumSize())
	}

	responders := make(map[PeerID]struct{}, len(wc))
	for i := range wc {
		mg := &wc[i]
		if err := v.VerifyGrant(mg); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
		}
		if mg.Initiator != wc[0].Initiator {
			return fmt.Errorf("%w: more than one initiator", ErrInvalidCertificate)
		}
		if !bytes.Equal(mg.TransactionHash, wc[0].TransactionHash) {
			return fmt.Errorf("%w: more than one transaction hash", ErrInvalidCertificate)
		}
		if _, dup := responders[mg.Responder]; dup {
			return fmt.Errorf("%w: duplicate responder %s", ErrInvalidCertificate, mg.Responder)
		}
		responders[mg.Responder] = struct{}{}
		if !mg.Grants.Equal(wc[0].Grants) {
			return fmt.Errorf("%w: grants differ between responders", ErrInvalidCertificate)
		}
	}
	return nil
}

// VerifyCertificateFor additionally binds the certificate to a transaction: the hash must
// match the recomputed transaction hash and the granted keys must be exactly the
// transaction's keys.
func (v *Verifier) VerifyCertificateFor(wc WriteCertificate, t tx.Transaction) error {
	if err := v.VerifyCertificate(wc); err != nil {
		return err
	}
	if !bytes.Equal(wc.TransactionHash(), HashTransaction(t)) {
		return fmt.Errorf("%w: transaction hash mismatch", ErrInvalidCertificate)
	}
	grants := wc[0].Grants
	if len(grants) != len(t) {
		return fmt.Errorf("%w: grants cover %d keys, transaction has %d", ErrInvalidCertificate, len(grants), len(t))
	}
	for _, op := range t {
		if _, ok := grants[op.Key]; !ok {
			return fmt.Errorf("%w: key %q not granted", ErrInvalidCertificate, op.Key)
		}
	}
	return nil
}
