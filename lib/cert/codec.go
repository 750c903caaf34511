package cert

import (
	"golang.org/x/crypto/sha3"

	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/lib/util"
)

// domain separation prefixes for the hashed encodings
const (
	transactionDomain = "bkv/transaction/v1"
	multiGrantDomain  = "bkv/multigrant/v1"
)

// HashSize is the length of a transaction hash
const HashSize = 32

// HashTransaction returns the SHA3-256 hash of the full transaction, values included
func HashTransaction(t tx.Transaction) []byte {
	b := util.AppendString(nil, transactionDomain)
	b = t.AppendBinary(b)
	sum := sha3.Sum256(b)
	return sum[:]
}

// signingDigest hashes the canonical form of a grant: the grants sorted by key,
// the initiator, the responder and the transaction hash. The signature is not part of it.
func signingDigest(m *MultiGrant) []byte {
	b := util.AppendString(nil, multiGrantDomain)
	b = appendGrants(b, m.Grants)
	b = util.AppendString(b, string(m.Initiator))
	b = util.AppendString(b, string(m.Responder))
	b = util.AppendBytes(b, m.TransactionHash)
	sum := sha3.Sum256(b)
	return sum[:]
}

// --------------------------------------------------------------------------
// Binary Encoding
// --------------------------------------------------------------------------

func appendGrants(dst []byte, g Grants) []byte {
	keys := g.SortedKeys()
	dst = util.AppendUvarint(dst, uint64(len(keys)))
	for _, k := range keys {
		dst = util.AppendString(dst, k)
		dst = util.AppendUvarint(dst, g[k])
	}
	return dst
}

func readGrants(r *util.WireReader) Grants {
	n := r.Count()
	g := make(Grants, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		k := r.String()
		g[k] = r.Uvarint()
	}
	return g
}

// AppendMultiGrant appends the binary encoding of m
func AppendMultiGrant(dst []byte, m *MultiGrant) []byte {
	dst = appendGrants(dst, m.Grants)
	dst = util.AppendString(dst, string(m.Initiator))
	dst = util.AppendString(dst, string(m.Responder))
	dst = util.AppendBytes(dst, m.TransactionHash)
	return util.AppendBytes(dst, m.Signature)
}

// ReadMultiGrant reads a grant written by AppendMultiGrant
func ReadMultiGrant(r *util.WireReader) MultiGrant {
	return MultiGrant{
		Grants:          readGrants(r),
		Initiator:       PeerID(r.String()),
		Responder:       PeerID(r.String()),
		TransactionHash: r.Bytes(),
		Signature:       r.Bytes(),
	}
}

// AppendCertificate appends the binary encoding of wc
func AppendCertificate(dst []byte, wc WriteCertificate) []byte {
	dst = util.AppendUvarint(dst, uint64(len(wc)))
	for i := range wc {
		dst = AppendMultiGrant(dst, &wc[i])
	}
	return dst
}

// ReadCertificate reads a certificate written by AppendCertificate.
// An empty certificate decodes as nil.
func ReadCertificate(r *util.WireReader) WriteCertificate {
	n := r.Count()
	if n == 0 || r.Err() != nil {
		return nil
	}
	wc := make(WriteCertificate, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		wc = append(wc, ReadMultiGrant(r))
	}
	return wc
}
