// Package cert implements the certificate and signature engine of the replication
// protocol.
//
// A MultiGrant is one peer's signed promise that the keys of a transaction may be
// committed at the listed timestamps. A WriteCertificate is a list of 2f+1 MultiGrants
// with identical grants collected by one initiator; it proves quorum agreement and is
// what a Write2 commits.
//
// Key Components:
//
//   - HashTransaction: SHA3-256 over the deterministic transaction encoding.
//
//   - Signer: signs MultiGrants with the peer's ed25519 key. The signature covers the
//     canonical form (grants sorted by key, initiator, responder, transaction hash).
//
//   - Verifier: checks single grants and whole certificates against the known peer keys.
//     Certificate checks cover size, signatures, a single initiator and transaction hash,
//     unique responders and identical grants. Monotonicity against the local store is the
//     caller's job since it needs the store lock.
//
// Peer ids are the std base64 encoding of the ed25519 public key.
package cert
