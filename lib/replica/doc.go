// Package replica implements the replication protocol of the store: every peer holds a full
// copy of the data and tolerates up to f faulty (also Byzantine) peers out of at least 3f+1.
//
// Reads ask all peers and accept the first result that f+1 peers agree on. If the local
// store disagrees with that result, it is repaired ("scrubbed") after the certificates of
// the quorum result were verified.
//
// Writes run in two phases. In Write1 the initiator asks every peer, itself included, for
// a signed grant (cert.MultiGrant) binding the transaction's keys to their next timestamp.
// 2f+1 grants with identical timestamps form a write certificate. In Write2 the certificate
// is sent together with the full transaction; every peer verifies it and commits. Once 2f
// peers committed, the initiator commits to its own store and compares the transaction
// hashes all peers returned.
//
// Execute operations compute the new value of a key from its agreed current value with a
// sandbox.IExecutor before the write starts.
//
// Besides the protocol the replica runs a periodic garbage collection of stale grants and
// offers two diagnostics: FullIntegrityCheck, which compares every local key with all
// peers, and PeerStats, which measures the round trip time to every peer.
//
// Messages are encoded with the binary serializer and carried by the transfer engine
// (IRequester).
package replica
