// Package common provides core data structures and utilities shared across
// the replicated key-value store. It defines the protocol messages, the
// configuration structures and the logging setup used by the other packages.
//
// Key Components:
//
//   - Message: Core data structure of all communication, both between peers
//     (read, write1, write2 and echo rounds carried by the transfer engine) and
//     between a control client and its peer (transactions, integrity check,
//     peer statistics). Factory functions create the request and response
//     variants, refusals carry the error text of the responder.
//
//   - MessageType: Enumeration of all message kinds. It is marshalled as its
//     name in JSON.
//
//   - PeerConfig: The replication parameters of one peer: its identity, the
//     other peers, the fault tolerance f and the timing of every quorum round.
//     Validate enforces at least 3f remote peers.
//
//   - ServerConfig / ClientConfig: Settings of the bkv serve command and of the
//     control API client.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's
//     logger facade, giving every package the same output format.
package common
