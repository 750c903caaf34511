// Package rpc contains everything that crosses a process boundary in bKV: the
// peer-to-peer protocol over UDP and the control API a host process uses to submit
// transactions to its local peer.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the control Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions. udp and memnet carry peer
//     datagrams, transfer turns them into reliable chunked requests, and tcp/unix
//     carry the framed control API streams.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: The control API client (ReplicaClient).
//
//   - server: The peer process: it wires store, transports and replica together and
//     adapts control messages to replica calls.
package rpc
