// Package transport defines the transport abstractions of bKV.
//
// There are two kinds of transports:
//
//   - IDatagramTransport: the unreliable message channel peers use to talk to each other.
//     It is implemented by the udp package and, for tests, by memnet. The transfer package
//     builds reliable request/response exchanges on top of it.
//
//   - IRPCServerTransport / IRPCClientTransport: framed request/response streams (tcp or
//     unix sockets, see the base package) serving the control API a host process or the
//     CLI uses to submit transactions to a peer.
package transport
