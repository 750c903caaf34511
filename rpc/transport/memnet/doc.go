// Package memnet is an in-process datagram network for tests.
//
// Every node implements transport.IDatagramTransport. Datagrams are delivered
// asynchronously through a bounded per-node queue, like a real socket, and a Filter can
// drop or duplicate any datagram. Inject delivers arbitrary bytes, which is how tests
// reorder or forge packets.
package memnet
