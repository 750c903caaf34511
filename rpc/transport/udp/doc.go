// Package udp implements transport.IDatagramTransport on a single UDP socket.
//
// Peers are configured with an address that may omit the port (DefaultPort is used then).
// An inbound datagram is matched to a peer by its exact source address. If no peer matches
// exactly but exactly one peer has the same IP, the datagram is attributed to that peer
// and its port is replaced by the source port, so later sends reach the port the peer
// actually uses (simple hole punching). Datagrams from unknown sources are dropped.
package udp
