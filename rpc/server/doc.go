// Package server runs a bKV peer and serves its control API.
//
// NewRPCServer assembles a peer from a common.ServerConfig: the local store (memory or
// pebble), the UDP datagram transport, the transfer engine on top of it, an optional
// sandbox executor and the replica. The control API is served on a stream transport
// (tcp or unix, see rpc/transport) with the configured serializer. Requests are handled by
// an IRPCServerAdapter; the replica adapter supports:
//
//   - MsgTExecTx: run a transaction, bounded by the server timeout
//   - MsgTIntegrityCheck: run the full integrity check and return all key reports
//   - MsgTPeerStats: measure the round trip time to every peer
//
// If a metrics endpoint is configured, the counters of the replica and the transfer engine
// are served at /metrics in the Prometheus text format.
//
// Usage Example:
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	go func() {
//		<-ctx.Done()
//		s.Close()
//	}()
//	if err := s.Serve(); err != nil {
//		log.Fatalf("Server error: %v", err)
//	}
package server
