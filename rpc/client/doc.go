// Package client implements the client of a peer's control API.
//
// NewReplicaClient connects a stream transport (tcp or unix) to one or more endpoints of
// the same peer and returns a ReplicaClient offering:
//
//   - ExecuteTransaction: run a read, write, delete or execute transaction
//   - IntegrityCheck: compare every key of the peer with all other peers
//   - PeerStats: round trip statistics of the peer's connections
//
// Usage Example:
//
//	config := common.ClientConfig{
//		TimeoutSecond: 5,
//		Transport: common.ClientTransportConfig{
//			Endpoints:  []string{"localhost:8080"},
//			RetryCount: 3,
//		},
//	}
//	c, err := client.NewReplicaClient(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	results, err := c.ExecuteTransaction(tx.Read("mykey"))
//
// A transaction error reported by the peer (quorum not reached, key not written, ...) is
// returned as an error carrying the peer's message.
//
// All methods are safe for concurrent use.
package client
