package client

import (
	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/rpc/common"
	"github.com/ValentinKolb/bKV/rpc/serializer"
	"github.com/ValentinKolb/bKV/rpc/transport"
)

// ReplicaClient is the client of the control API of one peer
type ReplicaClient struct {
	rpcClientAdapter
}

// NewReplicaClient connects the transport and returns a client of the peer's control API
func NewReplicaClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*ReplicaClient, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &ReplicaClient{
		rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// ExecuteTransaction runs t on the peer and returns one result per operation
func (c *ReplicaClient) ExecuteTransaction(t tx.Transaction) ([]tx.Result, error) {
	resp, err := invokeRPCRequest(common.NewExecTxRequest(t), c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.TxResults, nil
}

// IntegrityCheck runs the full integrity check on the peer. On failure the reports of the
// keys checked so far are returned together with the error.
func (c *ReplicaClient) IntegrityCheck() ([]common.KeyIntegrity, error) {
	resp, err := invokeRPCRequest(common.NewIntegrityCheckRequest(), c.transport, c.serializer)
	if resp == nil {
		return nil, err
	}
	return resp.Integrity, err
}

// PeerStats returns the round trip statistics the peer measured to every other peer
func (c *ReplicaClient) PeerStats() ([]common.PeerStats, error) {
	resp, err := invokeRPCRequest(common.NewPeerStatsRequest(), c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.PeerStats, nil
}

// Close closes the connections to the peer
func (c *ReplicaClient) Close() error {
	return c.transport.Close()
}
