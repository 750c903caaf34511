package server

import (
	"context"

	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response.
	// If an error occurs, it is set in the response.
	Handle(ctx context.Context, req *common.Message) (resp *common.Message)
}

// IReplica is the part of replica.Replica the control API exposes
type IReplica interface {
	ExecuteTransaction(ctx context.Context, t tx.Transaction) ([]tx.Result, error)
	FullIntegrityCheck(ctx context.Context, fn func(common.KeyIntegrity) bool) error
	PeerStats(ctx context.Context) ([]common.PeerStats, error)
}
