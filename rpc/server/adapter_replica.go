package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/bKV/rpc/common"
)

// NewReplicaServerAdapter creates the adapter serving the control API of r
func NewReplicaServerAdapter(r IReplica) IRPCServerAdapter {
	return &replicaServerAdapterImpl{replica: r}
}

type replicaServerAdapterImpl struct {
	replica IReplica
}

func (adapter *replicaServerAdapterImpl) Handle(ctx context.Context, req *common.Message) *common.Message {
	if adapter.replica == nil {
		return common.NewErrorResponse("handler: replica is nil")
	}

	switch req.MsgType {
	case common.MsgTExecTx:
		results, err := adapter.replica.ExecuteTransaction(ctx, req.Transaction)
		return common.NewExecTxResponse(results, err)

	case common.MsgTIntegrityCheck:
		integrity := []common.KeyIntegrity{}
		err := adapter.replica.FullIntegrityCheck(ctx, func(ki common.KeyIntegrity) bool {
			integrity = append(integrity, ki)
			return ctx.Err() == nil
		})
		if err == nil {
			err = ctx.Err()
		}
		return common.NewIntegrityCheckResponse(integrity, err)

	case common.MsgTPeerStats:
		stats, err := adapter.replica.PeerStats(ctx)
		return common.NewPeerStatsResponse(stats, err)

	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC ReplicaAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
