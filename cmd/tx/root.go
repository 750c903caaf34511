package tx

import (
	"github.com/ValentinKolb/bKV/cmd/util"
	"github.com/ValentinKolb/bKV/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.ReplicaClient

	// TxCommands represents the transaction command group
	TxCommands = &cobra.Command{
		Use:               "tx",
		Short:             "Submit transactions to a bKV peer",
		PersistentPreRunE: setupClient,
	}

	// CheckCmd runs the full integrity check on a peer
	CheckCmd = &cobra.Command{
		Use:               "check",
		Short:             "Compare every key of a peer with all other peers",
		PersistentPreRunE: setupClient,
		RunE:              runCheck,
	}

	// StatsCmd prints the round trip statistics of a peer
	StatsCmd = &cobra.Command{
		Use:               "stats",
		Short:             "Measure the round trip time from a peer to all other peers",
		PersistentPreRunE: setupClient,
		RunE:              runStats,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	for _, cmd := range []*cobra.Command{TxCommands, CheckCmd, StatsCmd} {
		util.SetupRPCClientFlags(cmd)
	}

	TxCommands.AddCommand(getCmd)
	TxCommands.AddCommand(setCmd)
	TxCommands.AddCommand(delCmd)
	TxCommands.AddCommand(execCmd)
	TxCommands.AddCommand(perfTestCmd)
}

// setupClient connects the control API client
func setupClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	rpcClient, err = client.NewReplicaClient(*util.GetClientConfig(), t, s)
	return err
}
