package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/bKV/cmd/keys"
	"github.com/ValentinKolb/bKV/cmd/serve"
	"github.com/ValentinKolb/bKV/cmd/tx"
	"github.com/ValentinKolb/bKV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:     "bkv",
		Short:   "byzantine fault tolerant key-value store",
		Version: Version,
		Long: fmt.Sprintf(`bKV (v%s)

A replicated key-value store written in Go that tolerates f arbitrarily
faulty peers out of 3f+1, using signed write certificates and quorum reads.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of bKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(tx.TxCommands)
	RootCmd.AddCommand(tx.CheckCmd)
	RootCmd.AddCommand(tx.StatsCmd)
	RootCmd.AddCommand(keys.KeysCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer of the control API (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport of the control API (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
