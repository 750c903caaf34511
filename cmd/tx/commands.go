package tx

import (
	"fmt"

	txn "github.com/ValentinKolb/bKV/lib/tx"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]...",
		Short: "Reads the values of one or more keys with a quorum read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := rpcClient.ExecuteTransaction(txn.Read(args...))
			if err != nil {
				return err
			}
			printResults(results)
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rpcClient.ExecuteTransaction(txn.Write(args[0], []byte(args[1]))); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]...",
		Short: "Deletes one or more keys in one transaction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rpcClient.ExecuteTransaction(txn.Delete(args...)); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	execCmd = &cobra.Command{
		Use:   "exec [key] [code]",
		Short: "Computes the new value of a key with the peer's sandbox",
		Long:  "Computes the new value of a key by running code with the peer's sandbox command. The sandbox receives the agreed current value and its output becomes the new value.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rpcClient.ExecuteTransaction(txn.Execute(args[0], args[1])); err != nil {
				return err
			}
			fmt.Println("execute successfully")
			return nil
		},
	}
)

func printResults(results []txn.Result) {
	for _, r := range results {
		if r.Available {
			fmt.Printf("key=%s, found=true, value=%s\n", r.Key, r.Value)
		} else {
			fmt.Printf("key=%s, found=false\n", r.Key)
		}
	}
}
