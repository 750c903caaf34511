package tx

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func runCheck(_ *cobra.Command, _ []string) error {
	integrity, err := rpcClient.IntegrityCheck()

	sort.Slice(integrity, func(i, j int) bool { return integrity[i].Key < integrity[j].Key })
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSEGMENTS\tLOCAL\tUNREACHABLE\tSTATUS")
	inconsistent := 0
	for _, ki := range integrity {
		status := "ok"
		if !ki.Consistent() {
			status = "inconsistent"
			inconsistent++
		}
		fmt.Fprintf(w, "%s\t%v\t%d\t%d\t%s\n", ki.Key, ki.Segments, ki.LocalSegment, ki.Unreachable, status)
	}
	w.Flush()

	if err != nil {
		return err
	}
	fmt.Printf("\n%d keys checked, %d inconsistent\n", len(integrity), inconsistent)
	return nil
}

func runStats(_ *cobra.Command, _ []string) error {
	stats, err := rpcClient.PeerStats()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PEER\tREACHABLE\tLAST RTT\tMEAN RTT\tP95 RTT\tSAMPLES\tFAILURES")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%t\t%dms\t%.2fms\t%.2fms\t%d\t%d\n",
			s.PeerID, s.Reachable, s.LastRTT, s.MeanRTT, s.P95RTT, s.Samples, s.Failures)
	}
	return w.Flush()
}
