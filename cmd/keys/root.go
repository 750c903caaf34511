package keys

import (
	"fmt"

	"github.com/ValentinKolb/bKV/lib/cert"
	"github.com/spf13/cobra"
)

var (
	// KeysCommands represents the key management command group
	KeysCommands = &cobra.Command{
		Use:   "keys",
		Short: "Manage peer identities",
	}

	genCmd = &cobra.Command{
		Use:   "gen",
		Short: "Generate a new ed25519 key pair",
		Long: `Generate a new ed25519 key pair. The private key is passed to 'bkv serve --private-key',
the public key is the identity of the peer and is listed in the --peers flag of every other peer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, pub, err := cert.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "private: %s\npublic:  %s\n", priv, pub)
			return nil
		},
	}
)

func init() {
	KeysCommands.AddCommand(genCmd)
}
