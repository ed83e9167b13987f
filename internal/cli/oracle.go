package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbd888/riskoracle/internal/auth"
	"github.com/mbd888/riskoracle/internal/oracleclient"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the oracle admin and last update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := opts.client(false)
			st, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return opts.printJSON(cmd.OutOrStdout(), st)
			}
			admin := st.Admin
			if !st.Initialized {
				admin = "none (not initialized)"
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "admin:       %s\n", admin)
			fmt.Fprintf(w, "validators:  %d\n", st.Count)
			fmt.Fprintf(w, "last update: %s\n", formatTime(st.LastUpdate))
			return nil
		},
	}
}

func newInitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Become the oracle admin if it has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(true)
			if err != nil {
				return err
			}
			st, err := client.Initialize(cmd.Context())
			if err != nil {
				if oracleclient.IsAlreadyInitialized(err) {
					return fmt.Errorf("oracle already has an admin")
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized, admin is %s\n", st.Admin)
			return nil
		},
	}
}

func newKeygenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := auth.GenerateSigner()
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return opts.printJSON(cmd.OutOrStdout(), map[string]string{
					"address":    signer.Address().Hex(),
					"privateKey": signer.PrivateKeyHex(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address:     %s\nprivate key: %s\n", signer.Address().Hex(), signer.PrivateKeyHex())
			return nil
		},
	}
}
