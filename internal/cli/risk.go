package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbd888/riskoracle/internal/oracleclient"
	"github.com/mbd888/riskoracle/internal/validation"
)

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <validator>",
		Short: "Print a validator's risk score (0 if never scored)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := opts.client(false)
			r, err := client.GetRisk(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return opts.printJSON(cmd.OutOrStdout(), r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", r.ValidatorID, r.Score)
			return nil
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every recorded risk score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := opts.client(false)
			l, err := client.ListRisks(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return opts.printJSON(cmd.OutOrStdout(), l)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VALIDATOR\tSCORE")
			for _, r := range l.Entries {
				fmt.Fprintf(tw, "%s\t%d\n", r.ValidatorID, r.Score)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d validator(s), last update %s\n", l.Count, formatTime(l.LastUpdate))
			return nil
		},
	}
}

func newSetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <validator> <score>",
		Short: "Record a validator's risk score (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := validation.ParseScore(args[1])
			if err != nil {
				return err
			}
			client, err := opts.client(true)
			if err != nil {
				return err
			}

			r, err := client.UpdateRisk(cmd.Context(), args[0], score)
			if err != nil {
				if oracleclient.IsUnauthorized(err) {
					return fmt.Errorf("%s is not the oracle admin", client.Signer().Address().Hex())
				}
				return err
			}
			if opts.jsonOutput {
				return opts.printJSON(cmd.OutOrStdout(), r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d (updated %s)\n", r.ValidatorID, r.Score, formatTime(r.LastUpdate))
			return nil
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
