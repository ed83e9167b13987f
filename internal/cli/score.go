package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mbd888/riskoracle/internal/risk"
)

func newScoreCmd(opts *options) *cobra.Command {
	var (
		profilesPath string
		push         bool
		noNoise      bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Evaluate validator profiles with the risk model",
		Long: "Scores every validator profile with the weighted risk model and prints the result. " +
			"With --push the scores are recorded on the oracle, which requires the admin key.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := risk.LoadProfiles(profilesPath)
			if err != nil {
				return err
			}

			var modelOpts []risk.ModelOption
			if pf.Weights != nil {
				modelOpts = append(modelOpts, risk.WithWeights(*pf.Weights))
			}
			if noNoise {
				modelOpts = append(modelOpts, risk.WithNoise(risk.NoNoise))
			}
			model := risk.NewModel(modelOpts...)

			assessments := make([]*risk.Assessment, 0, len(pf.Validators))
			for _, id := range pf.Validators.IDs() {
				assessments = append(assessments, model.Score(id, pf.Validators[id]))
			}

			if push {
				client, err := opts.client(true)
				if err != nil {
					return err
				}
				for _, a := range assessments {
					if _, err := client.UpdateRisk(cmd.Context(), a.ValidatorID, a.Score); err != nil {
						return fmt.Errorf("push %s: %w", a.ValidatorID, err)
					}
				}
			}

			if opts.jsonOutput {
				return opts.printJSON(cmd.OutOrStdout(), assessments)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VALIDATOR\tTYPE\tSCORE\tLEVEL")
			for _, a := range assessments {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", a.ValidatorID, a.Type, a.Score, a.Level)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&profilesPath, "profiles", "", "YAML profiles file (built-in set when empty)")
	cmd.Flags().BoolVar(&push, "push", false, "record the scores on the oracle")
	cmd.Flags().BoolVar(&noNoise, "no-noise", false, "disable the model's random noise")
	return cmd
}
