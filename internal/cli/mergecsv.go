package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"releng-kit/internal/csvmerge"
)

func newMergeCSVCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge-csv --output OUT INPUT.csv...",
		Short: "Join id,value timing CSVs into one table with a column per input",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, inputs []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if output == "" {
					return fmt.Errorf("%w: --output is required", errUsage)
				}
				if err := csvmerge.MergeFiles(a.fs(), output, inputs); err != nil {
					return err
				}
				a.logger.Info().Str("output", output).Int("inputs", len(inputs)).Msg("Merged timing records")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "merged CSV to write (required)")
	return cmd
}
