package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"releng-kit/internal/archive"
	"releng-kit/internal/shell"
)

func newExtractCommand(a *app) *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "extract --dest DIR ARCHIVE",
		Short: "Unpack a .7z, .zip, .tar* or .tgz archive with 7z or tar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if dest == "" {
					return fmt.Errorf("%w: --dest is required", errUsage)
				}
				e := &archive.Extractor{Runner: a.runner(), Logger: a.logger}
				return e.Extract(ctx, args[0], dest)
			})
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "directory to unpack into (required)")
	return cmd
}

func (a *app) runner() *shell.ExecRunner {
	r := shell.NewExecRunner(a.logger, a.dryRun)
	r.Stdout = a.stdout
	r.Stderr = a.stderr
	return r
}
