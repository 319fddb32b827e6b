package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"releng-kit/internal/archive"
)

func newFetchCommand(a *app) *cobra.Command {
	var (
		dest      string
		sha256sum string
	)

	cmd := &cobra.Command{
		Use:   "fetch --dest DIR URL...",
		Short: "Download archives unless they are already present",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, urls []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if dest == "" {
					return fmt.Errorf("%w: --dest is required", errUsage)
				}
				if sha256sum != "" && len(urls) != 1 {
					return fmt.Errorf("%w: --sha256 needs exactly one URL", errUsage)
				}

				f := archive.NewFetcher(a.logger, a.cfg.Fetch.Workers,
					time.Duration(a.cfg.Fetch.TimeoutSeconds)*time.Second)

				if sha256sum != "" {
					_, err := f.Fetch(ctx, urls[0], dest, sha256sum)
					return err
				}
				_, err := f.FetchAll(ctx, urls, dest)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "download directory (required)")
	cmd.Flags().StringVar(&sha256sum, "sha256", "", "expected hex sha256 of the single downloaded file")
	return cmd
}
