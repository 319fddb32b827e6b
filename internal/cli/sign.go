package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"releng-kit/internal/signing"
)

func newSignCommand(a *app) *cobra.Command {
	var (
		tool         string
		identity     string
		timestampURL string
		timeout      time.Duration
		verify       bool
	)

	cmd := &cobra.Command{
		Use:   "sign --tool codesign|signtool --identity ID FILE...",
		Short: "Sign installers with codesign or signtool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if !cmd.Flags().Changed("timeout") {
					timeout = time.Duration(a.cfg.Sign.TimeoutSeconds) * time.Second
				}
				s := &signing.Signer{
					Runner:       a.runner(),
					Logger:       a.logger,
					Tool:         tool,
					Identity:     identity,
					TimestampURL: timestampURL,
					Timeout:      timeout,
					Verify:       verify,
				}
				return s.Sign(ctx, files)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&tool, "tool", "", "signing tool: codesign or signtool")
	f.StringVar(&identity, "identity", "", "certificate identity or subject name")
	f.StringVar(&timestampURL, "timestamp-url", signing.DefaultTimestampURL, "RFC 3161 timestamp server for signtool")
	f.DurationVar(&timeout, "timeout", 10*time.Minute, "per file timeout (default from sign.timeout_seconds)")
	f.BoolVar(&verify, "verify", false, "verify each signature after signing")
	return cmd
}
