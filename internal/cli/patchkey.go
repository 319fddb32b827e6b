package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"releng-kit/internal/keypatch"
)

func newPatchKeyCommand(a *app) *cobra.Command {
	var file, key, value string

	cmd := &cobra.Command{
		Use:   "patch-key --file EXE --key KEY --value VALUE",
		Short: "Overwrite the NUL padded value after KEY= inside a binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if file == "" {
					return fmt.Errorf("%w: --file is required", errUsage)
				}
				res, err := keypatch.PatchFile(a.fs(), file, key, value)
				if err != nil {
					return err
				}
				a.logger.Info().
					Str("file", file).
					Str("key", key).
					Str("old", res.OldValue).
					Str("new", value).
					Int("offset", res.Offset).
					Str("type", res.Kind).
					Msg("Patched key")
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&file, "file", "", "binary to patch in place (required)")
	f.StringVar(&key, "key", "", "key whose KEY= marker precedes the value slot")
	f.StringVar(&value, "value", "", fmt.Sprintf("new value, at most %d bytes", keypatch.MaxValueLen))
	return cmd
}
