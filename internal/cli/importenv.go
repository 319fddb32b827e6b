package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"releng-kit/internal/envimport"
)

func newImportEnvCommand(a *app) *cobra.Command {
	var (
		sh          string
		format      string
		changedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "import-env [--format shell|json|yaml] BATCHFILE [ARGS...]",
		Short: "Print the environment a batch file sets up",
		Long: `import-env runs BATCHFILE under cmd, dumps the resulting environment and
prints it in the requested format. Everything after BATCHFILE is passed to
the batch file unchanged.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				switch format {
				case envimport.FormatShell, envimport.FormatJSON, envimport.FormatYAML:
				default:
					return fmt.Errorf("%w: %q", envimport.ErrUnknownFormat, format)
				}

				imp := &envimport.Importer{Runner: a.runner(), Logger: a.logger, Shell: sh}
				env, err := imp.Import(ctx, args[0], args[1:])
				if err != nil {
					return err
				}
				if changedOnly {
					env = envimport.Changed(env, envimport.CurrentEnv())
				}
				return envimport.Write(a.stdout, env, format)
			})
		},
	}

	f := cmd.Flags()
	f.SetInterspersed(false)
	f.StringVar(&sh, "shell", "cmd", "command interpreter running the batch file")
	f.StringVar(&format, "format", envimport.FormatShell, "output format: shell, json or yaml")
	f.BoolVar(&changedOnly, "changed-only", false, "only print variables that differ from the current environment")
	return cmd
}
