package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"releng-kit/internal/cleanup"
	"releng-kit/internal/config"
	"releng-kit/internal/database"
	"releng-kit/internal/rules"
	"releng-kit/internal/workdir"
)

func newCleanCommand(a *app) *cobra.Command {
	var (
		inputDir  string
		rulesFile string
		preserve  []string
		remove    []string
	)

	cmd := &cobra.Command{
		Use:   "clean --input-dir DIR (--preserve RULES... | --remove RULES...)",
		Short: "Delete files from a staging tree by glob rules and prune empty directories",
		Long: `clean walks the staging tree once and either keeps only the entries named
by --preserve rules or deletes the entries named by --remove rules. Each
rule line holds whitespace separated glob patterns relative to the input
directory; "**" matches any depth. Directories left empty are removed
afterwards, deepest first. The input directory itself is never removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if inputDir == "" {
					return fmt.Errorf("%w: --input-dir is required", errUsage)
				}
				if cmd.Flags().Changed("preserve") && cmd.Flags().Changed("remove") {
					return rules.ErrConflictingModes
				}

				if rulesFile != "" {
					rf, err := config.LoadRules(rulesFile)
					if err != nil {
						return err
					}
					preserve = append(preserve, rf.Preserve...)
					remove = append(remove, rf.Remove...)
				}

				rs, err := rules.NewRuleSet(preserve, remove)
				if err != nil {
					return err
				}

				return a.clean(ctx, inputDir, rs)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&inputDir, "input-dir", "", "staging tree to clean (required)")
	f.StringArrayVar(&preserve, "preserve", nil, "rule line naming entries to keep; repeatable")
	f.StringArrayVar(&remove, "remove", nil, "rule line naming entries to delete; repeatable")
	f.StringVar(&rulesFile, "rules-file", "", "YAML file with preserve or remove rule lines")

	return cmd
}

func (a *app) clean(ctx context.Context, inputDir string, rs rules.RuleSet) error {
	info, err := os.Stat(inputDir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", cleanup.ErrInvalidRoot, inputDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", cleanup.ErrInvalidRoot, inputDir)
	}

	db := a.openHistory()
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				a.logger.Error().Err(err).Msg("Failed to close history database")
			}
		}()
	}

	cleaner := cleanup.NewCleaner(afero.NewOsFs(), a.logger, a.dryRun, db)

	var res *cleanup.Result
	err = workdir.Do(inputDir, func() error {
		var runErr error
		res, runErr = cleaner.Run(ctx, ".", rs)
		return runErr
	})
	if err != nil {
		return err
	}

	a.logger.Info().
		Str("input_dir", inputDir).
		Str("run_id", res.RunID).
		Int("files_removed", res.FilesRemoved).
		Int("dirs_pruned", res.DirsPruned).
		Int64("bytes_freed", res.BytesFreed).
		Msg("Clean finished")
	return nil
}

// openHistory opens the removal history, or returns nil when it is disabled
// or unusable. History is bookkeeping and never stops a clean.
func (a *app) openHistory() *database.HistoryDB {
	if !a.cfg.History.Enabled {
		return nil
	}
	// Absolute, since the run happens inside inputDir
	path, err := filepath.Abs(a.cfg.History.Path)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", a.cfg.History.Path).Msg("History disabled: cannot resolve database path")
		return nil
	}
	db, err := database.NewHistoryDB(path)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", path).Msg("History disabled: cannot open database")
		return nil
	}
	return db
}
