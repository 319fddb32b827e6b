// Package cli wires the releng subcommands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"releng-kit/internal/config"
	"releng-kit/internal/logging"
	"releng-kit/internal/metrics"
)

// app is the state shared by all subcommands of one invocation
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer

	cfgFile string
	dryRun  bool

	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
	// started is set once a subcommand body runs; earlier failures are usage errors
	started bool
}

// Execute runs the releng command line and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes one releng invocation with the given arguments and streams
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	metrics.Init()

	a := &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
		logger: zerolog.Nop(),
	}
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil && !a.started {
		err = usageError(err)
	}
	a.finish(ctx, err)
	return exitCode(err)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "releng",
		Short: "Release engineering utilities",
		Long: `releng bundles the small tools used to stage, clean, sign and package a
software distribution: a rule based staging tree cleaner plus thin wrappers
around archive tools, batch file environments, timing CSVs, binary key
patching and platform signers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default searches $HOME/.releng, . and /etc/releng for releng.yaml)")
	pf.BoolVar(&a.dryRun, "dry-run", false, "log what would change without changing anything")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-file", "", "also append JSON logs to this file")
	pf.String("history-db", "", "SQLite database recording clean runs")
	pf.String("metrics-textfile", "", "write Prometheus metrics to this file on exit")

	for key, flag := range map[string]string{
		"logging.level":    "log-level",
		"logging.file":     "log-file",
		"history.path":     "history-db",
		"metrics.textfile": "metrics-textfile",
	} {
		if err := a.v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind --%s to %s: %v", flag, key, err))
		}
	}

	root.AddCommand(
		newCleanCommand(a),
		newFetchCommand(a),
		newExtractCommand(a),
		newImportEnvCommand(a),
		newMergeCSVCommand(a),
		newPatchKeyCommand(a),
		newSignCommand(a),
	)
	return root
}

// setup loads configuration and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, closer, err := logging.New(logging.Options{
		Level:        cfg.Logging.Level,
		File:         cfg.Logging.File,
		RotationDays: cfg.Logging.RotationDays,
		Out:          a.stderr,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	a.logger = logger.With().Str("command", cmd.Name()).Logger()
	a.logCloser = closer

	if a.dryRun {
		a.logger.Info().Msg("DRY RUN MODE: nothing will be changed")
	}
	return nil
}

// run executes a subcommand body and records its metrics
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	a.started = true
	start := time.Now()
	err := fn(cmd.Context())
	metrics.ObserveCommand(cmd.Name(), start, err)
	return err
}

// fs is the filesystem for plain file transforms. In dry-run mode writes land
// in memory on top of a read-only view of the host.
func (a *app) fs() afero.Fs {
	if a.dryRun {
		return afero.NewCopyOnWriteFs(afero.NewReadOnlyFs(afero.NewOsFs()), afero.NewMemMapFs())
	}
	return afero.NewOsFs()
}

// finish reports the error, exports metrics and releases the log file
func (a *app) finish(ctx context.Context, err error) {
	if err != nil {
		if a.logCloser != nil {
			a.logger.Error().Err(err).Msg("Command failed")
		} else {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
		}
	}

	if a.cfg != nil {
		if path := a.cfg.Metrics.Textfile; path != "" {
			if err := metrics.WriteTextfile(path); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to export metrics")
			}
		}
		if url := a.cfg.Metrics.Pushgateway; url != "" {
			pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			if err := metrics.Push(pushCtx, url, a.cfg.Metrics.Job); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to push metrics")
			}
			cancel()
		}
	}

	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}
