// Package shell runs the external tools the release utilities wrap.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrTimeout = errors.New("command timed out")

// Command is one external tool invocation
type Command struct {
	Name    string
	Args    []string
	Dir     string        // working directory, current one when empty
	Env     []string      // KEY=VALUE pairs added to the process environment
	Timeout time.Duration // zero means no limit beyond the context
}

// String renders the command line for logs and errors
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\"'") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

// Runner executes commands
type Runner interface {
	// Run executes cmd with output streamed through.
	Run(ctx context.Context, cmd Command) error
	// Output executes cmd and returns its standard output.
	Output(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands as child processes
type ExecRunner struct {
	Logger zerolog.Logger
	// DryRun logs Run commands without executing them. Output always executes.
	DryRun bool
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner creates a runner writing tool output to the process streams
func NewExecRunner(logger zerolog.Logger, dryRun bool) *ExecRunner {
	return &ExecRunner{
		Logger: logger,
		DryRun: dryRun,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if r.DryRun {
		r.Logger.Info().Str("dir", cmd.Dir).Msg("[DRY RUN] Would run >>> " + cmd.String())
		return nil
	}
	r.Logger.Info().Str("dir", cmd.Dir).Msg(">>> " + cmd.String())

	return r.exec(ctx, cmd, r.Stdout)
}

func (r *ExecRunner) Output(ctx context.Context, cmd Command) ([]byte, error) {
	r.Logger.Debug().Str("dir", cmd.Dir).Msg(">>> " + cmd.String())

	var out bytes.Buffer
	if err := r.exec(ctx, cmd, &out); err != nil {
		return out.Bytes(), err
	}
	return out.Bytes(), nil
}

func (r *ExecRunner) exec(ctx context.Context, cmd Command, stdout io.Writer) error {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdout = stdout
	c.Stderr = r.Stderr
	// Children holding the output pipes must not keep Wait blocked
	c.WaitDelay = time.Second

	start := time.Now()
	err := c.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %s", ErrTimeout, time.Since(start).Round(time.Millisecond), cmd)
		}
		return fmt.Errorf("%s: %w", cmd, err)
	}

	r.Logger.Debug().Dur("duration", time.Since(start)).Msg("<<< " + cmd.Name)
	return nil
}
