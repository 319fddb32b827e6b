// Package envimport captures the environment a Windows batch file leaves
// behind, such as the one produced by vcvarsall.bat.
package envimport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"releng-kit/internal/shell"
)

// Marker separates the batch file's own output from the environment dump
const Marker = "__RELENG_ENV_BEGIN__"

var (
	ErrMarkerMissing = errors.New("environment marker not found in shell output")
	ErrDuplicatePath = errors.New("duplicate Path variable in environment")
)

// Importer runs batch files under a native shell
type Importer struct {
	Runner shell.Runner
	Logger zerolog.Logger
	// Shell is the command interpreter, "cmd" by default.
	Shell string
}

// Command builds the shell invocation that runs batch and then dumps the
// resulting environment after Marker.
func (i *Importer) Command(batch string, args []string) shell.Command {
	sh := i.Shell
	if sh == "" {
		sh = "cmd"
	}
	call := strings.TrimSpace("call " + quoteArg(batch) + " " + strings.Join(quoteArgs(args), " "))
	return shell.Command{
		Name: sh,
		Args: []string{"/c", call + " && echo " + Marker + " && set"},
	}
}

// Import runs batch with args and returns the environment it produced
func (i *Importer) Import(ctx context.Context, batch string, args []string) (map[string]string, error) {
	cmd := i.Command(batch, args)
	out, err := i.Runner.Output(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", batch, err)
	}
	env, err := Parse(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", batch, err)
	}
	i.Logger.Debug().Str("batch", batch).Int("variables", len(env)).Msg("Imported environment")
	return env, nil
}

// Parse extracts KEY=VALUE pairs following the marker line. Lines without a
// key (cmd's "=C:=C:\" entries) are ignored.
func Parse(out []byte) (map[string]string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	found := false
	env := make(map[string]string)
	pathKeys := 0

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !found {
			found = strings.TrimSpace(line) == Marker
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		if strings.EqualFold(key, "path") {
			pathKeys++
			if pathKeys > 1 {
				return nil, ErrDuplicatePath
			}
		}
		env[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read shell output: %w", err)
	}
	if !found {
		return nil, ErrMarkerMissing
	}
	return env, nil
}

// Changed keeps only the variables that differ from base
func Changed(env, base map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range env {
		if old, ok := base[k]; !ok || old != v {
			out[k] = v
		}
	}
	return out
}

// CurrentEnv returns the process environment as a map
func CurrentEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = quoteArg(a)
	}
	return out
}

func quoteArg(s string) string {
	if s == "" || strings.ContainsAny(s, " \t&|<>^") {
		return `"` + s + `"`
	}
	return s
}
