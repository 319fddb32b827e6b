// Package signing wraps the platform code signing tools.
package signing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"releng-kit/internal/shell"
)

// Supported signing tools
const (
	Codesign = "codesign"
	Signtool = "signtool"
)

const DefaultTimestampURL = "http://timestamp.digicert.com"

var (
	ErrUnknownTool = errors.New("unknown signing tool")
	ErrNoIdentity  = errors.New("signing identity required")
	ErrNoFiles     = errors.New("no files to sign")
)

// Signer signs installers one file at a time
type Signer struct {
	Runner   shell.Runner
	Logger   zerolog.Logger
	Tool     string
	Identity string
	// TimestampURL is passed to signtool; codesign uses Apple's service.
	TimestampURL string
	Timeout      time.Duration // per file
	// Verify checks each signature right after signing.
	Verify bool
}

// Validate checks the signer settings before any tool runs
func (s *Signer) Validate() error {
	switch s.Tool {
	case Codesign, Signtool:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTool, s.Tool)
	}
	if s.Identity == "" {
		return ErrNoIdentity
	}
	return nil
}

// Command builds the signing command for file
func (s *Signer) Command(file string) shell.Command {
	var args []string
	switch s.Tool {
	case Codesign:
		args = []string{"--force", "--timestamp", "--options", "runtime", "--sign", s.Identity, file}
	case Signtool:
		ts := s.TimestampURL
		if ts == "" {
			ts = DefaultTimestampURL
		}
		args = []string{"sign", "/fd", "sha256", "/tr", ts, "/td", "sha256", "/n", s.Identity, file}
	}
	return shell.Command{Name: s.Tool, Args: args, Timeout: s.Timeout}
}

// VerifyCommand builds the signature check command for file
func (s *Signer) VerifyCommand(file string) shell.Command {
	var args []string
	switch s.Tool {
	case Codesign:
		args = []string{"--verify", "--deep", "--strict", "--verbose=2", file}
	case Signtool:
		args = []string{"verify", "/pa", "/v", file}
	}
	return shell.Command{Name: s.Tool, Args: args, Timeout: s.Timeout}
}

// Sign signs every file in order and stops at the first failure
func (s *Signer) Sign(ctx context.Context, files []string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNoFiles
	}

	for _, f := range files {
		s.Logger.Info().Str("file", f).Str("tool", s.Tool).Msg("Signing")
		if err := s.Runner.Run(ctx, s.Command(f)); err != nil {
			return fmt.Errorf("sign %s: %w", f, err)
		}
		if s.Verify {
			if err := s.Runner.Run(ctx, s.VerifyCommand(f)); err != nil {
				return fmt.Errorf("verify %s: %w", f, err)
			}
		}
	}
	return nil
}
