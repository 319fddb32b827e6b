package cli

import (
	"errors"
	"fmt"

	"releng-kit/internal/archive"
	"releng-kit/internal/cleanup"
	"releng-kit/internal/config"
	"releng-kit/internal/csvmerge"
	"releng-kit/internal/envimport"
	"releng-kit/internal/exitcodes"
	"releng-kit/internal/keypatch"
	"releng-kit/internal/rules"
	"releng-kit/internal/safety"
	"releng-kit/internal/signing"
)

var errUsage = errors.New("usage error")

func usageError(err error) error {
	if errors.Is(err, errUsage) || errors.Is(err, config.ErrInvalid) {
		return err
	}
	return fmt.Errorf("%w: %w", errUsage, err)
}

// configErrors are caught before the operation starts touching anything
var configErrors = []error{
	errUsage,
	config.ErrInvalid,
	rules.ErrConflictingModes,
	rules.ErrBadPattern,
	cleanup.ErrInvalidRoot,
	archive.ErrUnknownFormat,
	archive.ErrNoFileName,
	archive.ErrDuplicateTarget,
	envimport.ErrUnknownFormat,
	csvmerge.ErrNoInputs,
	keypatch.ErrEmptyKey,
	signing.ErrUnknownTool,
	signing.ErrNoIdentity,
	signing.ErrNoFiles,
}

var safetyErrors = []error{
	safety.ErrInvalidPath,
	safety.ErrProtectedPath,
	safety.ErrOutsideRoot,
	safety.ErrTraversal,
	safety.ErrRootTarget,
}

// exitCode maps an error to the process exit code contract
func exitCode(err error) int {
	if err == nil {
		return exitcodes.Success
	}
	if errors.Is(err, rules.ErrNoMode) {
		return exitcodes.NoRules
	}
	for _, target := range safetyErrors {
		if errors.Is(err, target) {
			return exitcodes.SafetyViolation
		}
	}
	for _, target := range configErrors {
		if errors.Is(err, target) {
			return exitcodes.InvalidConfig
		}
	}
	return exitcodes.RuntimeError
}
