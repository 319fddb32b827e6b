// Package workdir scopes changes of the process working directory.
//
// The working directory is process-wide state. Callers never change it
// directly; they enter a directory through this package and always restore
// the previous one, also when the scoped work fails or panics.
package workdir

import (
	"errors"
	"fmt"
	"os"
)

// Enter changes the working directory to dir and returns a function that
// changes it back to the directory that was current before the call.
func Enter(dir string) (restore func() error, err error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("enter %s: %w", dir, err)
	}
	return func() error {
		if err := os.Chdir(prev); err != nil {
			return fmt.Errorf("restore working directory %s: %w", prev, err)
		}
		return nil
	}, nil
}

// Do runs fn with dir as the working directory.
// The previous directory is restored unconditionally before Do returns.
func Do(dir string, fn func() error) (err error) {
	restore, err := Enter(dir)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, restore())
	}()
	return fn()
}
