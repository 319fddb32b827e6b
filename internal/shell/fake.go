package shell

import (
	"context"
	"os"
)

// FakeRunner implements Runner for testing. It records every command along
// with the working directory at the time of the call.
type FakeRunner struct {
	Commands []Command
	Cwds     []string
	// Outputs is returned by Output, keyed by command name.
	Outputs map[string][]byte
	// Fail makes commands with the given name fail.
	Fail map[string]error
}

func (f *FakeRunner) Run(ctx context.Context, cmd Command) error {
	_, err := f.Output(ctx, cmd)
	return err
}

func (f *FakeRunner) Output(_ context.Context, cmd Command) ([]byte, error) {
	f.Commands = append(f.Commands, cmd)
	wd, _ := os.Getwd()
	f.Cwds = append(f.Cwds, wd)
	if err, ok := f.Fail[cmd.Name]; ok {
		return nil, err
	}
	return f.Outputs[cmd.Name], nil
}
