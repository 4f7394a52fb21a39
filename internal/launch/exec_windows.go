//go:build windows

package launch

import (
	"errors"
	"os"
	"os/exec"
)

// SystemExecer has no execve on Windows: it runs the target with inherited
// stdio and exits with the target's exit code.
type SystemExecer struct{}

func (SystemExecer) Exec(inv Invocation) error {
	cmd := &exec.Cmd{
		Path:   inv.Path,
		Args:   inv.Args,
		Env:    inv.Env,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.ExitCode())
	}
	if err != nil {
		return err
	}
	os.Exit(0)
	return nil
}
