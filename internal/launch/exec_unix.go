//go:build !windows

package launch

import "golang.org/x/sys/unix"

// SystemExecer replaces the process image with execve(2).
type SystemExecer struct{}

func (SystemExecer) Exec(inv Invocation) error {
	return unix.Exec(inv.Path, inv.Args, inv.Env)
}
