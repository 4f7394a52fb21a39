//go:build !windows

package wrapper

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/psantana5/dockerapp/internal/report"
)

// DetermineExitReason classifies a finished process. A requested reason
// (set when the supervisor stopped or killed the worker) wins over
// whatever the exit status says.
func DetermineExitReason(state *os.ProcessState, requested report.ExitReason) (report.ExitReason, int, string) {
	if state == nil {
		if requested != "" {
			return requested, -1, ""
		}
		return report.ReasonCrashed, -1, ""
	}

	code := state.ExitCode()
	sig := ""
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig = SignalName(ws.Signal())
	}

	if requested != "" {
		return requested, code, sig
	}

	switch {
	case sig != "":
		return report.ReasonSignaled, code, sig
	case code == report.BootFailureExitCode:
		return report.ReasonBootFailure, code, sig
	case code == 0:
		return report.ReasonExited, code, sig
	default:
		return report.ReasonCrashed, code, sig
	}
}

// SignalName returns the SIGXXX name of sig.
func SignalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return fmt.Sprintf("signal %d", int(sig))
}
