//go:build !windows

// Package wrapper starts and tracks one worker process: its own process
// group, inherited stdio, extra file descriptors and optional cgroup.
package wrapper

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/psantana5/dockerapp/internal/cgroups"
	"github.com/psantana5/dockerapp/internal/observe"
	"github.com/psantana5/dockerapp/internal/report"
)

// Spec describes a worker to start. Args excludes the program name.
type Spec struct {
	WorkerID   int
	Path       string
	Args       []string
	Env        []string
	ExtraFiles []*os.File
	Limits     *cgroups.Limits
}

// Process is a running worker. Exit is valid once Done is closed.
type Process struct {
	spec       Spec
	cmd        *exec.Cmd
	timing     *observe.Timing
	cgroups    *cgroups.Manager
	cgroupPath string
	done       chan struct{}

	mu        sync.Mutex
	requested report.ExitReason
	exit      *report.Exit
}

// Start launches the worker and begins waiting on it in the background.
func Start(spec Spec, log *zap.SugaredLogger) (*Process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = spec.Env
	cmd.ExtraFiles = spec.ExtraFiles
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// Own process group: terminal signals go to the supervisor only.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	timing := observe.NewTiming()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %d: %w", spec.WorkerID, err)
	}

	p := &Process{
		spec:   spec,
		cmd:    cmd,
		timing: timing,
		done:   make(chan struct{}),
	}

	if spec.Limits != nil {
		p.cgroups = cgroups.New()
		p.cgroupPath = applyLimits(p.cgroups, spec.WorkerID, cmd.Process.Pid, spec.Limits, log)
	}

	go p.wait()
	return p, nil
}

func applyLimits(mgr *cgroups.Manager, workerID, pid int, limits *cgroups.Limits, log *zap.SugaredLogger) string {
	path, err := mgr.Create(fmt.Sprintf("worker-%d", workerID))
	if err != nil || path == "" {
		log.Debugw("cgroup unavailable, running without limits", "worker", workerID, "error", err)
		return ""
	}
	if err := mgr.Join(path, pid); err != nil {
		log.Debugw("cgroup join failed", "worker", workerID, "error", err)
		mgr.Delete(path)
		return ""
	}
	if err := mgr.Apply(path, limits); err != nil {
		log.Warnw("cgroup limits partially applied", "worker", workerID, "error", err)
	}
	return path
}

func (p *Process) wait() {
	p.cmd.Wait()
	p.timing.Complete()

	p.mu.Lock()
	reason, code, sig := DetermineExitReason(p.cmd.ProcessState, p.requested)
	exit := report.NewExit(p.spec.WorkerID, p.PID(), reason, code, p.timing.StartedAt, p.timing.CompletedAt)
	exit.Signal = sig
	p.exit = exit
	p.mu.Unlock()

	if p.cgroupPath != "" {
		p.cgroups.Delete(p.cgroupPath)
	}
	close(p.done)
}

func (p *Process) WorkerID() int {
	return p.spec.WorkerID
}

func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

func (p *Process) StartedAt() time.Time {
	return p.timing.StartedAt
}

func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exit returns the exit record, or nil while the worker runs.
func (p *Process) Exit() *report.Exit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

// Signal delivers sig without changing how the exit will be classified.
func (p *Process) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// Stop delivers sig and records the exit as requested by the supervisor.
func (p *Process) Stop(sig os.Signal) error {
	p.request(report.ReasonStopped)
	return p.Signal(sig)
}

// Kill sends SIGKILL and records the exit as a watchdog timeout.
func (p *Process) Kill() error {
	p.request(report.ReasonTimeout)
	return p.Signal(syscall.SIGKILL)
}

func (p *Process) request(reason report.ExitReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.requested == "" {
		p.requested = reason
	}
}
