package report

import (
	"time"

	"go.uber.org/zap"
)

// BootFailureExitCode is what a worker (and a supervisor that gave up on
// its workers) exits with when serving never started.
const BootFailureExitCode = 3

// ExitReason classifies why a worker stopped.
type ExitReason string

const (
	ReasonExited      ExitReason = "exited"       // clean exit, code 0, not requested
	ReasonCrashed     ExitReason = "crashed"      // non-zero exit
	ReasonSignaled    ExitReason = "signaled"     // killed by a signal we did not send
	ReasonTimeout     ExitReason = "timeout"      // watchdog killed it
	ReasonBootFailure ExitReason = "boot_failure" // worker could not start serving
	ReasonStopped     ExitReason = "stopped"      // supervisor asked it to stop
)

// Exit is the immutable record of one worker's lifetime.
type Exit struct {
	WorkerID int        `json:"worker_id"`
	PID      int        `json:"pid"`
	Reason   ExitReason `json:"reason"`
	ExitCode int        `json:"exit_code"`
	Signal   string     `json:"signal,omitempty"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"runtime"`
}

func NewExit(workerID, pid int, reason ExitReason, exitCode int, startTime, endTime time.Time) *Exit {
	return &Exit{
		WorkerID:  workerID,
		PID:       pid,
		Reason:    reason,
		ExitCode:  exitCode,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
	}
}

// Expected reports whether the exit was asked for by the supervisor.
func (e *Exit) Expected() bool {
	return e.Reason == ReasonStopped
}

// LogSummary writes the one-line WORKER record operators grep for.
func (e *Exit) LogSummary(log *zap.SugaredLogger) {
	line := "WORKER %d | pid=%d | reason=%s | runtime=%.0fs | exit=%d"
	args := []interface{}{e.WorkerID, e.PID, e.Reason, e.Duration.Seconds(), e.ExitCode}
	if e.Signal != "" {
		line += " | signal=%s"
		args = append(args, e.Signal)
	}

	if e.Expected() || e.Reason == ReasonExited {
		log.Infof(line, args...)
	} else {
		log.Warnf(line, args...)
	}
}
