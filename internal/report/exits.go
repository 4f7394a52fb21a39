package report

import "sync"

// ExitSample is the compact form of an Exit kept for /status.
type ExitSample struct {
	WorkerID int     `json:"worker_id"`
	PID      int     `json:"pid"`
	Reason   string  `json:"reason"`
	Duration float64 `json:"runtime_seconds"`
	ExitCode int     `json:"exit_code"`
	Signal   string  `json:"signal,omitempty"`
}

// ExitLog is a ring buffer of recent worker exits.
type ExitLog struct {
	samples []ExitSample
	maxSize int
	mu      sync.RWMutex
}

func NewExitLog(maxSize int) *ExitLog {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &ExitLog{
		samples: make([]ExitSample, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record appends an exit, dropping the oldest when full.
func (l *ExitLog) Record(e *Exit) {
	sample := ExitSample{
		WorkerID: e.WorkerID,
		PID:      e.PID,
		Reason:   string(e.Reason),
		Duration: e.Duration.Seconds(),
		ExitCode: e.ExitCode,
		Signal:   e.Signal,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) >= l.maxSize {
		l.samples = l.samples[1:]
	}
	l.samples = append(l.samples, sample)
}

// Recent returns up to n exits, newest first. n <= 0 returns all.
func (l *ExitLog) Recent(n int) []ExitSample {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.samples) {
		n = len(l.samples)
	}

	result := make([]ExitSample, n)
	for i := 0; i < n; i++ {
		result[i] = l.samples[len(l.samples)-1-i]
	}
	return result
}

func (l *ExitLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}
