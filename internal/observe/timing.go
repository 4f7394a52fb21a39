package observe

import "time"

// Timing brackets a worker's lifetime.
type Timing struct {
	StartedAt   time.Time
	CompletedAt time.Time
}

func NewTiming() *Timing {
	return &Timing{StartedAt: time.Now()}
}

// Complete stamps the end time. Later calls keep the first stamp.
func (t *Timing) Complete() {
	if t.CompletedAt.IsZero() {
		t.CompletedAt = time.Now()
	}
}

// Duration is the elapsed time so far, or the final runtime once completed.
func (t *Timing) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
