package observe

import (
	"fmt"
	"os"
	"time"
)

// Heartbeat is a liveness file shared between a worker and its supervisor.
// The worker touches it; the supervisor reads its mtime.
type Heartbeat struct {
	path string
}

// CreateHeartbeat makes an empty heartbeat file in dir.
func CreateHeartbeat(dir string, workerID int) (*Heartbeat, error) {
	f, err := os.CreateTemp(dir, fmt.Sprintf("dockerapp-worker-%d-*.hb", workerID))
	if err != nil {
		return nil, fmt.Errorf("create heartbeat file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("create heartbeat file: %w", err)
	}
	return &Heartbeat{path: f.Name()}, nil
}

// OpenHeartbeat attaches to an existing heartbeat file.
func OpenHeartbeat(path string) *Heartbeat {
	return &Heartbeat{path: path}
}

func (h *Heartbeat) Path() string {
	return h.path
}

// Beat marks the worker alive now.
func (h *Heartbeat) Beat() error {
	now := time.Now()
	return os.Chtimes(h.path, now, now)
}

// LastBeat returns the time of the most recent beat.
func (h *Heartbeat) LastBeat() (time.Time, error) {
	info, err := os.Stat(h.path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Remove deletes the file. Missing files are not an error.
func (h *Heartbeat) Remove() error {
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
