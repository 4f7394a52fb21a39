//go:build !windows

package supervisor

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/psantana5/dockerapp/internal/report"
)

type fakeWorker struct {
	id      int
	pid     int
	started time.Time
	done    chan struct{}
	once    sync.Once

	mu         sync.Mutex
	exit       *report.Exit
	requested  report.ExitReason
	signals    []os.Signal
	ignoreStop bool
}

func (w *fakeWorker) WorkerID() int         { return w.id }
func (w *fakeWorker) PID() int              { return w.pid }
func (w *fakeWorker) StartedAt() time.Time  { return w.started }
func (w *fakeWorker) Done() <-chan struct{} { return w.done }

func (w *fakeWorker) Exit() *report.Exit {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exit
}

func (w *fakeWorker) finish(reason report.ExitReason, code int) {
	w.once.Do(func() {
		w.mu.Lock()
		if w.requested != "" {
			reason = w.requested
		}
		w.exit = report.NewExit(w.id, w.pid, reason, code, w.started, time.Now())
		w.mu.Unlock()
		close(w.done)
	})
}

func (w *fakeWorker) request(reason report.ExitReason) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.requested == "" {
		w.requested = reason
	}
	return w.ignoreStop
}

func (w *fakeWorker) Stop(sig os.Signal) error {
	w.mu.Lock()
	w.signals = append(w.signals, sig)
	w.mu.Unlock()
	if !w.request(report.ReasonStopped) {
		w.finish(report.ReasonStopped, 0)
	}
	return nil
}

func (w *fakeWorker) Kill() error {
	w.request(report.ReasonTimeout)
	w.finish(report.ReasonTimeout, -1)
	return nil
}

func (w *fakeWorker) receivedSignals() []os.Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]os.Signal(nil), w.signals...)
}

type fakeSpawner struct {
	mu         sync.Mutex
	workers    []*fakeWorker
	requests   []SpawnRequest
	ignoreStop bool
	onSpawn    func(w *fakeWorker)

	// failAfter makes every spawn past the first n fail; zero never fails.
	failAfter int
}

func (s *fakeSpawner) Spawn(req SpawnRequest) (Worker, error) {
	s.mu.Lock()
	if s.failAfter > 0 && len(s.workers) >= s.failAfter {
		s.mu.Unlock()
		return nil, errors.New("fork: resource temporarily unavailable")
	}
	w := &fakeWorker{
		id:         req.WorkerID,
		pid:        1<<22 + req.WorkerID,
		started:    time.Now(),
		done:       make(chan struct{}),
		ignoreStop: s.ignoreStop,
	}
	s.workers = append(s.workers, w)
	s.requests = append(s.requests, req)
	hook := s.onSpawn
	s.mu.Unlock()

	if hook != nil {
		hook(w)
	}
	return w, nil
}

func (s *fakeSpawner) spawned() []*fakeWorker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeWorker(nil), s.workers...)
}

func (s *fakeSpawner) spawnRequests() []SpawnRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SpawnRequest(nil), s.requests...)
}
