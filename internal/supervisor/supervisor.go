//go:build !windows

package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/psantana5/dockerapp/internal/observe"
	"github.com/psantana5/dockerapp/internal/report"
	"github.com/psantana5/dockerapp/internal/retry"
)

// quitGrace is how long SIGQUIT waits before killing.
const quitGrace = time.Second

// Worker is a running worker process as the supervisor sees it.
type Worker interface {
	WorkerID() int
	PID() int
	StartedAt() time.Time
	Done() <-chan struct{}
	// Exit is nil until Done is closed.
	Exit() *report.Exit
	Stop(sig os.Signal) error
	Kill() error
}

type SpawnRequest struct {
	WorkerID      int
	Instance      string
	HeartbeatPath string
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(req SpawnRequest) (Worker, error)
}

type Options struct {
	Bind            string
	Workers         int
	Timeout         time.Duration
	GracefulTimeout time.Duration
	// BootWindow is how long a worker must survive to not count as a
	// boot failure.
	BootWindow     time.Duration
	Backoff        retry.Config
	HeartbeatDir   string
	ControlAddress string
	// Signals replaces OS signal delivery when set.
	Signals <-chan os.Signal
	Log     *zap.SugaredLogger
}

type slot struct {
	worker    Worker
	instance  string
	heartbeat *observe.Heartbeat
	retiring  bool
	timedOut  bool
	killAt    time.Time
}

type Supervisor struct {
	opts     Options
	spawner  Spawner
	log      *zap.SugaredLogger
	registry *prometheus.Registry
	metrics  *report.Metrics
	exitLog  *report.ExitLog
	started  time.Time

	exited  chan int
	closing chan struct{}

	// Loop-owned.
	backoff <-chan time.Time
	fatal   error

	mu           sync.RWMutex
	desired      int
	nextID       int
	workers      map[int]*slot
	restarts     int
	timeouts     int
	bootFailures int
}

func New(spawner Spawner, opts Options) *Supervisor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.GracefulTimeout < 0 {
		opts.GracefulTimeout = 0
	}
	if opts.BootWindow <= 0 {
		opts.BootWindow = 2 * time.Second
	}
	if opts.Backoff.Multiplier == 0 {
		opts.Backoff = retry.BootConfig()
	}
	if opts.HeartbeatDir == "" {
		opts.HeartbeatDir = os.TempDir()
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Supervisor{
		opts:     opts,
		spawner:  spawner,
		log:      log,
		registry: registry,
		metrics:  report.NewMetrics(registry),
		exitLog:  report.NewExitLog(50),
		exited:   make(chan int),
		closing:  make(chan struct{}),
		desired:  opts.Workers,
		workers:  make(map[int]*slot),
	}
}

// Registry exposes the supervisor's metrics.
func (s *Supervisor) Registry() *prometheus.Registry {
	return s.registry
}

// Run supervises workers until ctx is cancelled, a stop signal arrives or
// workers fail to boot too many times in a row.
func (s *Supervisor) Run(ctx context.Context) error {
	signals := s.opts.Signals
	if signals == nil {
		ch := make(chan os.Signal, 8)
		signal.Notify(ch,
			syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT,
			syscall.SIGHUP, syscall.SIGTTIN, syscall.SIGTTOU,
		)
		defer signal.Stop(ch)
		signals = ch
	}
	defer close(s.closing)

	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()
	s.metrics.WorkersDesired.Set(float64(s.desired))

	if s.opts.ControlAddress != "" {
		stop := s.serveControl()
		defer stop()
	}

	s.log.Infow("supervisor started",
		"pid", os.Getpid(),
		"bind", s.opts.Bind,
		"workers", s.desired,
		"timeout", s.opts.Timeout,
	)

	s.spawnMissing()

	tick := time.NewTicker(s.watchInterval())
	defer tick.Stop()

	for {
		if s.fatal != nil {
			s.shutdown(syscall.SIGTERM, s.opts.GracefulTimeout)
			return s.fatal
		}

		select {
		case <-ctx.Done():
			return s.shutdown(syscall.SIGTERM, s.opts.GracefulTimeout)

		case sig := <-signals:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				s.log.Infow("graceful stop", "signal", sig.String())
				return s.shutdown(syscall.SIGTERM, s.opts.GracefulTimeout)
			case syscall.SIGQUIT:
				s.log.Infow("immediate stop", "signal", sig.String())
				return s.shutdown(syscall.SIGQUIT, quitGrace)
			case syscall.SIGHUP:
				s.reload()
			case syscall.SIGTTIN:
				s.scale(1)
			case syscall.SIGTTOU:
				s.scale(-1)
			}

		case id := <-s.exited:
			s.reap(id)

		case <-s.backoff:
			s.backoff = nil
			s.spawnMissing()

		case <-tick.C:
			s.watchdog()
		}
	}
}

func (s *Supervisor) watchInterval() time.Duration {
	interval := s.opts.Timeout / 4
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	return interval
}

func (s *Supervisor) activeCount() int {
	n := 0
	for _, sl := range s.workers {
		if !sl.retiring {
			n++
		}
	}
	return n
}

func (s *Supervisor) spawnMissing() {
	if s.backoff != nil || s.fatal != nil {
		return
	}
	for s.activeCount() < s.desired {
		if err := s.spawn(); err != nil {
			s.log.Errorw("spawn failed", "error", err)
			s.metrics.BootFailures.Inc()
			s.bootFailed()
			return
		}
	}
}

func (s *Supervisor) spawn() error {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	hb, err := observe.CreateHeartbeat(s.opts.HeartbeatDir, id)
	if err != nil {
		return err
	}

	instance := uuid.NewString()
	w, err := s.spawner.Spawn(SpawnRequest{
		WorkerID:      id,
		Instance:      instance,
		HeartbeatPath: hb.Path(),
	})
	if err != nil {
		hb.Remove()
		return err
	}

	s.mu.Lock()
	s.workers[id] = &slot{worker: w, instance: instance, heartbeat: hb}
	s.metrics.WorkersActive.Set(float64(len(s.workers)))
	s.mu.Unlock()
	s.metrics.Spawns.Inc()

	go func() {
		select {
		case <-w.Done():
			select {
			case s.exited <- id:
			case <-s.closing:
			}
		case <-s.closing:
		}
	}()

	s.log.Infow("worker spawned", "worker", id, "pid", w.PID(), "instance", instance)
	return nil
}

func (s *Supervisor) bootFailed() {
	s.mu.Lock()
	s.bootFailures++
	failures := s.bootFailures
	s.mu.Unlock()

	if failures > s.opts.Backoff.MaxRetries {
		s.fatal = fmt.Errorf("%w: %d consecutive failures", ErrBootFailure, failures)
		s.log.Errorw("giving up on workers", "failures", failures)
		return
	}

	delay := s.opts.Backoff.Backoff(failures)
	s.log.Warnw("backing off before respawn", "failures", failures, "delay", delay)
	s.backoff = time.After(delay)
}

func (s *Supervisor) remove(id int) {
	s.mu.Lock()
	delete(s.workers, id)
	s.metrics.WorkersActive.Set(float64(len(s.workers)))
	s.mu.Unlock()
}

// record finalises a dead worker's exit: classification, log line,
// metrics and the recent-exits ring.
func (s *Supervisor) record(id int, sl *slot) *report.Exit {
	exit := sl.worker.Exit()
	if exit == nil {
		exit = report.NewExit(id, sl.worker.PID(), report.ReasonCrashed, -1, sl.worker.StartedAt(), time.Now())
	}

	early := exit.Duration < s.opts.BootWindow
	if !sl.retiring && early && (exit.Reason == report.ReasonExited ||
		exit.Reason == report.ReasonCrashed || exit.Reason == report.ReasonSignaled) {
		exit.Reason = report.ReasonBootFailure
	}

	sl.heartbeat.Remove()
	exit.LogSummary(s.log)
	s.metrics.RecordExit(exit)
	s.exitLog.Record(exit)
	return exit
}

func (s *Supervisor) reap(id int) {
	sl, ok := s.workers[id]
	if !ok {
		return
	}
	s.remove(id)
	exit := s.record(id, sl)

	if sl.retiring || exit.Expected() {
		s.spawnMissing()
		return
	}

	s.mu.Lock()
	s.restarts++
	if exit.Reason == report.ReasonTimeout {
		s.timeouts++
	}
	if exit.Reason != report.ReasonBootFailure {
		s.bootFailures = 0
	}
	s.mu.Unlock()

	if exit.Reason == report.ReasonBootFailure {
		s.bootFailed()
		return
	}
	s.spawnMissing()
}

func (s *Supervisor) markRetiring(sl *slot) {
	s.mu.Lock()
	sl.retiring = true
	s.mu.Unlock()
}

func (s *Supervisor) retire(sl *slot, sig os.Signal) {
	s.markRetiring(sl)
	sl.killAt = time.Now().Add(s.opts.GracefulTimeout)
	if err := sl.worker.Stop(sig); err != nil {
		s.log.Debugw("stop signal failed", "worker", sl.worker.WorkerID(), "error", err)
	}
}

func (s *Supervisor) scale(delta int) {
	s.mu.Lock()
	n := s.desired + delta
	if n < 1 {
		s.mu.Unlock()
		s.log.Warnw("refusing to scale below one worker")
		return
	}
	s.desired = n
	s.mu.Unlock()

	s.metrics.WorkersDesired.Set(float64(n))
	s.log.Infow("scaling workers", "desired", n)

	if delta > 0 {
		s.spawnMissing()
		return
	}

	for s.activeCount() > s.desired {
		oldest := s.oldest()
		if oldest == nil {
			return
		}
		s.retire(oldest, syscall.SIGTERM)
	}
}

func (s *Supervisor) oldest() *slot {
	var found *slot
	for _, sl := range s.workers {
		if sl.retiring {
			continue
		}
		if found == nil || sl.worker.StartedAt().Before(found.worker.StartedAt()) {
			found = sl
		}
	}
	return found
}

// reload starts a fresh set of workers, then gracefully retires the old set.
func (s *Supervisor) reload() {
	if s.backoff != nil {
		s.log.Warnw("reload skipped while backing off")
		return
	}

	var old []*slot
	for _, sl := range s.workers {
		if !sl.retiring {
			old = append(old, sl)
		}
	}
	sort.Slice(old, func(i, j int) bool {
		return old[i].worker.WorkerID() < old[j].worker.WorkerID()
	})
	s.log.Infow("reloading workers", "replacing", len(old))

	for _, sl := range old {
		s.markRetiring(sl)
	}
	s.spawnMissing()

	// Old workers are only retired one for one against replacements that
	// actually started; the rest keep serving.
	started := s.activeCount()
	for i, sl := range old {
		if i < started {
			s.retire(sl, syscall.SIGTERM)
			continue
		}
		s.mu.Lock()
		sl.retiring = false
		s.mu.Unlock()
	}
	if kept := len(old) - started; kept > 0 {
		s.log.Warnw("reload incomplete, keeping old workers", "kept", kept)
	}
}

func (s *Supervisor) watchdog() {
	now := time.Now()
	for id, sl := range s.workers {
		if sl.retiring {
			if now.After(sl.killAt) {
				s.log.Warnw("worker ignored stop, killing", "worker", id, "pid", sl.worker.PID())
				sl.worker.Kill()
			}
			continue
		}
		if sl.timedOut {
			continue
		}

		last, err := sl.heartbeat.LastBeat()
		if err != nil {
			continue
		}
		if silent := now.Sub(last); silent > s.opts.Timeout {
			s.log.Errorw("worker timeout, killing",
				"worker", id,
				"pid", sl.worker.PID(),
				"silent", silent.Round(time.Millisecond),
			)
			sl.timedOut = true
			sl.worker.Kill()
		}
	}
}

func (s *Supervisor) shutdown(sig syscall.Signal, grace time.Duration) error {
	ids := make([]int, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	s.log.Infow("stopping workers", "count", len(ids), "signal", sig.String(), "grace", grace)
	for _, id := range ids {
		s.retire(s.workers[id], sig)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	expired := false
	for _, id := range ids {
		sl := s.workers[id]
		if !expired {
			select {
			case <-sl.worker.Done():
				continue
			case <-timer.C:
				expired = true
				s.log.Warnw("graceful timeout exceeded, killing workers")
				for _, other := range ids {
					s.workers[other].worker.Kill()
				}
			}
		}
		<-sl.worker.Done()
	}

	for _, id := range ids {
		sl := s.workers[id]
		s.remove(id)
		s.record(id, sl)
	}
	s.log.Infow("supervisor stopped")
	return nil
}
