//go:build !windows

package supervisor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/psantana5/dockerapp/internal/report"
)

// Status snapshots the supervisor and its workers.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	st := Status{
		PID:          os.Getpid(),
		Bind:         s.opts.Bind,
		Desired:      s.desired,
		Restarts:     s.restarts,
		Timeouts:     s.timeouts,
		BootFailures: s.bootFailures,
		Workers:      make([]WorkerStatus, 0, len(s.workers)),
	}
	if !s.started.IsZero() {
		st.Uptime = time.Since(s.started).Seconds()
	}
	for id, sl := range s.workers {
		ws := WorkerStatus{
			ID:       id,
			Instance: sl.instance,
			PID:      sl.worker.PID(),
			Age:      time.Since(sl.worker.StartedAt()).Seconds(),
			Retiring: sl.retiring,
		}
		if last, err := sl.heartbeat.LastBeat(); err == nil {
			ws.LastHeartbeat = last
		}
		if !sl.retiring {
			st.Active++
		}
		st.Workers = append(st.Workers, ws)
	}
	s.mu.RUnlock()

	sort.Slice(st.Workers, func(i, j int) bool { return st.Workers[i].ID < st.Workers[j].ID })
	for i := range st.Workers {
		fillUsage(&st.Workers[i])
	}
	st.RecentExits = s.exitLog.Recent(10)
	return st
}

// fillUsage adds RSS and CPU from the OS. Missing processes are left at zero.
func fillUsage(ws *WorkerStatus) {
	if ws.PID <= 0 {
		return
	}
	p, err := process.NewProcess(int32(ws.PID))
	if err != nil {
		return
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		ws.RSS = mem.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		ws.CPUPercent = cpu
	}
}

// Handler is the control endpoint router.
func (s *Supervisor) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", report.MetricsHandler(s.registry)).Methods(http.MethodGet)
	return r
}

func (s *Supervisor) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Status())
}

func (s *Supervisor) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	active := 0
	for _, sl := range s.workers {
		if !sl.retiring {
			active++
		}
	}
	s.mu.RUnlock()

	if active == 0 {
		http.Error(w, "no active workers", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}

// serveControl starts the control endpoint and returns its stop function.
// A control endpoint that cannot bind is logged and skipped.
func (s *Supervisor) serveControl() func() {
	ln, err := net.Listen("tcp", s.opts.ControlAddress)
	if err != nil {
		s.log.Warnw("control endpoint disabled", "address", s.opts.ControlAddress, "error", err)
		return func() {}
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorw("control endpoint failed", "error", err)
		}
	}()
	s.log.Infow("control endpoint listening", "address", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
