//go:build !windows

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/psantana5/dockerapp/internal/app"
	"github.com/psantana5/dockerapp/internal/observe"
)

// ListenerFD is where workers find the inherited listen socket.
const ListenerFD = 3

type WorkerOptions struct {
	ID              int
	Instance        string
	HeartbeatPath   string
	Timeout         time.Duration
	GracefulTimeout time.Duration
	Handler         http.Handler
	// Listener defaults to the socket inherited on ListenerFD.
	Listener net.Listener
	Signals  <-chan os.Signal
	Log      *zap.SugaredLogger
}

// ListenerFromFD adopts an inherited socket.
func ListenerFromFD(fd uintptr) (net.Listener, error) {
	f := os.NewFile(fd, "listener")
	if f == nil {
		return nil, fmt.Errorf("invalid listener fd %d", fd)
	}
	defer f.Close()
	return net.FileListener(f)
}

// RunWorker serves the handler on the inherited socket and keeps the
// heartbeat fresh until stopped. Startup problems wrap ErrBootFailure.
func RunWorker(ctx context.Context, opts WorkerOptions) error {
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	ln := opts.Listener
	if ln == nil {
		var err error
		ln, err = ListenerFromFD(ListenerFD)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBootFailure, err)
		}
	}

	hb := observe.OpenHeartbeat(opts.HeartbeatPath)
	if err := hb.Beat(); err != nil {
		ln.Close()
		return fmt.Errorf("%w: heartbeat: %v", ErrBootFailure, err)
	}

	signals := opts.Signals
	if signals == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
		defer signal.Stop(ch)
		signals = ch
	}

	srv := app.NewServer(ln.Addr().String(), opts.Handler, opts.Timeout)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	interval := opts.Timeout / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infow("worker serving",
		"worker", opts.ID,
		"pid", os.Getpid(),
		"instance", opts.Instance,
		"address", ln.Addr().String(),
	)

	for {
		select {
		case <-ticker.C:
			if err := hb.Beat(); err != nil {
				log.Warnw("heartbeat failed", "error", err)
			}

		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve: %w", err)

		case sig := <-signals:
			if sig == syscall.SIGQUIT {
				log.Infow("worker exiting immediately", "worker", opts.ID)
				return srv.Close()
			}
			log.Infow("worker draining", "worker", opts.ID, "signal", sig.String())
			return drain(srv, opts.GracefulTimeout, log)

		case <-ctx.Done():
			return drain(srv, opts.GracefulTimeout, log)
		}
	}
}

func drain(srv *http.Server, grace time.Duration, log *zap.SugaredLogger) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warnw("graceful shutdown incomplete, closing", "error", err)
		return srv.Close()
	}
	return nil
}
