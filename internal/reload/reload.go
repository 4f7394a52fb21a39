// Package reload restarts the development server when watched files change.
// The parent process only watches; the server runs in a child process that
// is marked with ChildEnv.
package reload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChildEnv marks the serving child so it does not start another reloader.
const ChildEnv = "DOCKERAPP_RELOADER_CHILD"

// IsChild reports whether this process is a reloader child.
func IsChild() bool {
	return os.Getenv(ChildEnv) == "1"
}

type Options struct {
	Paths    []string
	Debounce time.Duration
	// Grace is how long a child gets between SIGTERM and SIGKILL.
	Grace time.Duration
	// Command builds a fresh child command for every (re)start.
	Command func() *exec.Cmd
	Log     *zap.SugaredLogger
}

type Reloader struct {
	opts Options
	log  *zap.SugaredLogger

	// restarts counts child starts after the first.
	restarts int
}

func New(opts Options) *Reloader {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Grace <= 0 {
		opts.Grace = 5 * time.Second
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reloader{opts: opts, log: log}
}

type child struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (r *Reloader) start() (*child, error) {
	cmd := r.opts.Command()
	cmd.Env = append(envOrDefault(cmd.Env), ChildEnv+"=1")
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	c := &child{cmd: cmd, done: make(chan struct{})}
	go func() {
		c.err = cmd.Wait()
		close(c.done)
	}()
	r.log.Debugw("server started", "pid", cmd.Process.Pid)
	return c, nil
}

func envOrDefault(env []string) []string {
	if env == nil {
		return os.Environ()
	}
	return env
}

func (r *Reloader) stop(c *child) {
	if c == nil {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}

	c.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-c.done:
	case <-time.After(r.opts.Grace):
		r.log.Warnw("server ignored SIGTERM, killing", "pid", c.cmd.Process.Pid)
		c.cmd.Process.Kill()
		<-c.done
	}
}

// Run watches, starts the child and restarts it on change until ctx is
// cancelled or the child exits cleanly on its own.
func (r *Reloader) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, p := range r.opts.Paths {
		if err := addRecursive(watcher, p); err != nil {
			r.log.Debugw("not watching path", "path", p, "error", err)
		}
	}
	r.log.Infow("watching for changes", "paths", watcher.WatchList())

	current, err := r.start()
	if err != nil {
		return err
	}

	var fire <-chan time.Time
	for {
		var childDone <-chan struct{}
		if current != nil {
			childDone = current.done
		}

		select {
		case <-ctx.Done():
			r.stop(current)
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				r.stop(current)
				return nil
			}
			if ignored(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					addRecursive(watcher, ev.Name)
				}
			}
			r.log.Debugw("file event", "path", ev.Name, "op", ev.Op.String())
			fire = time.After(r.opts.Debounce)

		case err, ok := <-watcher.Errors:
			if ok {
				r.log.Warnw("watcher error", "error", err)
			}

		case <-fire:
			fire = nil
			r.log.Infow("change detected, restarting server")
			r.stop(current)
			r.restarts++
			current, err = r.start()
			if err != nil {
				r.log.Errorw("restart failed, waiting for next change", "error", err)
				current = nil
			}

		case <-childDone:
			code := exitCode(current.err)
			current = nil
			if code == 0 {
				r.log.Infow("server exited")
				return nil
			}
			r.log.Errorw("server exited, waiting for a change to restart", "exit", code)
		}
	}
}

// Restarts returns how many times the child was restarted.
func (r *Reloader) Restarts() int {
	return r.restarts
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.Add(root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// ignored filters editor droppings and anything inside a hidden directory.
func ignored(path string) bool {
	base := filepath.Base(path)
	if hidden(base) || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if hidden(part) {
			return true
		}
	}
	return false
}
