package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered hooks in reverse registration order (LIFO) within
// a single shared deadline.
type Manager struct {
	mu      sync.Mutex
	hooks   []hook
	timeout time.Duration
	log     *zap.SugaredLogger
	once    sync.Once
}

type hook struct {
	name string
	fn   func(context.Context) error
}

// New creates a shutdown manager whose hooks share timeout.
func New(timeout time.Duration, log *zap.SugaredLogger) *Manager {
	return &Manager{timeout: timeout, log: log}
}

// Register adds a named hook.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Shutdown executes every hook once. Later calls are no-ops.
// Errors from individual hooks are joined; all hooks run regardless.
func (m *Manager) Shutdown() error {
	var err error
	m.once.Do(func() {
		m.mu.Lock()
		hooks := make([]hook, len(m.hooks))
		copy(hooks, m.hooks)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			m.log.Debugf("Stopping %s...", h.name)
			if hookErr := h.fn(ctx); hookErr != nil {
				m.log.Warnf("Failed to stop %s: %v", h.name, hookErr)
				errs = append(errs, fmt.Errorf("%s: %w", h.name, hookErr))
			}
		}
		err = errors.Join(errs...)
		m.log.Debug("Graceful shutdown complete")
	})
	return err
}

// StopHTTPServer creates a hook for an http.Server.
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return server.Shutdown(ctx)
	}
}

// CloseResource creates a hook for an io.Closer.
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return closer.Close()
	}
}
