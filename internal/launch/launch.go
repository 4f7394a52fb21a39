package launch

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/psantana5/dockerapp/internal/config"
)

// Execer replaces the current process with inv. On success it never returns.
type Execer interface {
	Exec(inv Invocation) error
}

// Launcher ties selection, resolution and process replacement together.
type Launcher struct {
	execer Execer
	self   string
	log    *zap.SugaredLogger

	// BeforeExec runs right before the process image is replaced, e.g. to flush logs.
	BeforeExec func()
}

func New(execer Execer, self string, log *zap.SugaredLogger) *Launcher {
	return &Launcher{execer: execer, self: self, log: log}
}

// Launch selects a strategy for cfg and execs it. A nil return only happens
// with an Execer that does not replace the process.
func (l *Launcher) Launch(cfg config.Config) error {
	strategy := Select(cfg)

	inv, err := Resolve(strategy, cfg, l.self)
	if err != nil {
		return fmt.Errorf("failed to resolve %s run: %w", strategy.Name(), err)
	}

	l.log.Infow("Launching",
		"strategy", strategy.Name(),
		"mode_flag", cfg.Env,
		"command", inv.String())

	if l.BeforeExec != nil {
		l.BeforeExec()
	}

	if err := l.execer.Exec(inv); err != nil {
		return fmt.Errorf("failed to exec %s: %w", inv.Path, err)
	}
	return nil
}
