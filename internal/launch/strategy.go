// Package launch picks the startup strategy for the serving process and
// replaces the current process image with it.
//
// The mode flag is read once into a config.Config at process entry. Select
// turns it into one of two strategies; Resolve turns the strategy into a
// concrete command line; an Execer replaces the process with it. There is
// no state after selection: the launcher either execs or fails.
package launch

import (
	"time"

	"github.com/psantana5/dockerapp/internal/config"
)

// Strategy is either DevelopmentRun or ManagedRun.
type Strategy interface {
	Name() string
	isStrategy()
}

// DevelopmentRun serves the application directly with debug behaviour and,
// optionally, the auto-reloader.
type DevelopmentRun struct {
	BindAddress string
	Port        int
	Reload      bool
}

// ManagedRun serves the application under the pre-fork supervisor.
type ManagedRun struct {
	BindAddress     string
	Port            int
	Timeout         time.Duration
	Workers         int
	GracefulTimeout time.Duration
}

func (DevelopmentRun) Name() string { return "development" }
func (ManagedRun) Name() string     { return "managed" }

func (DevelopmentRun) isStrategy() {}
func (ManagedRun) isStrategy()     {}

// Select is deterministic: the same configuration always yields the same strategy.
func Select(cfg config.Config) Strategy {
	if cfg.IsDevelopment() {
		return DevelopmentRun{
			BindAddress: cfg.Bind,
			Port:        cfg.Port,
			Reload:      cfg.Reload.Enabled,
		}
	}
	return ManagedRun{
		BindAddress:     cfg.Bind,
		Port:            cfg.Port,
		Timeout:         cfg.Timeout,
		Workers:         cfg.Workers,
		GracefulTimeout: cfg.GracefulTimeout,
	}
}
