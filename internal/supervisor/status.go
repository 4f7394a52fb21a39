// Package supervisor is the managed-run process manager: it binds the
// listen socket once, keeps a fixed number of worker processes serving on
// it, restarts them when they die or stop heartbeating, and exposes a
// small control endpoint.
package supervisor

import (
	"errors"
	"time"

	"github.com/psantana5/dockerapp/internal/report"
)

// ErrBootFailure means workers keep dying before they can serve.
var ErrBootFailure = errors.New("worker failed to boot")

// InstanceEnv carries a worker's unique instance id.
const InstanceEnv = "DOCKERAPP_WORKER_INSTANCE"

// Status is the control endpoint's view of the supervisor.
type Status struct {
	PID          int                 `json:"pid"`
	Bind         string              `json:"bind"`
	Uptime       float64             `json:"uptime_seconds"`
	Desired      int                 `json:"desired"`
	Active       int                 `json:"active"`
	Restarts     int                 `json:"restarts"`
	Timeouts     int                 `json:"timeouts"`
	BootFailures int                 `json:"consecutive_boot_failures"`
	Workers      []WorkerStatus      `json:"workers"`
	RecentExits  []report.ExitSample `json:"recent_exits"`
}

type WorkerStatus struct {
	ID            int       `json:"id"`
	Instance      string    `json:"instance"`
	PID           int       `json:"pid"`
	Age           float64   `json:"age_seconds"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	RSS           uint64    `json:"rss_bytes"`
	CPUPercent    float64   `json:"cpu_percent"`
	Retiring      bool      `json:"retiring"`
}
