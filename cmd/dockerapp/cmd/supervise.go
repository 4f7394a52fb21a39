//go:build !windows

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/dockerapp/internal/app"
	"github.com/psantana5/dockerapp/internal/cgroups"
	"github.com/psantana5/dockerapp/internal/config"
	"github.com/psantana5/dockerapp/internal/logging"
	"github.com/psantana5/dockerapp/internal/shutdown"
	"github.com/psantana5/dockerapp/internal/supervisor"
	"github.com/psantana5/dockerapp/internal/tracing"
)

var superviseBind string

var superviseCmd = &cobra.Command{
	Use:   "supervise",
	Short: "Run the application under the pre-fork supervisor (production)",
	Long: `Bind the listen socket once and keep a fixed number of worker processes
serving on it. Workers that die or stop heartbeating for --timeout are
replaced.

Signals: TERM/INT graceful stop, QUIT immediate stop, HUP rolling reload,
TTIN/TTOU add or remove a worker.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd.Flags(), map[string]string{
			"timeout":          "timeout",
			"graceful_timeout": "graceful-timeout",
			"workers":          "workers",
		})
	},
	RunE: runSupervise,
}

var (
	workerID        int
	workerHeartbeat string
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Serve on an inherited socket (started by supervise)",
	Hidden: true,
	Args:   cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd.Flags(), map[string]string{
			"timeout":          "timeout",
			"graceful_timeout": "graceful-timeout",
		})
	},
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(superviseCmd)
	rootCmd.AddCommand(workerCmd)

	superviseCmd.Flags().StringVar(&superviseBind, "bind", "", "listen address host:port (default from bind and port)")
	superviseCmd.Flags().Duration("timeout", 60*time.Second, "kill workers silent for longer than this")
	superviseCmd.Flags().Duration("graceful-timeout", 30*time.Second, "time workers get to finish requests on stop")
	superviseCmd.Flags().Int("workers", 2, "number of worker processes")

	workerCmd.Flags().IntVar(&workerID, "worker-id", 0, "worker id assigned by the supervisor")
	workerCmd.Flags().StringVar(&workerHeartbeat, "heartbeat", "", "heartbeat file to touch")
	workerCmd.Flags().Duration("timeout", 60*time.Second, "request timeout")
	workerCmd.Flags().Duration("graceful-timeout", 30*time.Second, "drain time on SIGTERM")
}

// workerArgs are the flags every worker receives after its own identity.
func workerArgs(cfg config.Config) []string {
	args := []string{
		"--timeout", cfg.Timeout.String(),
		"--graceful-timeout", cfg.GracefulTimeout.String(),
	}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	return args
}

func runSupervise(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logging.Init(cfg.Logging, false).Named("supervisor")
	defer logging.Sync()

	addr := superviseBind
	if addr == "" {
		addr = cfg.Addr()
	}

	ln, file, err := supervisor.Listen(addr)
	if err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own executable: %w", err)
	}

	sm := shutdown.New(5*time.Second, log)
	sm.Register("listener", shutdown.CloseResource(ln))
	sm.Register("listener-fd", shutdown.CloseResource(file))

	sup := supervisor.New(&supervisor.ProcessSpawner{
		Path:     self,
		Args:     workerArgs(cfg),
		Env:      os.Environ(),
		Listener: file,
		Limits:   cgroups.FromConfig(cfg.Limits),
		Log:      log.Named("spawner"),
	}, supervisor.Options{
		Bind:            addr,
		Workers:         cfg.Workers,
		Timeout:         cfg.Timeout,
		GracefulTimeout: cfg.GracefulTimeout,
		ControlAddress:  cfg.Control.Address,
		Log:             log,
	})

	runErr := sup.Run(context.Background())
	if err := sm.Shutdown(); err != nil {
		log.Warnw("cleanup incomplete", "error", err)
	}
	return runErr
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("%w: %v", supervisor.ErrBootFailure, err)
	}

	log := logging.Init(cfg.Logging, false).Named("worker").With("worker", workerID)
	defer logging.Sync()

	ctx := context.Background()
	provider, err := tracing.Init(ctx, cfg.Tracing, cfg.Env)
	if err != nil {
		return fmt.Errorf("%w: %v", supervisor.ErrBootFailure, err)
	}

	handler := app.NewHandler(app.Options{
		Log:       log.Named("http"),
		Tracing:   provider,
		RateLimit: cfg.RateLimit,
		Timeout:   cfg.Timeout,
	})

	sm := shutdown.New(5*time.Second, log)
	sm.Register("tracing", provider.Shutdown)
	defer sm.Shutdown()

	return supervisor.RunWorker(ctx, supervisor.WorkerOptions{
		ID:              workerID,
		Instance:        os.Getenv(supervisor.InstanceEnv),
		HeartbeatPath:   workerHeartbeat,
		Timeout:         cfg.Timeout,
		GracefulTimeout: cfg.GracefulTimeout,
		Handler:         handler,
		Log:             log,
	})
}
