package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/psantana5/dockerapp/internal/app"
	"github.com/psantana5/dockerapp/internal/config"
	"github.com/psantana5/dockerapp/internal/logging"
	"github.com/psantana5/dockerapp/internal/reload"
	"github.com/psantana5/dockerapp/internal/shutdown"
	"github.com/psantana5/dockerapp/internal/tracing"
)

var (
	serveBind   string
	serveReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the application directly (development)",
	Long: `Serve the application in a single process with debug logging.

With --reload the process becomes a watcher that restarts the server
whenever a watched file changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveBind, "bind", "", "listen address host:port (default from bind and port)")
	serveCmd.Flags().BoolVar(&serveReload, "reload", true, "restart on file changes")
}

// loadDotenv reads the configured dotenv file. Variables already set win.
func loadDotenv() error {
	path := viper.GetString("env_file")
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadDotenv(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logging.Init(cfg.Logging, true)

	addr := serveBind
	if addr == "" {
		addr = cfg.Addr()
	}
	reloadEnabled := cfg.Reload.Enabled
	if cmd.Flags().Changed("reload") {
		reloadEnabled = serveReload
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if reloadEnabled && !reload.IsChild() {
		return runReloader(ctx, cfg, log.Named("reload"))
	}
	return serveApp(ctx, cfg, addr, log)
}

func watchPaths(cfg config.Config) []string {
	paths := append([]string{}, cfg.Reload.Watch...)
	if cfg.DataDir != "" {
		paths = append(paths, cfg.DataDir)
	}
	if cfg.ConfigFile != "" {
		paths = append(paths, cfg.ConfigFile)
	}
	return paths
}

func runReloader(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own executable: %w", err)
	}
	childArgs := os.Args[1:]

	r := reload.New(reload.Options{
		Paths:    watchPaths(cfg),
		Debounce: cfg.Reload.Debounce,
		Grace:    cfg.GracefulTimeout,
		Command: func() *exec.Cmd {
			return exec.Command(self, childArgs...)
		},
		Log: log,
	})
	return r.Run(ctx)
}

func serveApp(ctx context.Context, cfg config.Config, addr string, log *zap.SugaredLogger) error {
	provider, err := tracing.Init(ctx, cfg.Tracing, cfg.Env)
	if err != nil {
		return err
	}

	handler := app.NewHandler(app.Options{
		Log:       log.Named("http"),
		Tracing:   provider,
		RateLimit: cfg.RateLimit,
		Debug:     true,
	})
	srv := app.NewServer(addr, handler, cfg.Timeout)

	sm := shutdown.New(cfg.GracefulTimeout, log)
	sm.Register("tracing", provider.Shutdown)
	sm.Register("http", shutdown.StopHTTPServer(srv))

	errCh := make(chan error, 1)
	go func() {
		log.Infow("Serving", "address", addr, "env", cfg.Env, "pid", os.Getpid())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
		return sm.Shutdown()
	case err := <-errCh:
		sm.Shutdown()
		return fmt.Errorf("server failed: %w", err)
	}
}
