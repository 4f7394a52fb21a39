package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/psantana5/dockerapp/internal/config"
	"github.com/psantana5/dockerapp/internal/launch"
	"github.com/psantana5/dockerapp/internal/logging"
	"github.com/psantana5/dockerapp/internal/report"
	"github.com/psantana5/dockerapp/internal/supervisor"
)

var (
	cfgFile   string
	configErr error

	// execer is swapped in tests.
	execer launch.Execer = launch.SystemExecer{}
)

// rootCmd is the container entrypoint: with no subcommand it selects and
// execs the development or managed run.
var rootCmd = &cobra.Command{
	Use:   "dockerapp",
	Short: "Container entrypoint for the dockerapp web service",
	Long: `dockerapp starts the web service in the mode chosen by the environment.

With APP_ENV=development it execs "dockerapp serve" (single process, debug
logging, live reload). Any other value, including unset, execs
"dockerapp supervise" (pre-fork workers on 0.0.0.0:5000, 60s timeout).`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runLaunch,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if errors.Is(err, supervisor.ErrBootFailure) {
		return report.BootFailureExitCode
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/dockerapp/config.yaml or ./config.yaml)")
}

// initConfig wires defaults, environment and the optional config file into viper.
func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)

	configErr = nil
	if err := config.BindEnvironment(v); err != nil {
		configErr = err
		return
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath("/etc/dockerapp")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = fmt.Errorf("failed to read config: %w", err)
		}
	}
}

// loadConfig resolves the effective configuration and applies the timezone.
func loadConfig() (config.Config, error) {
	if configErr != nil {
		return config.Config{}, configErr
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, err
	}

	if cfg.Timezone != "" {
		loc, err := cfg.Location()
		if err != nil {
			return config.Config{}, err
		}
		time.Local = loc
	}
	return cfg, nil
}

// bindFlags lets the running command's flags override config keys.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func runLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logging.Init(cfg.Logging, cfg.IsDevelopment()).Named("launch")

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own executable: %w", err)
	}

	l := launch.New(execer, self, log)
	l.BeforeExec = func() { logging.Sync() }

	if err := l.Launch(cfg); err != nil {
		log.Errorw("Launch failed", "error", err)
		return err
	}
	return nil
}
