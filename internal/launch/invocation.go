package launch

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/psantana5/dockerapp/internal/config"
)

// ErrNoExecutable is returned when the target command cannot be found.
var ErrNoExecutable = errors.New("executable not found")

// Invocation is a fully resolved command line. Args[0] is the program name.
type Invocation struct {
	Path string
	Args []string
	Env  []string
}

func (i Invocation) String() string {
	return strings.Join(i.Args, " ")
}

// Resolve builds the invocation for s. self is the path of the running
// binary and is used unless the configuration overrides the command.
// Built-in invocations carry the config file that was read, so the
// replacing process sees the same configuration.
func Resolve(s Strategy, cfg config.Config, self string) (Invocation, error) {
	switch st := s.(type) {
	case DevelopmentRun:
		addr := net.JoinHostPort(st.BindAddress, strconv.Itoa(st.Port))
		if len(cfg.Launch.DevelopmentCommand) > 0 {
			return external(cfg.Launch.DevelopmentCommand, placeholders(addr, st.BindAddress, st.Port, cfg.Timeout, cfg.Workers))
		}
		return Invocation{
			Path: self,
			Args: withConfigFile([]string{self, "serve",
				"--bind", addr,
				"--reload=" + strconv.FormatBool(st.Reload),
			}, cfg.ConfigFile),
			Env: os.Environ(),
		}, nil

	case ManagedRun:
		addr := net.JoinHostPort(st.BindAddress, strconv.Itoa(st.Port))
		if len(cfg.Launch.ManagedCommand) > 0 {
			return external(cfg.Launch.ManagedCommand, placeholders(addr, st.BindAddress, st.Port, st.Timeout, st.Workers))
		}
		return Invocation{
			Path: self,
			Args: withConfigFile([]string{self, "supervise",
				"--bind", addr,
				"--timeout", seconds(st.Timeout) + "s",
				"--graceful-timeout", seconds(st.GracefulTimeout) + "s",
				"--workers", strconv.Itoa(st.Workers),
			}, cfg.ConfigFile),
			Env: os.Environ(),
		}, nil
	}
	return Invocation{}, fmt.Errorf("unknown launch strategy %T", s)
}

func withConfigFile(args []string, path string) []string {
	if path == "" {
		return args
	}
	return append(args, "--config", path)
}

func placeholders(addr, host string, port int, timeout time.Duration, workers int) *strings.Replacer {
	return strings.NewReplacer(
		"{bind}", addr,
		"{host}", host,
		"{port}", strconv.Itoa(port),
		"{timeout}", seconds(timeout),
		"{workers}", strconv.Itoa(workers),
	)
}

func external(command []string, r *strings.Replacer) (Invocation, error) {
	args := make([]string, len(command))
	for i, arg := range command {
		args[i] = r.Replace(arg)
	}

	path, err := exec.LookPath(args[0])
	if err != nil {
		return Invocation{}, fmt.Errorf("%w: %s: %v", ErrNoExecutable, args[0], err)
	}
	return Invocation{Path: path, Args: args, Env: os.Environ()}, nil
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}
