package launch

import (
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/psantana5/dockerapp/internal/config"
)

const self = "/usr/local/bin/dockerapp"

type recordingExecer struct {
	calls []Invocation
	err   error
}

func (r *recordingExecer) Exec(inv Invocation) error {
	r.calls = append(r.calls, inv)
	return r.err
}

func withEnv(env string) config.Config {
	cfg := config.Default()
	cfg.Env = env
	return cfg
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want string
	}{
		{"development", "development", "development"},
		{"unset", "", "managed"},
		{"production", "production", "managed"},
		{"staging", "staging", "managed"},
		{"capitalised", "Development", "managed"},
		{"padded", " development", "managed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Select(withEnv(tt.env)).Name())
		})
	}
}

func TestSelectManagedDefaults(t *testing.T) {
	s := Select(withEnv(""))

	managed, ok := s.(ManagedRun)
	require.True(t, ok, "expected ManagedRun, got %T", s)
	assert.Equal(t, "0.0.0.0", managed.BindAddress)
	assert.Equal(t, 5000, managed.Port)
	assert.Equal(t, 60*time.Second, managed.Timeout)
}

func TestSelectIsIdempotent(t *testing.T) {
	for _, env := range []string{"development", "production", ""} {
		cfg := withEnv(env)
		first := Select(cfg)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Select(cfg))
		}
	}
}

func TestLaunchDevelopmentExecsDirectRun(t *testing.T) {
	execer := &recordingExecer{}
	l := New(execer, self, zap.NewNop().Sugar())

	require.NoError(t, l.Launch(withEnv("development")))
	require.Len(t, execer.calls, 1)

	inv := execer.calls[0]
	assert.Equal(t, self, inv.Path)
	assert.Equal(t, []string{self, "serve", "--bind", "0.0.0.0:5000", "--reload=true"}, inv.Args)
	assert.NotContains(t, inv.Args, "supervise")
}

func TestLaunchManagedScenarios(t *testing.T) {
	for _, env := range []string{"", "production"} {
		t.Run("env="+env, func(t *testing.T) {
			execer := &recordingExecer{}
			l := New(execer, self, zap.NewNop().Sugar())

			require.NoError(t, l.Launch(withEnv(env)))
			require.Len(t, execer.calls, 1)

			inv := execer.calls[0]
			assert.Equal(t, self, inv.Path)
			assert.Equal(t, []string{self, "supervise",
				"--bind", "0.0.0.0:5000",
				"--timeout", "60s",
				"--graceful-timeout", "30s",
				"--workers", "2",
			}, inv.Args)
			assert.NotContains(t, inv.Args, "serve")
		})
	}
}

func TestResolveForwardsConfigFile(t *testing.T) {
	tests := []struct {
		env     string
		command string
	}{
		{"development", "serve"},
		{"production", "supervise"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			cfg := withEnv(tt.env)
			cfg.ConfigFile = "/srv/dockerapp.yaml"

			inv, err := Resolve(Select(cfg), cfg, self)
			require.NoError(t, err)
			assert.Equal(t, tt.command, inv.Args[1])
			assert.Equal(t, []string{"--config", "/srv/dockerapp.yaml"}, inv.Args[len(inv.Args)-2:])
		})
	}
}

func TestLaunchRunsBeforeExec(t *testing.T) {
	execer := &recordingExecer{}
	l := New(execer, self, zap.NewNop().Sugar())

	flushed := false
	l.BeforeExec = func() {
		flushed = true
		assert.Empty(t, execer.calls, "BeforeExec must run before the exec")
	}

	require.NoError(t, l.Launch(withEnv("")))
	assert.True(t, flushed)
}

func TestLaunchPropagatesExecFailure(t *testing.T) {
	boom := errors.New("exec format error")
	l := New(&recordingExecer{err: boom}, self, zap.NewNop().Sugar())

	err := l.Launch(withEnv("production"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestResolveExternalCommand(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	cfg := withEnv("production")
	cfg.Launch.ManagedCommand = []string{"sh", "-c", "exec gunicorn --bind {bind} --timeout {timeout} -w {workers} main:app"}

	inv, err := Resolve(Select(cfg), cfg, self)
	require.NoError(t, err)
	assert.Equal(t, sh, inv.Path)
	assert.Equal(t, "exec gunicorn --bind 0.0.0.0:5000 --timeout 60 -w 2 main:app", inv.Args[2])

	cfg = withEnv("development")
	cfg.Launch.DevelopmentCommand = []string{"sh", "-c", "python main.py --port {port} --host {host}"}

	inv, err = Resolve(Select(cfg), cfg, self)
	require.NoError(t, err)
	assert.Equal(t, "python main.py --port 5000 --host 0.0.0.0", inv.Args[2])
}

func TestResolveMissingExecutable(t *testing.T) {
	cfg := withEnv("production")
	cfg.Launch.ManagedCommand = []string{"definitely-not-a-real-binary-4b1d"}

	_, err := Resolve(Select(cfg), cfg, self)
	assert.ErrorIs(t, err, ErrNoExecutable)

	execer := &recordingExecer{}
	err = New(execer, self, zap.NewNop().Sugar()).Launch(cfg)
	assert.ErrorIs(t, err, ErrNoExecutable)
	assert.Empty(t, execer.calls)
}
