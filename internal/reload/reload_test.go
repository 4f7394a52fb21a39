//go:build !windows

package reload

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countLines(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "\n")
}

func TestRestartOnChange(t *testing.T) {
	watched := t.TempDir()
	counter := filepath.Join(t.TempDir(), "starts")

	r := New(Options{
		Paths:    []string{watched},
		Debounce: 50 * time.Millisecond,
		Grace:    time.Second,
		Command: func() *exec.Cmd {
			return exec.Command("/bin/sh", "-c", `echo "$`+ChildEnv+`" >> "$0"; exec sleep 30`, counter)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return countLines(counter) == 1 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(watched, "app.yaml"), []byte("x"), 0644))
	require.Eventually(t, func() bool { return countLines(counter) == 2 }, 5*time.Second, 20*time.Millisecond)

	data, _ := os.ReadFile(counter)
	assert.Equal(t, "1\n1\n", string(data))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reloader did not stop")
	}
	assert.Equal(t, 1, r.Restarts())
}

func TestHiddenChangesIgnored(t *testing.T) {
	watched := t.TempDir()
	counter := filepath.Join(t.TempDir(), "starts")

	r := New(Options{
		Paths:    []string{watched},
		Debounce: 20 * time.Millisecond,
		Command: func() *exec.Cmd {
			return exec.Command("/bin/sh", "-c", `echo x >> "$0"; exec sleep 30`, counter)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool { return countLines(counter) == 1 }, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(watched, ".swap"), []byte("x"), 0644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, countLines(counter))
}

func TestCleanChildExitStopsReloader(t *testing.T) {
	r := New(Options{
		Paths:   []string{t.TempDir()},
		Command: func() *exec.Cmd { return exec.Command("/bin/sh", "-c", "exit 0") },
	})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reloader kept running after clean exit")
	}
}

func TestFailedChildWaitsForChange(t *testing.T) {
	watched := t.TempDir()
	counter := filepath.Join(t.TempDir(), "starts")

	r := New(Options{
		Paths:    []string{watched},
		Debounce: 20 * time.Millisecond,
		Grace:    time.Second,
		Command: func() *exec.Cmd {
			script := `echo x >> "$0"; if [ $(wc -l < "$0") -eq 1 ]; then exit 3; fi; exec sleep 30`
			return exec.Command("/bin/sh", "-c", script, counter)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return countLines(counter) == 1 }, 5*time.Second, 20*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, countLines(counter), "failed server restarted without a change")
	select {
	case <-done:
		t.Fatal("reloader stopped after a failed exit")
	default:
	}

	require.NoError(t, os.WriteFile(filepath.Join(watched, "main.go"), []byte("x"), 0644))
	require.Eventually(t, func() bool { return countLines(counter) == 2 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reloader did not stop")
	}
	assert.Equal(t, 1, r.Restarts())
}

func TestIgnored(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/srv/app/main.go", false},
		{"/srv/app/.git/index", true},
		{"/srv/app/.env", true},
		{"/srv/app/config.yaml~", true},
		{"/srv/app/.config.yaml.swp", true},
		{"dict/words.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ignored(tt.path))
		})
	}
}

func TestIsChild(t *testing.T) {
	t.Setenv(ChildEnv, "1")
	assert.True(t, IsChild())
	t.Setenv(ChildEnv, "")
	assert.False(t, IsChild())
}
