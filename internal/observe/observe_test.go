package observe

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiming(t *testing.T) {
	timing := NewTiming()
	time.Sleep(10 * time.Millisecond)
	timing.Complete()

	d := timing.Duration()
	assert.GreaterOrEqual(t, d, 10*time.Millisecond)

	first := timing.CompletedAt
	timing.Complete()
	assert.Equal(t, first, timing.CompletedAt)
	assert.Equal(t, d, timing.Duration())
}

func TestHeartbeat(t *testing.T) {
	hb, err := CreateHeartbeat(t.TempDir(), 3)
	require.NoError(t, err)
	assert.Contains(t, hb.Path(), "dockerapp-worker-3-")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(hb.Path(), past, past))

	stale, err := hb.LastBeat()
	require.NoError(t, err)
	assert.WithinDuration(t, past, stale, time.Second)

	require.NoError(t, OpenHeartbeat(hb.Path()).Beat())

	fresh, err := hb.LastBeat()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), fresh, 5*time.Second)

	require.NoError(t, hb.Remove())
	require.NoError(t, hb.Remove())
	_, err = hb.LastBeat()
	assert.Error(t, err)
}
