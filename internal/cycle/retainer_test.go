package cycle

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetainerEnqueueAndSweepDestroysDrainedCycle(t *testing.T) {
	r := NewRetainer(nil)
	defer r.Close()

	c := New(nil, 1)
	c.AddWorker()
	r.Enqueue(c)
	require.Equal(t, 1, r.Len())

	r.Sweep()
	assert.Equal(t, 1, r.Len(), "cycle with live workers survives a sweep")
	assert.False(t, c.Arena.destroyed)

	c.RemoveWorker()
	r.Sweep()
	assert.Equal(t, 0, r.Len())
	assert.True(t, c.Arena.destroyed)
}

func TestRetainerCloseStopsPeriodicSweeper(t *testing.T) {
	r := NewRetainer(nil)
	c := New(nil, 1)
	c.AddWorker()
	r.Enqueue(c)

	r.Close()
	// closing twice must not panic even though armed is now false.
	r.Close()
}

func TestRetainerSweepLogsAfterFourStalePasses(t *testing.T) {
	var buf bytes.Buffer
	r := NewRetainer(slog.New(slog.NewTextHandler(&buf, nil)))
	defer r.Close()

	c := New(nil, 1)
	c.AddWorker()
	r.Enqueue(c)

	for i := 0; i < 4; i++ {
		r.Sweep()
	}
	assert.Equal(t, 1, r.Len())
	assert.Contains(t, buf.String(), "still has live workers")
}
