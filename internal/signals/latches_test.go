package signals

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetStoresCorrectLatchAndWakes(t *testing.T) {
	l := NewLatches()
	l.set(Reconfigure)

	assert.True(t, l.Reconfigure.Load())
	assert.False(t, l.Terminate.Load())

	select {
	case <-l.Wake:
	case <-time.After(time.Second):
		t.Fatal("expected wake signal")
	}
}

func TestSetOnZeroValueLatchesDoesNotPanic(t *testing.T) {
	l := &Latches{}
	assert.NotPanics(t, func() { l.set(Terminate) })
	assert.True(t, l.Terminate.Load())
}

func TestToPOSIXKnownAndUnknown(t *testing.T) {
	sig, ok := ToPOSIX(Terminate)
	require.True(t, ok)
	assert.Equal(t, syscall.SIGTERM, sig)

	_, ok = ToPOSIX(ChildExit)
	assert.False(t, ok)
}

func TestLogicalString(t *testing.T) {
	assert.Equal(t, "reload", Reconfigure.String())
	assert.Equal(t, "unknown", Logical(999).String())
}

func TestWatchMasterDeliversSignal(t *testing.T) {
	l := NewLatches()
	stop := l.WatchMaster()
	defer stop()

	proc, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, proc.Signal(syscall.SIGHUP))

	require.Eventually(t, func() bool { return l.Reconfigure.Load() }, time.Second, 10*time.Millisecond)
}
