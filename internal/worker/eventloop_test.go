package worker

import (
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestAcceptLoopDeliversConnectionToHandler(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var mu sync.Mutex
	var handled bool
	done := make(chan struct{})

	loop := NewAcceptLoop([]net.Listener{ln}, func(c net.Conn, tr *Tree) {
		mu.Lock()
		handled = true
		mu.Unlock()
		c.Close()
		close(done)
	})

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, loop.ProcessEvents(discardLogger()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, handled)
}

func TestProcessEventsTicksAtNearestTimerDeadline(t *testing.T) {
	loop := NewAcceptLoop(nil, nil)
	tm := loop.Timers().Add(1 * time.Millisecond)
	_ = tm

	require.NoError(t, loop.ProcessEvents(discardLogger()))
	assert.True(t, loop.Timers().Empty())
}

func TestStopEndsAcceptGoroutine(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	loop := NewAcceptLoop([]net.Listener{ln}, func(net.Conn, *Tree) {})
	loop.Stop()
	ln.Close()
}

func TestTimersExposesSharedTree(t *testing.T) {
	loop := NewAcceptLoop(nil, nil)
	assert.True(t, loop.Timers().Empty())
	loop.Timers().Add(time.Minute)
	assert.False(t, loop.Timers().Empty())
}
