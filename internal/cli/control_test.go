package cli

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitkulkarni/nginxcore/internal/procfile"
)

func TestSendControlSignalRejectsUnknownName(t *testing.T) {
	err := SendControlSignal("/tmp/does-not-matter.pid", "bogus")
	assert.Error(t, err)
}

func TestSendControlSignalMissingPidFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "missing.pid")
	err := SendControlSignal(pidPath, "reload")
	assert.Error(t, err)
}

func TestSendControlSignalDeliversToSelf(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "nginxcore.pid")
	require.NoError(t, procfile.Write(pidPath))
	defer procfile.Remove(pidPath)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)

	require.NoError(t, SendControlSignal(pidPath, "reload"))

	select {
	case s := <-ch:
		assert.Equal(t, syscall.SIGHUP, s)
	case <-time.After(2 * time.Second):
		t.Fatal("SIGHUP was not delivered")
	}
}

func TestSendControlSignalChangeBinaryDeliversSigusr2(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "nginxcore.pid")
	require.NoError(t, procfile.Write(pidPath))
	defer procfile.Remove(pidPath)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR2)
	defer signal.Stop(ch)

	require.NoError(t, SendControlSignal(pidPath, "change-binary"))

	select {
	case s := <-ch:
		assert.Equal(t, syscall.SIGUSR2, s)
	case <-time.After(2 * time.Second):
		t.Fatal("SIGUSR2 was not delivered")
	}
}
