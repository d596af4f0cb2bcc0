package coreconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsMaterializesUnsetOnly(t *testing.T) {
	c := NewPreParse()
	c.ApplyDefaults()

	assert.Equal(t, On, c.Daemon)
	assert.Equal(t, Off, c.SingleProcess)
	assert.Equal(t, "/var/run/nginxcore.pid", c.Pid)
}

func TestApplyDefaultsLeavesExplicitValues(t *testing.T) {
	c := NewPreParse()
	c.Daemon = Off
	c.Pid = "/tmp/custom.pid"
	c.ApplyDefaults()

	assert.Equal(t, Off, c.Daemon)
	assert.Equal(t, "/tmp/custom.pid", c.Pid)
}

func TestParseTriStateArg(t *testing.T) {
	on, err := ParseTriStateArg("on")
	require.NoError(t, err)
	assert.Equal(t, On, on)

	off, err := ParseTriStateArg("off")
	require.NoError(t, err)
	assert.Equal(t, Off, off)

	_, err = ParseTriStateArg("maybe")
	assert.Error(t, err)
}

func TestTriStateBoolAndString(t *testing.T) {
	assert.True(t, On.Bool())
	assert.False(t, Off.Bool())
	assert.False(t, Unset.Bool())
	assert.Equal(t, "unset", Unset.String())
}
