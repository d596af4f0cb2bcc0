package coremodule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitkulkarni/nginxcore/internal/coreconf"
	"github.com/ankitkulkarni/nginxcore/internal/module"
)

func TestDescriptorCommandsApply(t *testing.T) {
	d := Descriptor()
	set := CommandSet([]*module.Descriptor{d})

	cfg := coreconf.NewPreParse()
	require.NoError(t, set["user"](cfg, []string{"nobody"}))
	assert.Equal(t, "nobody", cfg.User)

	require.NoError(t, set["daemon"](cfg, []string{"off"}))
	assert.Equal(t, coreconf.Off, cfg.Daemon)

	require.NoError(t, set["pid"](cfg, []string{"/tmp/x.pid"}))
	assert.Equal(t, "/tmp/x.pid", cfg.Pid)
}

func TestDaemonRejectsInvalidTriState(t *testing.T) {
	d := Descriptor()
	set := CommandSet([]*module.Descriptor{d})
	cfg := coreconf.NewPreParse()

	err := set["daemon"](cfg, []string{"maybe"})
	assert.Error(t, err)
}

func TestSetOneRejectsWrongArity(t *testing.T) {
	d := Descriptor()
	set := CommandSet([]*module.Descriptor{d})
	cfg := coreconf.NewPreParse()

	err := set["user"](cfg, []string{"a", "b"})
	assert.Error(t, err)
}

func TestListenAndErrorLogAccumulate(t *testing.T) {
	d := Descriptor()
	set := CommandSet([]*module.Descriptor{d})
	cfg := coreconf.NewPreParse()

	require.NoError(t, set["listen"](cfg, []string{"0.0.0.0:80"}))
	require.NoError(t, set["listen"](cfg, []string{"0.0.0.0:443"}))
	require.NoError(t, set["error_log"](cfg, []string{"/var/log/nginxcore/error.log"}))

	assert.Equal(t, []string{"0.0.0.0:80", "0.0.0.0:443"}, cfg.Listen)
	assert.Equal(t, []string{"/var/log/nginxcore/error.log"}, cfg.ErrorLog)
}
