package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParsesConfigTestAndSignalFlags(t *testing.T) {
	opts := &Options{}
	var ranWith *Options
	cmd := Build("test-version", opts, func(o *Options) int {
		ranWith = o
		return ExitSuccess
	})
	cmd.SetArgs([]string{"-c", "/tmp/x.conf", "-t", "-s", "reload"})

	require.NoError(t, cmd.Execute())
	require.NotNil(t, ranWith)
	assert.Equal(t, "/tmp/x.conf", opts.ConfigPath)
	assert.True(t, opts.TestConfig)
	assert.Equal(t, "reload", opts.Signal)
}

func TestBuildVersionFlagSkipsRun(t *testing.T) {
	opts := &Options{}
	called := false
	cmd := Build("1.2.3", opts, func(o *Options) int {
		called = true
		return ExitSuccess
	})
	cmd.SetArgs([]string{"-v"})

	require.NoError(t, cmd.Execute())
	assert.False(t, called, "run must not be invoked when -v is set")
}

func TestBuildNonZeroExitCodeBecomesError(t *testing.T) {
	opts := &Options{}
	cmd := Build("1.2.3", opts, func(o *Options) int { return ExitFailure })
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	assert.Error(t, err)
}

func TestBuildDefaultConfigPath(t *testing.T) {
	opts := &Options{}
	cmd := Build("1.2.3", opts, func(o *Options) int { return ExitSuccess })
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "/etc/nginxcore/nginxcore.conf", opts.ConfigPath)
}
