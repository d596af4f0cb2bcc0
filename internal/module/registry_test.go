package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryAssignsDenseIndex(t *testing.T) {
	core := &Descriptor{Name: "core", Type: Core}
	other := &Descriptor{Name: "extra", Type: Other}

	reg := NewRegistry(core, other)

	assert.Equal(t, 0, core.Index())
	assert.Equal(t, 1, other.Index())
	assert.Equal(t, 2, reg.MaxModule())
	assert.Equal(t, []*Descriptor{core, other}, reg.Modules())
}

func TestByNameFound(t *testing.T) {
	core := &Descriptor{Name: "core", Type: Core}
	reg := NewRegistry(core)

	got, err := reg.ByName("core")
	require.NoError(t, err)
	assert.Same(t, core, got)
}

func TestByNameNotFound(t *testing.T) {
	reg := NewRegistry(&Descriptor{Name: "core"})
	_, err := reg.ByName("missing")
	assert.Error(t, err)
}

func TestIndexOnNilDescriptor(t *testing.T) {
	var d *Descriptor
	assert.Equal(t, -1, d.Index())
}
