package cycle

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitkulkarni/nginxcore/internal/fdenv"
)

func TestFromInheritedBuildsMatchableKeys(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	entries := []fdenv.Entry{{FD: 3, Listener: ln, Text: ln.Addr().String()}}
	old := FromInherited(entries)

	require.Len(t, old.Listening, 1)
	assert.True(t, old.Bootstrap)
	assert.NotEmpty(t, old.Listening[0].Key)
}

func TestFromInheritedKeepsIgnoredEntriesWithoutKey(t *testing.T) {
	old := FromInherited([]fdenv.Entry{{FD: 9, Ignore: true}})
	require.Len(t, old.Listening, 1)
	assert.True(t, old.Listening[0].Ignore)
	assert.Nil(t, old.Listening[0].Key)
}

func TestInheritedFDsOrdersByListening(t *testing.T) {
	c := &Cycle{Listening: []*Listening{{FD: 7}, {FD: -1}, {FD: 9}}}
	assert.Equal(t, []int{7, 9}, c.InheritedFDs())
}
