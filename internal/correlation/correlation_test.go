package correlation

import (
	"testing"

	"github.com/gitpatchd/gitpatchd/internal/apifront"
	"github.com/gitpatchd/gitpatchd/internal/swarmfront"
	"github.com/stretchr/testify/require"
)

func TestInsertRemove(t *testing.T) {
	tbl := New()
	tbl.Insert(1, apifront.ClientId(5))

	require.True(t, tbl.Contains(1))

	client, ok := tbl.Remove(1)
	require.True(t, ok)
	require.Equal(t, apifront.ClientId(5), client)
	require.False(t, tbl.Contains(1))
}

func TestRemoveUnknownIsStaleReply(t *testing.T) {
	tbl := New()
	_, ok := tbl.Remove(swarmfront.RequestId(99))
	require.False(t, ok)
}

func TestRemoveTwiceOnlyFirstSucceeds(t *testing.T) {
	tbl := New()
	tbl.Insert(1, apifront.ClientId(1))

	_, ok := tbl.Remove(1)
	require.True(t, ok)

	_, ok = tbl.Remove(1)
	require.False(t, ok)
}

func TestLenTracksInFlightCount(t *testing.T) {
	tbl := New()
	require.Equal(t, 0, tbl.Len())

	tbl.Insert(1, apifront.ClientId(1))
	tbl.Insert(2, apifront.ClientId(2))
	require.Equal(t, 2, tbl.Len())

	tbl.Remove(1)
	require.Equal(t, 1, tbl.Len())
}
