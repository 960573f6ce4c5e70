package mapdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
	"go.mapshift.dev/core/mapdb/backendtest"
)

func TestMemoryBackendConformance(t *testing.T) {
	backendtest.Suite{
		Constructor:     mapdb.NewMemory,
		NewLocation:     func(*testing.T) mapdb.Location { return mapdb.Location{} },
		CreatesOnDemand: true,
	}.Run(t)
}

func TestMemoryBackendTransactions(t *testing.T) {
	var ctx = context.Background()
	var m = mapdb.NewMemoryBackend()
	var a, b = mapblock.Pos{X: 1}, mapblock.Pos{X: 2}

	// Writes outside of a transaction commit immediately.
	require.NoError(t, m.SaveBlock(ctx, a, []byte("a")))
	require.Equal(t, []byte("a"), m.Blocks[a])

	require.EqualError(t, m.EndSave(ctx), "no open transaction")
	require.NoError(t, m.BeginSave(ctx))
	require.EqualError(t, m.BeginSave(ctx), "transaction already open")

	require.NoError(t, m.SaveBlock(ctx, b, []byte("b")))
	require.NotContains(t, m.Blocks, b)

	// Staged writes are visible to reads.
	var data, err = m.LoadBlock(ctx, b)
	require.NoError(t, err)
	require.Equal(t, []byte("b"), data)

	out, err := m.ListAllLoadableBlocks(ctx)
	require.NoError(t, err)
	require.Equal(t, []mapblock.Pos{a, b}, out)

	require.NoError(t, m.Close())
	require.Equal(t, map[mapblock.Pos][]byte{a: []byte("a")}, m.Blocks)

	_, err = m.LoadBlock(ctx, a)
	require.EqualError(t, err, "backend is closed")
}
