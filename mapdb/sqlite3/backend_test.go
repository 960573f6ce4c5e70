package sqlite3

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
	"go.mapshift.dev/core/mapdb/backendtest"
)

func TestConformance(t *testing.T) {
	backendtest.Suite{
		Constructor: New,
		NewLocation: func(t *testing.T) mapdb.Location {
			return mapdb.Location{
				Dir:      filepath.Join(t.TempDir(), "world"),
				Settings: url.Values{"sqlite_synchronous": {"0"}},
			}
		},
		Persistent: true,
	}.Run(t)
}

func TestIntegerKeysAreStored(t *testing.T) {
	var ctx = context.Background()
	var dir = t.TempDir()

	var b, err = New(mapdb.Location{Dir: dir}, mapdb.CreateIfMissing)
	require.NoError(t, err)

	var pos = mapblock.Pos{X: -1, Y: 2, Z: -3}
	require.NoError(t, b.SaveBlock(ctx, pos, []byte("payload")))

	var key int64
	require.NoError(t, b.(*backend).db.QueryRow("SELECT pos FROM blocks;").Scan(&key))
	require.Equal(t, pos.Int64(), key)
	require.NoError(t, b.Close())

	_, err = os.Stat(filepath.Join(dir, Filename))
	require.NoError(t, err)
}

func TestSettingsValidation(t *testing.T) {
	for _, v := range []string{"3", "-1", "full"} {
		var _, err = New(mapdb.Location{
			Dir:      t.TempDir(),
			Settings: url.Values{"sqlite_synchronous": {v}},
		}, mapdb.CreateIfMissing)
		require.Error(t, err, v)
	}
}

func TestNotADatabase(t *testing.T) {
	var dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Filename),
		[]byte("this is certainly not a database file, not even close, no sir"), 0644))

	var _, err = New(mapdb.Location{Dir: dir}, mapdb.MustExist)
	require.Error(t, err)
	require.IsType(t, &mapdb.OpenError{}, err)
}

func TestTransactionOutlivesContextCancellation(t *testing.T) {
	var dir = t.TempDir()
	var ctx, cancel = context.WithCancel(context.Background())

	var b, err = New(mapdb.Location{Dir: dir}, mapdb.CreateIfMissing)
	require.NoError(t, err)
	require.NoError(t, b.BeginSave(ctx))
	require.NoError(t, b.SaveBlock(ctx, mapblock.Pos{Z: 1}, []byte("one")))

	cancel()
	require.NoError(t, b.SaveBlock(context.Background(), mapblock.Pos{Z: 2}, []byte("two")))
	require.NoError(t, b.EndSave(context.Background()))
	require.NoError(t, b.Close())

	b, err = New(mapdb.Location{Dir: dir}, mapdb.MustExist)
	require.NoError(t, err)
	defer b.Close()

	positions, err := b.ListAllLoadableBlocks(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
}
