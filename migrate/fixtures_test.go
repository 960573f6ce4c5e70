package migrate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

// worldFixture is a world directory of a memory Fs, whose world.mt names a
// source backend registered by the fixture. Backends are MemoryBackends which
// share committed blocks across re-opens.
type worldFixture struct {
	fs      afero.Fs
	dir     string
	srcName string
	dstName string
	src     map[mapblock.Pos][]byte
	dst     map[mapblock.Pos][]byte

	// Counts of constructor invocations.
	srcOpens, dstOpens int
	// Optional wrappers of the opened MemoryBackends.
	wrapSrc, wrapDst func(*mapdb.MemoryBackend) mapdb.Backend
}

func newWorldFixture(t *testing.T) *worldFixture {
	var f = &worldFixture{
		fs:      afero.NewMemMapFs(),
		dir:     "/worlds/test",
		srcName: "src-" + t.Name(),
		dstName: "dst-" + t.Name(),
		src:     make(map[mapblock.Pos][]byte),
		dst:     make(map[mapblock.Pos][]byte),
	}
	require.NoError(t, afero.WriteFile(f.fs, f.dir+"/world.mt", []byte(
		"gameid = minetest\n# keep me\nbackend = "+f.srcName+"\ncreative_mode = true\n"), 0644))

	mapdb.RegisterProviders(map[string]mapdb.Constructor{
		f.srcName: func(_ mapdb.Location, mode mapdb.OpenMode) (mapdb.Backend, error) {
			require.Equal(t, mapdb.MustExist, mode)
			f.srcOpens++
			var m = &mapdb.MemoryBackend{Blocks: f.src}
			if f.wrapSrc != nil {
				return f.wrapSrc(m), nil
			}
			return m, nil
		},
		f.dstName: func(_ mapdb.Location, mode mapdb.OpenMode) (mapdb.Backend, error) {
			require.Equal(t, mapdb.CreateIfMissing, mode)
			f.dstOpens++
			var m = &mapdb.MemoryBackend{Blocks: f.dst}
			if f.wrapDst != nil {
				return f.wrapDst(m), nil
			}
			return m, nil
		},
	})
	return f
}

// addBlocks adds |n| source blocks at (0,0,0)...(0,0,n-1).
func (f *worldFixture) addBlocks(n int) []mapblock.Pos {
	var out []mapblock.Pos
	for i := 0; i != n; i++ {
		var pos = mapblock.Pos{Z: int16(i)}
		f.src[pos] = []byte(fmt.Sprintf("payload of block %d", i))
		out = append(out, pos)
	}
	return out
}

func (f *worldFixture) worldMt(t *testing.T) string {
	var b, err = afero.ReadFile(f.fs, f.dir+"/world.mt")
	require.NoError(t, err)
	return string(b)
}

// commitObserver wraps a MemoryBackend, recording its committed block count
// after each EndSave and invoking an optional hook.
type commitObserver struct {
	committed []int
	onCommit  func(n int)
}

func (o *commitObserver) wrap(m *mapdb.MemoryBackend) mapdb.Backend {
	return &mapdb.CallbackBackend{
		ProviderFunc:  m.Provider,
		ListFunc:      m.ListAllLoadableBlocks,
		LoadFunc:      m.LoadBlock,
		SaveFunc:      m.SaveBlock,
		BeginSaveFunc: m.BeginSave,
		EndSaveFunc: func(ctx context.Context) error {
			if err := m.EndSave(ctx); err != nil {
				return err
			}
			o.committed = append(o.committed, len(m.Blocks))
			if o.onCommit != nil {
				o.onCommit(len(o.committed))
			}
			return nil
		},
		CloseFunc: m.Close,
	}
}

// freezeClock fixes timeNow for the duration of the test.
func freezeClock(t *testing.T) *time.Time {
	var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var restore = timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = restore })
	return &now
}
