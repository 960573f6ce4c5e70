package migrate

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

func TestMigrateCopiesEveryBlock(t *testing.T) {
	freezeClock(t)
	var f = newWorldFixture(t)
	f.addBlocks(10)
	f.src[mapblock.Pos{X: -2048, Y: 2047, Z: -1}] = []byte{0xff, 0x00, 0x01}

	var progress bytes.Buffer
	var res, err = MigrateMap(context.Background(), MigrateConfig{
		Fs:       f.fs,
		WorldDir: f.dir,
		To:       f.dstName,
		Batch:    DefaultBatchOptions,
		Progress: &progress,
	})
	require.NoError(t, err)
	require.Equal(t, Result{
		State:   StateCompleted,
		Total:   11,
		Saved:   11,
		Commits: 1,
		Bytes:   res.Bytes,
	}, res)
	require.Equal(t, f.src, f.dst)
	require.Equal(t, " Migrated 11 blocks, 100% completed.\r\n", progress.String())

	// Only the backend entry is rewritten.
	require.Equal(t, "gameid = minetest\n# keep me\nbackend = "+f.dstName+
		"\ncreative_mode = true\n", f.worldMt(t))
}

func TestMigrateCommitsAtBlockThreshold(t *testing.T) {
	freezeClock(t)
	var f = newWorldFixture(t)
	f.addBlocks(10)

	var obs commitObserver
	f.wrapDst = obs.wrap

	var progress bytes.Buffer
	var res, err = MigrateMap(context.Background(), MigrateConfig{
		Fs:       f.fs,
		WorldDir: f.dir,
		To:       f.dstName,
		Batch:    BatchOptions{MaxBlocks: 4, MaxInterval: DefaultBatchOptions.MaxInterval},
		Progress: &progress,
	})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, 3, res.Commits)
	require.Equal(t, []int{4, 8, 10}, obs.committed)
	require.Equal(t, f.src, f.dst)

	require.Equal(t,
		" Migrated 4 blocks, 40% completed.\r"+
			" Migrated 8 blocks, 80% completed.\r"+
			" Migrated 10 blocks, 100% completed.\r\n", progress.String())
}

func TestMigrateSkipsEmptyBlocks(t *testing.T) {
	freezeClock(t)
	var f = newWorldFixture(t)
	var positions = f.addBlocks(10)
	f.src[positions[6]] = []byte{}

	var hook = test.NewGlobal()
	defer hook.Reset()

	var res, err = MigrateMap(context.Background(), MigrateConfig{
		Fs:       f.fs,
		WorldDir: f.dir,
		To:       f.dstName,
		Batch:    DefaultBatchOptions,
		Progress: new(bytes.Buffer),
	})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, 9, res.Saved)
	require.Equal(t, 1, res.Skipped)
	require.Len(t, f.dst, 9)
	require.NotContains(t, f.dst, positions[6])

	var warnings []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings = append(warnings, e)
		}
	}
	require.Len(t, warnings, 1)
	require.Equal(t, "failed to load block, skipping it", warnings[0].Message)
	require.Equal(t, positions[6], warnings[0].Data["pos"])
}

func TestMigrateCancellationRetainsCommittedBatches(t *testing.T) {
	freezeClock(t)
	var f = newWorldFixture(t)
	var positions = f.addBlocks(10)

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	var obs = commitObserver{onCommit: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	f.wrapDst = obs.wrap

	var progress bytes.Buffer
	var cfg = MigrateConfig{
		Fs:       f.fs,
		WorldDir: f.dir,
		To:       f.dstName,
		Batch:    BatchOptions{MaxBlocks: 3, MaxInterval: DefaultBatchOptions.MaxInterval},
		Progress: &progress,
	}
	var worldMt = f.worldMt(t)

	var res, err = MigrateMap(ctx, cfg)
	require.True(t, errors.Is(err, ErrCancelled))
	require.Equal(t, KindCancelled, Classify(err))
	require.Equal(t, StateCancelled, res.State)
	require.Equal(t, []int{3, 6}, obs.committed)

	// Exactly batches 1 and 2 are present.
	require.Len(t, f.dst, 6)
	for _, pos := range positions[:6] {
		require.Equal(t, f.src[pos], f.dst[pos])
	}
	require.Equal(t, worldMt, f.worldMt(t))
	require.Equal(t,
		" Migrated 3 blocks, 30% completed.\r"+
			" Migrated 6 blocks, 60% completed.\r\n", progress.String())

	// Re-running to completion produces the same content as an uninterrupted run.
	obs.onCommit = nil
	res, err = MigrateMap(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, f.src, f.dst)
	require.Equal(t, 2, f.dstOpens)
}

func TestMigrateSameBackendTouchesNothing(t *testing.T) {
	var f = newWorldFixture(t)
	f.addBlocks(3)
	var worldMt = f.worldMt(t)

	var res, err = MigrateMap(context.Background(), MigrateConfig{
		Fs:       f.fs,
		WorldDir: f.dir,
		To:       f.srcName,
		Batch:    DefaultBatchOptions,
	})
	require.True(t, errors.Is(err, ErrSameBackend))
	require.Equal(t, KindConfiguration, Classify(err))
	require.Equal(t, StateFailed, res.State)
	require.Zero(t, f.srcOpens)
	require.Zero(t, f.dstOpens)
	require.Equal(t, worldMt, f.worldMt(t))
}

func TestMigrateUnknownDestinationTouchesNothing(t *testing.T) {
	var f = newWorldFixture(t)

	var _, err = MigrateMap(context.Background(), MigrateConfig{
		Fs:       f.fs,
		WorldDir: f.dir,
		To:       "not-a-backend",
		Batch:    DefaultBatchOptions,
	})
	require.True(t, errors.Is(err, mapdb.ErrUnknownBackend))
	require.Equal(t, KindConfiguration, Classify(err))
	require.Zero(t, f.srcOpens)
}

func TestMigrateRequiresWorldBackend(t *testing.T) {
	var fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/w/world.mt", []byte("gameid = minetest\n"), 0644))

	var res, err = MigrateMap(context.Background(), MigrateConfig{
		Fs:       fs,
		WorldDir: "/w",
		To:       mapdb.MemoryProvider,
	})
	require.Equal(t, ErrNoBackend, err)
	require.Equal(t, KindConfiguration, Classify(err))
	require.Equal(t, StateFailed, res.State)

	_, err = MigrateMap(context.Background(), MigrateConfig{Fs: fs, WorldDir: "/missing", To: "x"})
	require.Error(t, err)
	require.Equal(t, KindIO, Classify(err))
}

func TestMigrateOpenFailures(t *testing.T) {
	var f = newWorldFixture(t)
	var initErr = errors.New("permission denied")

	// Destination fails: the source is opened, then closed.
	var srcClosed bool
	f.wrapSrc = func(m *mapdb.MemoryBackend) mapdb.Backend {
		return &mapdb.CallbackBackend{CloseFunc: func() error { srcClosed = true; return nil }}
	}
	mapdb.RegisterProviders(map[string]mapdb.Constructor{
		"broken-" + t.Name(): func(mapdb.Location, mapdb.OpenMode) (mapdb.Backend, error) {
			return nil, initErr
		},
	})

	var res, err = MigrateMap(context.Background(), MigrateConfig{
		Fs:       f.fs,
		WorldDir: f.dir,
		To:       "broken-" + t.Name(),
		Batch:    DefaultBatchOptions,
	})
	require.Equal(t, KindBackendOpen, Classify(err))
	require.True(t, errors.Is(err, initErr))
	require.Equal(t, StateFailed, res.State)
	require.True(t, srcClosed)
}

func TestMigrateMetadataWriteFailureStillCompletes(t *testing.T) {
	freezeClock(t)
	var f = newWorldFixture(t)
	f.addBlocks(5)

	var hook = test.NewGlobal()
	defer hook.Reset()

	var res, err = MigrateMap(context.Background(), MigrateConfig{
		Fs:       afero.NewReadOnlyFs(f.fs),
		WorldDir: f.dir,
		To:       f.dstName,
		Batch:    DefaultBatchOptions,
		Progress: new(bytes.Buffer),
	})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, res.State)
	require.Error(t, res.MetadataErr)
	require.Equal(t, KindMetadataWrite, Classify(res.MetadataErr))
	require.Equal(t, f.src, f.dst)
	require.Contains(t, f.worldMt(t), "backend = "+f.srcName+"\n")

	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	require.Equal(t, "failed to update world.mt", hook.LastEntry().Message)
}

func TestMigrateLoadErrorIsFatal(t *testing.T) {
	freezeClock(t)
	var f = newWorldFixture(t)
	var positions = f.addBlocks(4)
	var ioErr = errors.New("disk on fire")

	f.wrapSrc = func(m *mapdb.MemoryBackend) mapdb.Backend {
		return &mapdb.CallbackBackend{
			ListFunc: m.ListAllLoadableBlocks,
			LoadFunc: func(ctx context.Context, pos mapblock.Pos) ([]byte, error) {
				if pos == positions[2] {
					return nil, ioErr
				}
				return m.LoadBlock(ctx, pos)
			},
			CloseFunc: m.Close,
		}
	}

	var res, err = MigrateMap(context.Background(), MigrateConfig{
		Fs:       f.fs,
		WorldDir: f.dir,
		To:       f.dstName,
		Batch:    DefaultBatchOptions,
		Progress: new(bytes.Buffer),
	})
	require.EqualError(t, err, "loading block (0,0,2): disk on fire")
	require.Equal(t, KindBlockLoad, Classify(err))
	require.Equal(t, StateFailed, res.State)
	require.Empty(t, f.dst) // Uncommitted batch was discarded.
}
