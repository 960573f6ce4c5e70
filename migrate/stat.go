package migrate

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.mapshift.dev/core/mapdb"
)

// Stats summarize the blocks of a world's current backend.
type Stats struct {
	// Backend is the name of the world's current backend.
	Backend string
	// Blocks is the number of stored blocks, including empty ones.
	Blocks int
	// Empty is the number of stored blocks having no payload.
	Empty int
	// Bytes is the total payload size of stored blocks.
	Bytes int64
	// Versions counts non-empty blocks by serialization version.
	Versions map[uint8]int
}

// StatMap reads every block of the world's current backend, as named by
// world.mt, and summarizes them. The backend is opened read-only.
func StatMap(ctx context.Context, fs afero.Fs, worldDir string) (Stats, error) {
	var world, name, err = openWorld(fs, worldDir)
	if err != nil {
		return Stats{}, err
	}
	var stats = Stats{Backend: name, Versions: make(map[uint8]int)}

	backend, err := mapdb.Open(name, mapdb.Location{
		Dir:      world.Dir,
		Settings: world.Settings.Values(),
	}, mapdb.MustExist)
	if err != nil {
		return stats, err
	}

	if err = statBlocks(ctx, backend, &stats); err != nil {
		return stats, appendErr(err, backend.Close())
	}
	return stats, backend.Close()
}

func statBlocks(ctx context.Context, backend mapdb.Backend, stats *Stats) error {
	var positions, err = backend.ListAllLoadableBlocks(ctx)
	if err != nil {
		return errors.WithMessage(err, "listing blocks")
	}

	for _, pos := range positions {
		if ctx.Err() != nil {
			return errors.WithMessagef(ErrCancelled, "after %d of %d blocks", stats.Blocks, len(positions))
		}
		var data, err = backend.LoadBlock(ctx, pos)
		if err != nil {
			return &LoadError{Pos: pos, Err: err}
		}

		stats.Blocks++
		stats.Bytes += int64(len(data))

		if len(data) == 0 {
			stats.Empty++
		} else {
			stats.Versions[data[0]]++
		}
	}
	return nil
}
