package migrate

import (
	"context"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.mapshift.dev/core/mapdb"
	"go.mapshift.dev/core/worldmt"
)

// MigrateConfig configures a MigrateMap run.
type MigrateConfig struct {
	// Fs through which world.mt is read and updated.
	Fs afero.Fs
	// WorldDir is the world directory.
	WorldDir string
	// To is the registered name of the destination backend.
	To string
	// Batch options of destination transactions.
	Batch BatchOptions
	// Progress receives status lines. If nil, os.Stderr is used.
	Progress io.Writer
}

// MigrateMap copies every block of the world's current backend, as named by
// world.mt, into the empty or partially-migrated |To| backend. Empty source
// blocks are logged and skipped. Only once all blocks are committed and both
// backends are closed is the world.mt backend entry updated to |To|. A
// failure to update world.mt is reported through Result.MetadataErr, and
// doesn't fail the run.
func MigrateMap(ctx context.Context, cfg MigrateConfig) (Result, error) {
	var res = Result{State: StateInit}

	var world, from, err = openWorld(cfg.Fs, cfg.WorldDir)
	if err != nil {
		res.State = StateFailed
		return res, err
	} else if from == cfg.To {
		res.State = StateFailed
		return res, errors.WithMessagef(ErrSameBackend, "%q", from)
	}
	for _, name := range []string{from, cfg.To} {
		if !mapdb.IsRegistered(name) {
			res.State = StateFailed
			return res, errors.WithMessagef(mapdb.ErrUnknownBackend, "%q", name)
		}
	}

	var loc = mapdb.Location{Dir: world.Dir, Settings: world.Settings.Values()}

	src, err := mapdb.Open(from, loc, mapdb.MustExist)
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	dst, err := mapdb.Open(cfg.To, loc, mapdb.CreateIfMissing)
	if err != nil {
		res.State = StateFailed
		return res, appendErr(err, src.Close())
	}

	log.WithFields(log.Fields{
		"world": world.Dir,
		"from":  from,
		"to":    cfg.To,
	}).Info("migrating map database")

	var pipeline = Pipeline{
		Op:        OpMigrate,
		Verb:      "Migrated",
		Source:    src,
		Dest:      dst,
		Transform: Identity,
		SkipEmpty: true,
		Batch:     cfg.Batch,
		Progress:  cfg.Progress,
	}
	res, err = pipeline.Run(ctx)

	// Backends are released on every path, and before world.mt is touched.
	if closeErr := closeBackends(src, dst); closeErr != nil {
		if err == nil {
			res.State = StateFailed
		}
		err = appendErr(err, closeErr)
	}
	if err != nil {
		return res, err
	}

	log.WithFields(log.Fields{
		"blocks":  humanize.Comma(int64(res.Saved)),
		"skipped": res.Skipped,
		"bytes":   humanize.Bytes(uint64(res.Bytes)),
		"commits": res.Commits,
	}).Infof("successfully migrated %d blocks", res.Saved)

	world.Settings.Set(worldmt.BackendKey, cfg.To)
	if err = world.Save(); err != nil {
		res.MetadataErr = &MetadataError{Err: err}
		log.WithField("err", err).Warn("failed to update world.mt")
	} else {
		log.WithField("backend", cfg.To).Info("world.mt updated")
	}
	return res, nil
}

// openWorld reads the world.mt of |dir| and returns its current backend.
func openWorld(fs afero.Fs, dir string) (*worldmt.World, string, error) {
	var world, err = worldmt.Open(fs, dir)
	if err != nil {
		return nil, "", errors.WithMessage(err, "cannot read world.mt")
	}
	var name, ok = world.Backend()
	if !ok {
		return nil, "", ErrNoBackend
	}
	return world, name, nil
}

func closeBackends(backends ...mapdb.Backend) error {
	var err *multierror.Error
	var seen = make(map[mapdb.Backend]struct{})

	for _, b := range backends {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}

		if closeErr := b.Close(); closeErr != nil {
			err = multierror.Append(err, errors.WithMessagef(closeErr, "closing %s backend", b.Provider()))
		}
	}
	if err != nil && len(err.Errors) == 1 {
		return err.Errors[0]
	}
	return err.ErrorOrNil()
}

// appendErr folds |other| into |err|, either of which may be nil.
func appendErr(err, other error) error {
	if other == nil {
		return err
	} else if err == nil {
		return other
	}
	return multierror.Append(err, other)
}
