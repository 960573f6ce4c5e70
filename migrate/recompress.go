package migrate

import (
	"context"
	"io"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

// RecompressConfig configures a RecompressMap run.
type RecompressConfig struct {
	// Fs through which world.mt is read.
	Fs afero.Fs
	// WorldDir is the world directory.
	WorldDir string
	// Codec used to decode and re-encode blocks.
	Codec mapblock.Codec
	// Batch options of backend transactions.
	Batch BatchOptions
	// Progress receives status lines. If nil, os.Stderr is used.
	Progress io.Writer
}

// RecompressMap rewrites every block of the world's current backend in place,
// at mapblock.SerializationVersionHighestWrite. Any block which is empty or
// fails to decode aborts the run. world.mt is never modified.
func RecompressMap(ctx context.Context, cfg RecompressConfig) (Result, error) {
	var res = Result{State: StateInit}

	var world, name, err = openWorld(cfg.Fs, cfg.WorldDir)
	if err != nil {
		res.State = StateFailed
		return res, err
	}

	backend, err := mapdb.Open(name, mapdb.Location{
		Dir:      world.Dir,
		Settings: world.Settings.Values(),
	}, mapdb.MustExist)
	if err != nil {
		res.State = StateFailed
		return res, err
	}

	log.WithFields(log.Fields{
		"world":   world.Dir,
		"backend": name,
		"version": mapblock.SerializationVersionHighestWrite,
	}).Info("recompressing map database")

	var pipeline = Pipeline{
		Op:        OpRecompress,
		Verb:      "Recompressed",
		Source:    backend,
		Dest:      backend,
		Transform: RecompressTransform(cfg.Codec),
		SkipEmpty: false,
		Batch:     cfg.Batch,
		Progress:  cfg.Progress,
	}
	res, err = pipeline.Run(ctx)

	if closeErr := closeBackends(backend); closeErr != nil {
		if err == nil {
			res.State = StateFailed
		}
		err = appendErr(err, closeErr)
	}
	if err != nil {
		return res, err
	}

	log.WithFields(log.Fields{
		"bytes":   humanize.Bytes(uint64(res.Bytes)),
		"commits": res.Commits,
	}).Infof("done, %s blocks were recompressed", humanize.Comma(int64(res.Saved)))

	return res, nil
}

// RecompressTransform decodes payloads of any readable serialization
// version, and re-encodes them at the highest writable version.
func RecompressTransform(codec mapblock.Codec) Transform {
	return func(_ mapblock.Pos, payload []byte) ([]byte, error) {
		var block, err = codec.Decode(payload)
		if err != nil {
			return nil, err
		}
		return codec.Encode(block)
	}
}
