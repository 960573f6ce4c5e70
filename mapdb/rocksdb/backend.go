// Package rocksdb implements a mapdb.Backend of an embedded RocksDB instance
// in the world's map.rocksdb directory. Keys are order-preserving encodings
// of block positions (see mapblock.AppendKeyEncoding), such that iteration
// proceeds in X, Y, Z order.
package rocksdb

import (
	"context"
	"path/filepath"

	rocks "github.com/jgraettinger/gorocksdb"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

// Provider is the registered name of this backend.
const Provider = "rocksdb"

// Dirname of the database within the world directory.
const Dirname = "map.rocksdb"

type backend struct {
	db           *rocks.DB
	options      *rocks.Options
	readOptions  *rocks.ReadOptions
	writeOptions *rocks.WriteOptions
	batch        *rocks.WriteBatch // Current write transaction, or nil.
}

// New opens the map.rocksdb database of the Location.
func New(loc mapdb.Location, mode mapdb.OpenMode) (mapdb.Backend, error) {
	var path = filepath.Join(loc.Dir, Dirname)
	var b = &backend{
		options:      rocks.NewDefaultOptions(),
		readOptions:  rocks.NewDefaultReadOptions(),
		writeOptions: rocks.NewDefaultWriteOptions(),
	}
	b.options.SetCreateIfMissing(mode == mapdb.CreateIfMissing)
	b.writeOptions.SetSync(true)

	var err error
	if b.db, err = rocks.OpenDb(b.options, path); err != nil {
		b.destroy()
		return nil, mapdb.NewOpenError(Provider, err)
	}
	log.WithFields(log.Fields{"path": path, "mode": mode}).Debug("opened rocksdb map database")

	return b, nil
}

func (b *backend) Provider() string { return Provider }

func (b *backend) ListAllLoadableBlocks(_ context.Context) ([]mapblock.Pos, error) {
	var it = b.db.NewIterator(b.readOptions)
	defer it.Close()

	var out []mapblock.Pos
	for it.SeekToFirst(); it.Valid(); it.Next() {
		var key = it.Key()
		var pos, err = mapblock.DecodeKeyEncoding(key.Data())
		key.Free()

		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, errors.WithMessage(it.Err(), "iterating blocks")
}

func (b *backend) LoadBlock(_ context.Context, pos mapblock.Pos) ([]byte, error) {
	var slice, err = b.db.Get(b.readOptions, mapblock.AppendKeyEncoding(nil, pos))
	if err != nil {
		return nil, errors.WithMessagef(err, "loading block %s", pos)
	}
	defer slice.Free()

	if !slice.Exists() {
		return nil, nil
	}
	return append([]byte(nil), slice.Data()...), nil
}

func (b *backend) SaveBlock(_ context.Context, pos mapblock.Pos, data []byte) error {
	var key = mapblock.AppendKeyEncoding(nil, pos)

	if b.batch != nil {
		b.batch.Put(key, data)
		return nil
	}
	return errors.WithMessagef(b.db.Put(b.writeOptions, key, data), "saving block %s", pos)
}

func (b *backend) BeginSave(_ context.Context) error {
	if b.batch != nil {
		return errors.New("transaction already open")
	}
	b.batch = rocks.NewWriteBatch()
	return nil
}

func (b *backend) EndSave(_ context.Context) error {
	if b.batch == nil {
		return errors.New("no open transaction")
	}
	var err = b.db.Write(b.writeOptions, b.batch)
	b.batch.Destroy()
	b.batch = nil

	return errors.WithMessage(err, "writing batch")
}

func (b *backend) Close() error {
	if b.db != nil {
		b.db.Close() // Blocks until all background compaction has completed.
		b.db = nil
	}
	b.destroy()
	return nil
}

func (b *backend) destroy() {
	if b.batch != nil {
		if n := b.batch.Count(); n != 0 {
			log.WithField("blocks", n).Warn("discarding uncommitted rocksdb batch")
		}
		b.batch.Destroy()
		b.batch = nil
	}
	b.options.Destroy()
	b.readOptions.Destroy()
	b.writeOptions.Destroy()
}
