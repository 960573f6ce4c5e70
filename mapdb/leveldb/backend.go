// Package leveldb implements a mapdb.Backend of a world's map.db LevelDB
// directory. Keys are the decimal string of a block's integer position.
package leveldb

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

// Provider is the registered name of this backend.
const Provider = "leveldb"

// Dirname of the database within the world directory.
const Dirname = "map.db"

type backend struct {
	db    *leveldb.DB
	batch *leveldb.Batch // Current write transaction, or nil.
}

// New opens the map.db database of the Location.
func New(loc mapdb.Location, mode mapdb.OpenMode) (mapdb.Backend, error) {
	var path = filepath.Join(loc.Dir, Dirname)

	var db, err = leveldb.OpenFile(path, &opt.Options{
		ErrorIfMissing: mode == mapdb.MustExist,
	})
	if err != nil {
		return nil, mapdb.NewOpenError(Provider, err)
	}
	log.WithFields(log.Fields{"path": path, "mode": mode}).Debug("opened leveldb map database")

	return &backend{db: db}, nil
}

func (b *backend) Provider() string { return Provider }

func (b *backend) ListAllLoadableBlocks(_ context.Context) ([]mapblock.Pos, error) {
	var it = b.db.NewIterator(nil, nil)
	defer it.Release()

	var out []mapblock.Pos
	for it.Next() {
		var pos, err = decodeKey(it.Key())
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, errors.WithMessage(it.Error(), "iterating blocks")
}

func (b *backend) LoadBlock(_ context.Context, pos mapblock.Pos) ([]byte, error) {
	var data, err = b.db.Get(encodeKey(pos), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, errors.WithMessagef(err, "loading block %s", pos)
	}
	return data, nil
}

func (b *backend) SaveBlock(_ context.Context, pos mapblock.Pos, data []byte) error {
	if b.batch != nil {
		b.batch.Put(encodeKey(pos), data)
		return nil
	}
	return errors.WithMessagef(b.db.Put(encodeKey(pos), data, nil), "saving block %s", pos)
}

func (b *backend) BeginSave(_ context.Context) error {
	if b.batch != nil {
		return errors.New("transaction already open")
	}
	b.batch = new(leveldb.Batch)
	return nil
}

func (b *backend) EndSave(_ context.Context) error {
	if b.batch == nil {
		return errors.New("no open transaction")
	}
	var err = b.db.Write(b.batch, &opt.WriteOptions{Sync: true})
	b.batch = nil
	return errors.WithMessage(err, "writing batch")
}

func (b *backend) Close() error {
	if b.batch != nil && b.batch.Len() != 0 {
		log.WithField("blocks", b.batch.Len()).Warn("discarding uncommitted leveldb batch")
	}
	b.batch = nil
	return b.db.Close()
}

func encodeKey(pos mapblock.Pos) []byte {
	return strconv.AppendInt(nil, pos.Int64(), 10)
}

func decodeKey(key []byte) (mapblock.Pos, error) {
	var i, err = strconv.ParseInt(string(key), 10, 64)
	if err != nil {
		return mapblock.Pos{}, errors.WithMessagef(err, "decoding block key %q", key)
	}
	return mapblock.PosFromInt64(i), nil
}
