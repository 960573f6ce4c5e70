// Package bolt implements a mapdb.Backend of a bbolt file, map.bolt, within
// the world directory. Blocks are stored in a single bucket under their
// order-preserving key encoding, and each write transaction is a bolt.Tx.
package bolt

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

// Provider is the registered name of this backend.
const Provider = "bolt"

// Filename of the database within the world directory.
const Filename = "map.bolt"

var bucketName = []byte("blocks")

type backend struct {
	db *bolt.DB
	tx *bolt.Tx // Current writable transaction, or nil.
}

// New opens the map.bolt database of the Location.
func New(loc mapdb.Location, mode mapdb.OpenMode) (mapdb.Backend, error) {
	var path = filepath.Join(loc.Dir, Filename)

	if mode == mapdb.MustExist {
		if _, err := os.Stat(path); err != nil {
			return nil, mapdb.NewOpenError(Provider, err)
		}
	} else if err := os.MkdirAll(loc.Dir, 0755); err != nil {
		return nil, mapdb.NewOpenError(Provider, err)
	}

	// Timeout guards against a database locked by a running server.
	var db, err = bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, mapdb.NewOpenError(Provider, err)
	}

	if mode == mapdb.MustExist {
		err = db.View(func(tx *bolt.Tx) error {
			if tx.Bucket(bucketName) == nil {
				return bolt.ErrBucketNotFound
			}
			return nil
		})
	} else {
		err = db.Update(func(tx *bolt.Tx) error {
			var _, err = tx.CreateBucketIfNotExists(bucketName)
			return err
		})
	}
	if err != nil {
		_ = db.Close()
		return nil, mapdb.NewOpenError(Provider, errors.WithMessage(err, "preparing blocks bucket"))
	}
	log.WithFields(log.Fields{"path": path, "mode": mode}).Debug("opened bolt map database")

	return &backend{db: db}, nil
}

func (b *backend) Provider() string { return Provider }

// view runs |fn| within the open writable transaction, if there is one,
// or a new read-only transaction otherwise.
func (b *backend) view(fn func(*bolt.Bucket) error) error {
	if b.tx != nil {
		return fn(b.tx.Bucket(bucketName))
	}
	return b.db.View(func(tx *bolt.Tx) error { return fn(tx.Bucket(bucketName)) })
}

func (b *backend) ListAllLoadableBlocks(_ context.Context) ([]mapblock.Pos, error) {
	var out []mapblock.Pos

	var err = b.view(func(bucket *bolt.Bucket) error {
		return bucket.ForEach(func(k, _ []byte) error {
			var pos, err = mapblock.DecodeKeyEncoding(k)
			if err == nil {
				out = append(out, pos)
			}
			return err
		})
	})
	return out, errors.WithMessage(err, "listing blocks")
}

func (b *backend) LoadBlock(_ context.Context, pos mapblock.Pos) ([]byte, error) {
	var data []byte

	var err = b.view(func(bucket *bolt.Bucket) error {
		if v := bucket.Get(mapblock.AppendKeyEncoding(nil, pos)); v != nil {
			data = append([]byte{}, v...) // |v| is valid only for the transaction.
		}
		return nil
	})
	return data, errors.WithMessagef(err, "loading block %s", pos)
}

func (b *backend) SaveBlock(_ context.Context, pos mapblock.Pos, data []byte) error {
	var put = func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(mapblock.AppendKeyEncoding(nil, pos), data)
	}

	var err error
	if b.tx != nil {
		err = put(b.tx)
	} else {
		err = b.db.Update(put)
	}
	return errors.WithMessagef(err, "saving block %s", pos)
}

func (b *backend) BeginSave(_ context.Context) (err error) {
	if b.tx != nil {
		return errors.New("transaction already open")
	}
	b.tx, err = b.db.Begin(true)
	return errors.WithMessage(err, "beginning transaction")
}

func (b *backend) EndSave(_ context.Context) error {
	if b.tx == nil {
		return errors.New("no open transaction")
	}
	var err = b.tx.Commit()
	b.tx = nil
	return errors.WithMessage(err, "committing transaction")
}

func (b *backend) Close() error {
	if b.tx != nil {
		if err := b.tx.Rollback(); err != nil {
			log.WithField("err", err).Warn("failed to roll back open bolt transaction")
		}
		b.tx = nil
	}
	return b.db.Close()
}
