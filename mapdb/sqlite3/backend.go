// Package sqlite3 implements a mapdb.Backend of a world's map.sqlite database.
package sqlite3

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	sqlite "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

// Provider is the registered name of this backend.
const Provider = "sqlite3"

// Filename of the database within the world directory.
const Filename = "map.sqlite"

// Settings are world.mt entries which configure the backend.
type Settings struct {
	// Synchronous is the SQLite "synchronous" pragma: 0 (OFF), 1 (NORMAL) or 2 (FULL).
	Synchronous int `schema:"sqlite_synchronous"`
}

type backend struct {
	db *sql.DB
	tx *sql.Tx // Current write transaction, or nil.
}

// querier is implemented by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// New opens the map.sqlite database of the Location.
func New(loc mapdb.Location, mode mapdb.OpenMode) (mapdb.Backend, error) {
	var settings = Settings{Synchronous: 2}
	if err := mapdb.DecodeSettings(loc.Settings, &settings); err != nil {
		return nil, mapdb.NewOpenError(Provider, err)
	} else if settings.Synchronous < 0 || settings.Synchronous > 2 {
		return nil, mapdb.NewOpenError(Provider,
			errors.Errorf("invalid sqlite_synchronous %d (expected 0, 1, or 2)", settings.Synchronous))
	}

	var path = filepath.Join(loc.Dir, Filename)
	var uriValues = url.Values{
		"_synchronous":  {strconv.Itoa(settings.Synchronous)},
		"_busy_timeout": {"10000"},
	}

	switch mode {
	case mapdb.MustExist:
		if _, err := os.Stat(path); err != nil {
			return nil, mapdb.NewOpenError(Provider, err)
		}
		uriValues.Set("mode", "rw")
	case mapdb.CreateIfMissing:
		if err := os.MkdirAll(loc.Dir, 0755); err != nil {
			return nil, mapdb.NewOpenError(Provider, err)
		}
		uriValues.Set("mode", "rwc")
	}

	var db, err = sql.Open("sqlite3", "file:"+path+"?"+uriValues.Encode())
	if err != nil {
		return nil, mapdb.NewOpenError(Provider, err)
	}
	// All statements, including those of a transaction, share one connection.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS blocks (
		pos INT PRIMARY KEY,
		data BLOB
	);`); err != nil {
		var se sqlite.Error
		if errors.As(err, &se) && se.Code == sqlite.ErrNotADB {
			err = errors.Errorf("%s is not an SQLite database", path)
		}
		_ = db.Close()
		return nil, mapdb.NewOpenError(Provider, errors.WithMessage(err, "creating blocks table"))
	}

	log.WithFields(log.Fields{
		"path":        path,
		"mode":        mode,
		"synchronous": settings.Synchronous,
	}).Debug("opened sqlite3 map database")

	return &backend{db: db}, nil
}

func (b *backend) Provider() string { return Provider }

func (b *backend) querier() querier {
	if b.tx != nil {
		return b.tx
	}
	return b.db
}

func (b *backend) ListAllLoadableBlocks(ctx context.Context) ([]mapblock.Pos, error) {
	var rows, err = b.querier().QueryContext(ctx, "SELECT pos FROM blocks;")
	if err != nil {
		return nil, errors.WithMessage(err, "listing blocks")
	}
	defer rows.Close()

	var out []mapblock.Pos
	for rows.Next() {
		var key int64
		if err = rows.Scan(&key); err != nil {
			return nil, errors.WithMessage(err, "scanning block key")
		}
		out = append(out, mapblock.PosFromInt64(key))
	}
	return out, errors.WithMessage(rows.Err(), "listing blocks")
}

func (b *backend) LoadBlock(ctx context.Context, pos mapblock.Pos) ([]byte, error) {
	var data []byte
	var err = b.querier().QueryRowContext(ctx,
		"SELECT data FROM blocks WHERE pos = ?;", pos.Int64()).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, errors.WithMessagef(err, "loading block %s", pos)
	}
	return data, nil
}

func (b *backend) SaveBlock(ctx context.Context, pos mapblock.Pos, data []byte) error {
	var _, err = b.querier().ExecContext(ctx,
		"INSERT OR REPLACE INTO blocks (pos, data) VALUES (?, ?);", pos.Int64(), data)
	return errors.WithMessagef(err, "saving block %s", pos)
}

func (b *backend) BeginSave(ctx context.Context) (err error) {
	if b.tx != nil {
		return errors.New("transaction already open")
	}
	// The transaction spans many calls, and outlives cancellation of |ctx|.
	b.tx, err = b.db.BeginTx(context.WithoutCancel(ctx), nil)
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
			log.WithField("err", err).Warn("failed to roll back open sqlite3 transaction")
		}
		b.tx = nil
	}
	return b.db.Close()
}
