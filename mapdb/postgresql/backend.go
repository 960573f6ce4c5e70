// Package postgresql implements a mapdb.Backend of a PostgreSQL database,
// identified by the world's pgsql_connection setting.
package postgresql

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

// Provider is the registered name of this backend.
const Provider = "postgresql"

// Settings are world.mt entries which configure the backend.
type Settings struct {
	// Connection is a libpq connection string, eg "host=127.0.0.1 dbname=world".
	Connection string `schema:"pgsql_connection"`
}

type backend struct {
	db *sql.DB
	tx *sql.Tx
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// New connects to the database named by the Location's pgsql_connection setting.
func New(loc mapdb.Location, mode mapdb.OpenMode) (mapdb.Backend, error) {
	var settings Settings
	if err := mapdb.DecodeSettings(loc.Settings, &settings); err != nil {
		return nil, mapdb.NewOpenError(Provider, err)
	} else if settings.Connection == "" {
		return nil, mapdb.NewOpenError(Provider,
			errors.New("set pgsql_connection in world.mt to use the postgresql backend"))
	}

	var connector, err = pq.NewConnector(settings.Connection)
	if err != nil {
		return nil, mapdb.NewOpenError(Provider, errors.WithMessage(err, "parsing pgsql_connection"))
	}
	var db = sql.OpenDB(connector)
	db.SetMaxOpenConns(1)

	if err = prepare(db, mode); err != nil {
		_ = db.Close()
		return nil, mapdb.NewOpenError(Provider, err)
	}
	log.WithField("mode", mode).Debug("opened postgresql map database")

	return &backend{db: db}, nil
}

func prepare(db *sql.DB, mode mapdb.OpenMode) error {
	if err := db.Ping(); err != nil {
		return errors.WithMessage(err, "connecting")
	}

	if mode == mapdb.MustExist {
		var _, err = db.Exec("SELECT 1 FROM blocks LIMIT 1;")

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "undefined_table" {
			return errors.New("blocks table does not exist")
		}
		return errors.WithMessage(err, "checking blocks table")
	}

	var _, err = db.Exec(`CREATE TABLE IF NOT EXISTS blocks (
		posX INT NOT NULL,
		posY INT NOT NULL,
		posZ INT NOT NULL,
		data BYTEA,
		PRIMARY KEY (posX, posY, posZ)
	);`)
	return errors.WithMessage(err, "creating blocks table")
}

func (b *backend) Provider() string { return Provider }

func (b *backend) querier() querier {
	if b.tx != nil {
		return b.tx
	}
	return b.db
}

func (b *backend) ListAllLoadableBlocks(ctx context.Context) ([]mapblock.Pos, error) {
	var rows, err = b.querier().QueryContext(ctx, "SELECT posX, posY, posZ FROM blocks;")
	if err != nil {
		return nil, errors.WithMessage(err, "listing blocks")
	}
	defer rows.Close()

	var out []mapblock.Pos
	for rows.Next() {
		var pos mapblock.Pos
		if err = rows.Scan(&pos.X, &pos.Y, &pos.Z); err != nil {
			return nil, errors.WithMessage(err, "scanning block position")
		}
		out = append(out, pos)
	}
	return out, errors.WithMessage(rows.Err(), "listing blocks")
}

func (b *backend) LoadBlock(ctx context.Context, pos mapblock.Pos) ([]byte, error) {
	var data []byte
	var err = b.querier().QueryRowContext(ctx,
		"SELECT data FROM blocks WHERE posX = $1 AND posY = $2 AND posZ = $3;",
		pos.X, pos.Y, pos.Z).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, errors.WithMessagef(err, "loading block %s", pos)
	}
	return data, nil
}

func (b *backend) SaveBlock(ctx context.Context, pos mapblock.Pos, data []byte) error {
	var _, err = b.querier().ExecContext(ctx,
		"INSERT INTO blocks (posX, posY, posZ, data) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (posX, posY, posZ) DO UPDATE SET data = EXCLUDED.data;",
		pos.X, pos.Y, pos.Z, data)
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
			log.WithField("err", err).Warn("failed to roll back open postgresql transaction")
		}
		b.tx = nil
	}
	return b.db.Close()
}
