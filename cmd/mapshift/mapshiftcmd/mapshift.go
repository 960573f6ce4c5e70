// Package mapshiftcmd implements the sub-commands of the mapshift tool.
package mapshiftcmd

import (
	"context"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	mbp "go.mapshift.dev/core/mainboilerplate"
	"go.mapshift.dev/core/mapdb"
	"go.mapshift.dev/core/mapdb/bolt"
	"go.mapshift.dev/core/mapdb/leveldb"
	"go.mapshift.dev/core/mapdb/postgresql"
	"go.mapshift.dev/core/mapdb/rocksdb"
	"go.mapshift.dev/core/mapdb/sqlite3"
	"go.mapshift.dev/core/migrate"
)

var (
	baseCfg = new(struct {
		Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
		Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"diagnostics" env-namespace:"DIAGNOSTICS"`
	})

	// CommandRegistry of mapshift sub-commands.
	CommandRegistry = mbp.NewCommandRegistry()
)

// Providers are the backends known to mapshift, and a description of each.
var Providers = []struct {
	Name        string
	Constructor mapdb.Constructor
	Storage     string
}{
	{sqlite3.Provider, sqlite3.New, sqlite3.Filename + " (SQLite)"},
	{leveldb.Provider, leveldb.New, leveldb.Dirname + " (LevelDB)"},
	{rocksdb.Provider, rocksdb.New, rocksdb.Dirname + " (RocksDB)"},
	{bolt.Provider, bolt.New, bolt.Filename + " (bbolt)"},
	{postgresql.Provider, postgresql.New, "pgsql_connection (PostgreSQL)"},
	{mapdb.MemoryProvider, mapdb.NewMemory, "none (in-memory, discarded on exit)"},
}

// RegisterProviders registers every backend of Providers with mapdb.
func RegisterProviders() {
	var m = make(map[string]mapdb.Constructor, len(Providers))
	for _, p := range Providers {
		m[p.Name] = p.Constructor
	}
	mapdb.RegisterProviders(m)
}

// BatchConfig configures destination transactions.
type BatchConfig struct {
	MaxBlocks   int           `long:"max-blocks" env:"MAX_BLOCKS" default:"255" description:"Commit a transaction after this many blocks"`
	MaxInterval time.Duration `long:"max-interval" env:"MAX_INTERVAL" default:"1s" description:"Commit a transaction after this much time since the last commit"`
}

// Options returns BatchOptions of the BatchConfig.
func (cfg BatchConfig) Options() migrate.BatchOptions {
	return migrate.BatchOptions{MaxBlocks: cfg.MaxBlocks, MaxInterval: cfg.MaxInterval}
}

// NewParser returns a flags.Parser having all registered sub-commands.
func NewParser() *flags.Parser {
	var parser = flags.NewParser(baseCfg, flags.Default)
	parser.EnvNamespace = "MAPSHIFT"

	mbp.Must(CommandRegistry.AddCommands("", parser.Command), "could not add subcommand")
	return parser
}

// startup initializes logging, diagnostics, and backends, and returns a
// Context which is cancelled on SIGINT or SIGTERM.
func startup() (context.Context, func()) {
	mbp.InitLog(baseCfg.Log)
	var ln = mbp.InitDiagnostics(baseCfg.Diagnostics)
	RegisterProviders()

	var ctx, cancel = mbp.InterruptContext(context.Background())
	return ctx, func() {
		cancel()
		if ln != nil {
			_ = ln.Close()
		}
	}
}

// failed logs a failed run and returns its error.
func failed(op string, res migrate.Result, err error) error {
	var fields = log.Fields{
		"err":   err,
		"kind":  migrate.Classify(err),
		"state": res.State,
	}
	if res.Total != 0 {
		fields["saved"] = res.Saved
		fields["total"] = res.Total
	}

	switch migrate.Classify(err) {
	case migrate.KindConfiguration:
		fields["backends"] = strings.Join(mapdb.ProviderNames(), "|")
	case migrate.KindCancelled:
		log.WithFields(fields).Warn(op + " cancelled; committed blocks are retained and a re-run will resume safely")
		return err
	}
	log.WithFields(fields).Error(op + " failed")
	return err
}
