// Package migrate implements offline drivers which move every map block of a
// world from one mapdb.Backend to another (MigrateMap), or rewrite every block
// in place at the newest serialization version (RecompressMap).
//
// Both drivers are instances of a single Pipeline, which enumerates source
// blocks, applies a per-block transform, and writes results through a
// BatchWriter that commits destination transactions every BatchOptions.MaxBlocks
// blocks or BatchOptions.MaxInterval, whichever comes first. Cancellation is
// cooperative: the Context is polled once per block, and a cancelled run
// retains every batch committed before it. Re-running a cancelled run is
// safe, as block writes are idempotent.
//
// Drivers assume exclusive access to the world's databases: the server which
// owns the world must be stopped.
package migrate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels of collected metrics.
const (
	OpMigrate    = "migrate"
	OpRecompress = "recompress"
)

var (
	blocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapshift_blocks_total",
		Help: "Total number of map blocks processed, by outcome.",
	}, []string{"op", "status"})

	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapshift_commits_total",
		Help: "Total number of committed destination transactions.",
	}, []string{"op"})

	blockBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapshift_block_bytes_total",
		Help: "Total payload bytes of saved map blocks.",
	}, []string{"op"})
)
