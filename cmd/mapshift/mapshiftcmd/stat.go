package mapshiftcmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/migrate"
)

type cmdStat struct {
	World string `long:"world" env:"WORLD" required:"true" description:"World directory, containing world.mt"`
}

func init() {
	CommandRegistry.AddCommand("", "stat", "Summarize the blocks of a world's map", `
Read every map block of a world's current backend, and summarize block
counts and sizes by serialization version. The map is not modified.

Examples:

# Check whether a world has blocks needing recompression:
mapshift stat --world=worlds/myworld
`, &cmdStat{})
}

func (cmd *cmdStat) Execute([]string) error {
	var ctx, done = startup()
	defer done()

	var stats, err = migrate.StatMap(ctx, afero.NewOsFs(), cmd.World)
	if err != nil {
		return failed("stat", migrate.Result{State: migrate.StateFailed}, err)
	}
	log.WithFields(log.Fields{
		"backend": stats.Backend,
		"blocks":  humanize.Comma(int64(stats.Blocks)),
		"bytes":   humanize.Bytes(uint64(stats.Bytes)),
	}).Info("read all blocks")

	return writeStatsTable(os.Stdout, stats)
}

func writeStatsTable(w io.Writer, stats migrate.Stats) error {
	var versions []int
	for v := range stats.Versions {
		versions = append(versions, int(v))
	}
	sort.Ints(versions)

	var table = tablewriter.NewWriter(w)
	table.Header("Version", "Blocks", "Share", "Status")

	for _, v := range versions {
		var count = stats.Versions[uint8(v)]
		var status string

		switch {
		case uint8(v) == mapblock.SerializationVersionHighestWrite:
			status = "current"
		case uint8(v) >= mapblock.SerializationVersionLowestRead && uint8(v) <= mapblock.SerializationVersionHighestRead:
			status = "recompressible"
		default:
			status = "unsupported"
		}
		if err := table.Append(fmt.Sprint(v), humanize.Comma(int64(count)), share(count, stats.Blocks), status); err != nil {
			return err
		}
	}
	if stats.Empty != 0 {
		if err := table.Append("-", humanize.Comma(int64(stats.Empty)), share(stats.Empty, stats.Blocks), "empty"); err != nil {
			return err
		}
	}
	return table.Render()
}

func share(n, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}
