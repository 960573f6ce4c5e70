package mapshiftcmd

import (
	"github.com/spf13/afero"
	"go.mapshift.dev/core/migrate"
)

type cmdMigrate struct {
	World string      `long:"world" env:"WORLD" required:"true" description:"World directory, containing world.mt"`
	To    string      `long:"to" required:"true" description:"Name of the backend to migrate to"`
	Batch BatchConfig `group:"Batch" namespace:"batch" env-namespace:"BATCH"`
}

func init() {
	CommandRegistry.AddCommand("", "migrate", "Migrate a world's map to another backend", `
Copy every map block of a world from its current backend, as named by the
"backend" entry of world.mt, into another backend. Once all blocks are
committed, world.mt is updated to name the new backend.

Blocks are written in batched transactions. An interrupted migration retains
committed batches, and may simply be run again.

Examples:

# Migrate a world to LevelDB:
mapshift migrate --world=worlds/myworld --to=leveldb
`, &cmdMigrate{})
}

func (cmd *cmdMigrate) Execute([]string) error {
	var ctx, done = startup()
	defer done()

	var res, err = migrate.MigrateMap(ctx, migrate.MigrateConfig{
		Fs:       afero.NewOsFs(),
		WorldDir: cmd.World,
		To:       cmd.To,
		Batch:    cmd.Batch.Options(),
	})
	if err != nil {
		return failed("migration", res, err)
	}
	return nil
}
