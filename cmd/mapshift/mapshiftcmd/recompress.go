package mapshiftcmd

import (
	"github.com/spf13/afero"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/migrate"
)

type cmdRecompress struct {
	World            string      `long:"world" env:"WORLD" required:"true" description:"World directory, containing world.mt"`
	CompressionLevel int         `long:"compression-level" env:"COMPRESSION_LEVEL" default:"0" description:"Block compression level. Zero uses the codec default"`
	Batch            BatchConfig `group:"Batch" namespace:"batch" env-namespace:"BATCH"`
}

func init() {
	CommandRegistry.AddCommand("", "recompress", "Rewrite every block at the newest serialization version", `
Decode every map block of a world, and re-encode it in place at the newest
serialization version and the chosen compression level. Any block which
cannot be decoded aborts the run. world.mt is not modified.

Examples:

# Recompress a world at the highest zstd level:
mapshift recompress --world=worlds/myworld --compression-level=19
`, &cmdRecompress{})
}

func (cmd *cmdRecompress) Execute([]string) error {
	var ctx, done = startup()
	defer done()

	var res, err = migrate.RecompressMap(ctx, migrate.RecompressConfig{
		Fs:       afero.NewOsFs(),
		WorldDir: cmd.World,
		Codec:    mapblock.Codec{CompressionLevel: cmd.CompressionLevel},
		Batch:    cmd.Batch.Options(),
	})
	if err != nil {
		return failed("recompression", res, err)
	}
	return nil
}
