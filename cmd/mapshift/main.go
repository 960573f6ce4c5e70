package main

import (
	"go.mapshift.dev/core/cmd/mapshift/mapshiftcmd"
	mbp "go.mapshift.dev/core/mainboilerplate"
)

const iniFilename = "mapshift.ini"

func main() {
	var parser = mapshiftcmd.NewParser()

	parser.LongDescription = `mapshift migrates and recompresses the map databases of voxel worlds.

	The server owning a world must be stopped while mapshift operates on it.
	See --help pages of each sub-command for documentation and usage examples.
	Optionally configure mapshift with a '` + iniFilename + `' file in the current working directory,
	or with '~/.config/mapshift/` + iniFilename + `'. Use the 'print-config' sub-command to inspect
	the tool's current configuration.
	`
	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
