package mapshiftcmd

import (
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
)

type cmdBackends struct{}

func init() {
	CommandRegistry.AddCommand("", "backends", "List supported map backends", `
List the names of supported map backends, which may be used with
"migrate --to" or as the "backend" entry of world.mt.
`, &cmdBackends{})
}

func (cmd *cmdBackends) Execute([]string) error {
	return writeBackendsTable(os.Stdout)
}

func writeBackendsTable(w io.Writer) error {
	var table = tablewriter.NewWriter(w)
	table.Header("Name", "Storage")

	for _, p := range Providers {
		if err := table.Append(p.Name, p.Storage); err != nil {
			return err
		}
	}
	return table.Render()
}
