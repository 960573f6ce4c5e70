package migrate

import (
	"fmt"
	"io"
	"strconv"
)

// Progress writes an overwriting, carriage-return terminated status line,
// such as " Migrated 255 blocks, 2.5% completed.\r".
type Progress struct {
	w     io.Writer
	verb  string
	total int
}

// NewProgress returns a Progress of |total| blocks which writes to |w|.
// |verb| is the past-tense operation, such as "Migrated".
func NewProgress(w io.Writer, verb string, total int) *Progress {
	return &Progress{w: w, verb: verb, total: total}
}

// Report |done| blocks of the total.
func (p *Progress) Report(done int) {
	var pct = 100.0
	if p.total != 0 {
		pct = 100.0 * float64(done) / float64(p.total)
	}
	_, _ = fmt.Fprintf(p.w, " %s %d blocks, %s%% completed.\r",
		p.verb, done, strconv.FormatFloat(pct, 'g', 6, 64))
}

// Finish terminates the status line.
func (p *Progress) Finish() { _, _ = io.WriteString(p.w, "\n") }
