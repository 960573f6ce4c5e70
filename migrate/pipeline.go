package migrate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

// State of a run.
type State int

const (
	StateInit State = iota
	StateEnumerating
	StateTransferring
	StateCancelled
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateEnumerating:
		return "Enumerating"
	case StateTransferring:
		return "Transferring"
	case StateCancelled:
		return "Cancelled"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result summarizes a run.
type Result struct {
	// State is the terminal State of the run.
	State State
	// Total is the number of enumerated source blocks.
	Total int
	// Saved is the number of blocks written to the destination.
	Saved int
	// Skipped is the number of empty source blocks which were skipped.
	Skipped int
	// Commits is the number of committed destination transactions.
	Commits int
	// Bytes is the total payload size of saved blocks.
	Bytes int64
	// MetadataErr is a failure to update world.mt after a Completed migration.
	MetadataErr error
}

// Transform maps a source block payload to the payload saved at the destination.
type Transform func(pos mapblock.Pos, payload []byte) ([]byte, error)

// Identity is a Transform which returns payloads unmodified.
func Identity(_ mapblock.Pos, payload []byte) ([]byte, error) { return payload, nil }

// Pipeline copies every block of Source to Dest through a Transform.
// Source and Dest may be the same Backend.
type Pipeline struct {
	// Op labels logs and metrics of the Pipeline (OpMigrate or OpRecompress).
	Op string
	// Verb is the past-tense description of the Pipeline's progress.
	Verb string

	Source    mapdb.Backend
	Dest      mapdb.Backend
	Transform Transform
	// SkipEmpty selects whether an empty source block is logged and
	// skipped (true), or fails the run (false).
	SkipEmpty bool
	Batch     BatchOptions
	// Progress receives status lines. If nil, os.Stderr is used.
	Progress io.Writer
}

// Run the Pipeline to completion, failure, or cancellation of |ctx|.
// Cancellation is observed only between blocks: a block being transferred,
// and the final commit of a run whose blocks were all transferred, complete.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	var res = Result{State: StateEnumerating}
	// Backend operations don't observe cancellation of |ctx|.
	var opCtx = context.WithoutCancel(ctx)

	var positions, err = p.Source.ListAllLoadableBlocks(opCtx)
	if err != nil {
		res.State = StateFailed
		return res, errors.WithMessage(err, "listing source blocks")
	}
	res.Total = len(positions)
	res.State = StateTransferring

	log.WithFields(log.Fields{
		"op":     p.Op,
		"blocks": res.Total,
		"source": p.Source.Provider(),
		"dest":   p.Dest.Provider(),
	}).Info("transferring blocks")

	var out = p.Progress
	if out == nil {
		out = os.Stderr
	}
	var progress = NewProgress(out, p.Verb, res.Total)

	writer, err := NewBatchWriter(opCtx, p.Dest, p.Batch, func(c Commit) {
		res.Commits = c.Seq
		commitsTotal.WithLabelValues(p.Op).Inc()
		progress.Report(res.Saved + res.Skipped)

		log.WithFields(log.Fields{
			"op":     p.Op,
			"seq":    c.Seq,
			"blocks": c.Blocks,
			"final":  c.Final,
		}).Debug("committed batch")
	})
	if err != nil {
		res.State = StateFailed
		return res, err
	}

	if err = p.transfer(ctx, opCtx, positions, writer, &res); err == nil {
		err = writer.Close(opCtx)
	} else {
		writer.Abort()
	}
	progress.Finish()

	switch {
	case err == nil:
		res.State = StateCompleted
	case Classify(err) == KindCancelled:
		res.State = StateCancelled
	default:
		res.State = StateFailed
	}
	return res, err
}

func (p *Pipeline) transfer(ctx, opCtx context.Context, positions []mapblock.Pos, w *BatchWriter, res *Result) error {
	for _, pos := range positions {
		if ctx.Err() != nil {
			return errors.WithMessagef(ErrCancelled, "after %d of %d blocks", res.Saved+res.Skipped, res.Total)
		}

		var data, err = p.Source.LoadBlock(opCtx, pos)
		if err != nil {
			return &LoadError{Pos: pos, Err: err}
		}

		if len(data) == 0 {
			if !p.SkipEmpty {
				return &LoadError{Pos: pos, Err: ErrEmptyBlock}
			}
			log.WithFields(log.Fields{"op": p.Op, "pos": pos}).Warn("failed to load block, skipping it")
			blocksTotal.WithLabelValues(p.Op, "skipped").Inc()
			res.Skipped++
			continue
		}

		if data, err = p.Transform(pos, data); err != nil {
			return errors.WithMessagef(err, "transforming block %s", pos)
		}
		// Count the block before saving, as Save may commit and report progress.
		res.Saved++
		if err = w.Save(opCtx, pos, data); err != nil {
			res.Saved--
			return err
		}
		blocksTotal.WithLabelValues(p.Op, "saved").Inc()
		blockBytesTotal.WithLabelValues(p.Op).Add(float64(len(data)))
		res.Bytes += int64(len(data))
	}
	return nil
}
