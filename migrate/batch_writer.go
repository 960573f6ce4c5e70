package migrate

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

// BatchOptions control the commit cadence of a BatchWriter.
type BatchOptions struct {
	// MaxBlocks is the number of saved blocks after which a batch commits.
	MaxBlocks int
	// MaxInterval is the time since the previous commit after which a batch commits.
	MaxInterval time.Duration
}

// DefaultBatchOptions commit every 255 blocks or every second.
var DefaultBatchOptions = BatchOptions{
	MaxBlocks:   255,
	MaxInterval: time.Second,
}

// Validate returns an error if the BatchOptions are unusable.
func (o BatchOptions) Validate() error {
	if o.MaxBlocks <= 0 {
		return errors.Errorf("invalid MaxBlocks %d (expected > 0)", o.MaxBlocks)
	} else if o.MaxInterval <= 0 {
		return errors.Errorf("invalid MaxInterval %s (expected > 0)", o.MaxInterval)
	}
	return nil
}

// Commit describes a batch committed by a BatchWriter.
type Commit struct {
	// Seq is the 1-based sequence number of the commit.
	Seq int
	// Blocks is the number of blocks of the batch.
	Blocks int
	// Final is true for the closing commit of the BatchWriter.
	Final bool
}

// BatchWriter saves blocks to a Backend within transactions, committing each
// batch when it reaches BatchOptions.MaxBlocks blocks, or when
// BatchOptions.MaxInterval has elapsed since the previous commit.
type BatchWriter struct {
	backend  mapdb.Backend
	opts     BatchOptions
	onCommit func(Commit)

	pending    map[mapblock.Pos]struct{}
	lastCommit time.Time
	commits    int
	open       bool
}

// NewBatchWriter begins a transaction of |backend| and returns a BatchWriter
// of it. |onCommit|, if non-nil, is invoked after every successful commit.
func NewBatchWriter(ctx context.Context, backend mapdb.Backend, opts BatchOptions, onCommit func(Commit)) (*BatchWriter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	} else if err = backend.BeginSave(ctx); err != nil {
		return nil, errors.WithMessage(err, "beginning transaction")
	}
	return &BatchWriter{
		backend:    backend,
		opts:       opts,
		onCommit:   onCommit,
		pending:    make(map[mapblock.Pos]struct{}, opts.MaxBlocks),
		lastCommit: timeNow(),
		open:       true,
	}, nil
}

// Save the block |data| at |pos| within the current batch, and commit the
// batch if a threshold is reached. After a commit, a new transaction is
// begun immediately.
func (w *BatchWriter) Save(ctx context.Context, pos mapblock.Pos, data []byte) error {
	if !w.open {
		return errors.New("BatchWriter is closed")
	} else if _, ok := w.pending[pos]; ok {
		return errors.WithMessagef(ErrDuplicateBlock, "%s", pos)
	}

	if err := w.backend.SaveBlock(ctx, pos, data); err != nil {
		return errors.WithMessagef(err, "saving block %s", pos)
	}
	w.pending[pos] = struct{}{}

	if len(w.pending) < w.opts.MaxBlocks && timeNow().Sub(w.lastCommit) < w.opts.MaxInterval {
		return nil
	}
	if err := w.commit(ctx, false); err != nil {
		return err
	}
	if err := w.backend.BeginSave(ctx); err != nil {
		w.open = false
		return errors.WithMessage(err, "beginning transaction")
	}
	return nil
}

// Pending returns the number of blocks saved in the current, uncommitted batch.
func (w *BatchWriter) Pending() int { return len(w.pending) }

// Commits returns the number of batches committed thus far.
func (w *BatchWriter) Commits() int { return w.commits }

// Close commits the current batch, without beginning another.
func (w *BatchWriter) Close(ctx context.Context) error {
	if !w.open {
		return errors.New("BatchWriter is closed")
	}
	return w.commit(ctx, true)
}

// Abort abandons the current batch without committing it. Its blocks are
// discarded when the Backend is closed.
func (w *BatchWriter) Abort() {
	w.open = false
	w.pending = nil
}

func (w *BatchWriter) commit(ctx context.Context, final bool) error {
	w.open = false

	if err := w.backend.EndSave(ctx); err != nil {
		return errors.WithMessage(err, "committing transaction")
	}
	w.commits++
	w.lastCommit = timeNow()

	var c = Commit{Seq: w.commits, Blocks: len(w.pending), Final: final}
	w.pending = make(map[mapblock.Pos]struct{}, w.opts.MaxBlocks)
	w.open = !final

	if w.onCommit != nil {
		w.onCommit(c)
	}
	return nil
}

var timeNow = time.Now
