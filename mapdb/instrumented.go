package mapdb

import (
	"context"
	"time"

	"go.mapshift.dev/core/mapblock"
)

// InstrumentedBackend wraps a Backend with operation metrics.
type InstrumentedBackend struct {
	Backend Backend

	label string
}

// NewInstrumentedBackend wraps |backend|, labeling metrics with |label|.
// Don't use this in production code: use Open(). Tests may use it to
// instrument fixture Backends.
func NewInstrumentedBackend(label string, backend Backend) *InstrumentedBackend {
	return &InstrumentedBackend{Backend: backend, label: label}
}

// Provider returns the name of the wrapped Backend.
func (b *InstrumentedBackend) Provider() string { return b.Backend.Provider() }

// ListAllLoadableBlocks enumerates the Pos of every stored block.
func (b *InstrumentedBackend) ListAllLoadableBlocks(ctx context.Context) ([]mapblock.Pos, error) {
	var started = timeNow()
	var out, err = b.Backend.ListAllLoadableBlocks(ctx)
	b.observe("list", started, err)

	if err == nil {
		backendListBlocks.WithLabelValues(b.label).Observe(float64(len(out)))
	}
	return out, err
}

// LoadBlock returns the payload stored at |pos|, or nil if absent.
func (b *InstrumentedBackend) LoadBlock(ctx context.Context, pos mapblock.Pos) ([]byte, error) {
	var started = timeNow()
	var data, err = b.Backend.LoadBlock(ctx, pos)
	b.observe("load", started, err)
	return data, err
}

// SaveBlock stores |data| at |pos|.
func (b *InstrumentedBackend) SaveBlock(ctx context.Context, pos mapblock.Pos, data []byte) error {
	var started = timeNow()
	var err = b.Backend.SaveBlock(ctx, pos, data)
	b.observe("save", started, err)
	return err
}

// BeginSave opens a write transaction.
func (b *InstrumentedBackend) BeginSave(ctx context.Context) error {
	var started = timeNow()
	var err = b.Backend.BeginSave(ctx)
	b.observe("begin", started, err)
	return err
}

// EndSave commits the open write transaction.
func (b *InstrumentedBackend) EndSave(ctx context.Context) error {
	var started = timeNow()
	var err = b.Backend.EndSave(ctx)
	b.observe("commit", started, err)
	return err
}

// Close the wrapped Backend.
func (b *InstrumentedBackend) Close() error {
	var started = timeNow()
	var err = b.Backend.Close()
	b.observe("close", started, err)
	return err
}

func (b *InstrumentedBackend) observe(op string, started time.Time, err error) {
	var status = "success"
	if err != nil {
		status = "error"
	}
	backendOperationTotal.WithLabelValues(b.label, op, status).Inc()
	backendOperationDuration.WithLabelValues(b.label, op, status).Observe(timeNow().Sub(started).Seconds())
}

var timeNow = time.Now
