package mapdb

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.mapshift.dev/core/mapblock"
)

// MemoryProvider is the registered name of the in-memory Backend.
const MemoryProvider = "dummy"

// MemoryBackend is an in-memory implementation of Backend. Writes made within
// a transaction are staged until EndSave, and discarded by Close.
type MemoryBackend struct {
	// Blocks are committed block payloads.
	Blocks map[mapblock.Pos][]byte

	mu      sync.Mutex
	pending map[mapblock.Pos][]byte // Non-nil iff a transaction is open.
	closed  bool
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{Blocks: make(map[mapblock.Pos][]byte)}
}

// NewMemory is a Constructor of empty MemoryBackends. A MemoryBackend retains
// nothing once closed, so MustExist and CreateIfMissing behave identically.
func NewMemory(_ Location, _ OpenMode) (Backend, error) {
	return NewMemoryBackend(), nil
}

// Provider returns MemoryProvider.
func (m *MemoryBackend) Provider() string { return MemoryProvider }

// ListAllLoadableBlocks returns committed and staged block positions,
// ordered on their integer key.
func (m *MemoryBackend) ListAllLoadableBlocks(_ context.Context) ([]mapblock.Pos, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errClosed
	}
	var out = make([]mapblock.Pos, 0, len(m.Blocks)+len(m.pending))
	for pos := range m.Blocks {
		out = append(out, pos)
	}
	for pos := range m.pending {
		if _, ok := m.Blocks[pos]; !ok {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Int64() < out[j].Int64() })
	return out, nil
}

// LoadBlock returns the staged or committed payload of |pos|.
func (m *MemoryBackend) LoadBlock(_ context.Context, pos mapblock.Pos) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errClosed
	}
	if data, ok := m.pending[pos]; ok {
		return data, nil
	}
	return m.Blocks[pos], nil
}

// SaveBlock stages |data| if a transaction is open, or commits it otherwise.
func (m *MemoryBackend) SaveBlock(_ context.Context, pos mapblock.Pos, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}
	var copied = append([]byte(nil), data...)

	if m.pending != nil {
		m.pending[pos] = copied
	} else {
		m.Blocks[pos] = copied
	}
	return nil
}

// BeginSave opens a transaction.
func (m *MemoryBackend) BeginSave(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	} else if m.pending != nil {
		return errors.New("transaction already open")
	}
	m.pending = make(map[mapblock.Pos][]byte)
	return nil
}

// EndSave commits staged writes.
func (m *MemoryBackend) EndSave(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	} else if m.pending == nil {
		return errors.New("no open transaction")
	}
	for pos, data := range m.pending {
		m.Blocks[pos] = data
	}
	m.pending = nil
	return nil
}

// Close discards staged writes. Committed Blocks remain readable
// through the Blocks field.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = nil
	m.closed = true
	return nil
}

var errClosed = errors.New("backend is closed")
