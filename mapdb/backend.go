// Package mapdb provides an abstraction over the key/value databases in
// which a world's map blocks are stored, a registry of named backend
// constructors, and in-memory Backends for testing.
package mapdb

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/schema"
	"github.com/pkg/errors"
	"go.mapshift.dev/core/mapblock"
)

// Backend is a key/value database of serialized map blocks, keyed on block Pos.
type Backend interface {
	// Provider returns the registered name of the backend (eg, "sqlite3").
	Provider() string

	// ListAllLoadableBlocks enumerates the Pos of every stored block.
	// Order is unspecified.
	ListAllLoadableBlocks(ctx context.Context) ([]mapblock.Pos, error)

	// LoadBlock returns the payload stored at |pos|, or (nil, nil) if
	// no block is stored there.
	LoadBlock(ctx context.Context, pos mapblock.Pos) ([]byte, error)

	// SaveBlock stores |data| at |pos|, replacing any current payload.
	// If a transaction is open, the write becomes durable at EndSave.
	SaveBlock(ctx context.Context, pos mapblock.Pos, data []byte) error

	// BeginSave opens a write transaction.
	BeginSave(ctx context.Context) error

	// EndSave commits the open write transaction.
	EndSave(ctx context.Context) error

	// Close releases the Backend. A transaction left open is discarded.
	Close() error
}

// OpenMode controls whether a Constructor may create a new database.
type OpenMode int

const (
	// MustExist fails construction if the database doesn't already exist.
	MustExist OpenMode = iota
	// CreateIfMissing initializes an empty database if none exists.
	CreateIfMissing
)

func (m OpenMode) String() string {
	switch m {
	case MustExist:
		return "MustExist"
	case CreateIfMissing:
		return "CreateIfMissing"
	default:
		return fmt.Sprintf("OpenMode(%d)", int(m))
	}
}

// Location identifies the database of a world.
type Location struct {
	// Dir is the world directory, within which file-based backends keep
	// their database.
	Dir string
	// Settings are world.mt entries, from which backends decode their options.
	Settings url.Values
}

// Constructor builds a Backend at the Location. Each backend provides its own
// Constructor implementation. A Constructor which fails must release any
// resources it acquired before returning.
type Constructor func(loc Location, mode OpenMode) (Backend, error)

// OpenError is returned when a Backend cannot be constructed.
type OpenError struct {
	Provider string
	Err      error
}

// NewOpenError wraps |err| as an *OpenError of |provider|.
// If |err| is already an *OpenError, it's returned unmodified.
func NewOpenError(provider string, err error) error {
	var oe *OpenError
	if errors.As(err, &oe) {
		return err
	}
	return &OpenError{Provider: provider, Err: err}
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("opening %s backend: %s", e.Provider, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// ErrUnknownBackend is returned when a backend name isn't registered.
var ErrUnknownBackend = errors.New("unknown backend")

// DecodeSettings decodes Location Settings into |args|, a pointer to a struct
// having `schema` field tags. Settings which |args| doesn't name are ignored.
func DecodeSettings(settings url.Values, args interface{}) error {
	var decoder = schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	if err := decoder.Decode(args, settings); err != nil {
		return errors.WithMessage(err, "parsing backend settings")
	}
	return nil
}
