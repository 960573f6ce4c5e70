package migrate

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

var (
	// ErrNoBackend is returned if world.mt doesn't name the world's backend.
	ErrNoBackend = errors.New("please specify your current backend in world.mt")
	// ErrSameBackend is returned if migration would copy a backend onto itself.
	ErrSameBackend = errors.New("cannot migrate: new backend is same as the old one")
	// ErrEmptyBlock is the LoadError cause of a listed block having no payload.
	ErrEmptyBlock = errors.New("empty block payload")
	// ErrCancelled is returned when a run stops due to Context cancellation.
	ErrCancelled = errors.New("run cancelled")
	// ErrDuplicateBlock is returned by BatchWriter.Save if the block was
	// already saved within the current batch.
	ErrDuplicateBlock = errors.New("block already saved in this batch")
)

// LoadError is returned when a block cannot be read from the source backend.
type LoadError struct {
	Pos mapblock.Pos
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading block %s: %s", e.Pos, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// MetadataError is returned when world.mt cannot be updated after an
// otherwise successful migration.
type MetadataError struct {
	Err error
}

func (e *MetadataError) Error() string { return "updating world.mt: " + e.Err.Error() }

func (e *MetadataError) Unwrap() error { return e.Err }

// Kind is a coarse classification of a run failure.
type Kind int

const (
	// KindNone classifies a nil error.
	KindNone Kind = iota
	// KindConfiguration is a missing or invalid backend selection. No I/O
	// was attempted against any backend.
	KindConfiguration
	// KindBackendOpen is a backend which couldn't be opened.
	KindBackendOpen
	// KindBlockLoad is a block which couldn't be read, or was empty.
	KindBlockLoad
	// KindBlockDecode is a block payload which couldn't be decoded.
	KindBlockDecode
	// KindCancelled is a run stopped by cancellation.
	KindCancelled
	// KindMetadataWrite is a failure to update world.mt.
	KindMetadataWrite
	// KindIO is any other failure, such as of a write or commit.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindConfiguration:
		return "ConfigurationError"
	case KindBackendOpen:
		return "BackendOpenError"
	case KindBlockLoad:
		return "BlockLoadError"
	case KindBlockDecode:
		return "BlockDecodeError"
	case KindCancelled:
		return "Cancelled"
	case KindMetadataWrite:
		return "MetadataWriteError"
	case KindIO:
		return "IOError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Classify the error chain of |err|.
func Classify(err error) Kind {
	var openErr *mapdb.OpenError
	var decodeErr *mapblock.DecodeError
	var loadErr *LoadError
	var metaErr *MetadataError

	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrNoBackend),
		errors.Is(err, ErrSameBackend),
		errors.Is(err, mapdb.ErrUnknownBackend):
		return KindConfiguration
	case errors.As(err, &openErr):
		return KindBackendOpen
	case errors.As(err, &metaErr):
		return KindMetadataWrite
	case errors.As(err, &decodeErr):
		return KindBlockDecode
	case errors.As(err, &loadErr):
		return KindBlockLoad
	default:
		return KindIO
	}
}
