// Package codecs maps the compression codecs used within serialized map
// blocks onto streaming readers and writers.
package codecs

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// CompressionCodec enumerates codecs which may compress a section of a block.
type CompressionCodec int

const (
	// NONE leaves content uncompressed.
	NONE CompressionCodec = iota
	// ZLIB compresses with zlib (RFC 1950) framing.
	ZLIB
	// ZSTANDARD compresses with a single Zstandard frame.
	ZSTANDARD
)

// DefaultLevel selects the codec's own default compression level.
const DefaultLevel = 0

func (c CompressionCodec) String() string {
	switch c {
	case NONE:
		return "NONE"
	case ZLIB:
		return "ZLIB"
	case ZSTANDARD:
		return "ZSTANDARD"
	default:
		return fmt.Sprintf("CompressionCodec(%d)", int(c))
	}
}

// Decompressor is a ReadCloser where Close closes and releases Decompressor
// state, but does not Close or affect the underlying Reader.
type Decompressor io.ReadCloser

// Compressor is a WriteCloser where Close closes and releases Compressor
// state, potentially flushing final content to the underlying Writer,
// but does not Close or otherwise affect the underlying Writer.
type Compressor io.WriteCloser

// NewCodecReader returns a Decompressor of the Reader encoded with CompressionCodec.
// If |r| is an io.ByteReader, a ZLIB Decompressor reads no further than the
// end of its stream, allowing subsequent content of |r| to be read.
func NewCodecReader(r io.Reader, codec CompressionCodec) (Decompressor, error) {
	switch codec {
	case NONE:
		return io.NopCloser(r), nil
	case ZLIB:
		return zlib.NewReader(r)
	case ZSTANDARD:
		return zstdNewReader(r)
	default:
		return nil, fmt.Errorf("unsupported codec %s", codec)
	}
}

// NewCodecWriter returns a Compressor wrapping the Writer encoding with
// CompressionCodec at the given |level|, or at the codec's default level
// if |level| is DefaultLevel.
func NewCodecWriter(w io.Writer, codec CompressionCodec, level int) (Compressor, error) {
	switch codec {
	case NONE:
		return nopWriteCloser{w}, nil
	case ZLIB:
		if level == DefaultLevel {
			level = zlib.DefaultCompression
		}
		return zlib.NewWriterLevel(w, level)
	case ZSTANDARD:
		return zstdNewWriter(w, level)
	default:
		return nil, fmt.Errorf("unsupported codec %s", codec)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

var (
	zstdNewReader = func(io.Reader) (io.ReadCloser, error) {
		return nil, fmt.Errorf("ZSTANDARD was not enabled at compile time")
	}
	zstdNewWriter = func(io.Writer, int) (io.WriteCloser, error) {
		return nil, fmt.Errorf("ZSTANDARD was not enabled at compile time")
	}
)
