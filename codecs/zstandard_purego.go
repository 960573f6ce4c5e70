//go:build nozstd

package codecs

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// Builds without cgo zstd fall back to a pure-Go implementation which
// reads and writes the same frame format.
func init() {
	zstdNewReader = func(r io.Reader) (io.ReadCloser, error) {
		var dec, err = zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	}
	zstdNewWriter = func(w io.Writer, level int) (io.WriteCloser, error) {
		var opts []zstd.EOption
		if level != DefaultLevel {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		return zstd.NewWriter(w, opts...)
	}
}
