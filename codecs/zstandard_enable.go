//go:build !nozstd

package codecs

import (
	"io"

	"github.com/DataDog/zstd"
)

func init() {
	zstdNewReader = func(r io.Reader) (io.ReadCloser, error) { return zstd.NewReader(r), nil }
	zstdNewWriter = func(w io.Writer, level int) (io.WriteCloser, error) {
		if level == DefaultLevel {
			level = zstd.DefaultCompression
		}
		return zstd.NewWriterLevel(w, level), nil
	}
}
