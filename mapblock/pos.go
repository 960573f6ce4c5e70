package mapblock

import (
	"fmt"

	"github.com/jgraettinger/cockroach-encoding/encoding"
	"github.com/pkg/errors"
)

// Pos is the position of a Block, in block (not node) units. It is the
// unique key of a Block within a map database.
type Pos struct {
	X, Y, Z int16
}

// Limits of a Pos which may be represented by the integer key encoding.
const (
	MinPosCoord = -2048
	MaxPosCoord = 2047
)

func (p Pos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

// Validate returns an error if the Pos cannot be represented by Int64.
func (p Pos) Validate() error {
	for _, c := range [3]int16{p.X, p.Y, p.Z} {
		if c < MinPosCoord || c > MaxPosCoord {
			return errors.Errorf("block position %s out of range [%d, %d]", p, MinPosCoord, MaxPosCoord)
		}
	}
	return nil
}

// Int64 packs the Pos into the classic single-integer key, where each axis
// occupies 12 bits: z*0x1000000 + y*0x1000 + x.
func (p Pos) Int64() int64 {
	return int64(p.Z)*0x1000000 + int64(p.Y)*0x1000 + int64(p.X)
}

// PosFromInt64 is the inverse of Pos.Int64.
func PosFromInt64(i int64) Pos {
	var x = unsignedToSigned(floorMod(i, 4096), 2048)
	i = (i - x) / 4096
	var y = unsignedToSigned(floorMod(i, 4096), 2048)
	i = (i - y) / 4096
	var z = unsignedToSigned(floorMod(i, 4096), 2048)

	return Pos{X: int16(x), Y: int16(y), Z: int16(z)}
}

func floorMod(i, mod int64) int64 {
	if r := i % mod; r < 0 {
		return r + mod
	} else {
		return r
	}
}

func unsignedToSigned(i, maxPositive int64) int64 {
	if i < maxPositive {
		return i
	}
	return i - 2*maxPositive
}

// AppendKeyEncoding appends an order-preserving encoding of |p| to |b|.
// Keys sort by X, then Y, then Z.
func AppendKeyEncoding(b []byte, p Pos) []byte {
	b = encoding.EncodeVarintAscending(b, int64(p.X))
	b = encoding.EncodeVarintAscending(b, int64(p.Y))
	b = encoding.EncodeVarintAscending(b, int64(p.Z))
	return b
}

// DecodeKeyEncoding decodes a Pos encoded by AppendKeyEncoding.
func DecodeKeyEncoding(b []byte) (Pos, error) {
	var v [3]int64
	var err error

	for i := range v {
		if b, v[i], err = encoding.DecodeVarintAscending(b); err != nil {
			return Pos{}, errors.WithMessagef(err, "decoding block key axis %d", i)
		}
	}
	if len(b) != 0 {
		return Pos{}, errors.Errorf("block key has %d trailing bytes", len(b))
	}
	var p = Pos{X: int16(v[0]), Y: int16(v[1]), Z: int16(v[2])}
	return p, p.Validate()
}
