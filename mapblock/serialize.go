package mapblock

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"go.mapshift.dev/core/codecs"
)

// Serialization versions understood by the Codec.
const (
	SerializationVersionLowestRead   uint8 = 28
	SerializationVersionHighestRead  uint8 = 29
	SerializationVersionHighestWrite uint8 = 29
)

const (
	contentWidth = 2
	paramsWidth  = 2
	// Serialized byte length of a single NodeTimer.
	nodeTimerLength = 10
	// Line terminating a serialized inventory.
	inventoryEnd = "EndInventory"
)

var (
	// ErrEmptyPayload is returned when decoding a zero-length payload.
	ErrEmptyPayload = errors.New("empty block payload")
	// ErrUnsupportedVersion is returned when decoding a payload whose
	// version byte is outside of the readable range.
	ErrUnsupportedVersion = errors.New("unsupported serialization version")
)

// DecodeError is returned by Codec.Decode for payloads which cannot be decoded.
type DecodeError struct {
	Version uint8
	Err     error
}

func (e *DecodeError) Error() string {
	if errors.Is(e.Err, ErrEmptyPayload) {
		return "decoding block: " + e.Err.Error()
	}
	return fmt.Sprintf("decoding block of serialization version %d: %s", e.Version, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Codec decodes serialized blocks of every readable version, and encodes
// them at SerializationVersionHighestWrite.
type Codec struct {
	// CompressionLevel of encoded blocks. codecs.DefaultLevel selects the
	// default level of the block compression codec.
	CompressionLevel int
}

// Decode a serialized block. The returned Block is canonicalized.
func (c Codec) Decode(payload []byte) (*Block, error) {
	if len(payload) == 0 {
		return nil, &DecodeError{Err: ErrEmptyPayload}
	}
	var version, body = payload[0], payload[1:]
	var b = new(Block)
	var err error

	switch version {
	case 28:
		err = deserialize28(b, body)
	case 29:
		err = deserialize29(b, body)
	default:
		err = ErrUnsupportedVersion
	}
	if err != nil {
		return nil, &DecodeError{Version: version, Err: err}
	}
	b.Canonicalize()
	return b, nil
}

// Encode the Block at SerializationVersionHighestWrite.
func (c Codec) Encode(b *Block) ([]byte, error) {
	return c.EncodeVersion(b, SerializationVersionHighestWrite)
}

// EncodeVersion encodes the Block at a specific writable |version|, which is
// useful for producing legacy fixtures.
func (c Codec) EncodeVersion(b *Block, version uint8) ([]byte, error) {
	switch version {
	case 28:
		return c.serialize28(b)
	case 29:
		return c.serialize29(b)
	default:
		return nil, errors.Errorf("cannot serialize version %d", version)
	}
}

func (c Codec) serialize28(b *Block) ([]byte, error) {
	var e = encoder{b: []byte{28}}
	e.u8(b.Flags)
	e.u16(b.LightingComplete)
	e.u8(contentWidth)
	e.u8(paramsWidth)

	var nodes, meta encoder
	writeNodes(&nodes, b)
	writeMetadata(&meta, b)

	var err error
	if e.b, err = compress(e.b, nodes.b, codecs.ZLIB, c.CompressionLevel); err != nil {
		return nil, errors.WithMessage(err, "compressing nodes")
	} else if e.b, err = compress(e.b, meta.b, codecs.ZLIB, c.CompressionLevel); err != nil {
		return nil, errors.WithMessage(err, "compressing metadata")
	}

	writeStaticObjects(&e, b)
	e.u32(b.Timestamp)
	writeNameIDMapping(&e, b)
	writeNodeTimers(&e, b)

	for _, err = range []error{nodes.err, meta.err, e.err} {
		if err != nil {
			return nil, err
		}
	}
	return e.b, nil
}

func (c Codec) serialize29(b *Block) ([]byte, error) {
	var body encoder
	body.u8(b.Flags)
	body.u16(b.LightingComplete)
	body.u32(b.Timestamp)
	writeNameIDMapping(&body, b)
	body.u8(contentWidth)
	body.u8(paramsWidth)
	writeNodes(&body, b)
	writeMetadata(&body, b)
	writeStaticObjects(&body, b)
	writeNodeTimers(&body, b)

	if body.err != nil {
		return nil, body.err
	}
	var out, err = compress([]byte{29}, body.b, codecs.ZSTANDARD, c.CompressionLevel)
	if err != nil {
		return nil, errors.WithMessage(err, "compressing block")
	}
	return out, nil
}

func deserialize28(b *Block, body []byte) error {
	var d = decoder{b: body}
	b.Flags = d.u8()
	b.LightingComplete = d.u16()
	checkWidths(&d)

	if d.err != nil {
		return d.err
	}
	var br = bytes.NewReader(d.b)

	if raw, err := decompress(br, codecs.ZLIB); err != nil {
		return errors.WithMessage(err, "decompressing nodes")
	} else if err = readSection(raw, b, readNodes); err != nil {
		return errors.WithMessage(err, "reading nodes")
	}
	if raw, err := decompress(br, codecs.ZLIB); err != nil {
		return errors.WithMessage(err, "decompressing metadata")
	} else if err = readSection(raw, b, readMetadata); err != nil {
		return errors.WithMessage(err, "reading metadata")
	}
	d.b = d.b[len(d.b)-br.Len():]

	readStaticObjects(&d, b)
	b.Timestamp = d.u32()
	readNameIDMapping(&d, b)
	readNodeTimers(&d, b)

	return d.finish()
}

func deserialize29(b *Block, body []byte) error {
	var raw, err = decompress(bytes.NewReader(body), codecs.ZSTANDARD)
	if err != nil {
		return errors.WithMessage(err, "decompressing block")
	}
	var d = decoder{b: raw}

	b.Flags = d.u8()
	b.LightingComplete = d.u16()
	b.Timestamp = d.u32()
	readNameIDMapping(&d, b)
	checkWidths(&d)
	readNodes(&d, b)
	readMetadata(&d, b)
	readStaticObjects(&d, b)
	readNodeTimers(&d, b)

	return d.finish()
}

func checkWidths(d *decoder) {
	if cw, pw := d.u8(), d.u8(); d.err == nil && (cw != contentWidth || pw != paramsWidth) {
		d.err = errors.Errorf("unsupported content width %d / params width %d", cw, pw)
	}
}

func writeNodes(e *encoder, b *Block) {
	for i := range b.Nodes {
		e.u16(b.Nodes[i].Content)
	}
	for i := range b.Nodes {
		e.u8(b.Nodes[i].Param1)
	}
	for i := range b.Nodes {
		e.u8(b.Nodes[i].Param2)
	}
}

func readNodes(d *decoder, b *Block) {
	for i := range b.Nodes {
		b.Nodes[i].Content = d.u16()
	}
	for i := range b.Nodes {
		b.Nodes[i].Param1 = d.u8()
	}
	for i := range b.Nodes {
		b.Nodes[i].Param2 = d.u8()
	}
}

func writeMetadata(e *encoder, b *Block) {
	if len(b.Metadata) == 0 {
		e.u8(0)
		return
	}
	e.u8(2)
	e.count16(len(b.Metadata))

	for _, m := range b.Metadata {
		e.u16(m.Pos)
		e.u32(uint32(len(m.Vars)))
		for _, v := range m.Vars {
			e.str16(v.Name)
			e.str32(v.Value)
			if v.Private {
				e.u8(1)
			} else {
				e.u8(0)
			}
		}
		e.inventory(m.Inventory)
	}
}

func readMetadata(d *decoder, b *Block) {
	var version = d.u8()
	if version == 0 || d.err != nil {
		return
	} else if version != 1 && version != 2 {
		d.err = errors.Errorf("unsupported metadata version %d", version)
		return
	}
	var count = int(d.u16())

	for i := 0; i != count && d.err == nil; i++ {
		var m = NodeMetadata{Pos: d.u16()}
		var nvars = d.u32()

		for j := uint32(0); j != nvars && d.err == nil; j++ {
			var v = MetaVar{Name: d.str16(), Value: d.str32()}
			if version >= 2 {
				v.Private = d.u8() == 1
			}
			m.Vars = append(m.Vars, v)
		}
		m.Inventory = d.inventory()
		b.Metadata = append(b.Metadata, m)
	}
}

func writeStaticObjects(e *encoder, b *Block) {
	e.u8(0)
	e.count16(len(b.StaticObjects))

	for _, o := range b.StaticObjects {
		e.u8(o.Type)
		e.s32(o.Pos[0])
		e.s32(o.Pos[1])
		e.s32(o.Pos[2])
		e.str16(o.Data)
	}
}

func readStaticObjects(d *decoder, b *Block) {
	if version := d.u8(); d.err == nil && version != 0 {
		d.err = errors.Errorf("unsupported static objects version %d", version)
		return
	}
	var count = int(d.u16())

	for i := 0; i != count && d.err == nil; i++ {
		var o = StaticObject{Type: d.u8()}
		o.Pos = [3]int32{d.s32(), d.s32(), d.s32()}
		o.Data = d.str16()
		b.StaticObjects = append(b.StaticObjects, o)
	}
}

func writeNameIDMapping(e *encoder, b *Block) {
	e.u8(0)
	e.count16(len(b.NameIDMapping))

	for _, m := range b.NameIDMapping {
		e.u16(m.ID)
		e.str16(m.Name)
	}
}

func readNameIDMapping(d *decoder, b *Block) {
	if version := d.u8(); d.err == nil && version != 0 {
		d.err = errors.Errorf("unsupported name-id mapping version %d", version)
		return
	}
	var count = int(d.u16())

	for i := 0; i != count && d.err == nil; i++ {
		b.NameIDMapping = append(b.NameIDMapping, NameID{ID: d.u16(), Name: d.str16()})
	}
}

func writeNodeTimers(e *encoder, b *Block) {
	e.u8(nodeTimerLength)
	e.count16(len(b.NodeTimers))

	for _, t := range b.NodeTimers {
		e.u16(t.Pos)
		e.s32(t.Timeout)
		e.s32(t.Elapsed)
	}
}

func readNodeTimers(d *decoder, b *Block) {
	if length := d.u8(); d.err == nil && length != nodeTimerLength {
		d.err = errors.Errorf("unsupported node timer length %d", length)
		return
	}
	var count = int(d.u16())

	for i := 0; i != count && d.err == nil; i++ {
		b.NodeTimers = append(b.NodeTimers, NodeTimer{Pos: d.u16(), Timeout: d.s32(), Elapsed: d.s32()})
	}
}

func readSection(raw []byte, b *Block, fn func(*decoder, *Block)) error {
	var d = decoder{b: raw}
	fn(&d, b)
	return d.finish()
}

func compress(dst, src []byte, codec codecs.CompressionCodec, level int) ([]byte, error) {
	var buf = bytes.NewBuffer(dst)

	var w, err = codecs.NewCodecWriter(buf, codec, level)
	if err != nil {
		return nil, err
	} else if _, err = w.Write(src); err != nil {
		return nil, err
	} else if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(r io.Reader, codec codecs.CompressionCodec) ([]byte, error) {
	var dr, err = codecs.NewCodecReader(r, codec)
	if err != nil {
		return nil, err
	}
	defer dr.Close()

	return io.ReadAll(dr)
}

// encoder appends big-endian fields, retaining the first error encountered.
type encoder struct {
	b   []byte
	err error
}

func (e *encoder) u8(v uint8)   { e.b = append(e.b, v) }
func (e *encoder) u16(v uint16) { e.b = binary.BigEndian.AppendUint16(e.b, v) }
func (e *encoder) u32(v uint32) { e.b = binary.BigEndian.AppendUint32(e.b, v) }
func (e *encoder) s32(v int32)  { e.u32(uint32(v)) }

func (e *encoder) count16(n int) {
	if n > 0xffff && e.err == nil {
		e.err = errors.Errorf("section has %d entries, exceeding 65535", n)
	}
	e.u16(uint16(n))
}

func (e *encoder) str16(s string) {
	if len(s) > 0xffff && e.err == nil {
		e.err = errors.Errorf("string of length %d exceeds 65535", len(s))
	}
	e.u16(uint16(len(s)))
	e.b = append(e.b, s...)
}

func (e *encoder) str32(s string) {
	e.u32(uint32(len(s)))
	e.b = append(e.b, s...)
}

// inventory appends the lines of |s| and the terminating EndInventory line.
func (e *encoder) inventory(s string) {
	if s != "" && !strings.HasSuffix(s, "\n") && e.err == nil {
		e.err = errors.New("inventory doesn't end with a newline")
	}
	e.b = append(e.b, s...)
	e.b = append(e.b, inventoryEnd+"\n"...)
}

// decoder consumes big-endian fields. After the first error, all reads
// return zero values.
type decoder struct {
	b   []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	} else if n > len(d.b) {
		d.err = io.ErrUnexpectedEOF
		return nil
	}
	var out = d.b[:n]
	d.b = d.b[n:]
	return out
}

func (d *decoder) u8() uint8 {
	if p := d.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if p := d.take(2); p != nil {
		return binary.BigEndian.Uint16(p)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if p := d.take(4); p != nil {
		return binary.BigEndian.Uint32(p)
	}
	return 0
}

func (d *decoder) s32() int32 { return int32(d.u32()) }

func (d *decoder) str16() string { return string(d.take(int(d.u16()))) }

func (d *decoder) str32() string {
	var n = d.u32()
	if uint64(n) > uint64(len(d.b)) {
		if d.err == nil {
			d.err = io.ErrUnexpectedEOF
		}
		return ""
	}
	return string(d.take(int(n)))
}

// inventory consumes lines through the EndInventory line, and returns
// those which precede it. Nested EndInventoryList lines are not interpreted.
func (d *decoder) inventory() string {
	for n := 0; d.err == nil; {
		var i = bytes.IndexByte(d.b[n:], '\n')
		if i == -1 {
			d.err = io.ErrUnexpectedEOF
			break
		}
		if f := bytes.Fields(d.b[n : n+i]); len(f) != 0 && string(f[0]) == inventoryEnd {
			var out = string(d.b[:n])
			d.b = d.b[n+i+1:]
			return out
		}
		n += i + 1
	}
	return ""
}

// finish returns the first decoding error, or an error if content remains.
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	} else if len(d.b) != 0 {
		return errors.Errorf("%d unexpected trailing bytes", len(d.b))
	}
	return nil
}
