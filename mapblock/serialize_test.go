package mapblock

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.mapshift.dev/core/codecs"
)

func TestCodecRoundTripAtHighestVersion(t *testing.T) {
	var codec Codec
	var fixture = buildBlockFixture()

	var payload, err = codec.Encode(fixture)
	require.NoError(t, err)
	require.Equal(t, SerializationVersionHighestWrite, payload[0])

	decoded, err := codec.Decode(payload)
	require.NoError(t, err)
	require.Equal(t, fixture, decoded)

	// Re-encoding a canonical payload at the same version is byte-identical.
	again, err := codec.Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, payload, again)
}

func TestCodecUpgradesLegacyVersion(t *testing.T) {
	var codec Codec
	var fixture = buildBlockFixture()

	var legacy, err = codec.EncodeVersion(fixture, 28)
	require.NoError(t, err)
	require.Equal(t, uint8(28), legacy[0])

	decoded, err := codec.Decode(legacy)
	require.NoError(t, err)
	require.Equal(t, fixture, decoded)

	upgraded, err := codec.Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, SerializationVersionHighestWrite, upgraded[0])

	decoded, err = codec.Decode(upgraded)
	require.NoError(t, err)
	require.Equal(t, fixture, decoded)
}

func TestCodecCanonicalizesOnDecode(t *testing.T) {
	var codec Codec
	var fixture = buildBlockFixture()

	// Scramble orderings which aren't significant.
	var scrambled = *fixture
	scrambled.NameIDMapping = []NameID{fixture.NameIDMapping[2], fixture.NameIDMapping[0], fixture.NameIDMapping[1]}
	scrambled.Metadata = []NodeMetadata{
		{
			Pos:       fixture.Metadata[1].Pos,
			Vars:      []MetaVar{fixture.Metadata[1].Vars[1], fixture.Metadata[1].Vars[0]},
			Inventory: fixture.Metadata[1].Inventory,
		},
		fixture.Metadata[0],
	}
	scrambled.NodeTimers = []NodeTimer{fixture.NodeTimers[1], fixture.NodeTimers[0]}

	var payload, err = codec.EncodeVersion(&scrambled, 29)
	require.NoError(t, err)
	decoded, err := codec.Decode(payload)
	require.NoError(t, err)
	require.Equal(t, fixture, decoded)

	canonical, err := codec.Encode(fixture)
	require.NoError(t, err)
	reencoded, err := codec.Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, canonical, reencoded)
}

func TestCodecCompressionLevels(t *testing.T) {
	var fixture = buildBlockFixture()

	for _, level := range []int{1, 3, 19} {
		var codec = Codec{CompressionLevel: level}

		var payload, err = codec.Encode(fixture)
		require.NoError(t, err)
		decoded, err := Codec{}.Decode(payload)
		require.NoError(t, err)
		require.Equal(t, fixture, decoded)
	}
}

func TestCodecEmptyBlock(t *testing.T) {
	var codec Codec
	var empty = new(Block)

	for _, version := range []uint8{28, 29} {
		var payload, err = codec.EncodeVersion(empty, version)
		require.NoError(t, err)

		decoded, err := codec.Decode(payload)
		require.NoError(t, err)
		require.Equal(t, empty, decoded)
	}
}

func TestCodecDecodeErrors(t *testing.T) {
	var codec Codec
	var valid, err = codec.Encode(buildBlockFixture())
	require.NoError(t, err)
	legacy, err := codec.EncodeVersion(buildBlockFixture(), 28)
	require.NoError(t, err)

	for _, tc := range []struct {
		payload []byte
		version uint8
		is      error
		msg     string
	}{
		{nil, 0, ErrEmptyPayload, "decoding block: empty block payload"},
		{[]byte{}, 0, ErrEmptyPayload, "decoding block: empty block payload"},
		{[]byte{27, 1, 2, 3}, 27, ErrUnsupportedVersion,
			"decoding block of serialization version 27: unsupported serialization version"},
		{[]byte{30}, 30, ErrUnsupportedVersion,
			"decoding block of serialization version 30: unsupported serialization version"},
		{[]byte{29, 0xde, 0xad, 0xbe, 0xef}, 29, nil, ""},
		{valid[:len(valid)/2], 29, nil, ""},
		{legacy[:len(legacy)-3], 28, nil, ""},
		{append(append([]byte{}, legacy...), 0x01), 28, nil,
			"decoding block of serialization version 28: 1 unexpected trailing bytes"},
	} {
		var _, err = codec.Decode(tc.payload)
		require.Error(t, err)

		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr))
		require.Equal(t, tc.version, decodeErr.Version)

		if tc.is != nil {
			require.True(t, errors.Is(err, tc.is))
		}
		if tc.msg != "" {
			require.EqualError(t, err, tc.msg)
		}
	}
}

// serverPayload29 lays out a version 29 block with one metadata entry, whose
// inventory is written as unprefixed text ending with an EndInventory line.
func serverPayload29(t *testing.T, inventory string) []byte {
	var e encoder
	e.u8(0)
	e.u16(0xffff)
	e.u32(42)
	// Name-id mapping.
	e.u8(0)
	e.u16(1)
	e.u16(0)
	e.u16(3)
	e.b = append(e.b, "air"...)
	e.u8(contentWidth)
	e.u8(paramsWidth)
	e.b = append(e.b, make([]byte, NodeCount*4)...)

	e.u8(2) // Metadata version.
	e.u16(1)
	e.u16(0)
	e.u32(1)
	e.u16(8)
	e.b = append(e.b, "infotext"...)
	e.u32(5)
	e.b = append(e.b, "Chest"...)
	e.u8(0)
	e.b = append(e.b, inventory...)

	// Static objects and node timers.
	e.u8(0)
	e.u16(0)
	e.u8(nodeTimerLength)
	e.u16(0)

	var out, err = compress([]byte{29}, e.b, codecs.ZSTANDARD, codecs.DefaultLevel)
	require.NoError(t, err)
	return out
}

func TestCodecReadsServerInventories(t *testing.T) {
	var codec Codec
	var inventory = "List main 2\nWidth 0\nItem default:stone 5\nEmpty\nEndInventoryList\n" +
		"List fuel 1\nWidth 0\nEmpty\nEndInventoryList\n"
	var payload = serverPayload29(t, inventory+"EndInventory\n")

	var b, err = codec.Decode(payload)
	require.NoError(t, err)
	require.Equal(t, []NodeMetadata{{
		Pos:       0,
		Vars:      []MetaVar{{Name: "infotext", Value: "Chest"}},
		Inventory: inventory,
	}}, b.Metadata)

	// Re-encoding writes the inventory back as it was read.
	again, err := codec.Encode(b)
	require.NoError(t, err)
	require.Equal(t, payload, again)

	// An empty inventory is a lone EndInventory line.
	b, err = codec.Decode(serverPayload29(t, "EndInventory\n"))
	require.NoError(t, err)
	require.Equal(t, "", b.Metadata[0].Inventory)

	// A missing EndInventory line is a DecodeError.
	_, err = codec.Decode(serverPayload29(t, "List main 1\nEmpty\nEndInventoryList\n"))
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
}

func TestEncodeErrorsOnlyForUnrepresentableBlocks(t *testing.T) {
	var codec Codec

	// Every decoded Block encodes.
	var decoded, err = codec.Decode(serverPayload29(t, "EndInventory\n"))
	require.NoError(t, err)
	_, err = codec.Encode(decoded)
	require.NoError(t, err)

	var b = buildBlockFixture()
	b.Metadata[1].Inventory = "List main 32"
	_, err = codec.Encode(b)
	require.EqualError(t, err, "inventory doesn't end with a newline")

	b = buildBlockFixture()
	b.StaticObjects[0].Data = strings.Repeat("x", 0x10000)
	_, err = codec.Encode(b)
	require.EqualError(t, err, "string of length 65536 exceeds 65535")
}

func TestSerializeRejectsUnknownVersion(t *testing.T) {
	var _, err = Codec{}.EncodeVersion(new(Block), 27)
	require.EqualError(t, err, "cannot serialize version 27")
}

func TestNodeIndex(t *testing.T) {
	require.Equal(t, 0, NodeIndex(0, 0, 0))
	require.Equal(t, 1, NodeIndex(1, 0, 0))
	require.Equal(t, 16, NodeIndex(0, 1, 0))
	require.Equal(t, 256, NodeIndex(0, 0, 1))
	require.Equal(t, NodeCount-1, NodeIndex(15, 15, 15))
}

// buildBlockFixture returns a canonical Block exercising every section.
func buildBlockFixture() *Block {
	var b = &Block{
		Flags:            FlagIsUnderground | FlagDayNightDiffers,
		LightingComplete: 0xfffe,
		Timestamp:        1234567,
		NameIDMapping: []NameID{
			{ID: 0, Name: "air"},
			{ID: 1, Name: "default:stone"},
			{ID: 2, Name: "default:chest"},
		},
		Metadata: []NodeMetadata{
			{
				Pos:  uint16(NodeIndex(15, 0, 0)),
				Vars: []MetaVar{{Name: "infotext", Value: "A sign"}},
			},
			{
				Pos: uint16(NodeIndex(3, 4, 5)),
				Vars: []MetaVar{
					{Name: "formspec", Value: "size[8,9]list[current_name;main;0,0;8,4;]"},
					{Name: "owner", Value: "sam", Private: true},
				},
				Inventory: "List main 32\nWidth 0\nEmpty\nEndInventoryList\n",
			},
		},
		StaticObjects: []StaticObject{
			{Type: 7, Pos: [3]int32{1500, -2250, 16000}, Data: "\x00\x01luaentity"},
			{Type: 7, Pos: [3]int32{0, 0, 0}, Data: "item"},
		},
		NodeTimers: []NodeTimer{
			{Pos: uint16(NodeIndex(1, 1, 1)), Timeout: 5000, Elapsed: 1200},
			{Pos: uint16(NodeIndex(3, 4, 5)), Timeout: 100, Elapsed: 0},
		},
	}
	for i := range b.Nodes {
		switch {
		case i < 1024:
			b.Nodes[i] = Node{Content: 1, Param1: 0, Param2: 0}
		case i == NodeIndex(3, 4, 5):
			b.Nodes[i] = Node{Content: 2, Param1: 0, Param2: 3}
		default:
			b.Nodes[i] = Node{Content: 0, Param1: uint8(i % 16), Param2: 0}
		}
	}
	return b
}
