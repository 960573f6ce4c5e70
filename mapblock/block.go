package mapblock

import "sort"

const (
	// BlockSize is the edge length of a Block, in nodes.
	BlockSize = 16
	// NodeCount is the number of nodes within a Block.
	NodeCount = BlockSize * BlockSize * BlockSize

	// TimestampUndefined marks a Block which has never been saved by a server.
	TimestampUndefined uint32 = 0xffffffff
)

// Flags of a Block.
const (
	FlagIsUnderground   uint8 = 0x01
	FlagDayNightDiffers uint8 = 0x02
	FlagLightingExpired uint8 = 0x04
	FlagNotGenerated    uint8 = 0x08
)

// Node is a single voxel of a Block.
type Node struct {
	Content uint16 // Content ID, resolved through Block.NameIDMapping.
	Param1  uint8
	Param2  uint8
}

// NameID maps a Block-local content ID to a node name.
type NameID struct {
	ID   uint16
	Name string
}

// MetaVar is a single named variable of NodeMetadata.
type MetaVar struct {
	Name    string
	Value   string
	Private bool
}

// NodeMetadata is metadata attached to the node at index Pos of the Block.
type NodeMetadata struct {
	Pos       uint16
	Vars      []MetaVar
	// Inventory is the serialized inventory text which precedes its
	// EndInventory line. It's opaque to this package.
	Inventory string
}

// StaticObject is an entity stored within a Block while it's unloaded.
type StaticObject struct {
	Type uint8
	// Pos is the object position in nodes, as fixed-point 1/1000ths.
	Pos  [3]int32
	Data string
}

// NodeTimer is a pending timer of the node at index Pos of the Block.
type NodeTimer struct {
	Pos     uint16
	Timeout int32 // Milliseconds.
	Elapsed int32 // Milliseconds.
}

// Block is the in-memory representation of a serialized map block.
type Block struct {
	Flags            uint8
	LightingComplete uint16
	Timestamp        uint32
	NameIDMapping    []NameID
	Nodes            [NodeCount]Node
	Metadata         []NodeMetadata
	StaticObjects    []StaticObject
	NodeTimers       []NodeTimer
}

// NodeIndex returns the index within Block.Nodes of the node at the given
// block-relative coordinates.
func NodeIndex(x, y, z int) int { return z*BlockSize*BlockSize + y*BlockSize + x }

// Canonicalize orders the Block's mappings, metadata and timers so that
// Blocks with equal content have equal representations. StaticObjects
// retain their order, which is significant.
func (b *Block) Canonicalize() {
	sort.SliceStable(b.NameIDMapping, func(i, j int) bool {
		return b.NameIDMapping[i].ID < b.NameIDMapping[j].ID
	})
	sort.SliceStable(b.Metadata, func(i, j int) bool {
		return b.Metadata[i].Pos < b.Metadata[j].Pos
	})
	for _, m := range b.Metadata {
		sort.SliceStable(m.Vars, func(i, j int) bool { return m.Vars[i].Name < m.Vars[j].Name })
	}
	sort.SliceStable(b.NodeTimers, func(i, j int) bool {
		return b.NodeTimers[i].Pos < b.NodeTimers[j].Pos
	})
}
