// Package mapblock models map blocks: the 16x16x16 node cubes which are the
// atomic unit of map storage. It provides block positions and their key
// encodings, an in-memory Block representation, and a Codec which decodes
// blocks of any supported serialization version and encodes them at the
// newest one.
//
// A serialized block is a single version byte followed by a version-specific
// body. Version 28 compresses the node and metadata sections individually
// with zlib; version 29 moves the timestamp and name-id mapping to the front
// of the body and compresses the entire body as one Zstandard frame.
package mapblock
