// Package layout defines the fixed-size binary records of a device object
// archive and their little-endian encodings.
//
// The archive is laid out as
//
//	| ArchiveHeader | ChunkHeader[NumChunks] | common data | device blocks |
//
// A ChunkHeader points at a NamedResourceArray; each array entry points at a
// DataHeader (or RenderPassHeader) followed by backend-independent payload;
// each DataHeader points, per device, into that device's block.
//
// Every record is a multiple of 8 bytes and is encoded field by field rather
// than through struct layout.
package layout
