package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderMagicNumber identifies a device object archive.
	HeaderMagicNumber uint32 = 0xDE00000A

	// HeaderVersion is the only format version this package reads or writes.
	HeaderVersion uint32 = 2

	// InvalidOffset marks an absent device payload or device block.
	InvalidOffset uint32 = ^uint32(0)

	padding uint32 = ^uint32(0)
)

// Record sizes in bytes.
const (
	ArchiveHeaderSize            = 4 + 4 + 4*BlockCount + 4 + 4
	ChunkHeaderSize              = 16
	NamedResourceArrayHeaderSize = 8
	DataHeaderSize               = 8 + 4*DeviceCount + 4*DeviceCount
	RenderPassHeaderSize         = 8
)

// ErrShortBuffer is returned when a buffer is too small for a record.
var ErrShortBuffer = errors.New("layout: short buffer")

func init() {
	for name, size := range map[string]int{
		"ArchiveHeader":            ArchiveHeaderSize,
		"ChunkHeader":              ChunkHeaderSize,
		"NamedResourceArrayHeader": NamedResourceArrayHeaderSize,
		"DataHeader":               DataHeaderSize,
		"RenderPassHeader":         RenderPassHeaderSize,
	} {
		if size%8 != 0 {
			panic(fmt.Sprintf("layout: size of %s (%d) must be a multiple of 8", name, size))
		}
	}
}

func short(what string, need, got int) error {
	return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortBuffer, what, need, got)
}

var le = binary.LittleEndian

// ArchiveHeader is the first record of every archive.
type ArchiveHeader struct {
	MagicNumber      uint32
	Version          uint32
	BlockBaseOffsets [BlockCount]uint32
	NumChunks        uint32
}

// NewArchiveHeader returns a header with the current magic and version and
// every block marked absent.
func NewArchiveHeader() ArchiveHeader {
	h := ArchiveHeader{MagicNumber: HeaderMagicNumber, Version: HeaderVersion}
	for i := range h.BlockBaseOffsets {
		h.BlockBaseOffsets[i] = InvalidOffset
	}
	return h
}

// EncodeTo writes the header into buf, which must hold ArchiveHeaderSize bytes.
func (h *ArchiveHeader) EncodeTo(buf []byte) {
	le.PutUint32(buf[0:], h.MagicNumber)
	le.PutUint32(buf[4:], h.Version)
	off := 8
	for _, base := range h.BlockBaseOffsets {
		le.PutUint32(buf[off:], base)
		off += 4
	}
	le.PutUint32(buf[off:], h.NumChunks)
	le.PutUint32(buf[off+4:], padding)
}

// DecodeArchiveHeader reads a header from buf without validating it.
func DecodeArchiveHeader(buf []byte) (ArchiveHeader, error) {
	if len(buf) < ArchiveHeaderSize {
		return ArchiveHeader{}, short("archive header", ArchiveHeaderSize, len(buf))
	}
	h := ArchiveHeader{
		MagicNumber: le.Uint32(buf[0:]),
		Version:     le.Uint32(buf[4:]),
	}
	off := 8
	for i := range h.BlockBaseOffsets {
		h.BlockBaseOffsets[i] = le.Uint32(buf[off:])
		off += 4
	}
	h.NumChunks = le.Uint32(buf[off:])
	return h, nil
}

// ChunkHeader describes one resource category section.
type ChunkHeader struct {
	Type   ChunkType
	Size   uint32
	Offset uint32 // to the NamedResourceArrayHeader, or the chunk's single record
}

// End returns the absolute end offset of the chunk.
func (c ChunkHeader) End() uint64 {
	return uint64(c.Offset) + uint64(c.Size)
}

// EncodeTo writes the chunk header into buf.
func (c *ChunkHeader) EncodeTo(buf []byte) {
	le.PutUint32(buf[0:], uint32(c.Type))
	le.PutUint32(buf[4:], c.Size)
	le.PutUint32(buf[8:], c.Offset)
	le.PutUint32(buf[12:], padding)
}

// DecodeChunkHeader reads a chunk header from buf.
func DecodeChunkHeader(buf []byte) (ChunkHeader, error) {
	if len(buf) < ChunkHeaderSize {
		return ChunkHeader{}, short("chunk header", ChunkHeaderSize, len(buf))
	}
	return ChunkHeader{
		Type:   ChunkType(le.Uint32(buf[0:])),
		Size:   le.Uint32(buf[4:]),
		Offset: le.Uint32(buf[8:]),
	}, nil
}

// DataHeader maps each device to its payload inside that device's block.
// Signatures, pipeline states and the shared shaders record all use it.
type DataHeader struct {
	Type    ChunkType
	Sizes   [DeviceCount]uint32
	Offsets [DeviceCount]uint32
}

// NewDataHeader returns a header of type t with no device payloads.
func NewDataHeader(t ChunkType) DataHeader {
	h := DataHeader{Type: t}
	for i := range h.Offsets {
		h.Offsets[i] = InvalidOffset
	}
	return h
}

// Category returns the stored chunk type tag.
func (h *DataHeader) Category() ChunkType { return h.Type }

// Size returns the payload size for dev.
func (h *DataHeader) Size(dev DeviceType) uint32 { return h.Sizes[dev] }

// Offset returns the block-relative payload offset for dev.
func (h *DataHeader) Offset(dev DeviceType) uint32 { return h.Offsets[dev] }

// EndOffset returns Offset(dev)+Size(dev) without wrapping.
func (h *DataHeader) EndOffset(dev DeviceType) uint64 {
	return uint64(h.Offsets[dev]) + uint64(h.Sizes[dev])
}

// Has reports whether dev has a payload.
func (h *DataHeader) Has(dev DeviceType) bool {
	return h.Offsets[dev] != InvalidOffset
}

// Set records a payload for dev.
func (h *DataHeader) Set(dev DeviceType, offset, size uint32) {
	h.Offsets[dev] = offset
	h.Sizes[dev] = size
}

// Clear marks dev's payload as absent.
func (h *DataHeader) Clear(dev DeviceType) {
	h.Offsets[dev] = InvalidOffset
	h.Sizes[dev] = 0
}

// EncodeTo writes the header into buf.
func (h *DataHeader) EncodeTo(buf []byte) {
	le.PutUint32(buf[0:], uint32(h.Type))
	le.PutUint32(buf[4:], padding)
	off := 8
	for _, size := range h.Sizes {
		le.PutUint32(buf[off:], size)
		off += 4
	}
	for _, offset := range h.Offsets {
		le.PutUint32(buf[off:], offset)
		off += 4
	}
}

// DecodeFrom reads the header from buf.
func (h *DataHeader) DecodeFrom(buf []byte) error {
	if len(buf) < DataHeaderSize {
		return short("data header", DataHeaderSize, len(buf))
	}
	h.Type = ChunkType(le.Uint32(buf[0:]))
	off := 8
	for i := range h.Sizes {
		h.Sizes[i] = le.Uint32(buf[off:])
		off += 4
	}
	for i := range h.Offsets {
		h.Offsets[i] = le.Uint32(buf[off:])
		off += 4
	}
	return nil
}

// EncodedSize returns DataHeaderSize.
func (h *DataHeader) EncodedSize() int { return DataHeaderSize }

// RenderPassHeader precedes a render pass description. Render passes are
// backend independent and carry no device payloads.
type RenderPassHeader struct {
	Type ChunkType
}

// Category returns the stored chunk type tag.
func (h *RenderPassHeader) Category() ChunkType { return h.Type }

// EncodeTo writes the header into buf.
func (h *RenderPassHeader) EncodeTo(buf []byte) {
	le.PutUint32(buf[0:], uint32(h.Type))
	le.PutUint32(buf[4:], padding)
}

// DecodeFrom reads the header from buf.
func (h *RenderPassHeader) DecodeFrom(buf []byte) error {
	if len(buf) < RenderPassHeaderSize {
		return short("render pass header", RenderPassHeaderSize, len(buf))
	}
	h.Type = ChunkType(le.Uint32(buf[0:]))
	return nil
}

// EncodedSize returns RenderPassHeaderSize.
func (h *RenderPassHeader) EncodedSize() int { return RenderPassHeaderSize }
