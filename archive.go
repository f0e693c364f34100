package devarchive

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/meigma/devarchive/internal/layout"
)

// Archive is an opened device object archive.
//
// The chunk table, resource map and base offsets are written once by Open
// and may be read concurrently. ShaderRegions and the load methods are safe
// for concurrent use. RemoveDeviceData, AppendDeviceData and Serialize are
// single-writer operations: callers must not run them concurrently with any
// other method on the same Archive.
type Archive struct {
	reader      *sourceReader
	baseOffsets [layout.BlockCount]uint32
	chunks      []ChunkHeader
	resources   *ResourceMap

	shaders    DataHeader
	hasShaders bool
	debugInfo  DebugInfo
	hasDebug   bool

	common  archiveBlock
	devices [layout.BlockCount]archiveBlock

	shaderRegions [DeviceCount]shaderRegionCell

	cfg *config
}

// shaderRegionCell caches the shader regions of one device.
type shaderRegionCell struct {
	mu       sync.Mutex
	computed bool
	regions  []Region
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.cfg.logger
}

// Open loads the archive header, chunk table and resource index from src.
//
// The magic number and version are checked before any other field. No
// device payload is read; device data is fetched lazily on request. Open
// stops at the first structural error and returns no archive.
func Open(src ByteSource, opts ...Option) (*Archive, error) {
	return open(src, newConfig(opts))
}

func open(src ByteSource, cfg *config) (*Archive, error) {
	a := &Archive{
		reader:    &sourceReader{src: src},
		resources: newResourceMap(),
		shaders:   layout.NewDataHeader(ChunkShaders),
		cfg:       cfg,
	}
	if err := a.load(); err != nil {
		return nil, err
	}
	a.log().Debug("archive opened",
		"source", src.SourceID(),
		"chunks", len(a.chunks),
		"devices", len(a.Devices()))

	if cfg.validateOnOpen {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Archive) load() error {
	size := a.reader.src.Size()
	if size < layout.ArchiveHeaderSize {
		return fmt.Errorf("%w: archive is %d bytes, header needs %d", ErrMalformedHeader, size, layout.ArchiveHeaderSize)
	}
	if size > math.MaxUint32 {
		return fmt.Errorf("%w: archive is %d bytes, offsets are 32-bit", ErrMalformedHeader, size)
	}
	limit := uint64(size)

	buf, err := a.reader.read(0, layout.ArchiveHeaderSize)
	if err != nil {
		return err
	}
	hdr, err := layout.DecodeArchiveHeader(buf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	if hdr.MagicNumber != HeaderMagicNumber {
		return fmt.Errorf("%w: magic number 0x%08X, want 0x%08X", ErrMalformedHeader, hdr.MagicNumber, HeaderMagicNumber)
	}
	if hdr.Version != HeaderVersion {
		return fmt.Errorf("%w: version %d, only version %d is supported", ErrMalformedHeader, hdr.Version, HeaderVersion)
	}

	tableEnd := uint64(layout.ArchiveHeaderSize) + uint64(hdr.NumChunks)*layout.ChunkHeaderSize
	if tableEnd > limit {
		return fmt.Errorf("%w: %d chunk headers overrun a %d byte archive", ErrMalformedHeader, hdr.NumChunks, size)
	}
	table, err := a.reader.read(layout.ArchiveHeaderSize, uint32(tableEnd)-layout.ArchiveHeaderSize)
	if err != nil {
		return err
	}

	chunks := make([]ChunkHeader, hdr.NumChunks)
	var seen [layout.ChunkCount]bool
	for i := range chunks {
		chunk, err := layout.DecodeChunkHeader(table[i*layout.ChunkHeaderSize:])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedHeader, err)
		}
		if !chunk.Type.Valid() {
			return fmt.Errorf("%w: chunk %d has type %d", ErrUnknownCategory, i, uint32(chunk.Type))
		}
		if seen[chunk.Type] {
			return fmt.Errorf("%w: chunk %q appears more than once", ErrMalformedHeader, chunk.Type)
		}
		seen[chunk.Type] = true
		if chunk.End() > limit {
			return outOfBounds("read chunk "+chunk.Type.String(), uint64(chunk.Offset), uint64(chunk.Size), limit)
		}
		chunks[i] = chunk
	}

	for _, chunk := range chunks {
		if err := a.loadChunk(chunk, limit); err != nil {
			return err
		}
	}
	a.chunks = chunks

	return a.loadBlocks(hdr.BlockBaseOffsets, uint32(tableEnd), uint32(limit))
}

func (a *Archive) loadChunk(chunk ChunkHeader, limit uint64) error {
	data, err := a.reader.read(uint64(chunk.Offset), chunk.Size)
	if err != nil {
		return err
	}

	switch {
	case chunk.Type.IsNamed():
		entries, err := layout.DecodeNamedResources(data)
		if err != nil {
			return fmt.Errorf("%w: chunk %q: %w", ErrMalformedHeader, chunk.Type, err)
		}
		for _, e := range entries {
			r := Region{Offset: e.Offset, Size: e.Size}
			if r.End() > limit {
				return &ResourceError{Op: "open", Category: chunk.Type, Name: e.Name,
					Err: outOfBounds("resource", uint64(r.Offset), uint64(r.Size), limit)}
			}
			if err := a.resources.insert(chunk.Type, e.Name, r); err != nil {
				return err
			}
		}

	case chunk.Type == ChunkShaders:
		if err := a.shaders.DecodeFrom(data); err != nil {
			return fmt.Errorf("%w: shaders chunk: %w", ErrMalformedHeader, err)
		}
		if a.shaders.Type != ChunkShaders {
			return fmt.Errorf("%w: shaders header has type %q", ErrCategoryMismatch, a.shaders.Type)
		}
		a.hasShaders = true

	case chunk.Type == ChunkArchiveDebugInfo:
		if err := a.debugInfo.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("%w: debug info chunk: %w", ErrMalformedHeader, err)
		}
		a.hasDebug = true
	}
	return nil
}

// loadBlocks derives the common block and every device block from the base
// offsets. A device block extends to the next larger base offset or the end
// of the archive.
func (a *Archive) loadBlocks(bases [layout.BlockCount]uint32, tableEnd, limit uint32) error {
	starts := make([]uint32, 0, len(bases)+1)
	for i, base := range bases {
		if base == InvalidOffset {
			continue
		}
		if base > limit {
			return outOfBounds("device block "+BlockOffsetType(i).String(), uint64(base), 0, uint64(limit))
		}
		if base < tableEnd {
			return fmt.Errorf("%w: %s block at %d overlaps the chunk table", ErrMalformedHeader, BlockOffsetType(i), base)
		}
		if slices.Contains(starts, base) {
			return fmt.Errorf("%w: two device blocks start at %d", ErrMalformedHeader, base)
		}
		starts = append(starts, base)
	}
	starts = append(starts, limit)
	slices.Sort(starts)

	next := func(off uint32) uint32 {
		for _, s := range starts {
			if s > off {
				return s
			}
		}
		return limit
	}

	a.baseOffsets = bases
	a.common = newSourceBlock(a.reader, tableEnd, starts[0]-tableEnd)
	for i, base := range bases {
		if base == InvalidOffset {
			continue
		}
		a.devices[i] = newSourceBlock(a.reader, base, next(base)-base)
	}
	return nil
}

// Source returns the byte source the archive was opened from.
func (a *Archive) Source() ByteSource {
	return a.reader.src
}

// Chunks returns the chunk table in archive order.
func (a *Archive) Chunks() []ChunkHeader {
	return slices.Clone(a.chunks)
}

// Chunk returns the header of the chunk of type t.
func (a *Archive) Chunk(t ChunkType) (ChunkHeader, bool) {
	for _, c := range a.chunks {
		if c.Type == t {
			return c, true
		}
	}
	return ChunkHeader{}, false
}

// Resources returns the resource index.
func (a *Archive) Resources() *ResourceMap {
	return a.resources
}

// BaseOffset returns the source offset of a device block, or InvalidOffset
// when the block is absent from the source. Blocks added by
// AppendDeviceData have no source offset until the archive is serialized.
func (a *Archive) BaseOffset(t BlockOffsetType) uint32 {
	if int(t) >= len(a.baseOffsets) {
		return InvalidOffset
	}
	return a.baseOffsets[t]
}

// HasDevice reports whether the archive holds a data block for dev.
func (a *Archive) HasDevice(dev DeviceType) bool {
	return dev.Valid() && a.devices[BlockOffsetTypeOf(dev)].valid()
}

// Devices returns the devices that have a data block, in slot order.
func (a *Archive) Devices() []DeviceType {
	var devs []DeviceType
	for _, dev := range AllDevices() {
		if a.HasDevice(dev) {
			devs = append(devs, dev)
		}
	}
	return devs
}

// DeviceBlockSize returns the size of dev's data block.
func (a *Archive) DeviceBlockSize(dev DeviceType) (uint32, bool) {
	if !a.HasDevice(dev) {
		return 0, false
	}
	return a.devices[BlockOffsetTypeOf(dev)].length(), true
}

// DebugInfo returns the archive's debug information, if present.
func (a *Archive) DebugInfo() (DebugInfo, bool) {
	return a.debugInfo, a.hasDebug
}

// ShadersHeader returns the shared shaders header, if the archive has a
// shaders chunk.
func (a *Archive) ShadersHeader() (DataHeader, bool) {
	return a.shaders, a.hasShaders
}

func checkDevice(dev DeviceType) error {
	if !dev.Valid() {
		return fmt.Errorf("%w: invalid device type %d", ErrNoDeviceData, uint32(dev))
	}
	return nil
}

// readHeader decodes the header at the start of a resource region.
func (a *Archive) readHeader(region Region, hdr ResourceHeader) ([]byte, error) {
	if region.Size < uint32(hdr.EncodedSize()) { //nolint:gosec // header sizes are small constants
		return nil, fmt.Errorf("%w: region of %d bytes cannot hold a %d byte header",
			ErrTruncatedPayload, region.Size, hdr.EncodedSize())
	}
	data, err := a.readCommon(region)
	if err != nil {
		return nil, err
	}
	if err := hdr.DecodeFrom(data); err != nil {
		return nil, errors.Join(ErrTruncatedPayload, err)
	}
	return data, nil
}

// readCommon reads an absolute region that lies in the common block.
func (a *Archive) readCommon(region Region) ([]byte, error) {
	start := a.common.offset
	if region.Offset < start {
		return nil, outOfBounds("read common data", uint64(region.Offset), uint64(region.Size), uint64(start)+uint64(a.common.length()))
	}
	return a.common.read(region.Offset-start, region.Size)
}

// writeCommon patches bytes at an absolute offset inside the loaded common block.
func (a *Archive) writeCommon(off uint32, p []byte) error {
	return a.common.write(off-a.common.offset, p)
}
