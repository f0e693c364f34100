package devarchive

import (
	"fmt"
)

// archiveBlock is a contiguous byte range of the archive: the common data or
// one device's data. It reads through to the source until load is called,
// after which mem is the block's only content and may be patched.
type archiveBlock struct {
	reader *sourceReader
	offset uint32 // absolute offset in the source; InvalidOffset when not backed by it
	size   uint32

	mem    []byte
	loaded bool
}

func newSourceBlock(r *sourceReader, offset, size uint32) archiveBlock {
	return archiveBlock{reader: r, offset: offset, size: size}
}

func newMemoryBlock(data []byte) archiveBlock {
	return archiveBlock{offset: InvalidOffset, mem: data, loaded: true}
}

// valid reports whether the block holds data.
func (b *archiveBlock) valid() bool {
	return b.loaded || (b.reader != nil && b.offset != InvalidOffset)
}

// length returns the block size in bytes.
func (b *archiveBlock) length() uint32 {
	if b.loaded {
		return uint32(len(b.mem)) //nolint:gosec // blocks are built from 32-bit sizes
	}
	return b.size
}

// absolute returns the source offset of a block-relative offset. ok is false
// for materialized blocks, which no longer mirror the source.
func (b *archiveBlock) absolute(off uint32) (uint64, bool) {
	if b.loaded || b.offset == InvalidOffset {
		return 0, false
	}
	return uint64(b.offset) + uint64(off), true
}

// read returns a copy of size bytes at block-relative offset off.
func (b *archiveBlock) read(off, size uint32) ([]byte, error) {
	if !b.valid() {
		return nil, ErrNoDeviceData
	}
	if end := uint64(off) + uint64(size); end > uint64(b.length()) {
		return nil, outOfBounds("read block", uint64(off), uint64(size), uint64(b.length()))
	}
	if b.loaded {
		out := make([]byte, size)
		copy(out, b.mem[off:])
		return out, nil
	}
	return b.reader.read(uint64(b.offset)+uint64(off), size)
}

// contents returns a copy of the whole block.
func (b *archiveBlock) contents() ([]byte, error) {
	return b.read(0, b.length())
}

// load materializes the block so it can be patched. Loading twice is a no-op.
func (b *archiveBlock) load() error {
	if b.loaded {
		return nil
	}
	if !b.valid() {
		return ErrNoDeviceData
	}
	data, err := b.reader.read(uint64(b.offset), b.size)
	if err != nil {
		return fmt.Errorf("load block at %d: %w", b.offset, err)
	}
	b.mem = data
	b.loaded = true
	return nil
}

// write patches p into a loaded block at block-relative offset off.
func (b *archiveBlock) write(off uint32, p []byte) error {
	if !b.loaded {
		return fmt.Errorf("write to block at %d: block is not loaded", b.offset)
	}
	if end := uint64(off) + uint64(len(p)); end > uint64(len(b.mem)) {
		return outOfBounds("write block", uint64(off), uint64(len(p)), uint64(len(b.mem)))
	}
	copy(b.mem[off:], p)
	return nil
}
