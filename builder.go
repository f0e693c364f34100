package devarchive

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/meigma/devarchive/internal/layout"
	"github.com/meigma/devarchive/internal/serial"
	"github.com/meigma/devarchive/internal/sizing"
)

type builderResource struct {
	common  []byte
	devices map[DeviceType][]byte
}

// Builder assembles a new archive in memory.
//
// Device payloads are packed into their device's block in category and name
// order, followed by that device's shaders and shader table. An empty
// payload is treated as absent.
type Builder struct {
	resources [layout.ChunkCount]map[string]builderResource
	shaders   [DeviceCount][][]byte
	debugInfo *DebugInfo
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) add(category ChunkType, name string, res builderResource) error {
	if name == "" {
		return &ResourceError{Op: "build", Category: category, Name: name, Err: fmt.Errorf("%w: empty name", ErrMalformedHeader)}
	}
	for dev := range res.devices {
		if err := checkDevice(dev); err != nil {
			return &ResourceError{Op: "build", Category: category, Name: name, Err: err}
		}
	}
	if b.resources[category] == nil {
		b.resources[category] = make(map[string]builderResource)
	}
	if _, dup := b.resources[category][name]; dup {
		return &ResourceError{Op: "build", Category: category, Name: name, Err: ErrDuplicateResourceName}
	}
	b.resources[category][name] = res
	return nil
}

// AddSignature adds a resource signature with its backend-independent
// payload and per-device payloads.
func (b *Builder) AddSignature(name string, common []byte, devices map[DeviceType][]byte) error {
	return b.add(ChunkResourceSignature, name, builderResource{common: common, devices: devices})
}

// AddPipeline adds a pipeline state to one of the pipeline categories.
func (b *Builder) AddPipeline(category ChunkType, name string, common []byte, devices map[DeviceType][]byte) error {
	if !category.IsPipeline() {
		return &ResourceError{Op: "build", Category: category, Name: name, Err: ErrUnknownCategory}
	}
	return b.add(category, name, builderResource{common: common, devices: devices})
}

// AddRenderPass adds a render pass. Render passes carry no device data.
func (b *Builder) AddRenderPass(name string, payload []byte) error {
	return b.add(ChunkRenderPass, name, builderResource{common: payload})
}

// AddShader appends bytecode to dev's shaders and returns its index.
func (b *Builder) AddShader(dev DeviceType, bytecode []byte) (uint32, error) {
	if err := checkDevice(dev); err != nil {
		return 0, err
	}
	if len(bytecode) == 0 {
		return 0, fmt.Errorf("%w: empty %s shader", ErrTruncatedPayload, dev)
	}
	b.shaders[dev] = append(b.shaders[dev], bytecode)
	return uint32(len(b.shaders[dev]) - 1), nil //nolint:gosec // shader counts are small
}

// SetDebugInfo records advisory build information.
func (b *Builder) SetDebugInfo(info DebugInfo) {
	b.debugInfo = &info
}

// Build returns the encoded archive.
func (b *Builder) Build() ([]byte, error) {
	in := &linearInput{debugInfo: b.debugInfo}
	var blocks [DeviceCount]serial.Writer

	if b.debugInfo != nil {
		in.chunks = append(in.chunks, ChunkArchiveDebugInfo)
	}
	for _, category := range layout.NamedChunkTypes() {
		if len(b.resources[category]) == 0 {
			continue
		}
		in.chunks = append(in.chunks, category)
		for _, name := range slices.Sorted(maps.Keys(b.resources[category])) {
			data, err := b.encodeResource(category, b.resources[category][name], &blocks)
			if err != nil {
				return nil, &ResourceError{Op: "build", Category: category, Name: name, Err: err}
			}
			in.named[category] = append(in.named[category], namedData{name: name, data: data})
		}
	}

	shaders := layout.NewDataHeader(ChunkShaders)
	hasShaders := false
	for _, dev := range AllDevices() {
		if len(b.shaders[dev]) == 0 {
			continue
		}
		hasShaders = true
		w := &blocks[dev]
		table := serial.Writer{}
		for _, code := range b.shaders[dev] {
			w.Pad(sizing.Align)
			off, err := blockOffset(w)
			if err != nil {
				return nil, err
			}
			table.PutUint32(off)
			table.PutUint32(uint32(len(code))) //nolint:gosec // bounded by blockOffset
			w.PutBytes(code)
		}
		w.Pad(sizing.Align)
		off, err := blockOffset(w)
		if err != nil {
			return nil, err
		}
		w.PutBytes(table.Bytes())
		shaders.Set(dev, off, uint32(table.Len())) //nolint:gosec // bounded by blockOffset
	}
	if hasShaders {
		in.chunks = append(in.chunks, ChunkShaders)
		in.shaders = &shaders
	}
	slices.Sort(in.chunks)

	for i := range blocks {
		if blocks[i].Len() > 0 {
			blk := newMemoryBlock(blocks[i].Bytes())
			in.blocks[i] = &blk
		}
	}

	var buf bytes.Buffer
	if _, err := linearize(in, &buf); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeResource packs res's device payloads into blocks and returns the
// resource's header followed by its common payload.
func (b *Builder) encodeResource(category ChunkType, res builderResource, blocks *[DeviceCount]serial.Writer) ([]byte, error) {
	var w serial.Writer
	if category == ChunkRenderPass {
		hdr := RenderPassHeader{Type: category}
		buf := make([]byte, RenderPassHeaderSize)
		hdr.EncodeTo(buf)
		w.PutBytes(buf)
		w.PutBytes(res.common)
		return w.Bytes(), nil
	}

	hdr := layout.NewDataHeader(category)
	for _, dev := range AllDevices() {
		payload := res.devices[dev]
		if len(payload) == 0 {
			continue
		}
		block := &blocks[dev]
		block.Pad(sizing.Align)
		off, err := blockOffset(block)
		if err != nil {
			return nil, err
		}
		block.PutBytes(payload)
		hdr.Set(dev, off, uint32(len(payload))) //nolint:gosec // bounded by blockOffset
	}
	buf := make([]byte, DataHeaderSize)
	hdr.EncodeTo(buf)
	w.PutBytes(buf)
	w.PutBytes(res.common)
	return w.Bytes(), nil
}

func blockOffset(w *serial.Writer) (uint32, error) {
	if uint64(w.Len()) >= uint64(InvalidOffset) {
		return 0, errArchiveTooLarge
	}
	return uint32(w.Len()), nil
}
