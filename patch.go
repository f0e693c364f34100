package devarchive

import (
	"fmt"

	"github.com/meigma/devarchive/internal/layout"
)

// headerPatch is a data header rewrite staged by a mutation.
type headerPatch struct {
	category ChunkType
	name     string
	region   Region
	header   DataHeader
}

// deviceHeaders reads the data header of every resource that carries
// per-device payloads, checking each stored tag against its category.
func (a *Archive) deviceHeaders(op string) ([]headerPatch, error) {
	var patches []headerPatch
	for _, category := range layout.NamedChunkTypes() {
		if !category.HasDeviceData() {
			continue
		}
		for name, region := range a.resources.All(category) {
			hdr, err := a.readDataHeader(region)
			if err != nil {
				return nil, &ResourceError{Op: op, Category: category, Name: name, Err: err}
			}
			if hdr.Type != category {
				return nil, &ResourceError{Op: op, Category: category, Name: name,
					Err: fmt.Errorf("%w: stored tag %q", ErrCategoryMismatch, hdr.Type)}
			}
			patches = append(patches, headerPatch{category: category, name: name, region: region, header: hdr})
		}
	}
	return patches, nil
}

func (a *Archive) applyPatches(patches []headerPatch) error {
	for i := range patches {
		if err := a.writeDataHeader(patches[i].region, &patches[i].header); err != nil {
			return err
		}
	}
	return nil
}

// RemoveDeviceData strips dev's data: its block is dropped and every data
// header, including the shaders header, marks dev as absent.
//
// RemoveDeviceData must not run concurrently with any other method.
func (a *Archive) RemoveDeviceData(dev DeviceType) error {
	if err := checkDevice(dev); err != nil {
		return err
	}
	if !a.HasDevice(dev) {
		return fmt.Errorf("remove %s: %w", dev, ErrNoDeviceData)
	}
	if err := a.common.load(); err != nil {
		return fmt.Errorf("remove %s: %w", dev, err)
	}

	patches, err := a.deviceHeaders("remove")
	if err != nil {
		return err
	}
	for i := range patches {
		patches[i].header.Clear(dev)
	}
	if err := a.applyPatches(patches); err != nil {
		return fmt.Errorf("remove %s: %w", dev, err)
	}

	if a.hasShaders {
		a.shaders.Clear(dev)
	}
	slot := BlockOffsetTypeOf(dev)
	a.devices[slot] = archiveBlock{}
	a.baseOffsets[slot] = InvalidOffset
	a.resetShaderRegions(dev)

	a.log().Debug("device data removed", "device", dev.String(), "resources", len(patches))
	return nil
}

// AppendDeviceData copies dev's data from src into a.
//
// a must not already hold dev, and both archives must index the same
// resource names in every category. Payload offsets are relative to the
// device block, which is copied whole, so every resource keeps its source
// offset and size for dev.
//
// AppendDeviceData must not run concurrently with any other method on a.
func (a *Archive) AppendDeviceData(src *Archive, dev DeviceType) error {
	if err := checkDevice(dev); err != nil {
		return err
	}
	if a.HasDevice(dev) {
		return fmt.Errorf("append %s: %w", dev, ErrBackendAlreadyPresent)
	}
	if !src.HasDevice(dev) {
		return fmt.Errorf("append %s: %w: %w", dev, ErrStructuralMismatch, ErrNoDeviceData)
	}
	for _, category := range layout.NamedChunkTypes() {
		if name, ok := a.resources.diff(src.resources, category); ok {
			return &ResourceError{Op: "append", Category: category, Name: name, Err: ErrStructuralMismatch}
		}
	}
	if a.hasShaders != src.hasShaders {
		return fmt.Errorf("append %s: %w: shaders chunk present in only one archive", dev, ErrStructuralMismatch)
	}

	srcBlock := &src.devices[BlockOffsetTypeOf(dev)]
	limit := uint64(srcBlock.length())

	if err := a.common.load(); err != nil {
		return fmt.Errorf("append %s: %w", dev, err)
	}
	patches, err := a.deviceHeaders("append")
	if err != nil {
		return err
	}
	for i := range patches {
		p := &patches[i]
		name, category := p.name, p.category
		srcRegion, _ := src.resources.Lookup(category, name)
		srcHdr, err := src.readDataHeader(srcRegion)
		if err != nil {
			return &ResourceError{Op: "append", Category: category, Name: name, Err: err}
		}
		if srcHdr.Type != category {
			return &ResourceError{Op: "append", Category: category, Name: name,
				Err: fmt.Errorf("%w: source tag %q", ErrCategoryMismatch, srcHdr.Type)}
		}
		if !srcHdr.Has(dev) {
			p.header.Clear(dev)
			continue
		}
		if srcHdr.EndOffset(dev) > limit {
			return &ResourceError{Op: "append", Category: category, Name: name,
				Err: outOfBounds(dev.String()+" data", uint64(srcHdr.Offset(dev)), uint64(srcHdr.Size(dev)), limit)}
		}
		p.header.Set(dev, srcHdr.Offset(dev), srcHdr.Size(dev))
	}

	data, err := srcBlock.contents()
	if err != nil {
		return fmt.Errorf("append %s: read source block: %w", dev, err)
	}

	if err := a.applyPatches(patches); err != nil {
		return fmt.Errorf("append %s: %w", dev, err)
	}
	if a.hasShaders {
		if src.shaders.Has(dev) {
			a.shaders.Set(dev, src.shaders.Offset(dev), src.shaders.Size(dev))
		} else {
			a.shaders.Clear(dev)
		}
	}
	a.devices[BlockOffsetTypeOf(dev)] = newMemoryBlock(data)
	a.resetShaderRegions(dev)

	a.log().Debug("device data appended",
		"device", dev.String(),
		"source", src.Source().SourceID(),
		"bytes", len(data))
	return nil
}
