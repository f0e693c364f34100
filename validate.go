package devarchive

import (
	"errors"
	"fmt"
)

// Validate checks every structural invariant against the archive's current
// state and returns all violations joined, or nil. It reads resource
// headers through the common block and never reads device payloads.
// Shader tables are checked by ShaderRegions when they are first used.
func (a *Archive) Validate() error {
	var errs []error
	report := func(err error) { errs = append(errs, err) }

	commonStart := uint64(a.common.offset)
	commonEnd := commonStart + uint64(a.common.length())

	present := make(map[ChunkType]bool, len(a.chunks))
	for _, c := range a.chunks {
		present[c.Type] = true
		if !c.Type.Valid() {
			report(fmt.Errorf("%w: chunk type %d", ErrUnknownCategory, uint32(c.Type)))
			continue
		}
		if uint64(c.Offset) < commonStart || c.End() > commonEnd {
			report(outOfBounds("chunk "+c.Type.String(), uint64(c.Offset), uint64(c.Size), commonEnd))
		}
	}

	for _, category := range a.resources.Categories() {
		if !present[category] {
			report(fmt.Errorf("%w: %d %s indexed without a chunk", ErrMalformedHeader, a.resources.Len(category), category))
		}
		for name, region := range a.resources.All(category) {
			if err := a.validateResource(category, region); err != nil {
				report(&ResourceError{Op: "validate", Category: category, Name: name, Err: err})
			}
		}
	}

	if a.hasShaders {
		if a.shaders.Type != ChunkShaders {
			report(fmt.Errorf("%w: shaders header tag %q", ErrCategoryMismatch, a.shaders.Type))
		}
		if err := a.validateDeviceData(&a.shaders); err != nil {
			report(fmt.Errorf("shaders header: %w", err))
		}
	}

	for _, dev := range AllDevices() {
		slot := BlockOffsetTypeOf(dev)
		if base := a.baseOffsets[slot]; base != InvalidOffset && base < a.common.offset {
			report(fmt.Errorf("%w: %s block at %d precedes the common data", ErrMalformedHeader, dev, base))
		}
	}

	return errors.Join(errs...)
}

func (a *Archive) validateResource(category ChunkType, region Region) error {
	commonStart := uint64(a.common.offset)
	commonEnd := commonStart + uint64(a.common.length())
	if uint64(region.Offset) < commonStart || region.End() > commonEnd {
		return outOfBounds("resource", uint64(region.Offset), uint64(region.Size), commonEnd)
	}

	if !category.HasDeviceData() {
		var hdr RenderPassHeader
		if _, err := a.readHeader(region, &hdr); err != nil {
			return err
		}
		if hdr.Type != category {
			return fmt.Errorf("%w: stored tag %q", ErrCategoryMismatch, hdr.Type)
		}
		return nil
	}

	hdr, err := a.readDataHeader(region)
	if err != nil {
		return err
	}
	if hdr.Type != category {
		return fmt.Errorf("%w: stored tag %q", ErrCategoryMismatch, hdr.Type)
	}
	return a.validateDeviceData(&hdr)
}

// validateDeviceData checks every device slot of hdr for sentinel
// consistency and block bounds.
func (a *Archive) validateDeviceData(hdr *DataHeader) error {
	var errs []error
	for _, dev := range AllDevices() {
		size, off := hdr.Size(dev), hdr.Offset(dev)
		if (size == 0) != (off == InvalidOffset) {
			errs = append(errs, fmt.Errorf("%w: %s has size %d at offset 0x%X", ErrMalformedHeader, dev, size, off))
			continue
		}
		if !hdr.Has(dev) {
			continue
		}
		block := &a.devices[BlockOffsetTypeOf(dev)]
		if !block.valid() {
			errs = append(errs, fmt.Errorf("%w: %s payload without a %s block", ErrNoDeviceData, dev, dev))
			continue
		}
		if hdr.EndOffset(dev) > uint64(block.length()) {
			errs = append(errs, outOfBounds(dev.String()+" data", uint64(off), uint64(size), uint64(block.length())))
		}
	}
	return errors.Join(errs...)
}
