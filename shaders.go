package devarchive

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
)

// shaderEntrySize is the encoded size of one (offset, size) shader entry.
const shaderEntrySize = 8

// ShaderRegions returns the byte ranges of dev's shaders, relative to dev's
// block, indexed by shader index.
//
// The list is computed on first use and cached per device. Concurrent
// callers for the same device wait for a single computation and share its
// result; different devices never block each other. Failed computations are
// not cached.
func (a *Archive) ShaderRegions(dev DeviceType) ([]Region, error) {
	if err := checkDevice(dev); err != nil {
		return nil, err
	}
	cell := &a.shaderRegions[dev]
	cell.mu.Lock()
	defer cell.mu.Unlock()

	if !cell.computed {
		regions, err := a.computeShaderRegions(dev)
		if err != nil {
			return nil, err
		}
		cell.regions = regions
		cell.computed = true
	}
	return slices.Clone(cell.regions), nil
}

func (a *Archive) computeShaderRegions(dev DeviceType) ([]Region, error) {
	if a.cfg.shaderHook != nil {
		a.cfg.shaderHook(dev)
	}
	if !a.hasShaders || !a.shaders.Has(dev) {
		return []Region{}, nil
	}

	table, ok, err := a.GetDeviceSpecificData(dev, &a.shaders, ChunkShaders)
	if err != nil {
		return nil, fmt.Errorf("read %s shader table: %w", dev, err)
	}
	if !ok {
		return []Region{}, nil
	}
	if len(table)%shaderEntrySize != 0 {
		return nil, fmt.Errorf("%w: %s shader table is %d bytes, not a multiple of %d",
			ErrTruncatedPayload, dev, len(table), shaderEntrySize)
	}

	limit := uint64(a.devices[BlockOffsetTypeOf(dev)].length())
	regions := make([]Region, len(table)/shaderEntrySize)
	for i := range regions {
		entry := table[i*shaderEntrySize:]
		r := Region{
			Offset: binary.LittleEndian.Uint32(entry[0:]),
			Size:   binary.LittleEndian.Uint32(entry[4:]),
		}
		if r.End() > limit {
			return nil, outOfBounds(fmt.Sprintf("%s shader %d", dev, i), uint64(r.Offset), uint64(r.Size), limit)
		}
		regions[i] = r
	}

	a.log().Debug("shader regions computed", "device", dev.String(), "count", len(regions))
	return regions, nil
}

// LoadShader returns the bytecode of dev's shader at index.
func (a *Archive) LoadShader(dev DeviceType, index int) ([]byte, error) {
	regions, err := a.ShaderRegions(dev)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(regions) {
		return nil, fmt.Errorf("%w: %s has %d shaders, index %d", ErrResourceNotFound, dev, len(regions), index)
	}
	r := regions[index]
	return a.devices[BlockOffsetTypeOf(dev)].read(r.Offset, r.Size)
}

// Preload computes the shader regions of devs concurrently, one goroutine
// per device. With no devices it preloads every device the archive holds.
func (a *Archive) Preload(ctx context.Context, devs ...DeviceType) error {
	if len(devs) == 0 {
		devs = a.Devices()
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, dev := range devs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := a.ShaderRegions(dev)
			return err
		})
	}
	return g.Wait()
}

// resetShaderRegions drops dev's cached shader regions.
func (a *Archive) resetShaderRegions(dev DeviceType) {
	cell := &a.shaderRegions[dev]
	cell.mu.Lock()
	cell.computed = false
	cell.regions = nil
	cell.mu.Unlock()
}
