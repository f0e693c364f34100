package devarchive

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Description is a structured summary of an archive.
type Description struct {
	Source    string              `json:"source"`
	Size      int64               `json:"size"`
	Chunks    []ChunkDescription  `json:"chunks"`
	Devices   []DeviceDescription `json:"devices"`
	DebugInfo *DebugInfo          `json:"debugInfo,omitempty"`
}

// ChunkDescription summarizes one chunk.
type ChunkDescription struct {
	Type      string `json:"type"`
	Offset    uint32 `json:"offset"`
	Size      uint32 `json:"size"`
	Resources int    `json:"resources"`
}

// DeviceDescription summarizes one device block.
type DeviceDescription struct {
	Device       string        `json:"device"`
	BaseOffset   uint32        `json:"baseOffset"`
	Size         uint32        `json:"size"`
	Digest       digest.Digest `json:"digest"`
	Materialized bool          `json:"materialized"`
	Shaders      int           `json:"shaders"`
}

// Describe returns a structured summary of the archive, including a digest
// of every device block. It reads each block in full.
func (a *Archive) Describe() (Description, error) {
	d := Description{
		Source: a.reader.src.SourceID(),
		Size:   a.reader.src.Size(),
	}
	for _, c := range a.chunks {
		d.Chunks = append(d.Chunks, ChunkDescription{
			Type:      c.Type.String(),
			Offset:    c.Offset,
			Size:      c.Size,
			Resources: a.resources.Len(c.Type),
		})
	}
	for _, dev := range a.Devices() {
		block := &a.devices[BlockOffsetTypeOf(dev)]
		data, err := block.contents()
		if err != nil {
			return Description{}, fmt.Errorf("describe %s block: %w", dev, err)
		}
		regions, err := a.ShaderRegions(dev)
		if err != nil {
			return Description{}, fmt.Errorf("describe %s shaders: %w", dev, err)
		}
		d.Devices = append(d.Devices, DeviceDescription{
			Device:       dev.String(),
			BaseOffset:   a.BaseOffset(BlockOffsetTypeOf(dev)),
			Size:         block.length(),
			Digest:       digest.FromBytes(data),
			Materialized: block.loaded,
			Shaders:      len(regions),
		})
	}
	if info, ok := a.DebugInfo(); ok {
		d.DebugInfo = &info
	}
	return d, nil
}

// String returns a human-readable dump of the chunk table, resource counts
// and device blocks.
func (a *Archive) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Device object archive %s (%d bytes)\n", a.reader.src.SourceID(), a.reader.src.Size())

	fmt.Fprintf(&sb, "Chunks (%d):\n", len(a.chunks))
	for _, c := range a.chunks {
		fmt.Fprintf(&sb, "  %-22s offset %-8d size %-8d", c.Type, c.Offset, c.Size)
		if c.Type.IsNamed() {
			fmt.Fprintf(&sb, " resources %d", a.resources.Len(c.Type))
		}
		sb.WriteByte('\n')
	}

	for _, category := range a.resources.Categories() {
		fmt.Fprintf(&sb, "%s:\n", category)
		for name, r := range a.resources.All(category) {
			fmt.Fprintf(&sb, "  %q %s\n", name, r)
		}
	}

	sb.WriteString("Device blocks:\n")
	for _, dev := range AllDevices() {
		block := &a.devices[BlockOffsetTypeOf(dev)]
		switch {
		case !block.valid():
			fmt.Fprintf(&sb, "  %-12s none\n", dev)
		case block.loaded:
			fmt.Fprintf(&sb, "  %-12s in memory, %d bytes\n", dev, block.length())
		default:
			fmt.Fprintf(&sb, "  %-12s offset %d, %d bytes\n", dev, block.offset, block.length())
		}
	}

	if a.hasDebug {
		fmt.Fprintf(&sb, "Debug info: API version %d, git hash %q\n", a.debugInfo.APIVersion, a.debugInfo.GitHash)
	}
	return sb.String()
}
