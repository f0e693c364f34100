package layout

import (
	"errors"
	"fmt"
)

// ErrMalformedArray is returned when a named-resource array is inconsistent.
var ErrMalformedArray = errors.New("layout: malformed named-resource array")

// NamedEntry is one row of a named-resource array.
type NamedEntry struct {
	Name   string
	Size   uint32 // size of the resource's data header plus common payload
	Offset uint32 // absolute archive offset of the data header
}

// NamedResourcesSize returns the encoded size of an array holding entries,
// padded to 8 bytes.
func NamedResourcesSize(entries []NamedEntry) int {
	n := NamedResourceArrayHeaderSize + 12*len(entries)
	for _, e := range entries {
		n += len(e.Name)
	}
	return alignInt(n)
}

// EncodeNamedResources encodes entries as
//
//	Count | pad | NameLength[Count] | DataSize[Count] | DataOffset[Count] | names
//
// followed by zero padding up to a multiple of 8.
func EncodeNamedResources(entries []NamedEntry) []byte {
	buf := make([]byte, NamedResourcesSize(entries))
	count := len(entries)
	le.PutUint32(buf[0:], uint32(count)) //nolint:gosec // archive counts fit in 32 bits
	le.PutUint32(buf[4:], padding)

	lengths := NamedResourceArrayHeaderSize
	sizes := lengths + 4*count
	offsets := sizes + 4*count
	names := offsets + 4*count
	for i, e := range entries {
		le.PutUint32(buf[lengths+4*i:], uint32(len(e.Name))) //nolint:gosec // bounded by encoded size
		le.PutUint32(buf[sizes+4*i:], e.Size)
		le.PutUint32(buf[offsets+4*i:], e.Offset)
		names += copy(buf[names:], e.Name)
	}
	return buf
}

// DecodeNamedResources decodes an array previously written by
// EncodeNamedResources. buf must hold the whole chunk.
func DecodeNamedResources(buf []byte) ([]NamedEntry, error) {
	if len(buf) < NamedResourceArrayHeaderSize {
		return nil, short("named-resource array header", NamedResourceArrayHeaderSize, len(buf))
	}
	count := uint64(le.Uint32(buf[0:]))
	tables := uint64(NamedResourceArrayHeaderSize) + 12*count
	if tables > uint64(len(buf)) {
		return nil, fmt.Errorf("%w: %d entries need %d bytes, chunk has %d",
			ErrMalformedArray, count, tables, len(buf))
	}

	n := int(count)
	lengths := NamedResourceArrayHeaderSize
	sizes := lengths + 4*n
	offsets := sizes + 4*n
	names := offsets + 4*n

	entries := make([]NamedEntry, n)
	for i := range entries {
		nameLen := int(le.Uint32(buf[lengths+4*i:]))
		if nameLen == 0 {
			return nil, fmt.Errorf("%w: entry %d has an empty name", ErrMalformedArray, i)
		}
		if nameLen > len(buf)-names {
			return nil, fmt.Errorf("%w: name of entry %d overruns the chunk", ErrMalformedArray, i)
		}
		entries[i] = NamedEntry{
			Name:   string(buf[names : names+nameLen]),
			Size:   le.Uint32(buf[sizes+4*i:]),
			Offset: le.Uint32(buf[offsets+4*i:]),
		}
		names += nameLen
	}
	return entries, nil
}

func alignInt(n int) int {
	return (n + 7) &^ 7
}
