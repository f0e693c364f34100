package layout

import "fmt"

// DebugInfo is advisory build information stored in the ArchiveDebugInfo chunk.
type DebugInfo struct {
	APIVersion uint32
	GitHash    string
}

// EncodedSize returns the padded size of the encoded record.
func (d *DebugInfo) EncodedSize() int {
	return alignInt(8 + len(d.GitHash))
}

// MarshalBinary encodes the record as APIVersion | len(GitHash) | GitHash.
func (d *DebugInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, d.EncodedSize())
	le.PutUint32(buf[0:], d.APIVersion)
	le.PutUint32(buf[4:], uint32(len(d.GitHash))) //nolint:gosec // bounded by caller
	copy(buf[8:], d.GitHash)
	return buf, nil
}

// UnmarshalBinary decodes a record written by MarshalBinary.
func (d *DebugInfo) UnmarshalBinary(buf []byte) error {
	if len(buf) < 8 {
		return short("debug info", 8, len(buf))
	}
	n := uint64(le.Uint32(buf[4:]))
	if n > uint64(len(buf)-8) {
		return fmt.Errorf("%w: git hash of %d bytes overruns %d byte chunk", ErrShortBuffer, n, len(buf))
	}
	d.APIVersion = le.Uint32(buf[0:])
	d.GitHash = string(buf[8 : 8+n])
	return nil
}
