// Package sizing provides overflow-checked arithmetic for 32-bit archive offsets.
package sizing

import "math"

// Align is the alignment of every record and payload in an archive.
const Align = 8

// AddUint32 adds two uint32 values, returning (result, false) on overflow.
func AddUint32(a, b uint32) (uint32, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// End returns off+size as a uint64 so range checks never wrap.
func End(off, size uint32) uint64 {
	return uint64(off) + uint64(size)
}

// Fits reports whether [off, off+size) lies within [0, limit).
func Fits(off, size uint32, limit uint64) bool {
	return End(off, size) <= limit
}

// AlignUp rounds n up to the next multiple of Align.
func AlignUp(n uint64) uint64 {
	return (n + Align - 1) &^ (Align - 1)
}

// ToUint32 converts n to uint32, returning overflowErr if it doesn't fit.
func ToUint32(n uint64, overflowErr error) (uint32, error) {
	if n > math.MaxUint32 {
		return 0, overflowErr
	}
	return uint32(n), nil
}

// ToInt converts a uint64 to int, returning overflowErr if it doesn't fit.
func ToInt(size uint64, overflowErr error) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}
