package devarchive

import (
	"errors"
	"fmt"
)

// Sentinel errors. Failures are wrapped in *ResourceError or *RegionError
// when a name or offset is known; use errors.Is to classify them.
var (
	// ErrMalformedHeader is returned for a bad magic number, version or record size.
	ErrMalformedHeader = errors.New("devarchive: malformed header")

	// ErrUnknownCategory is returned for a chunk type outside the closed enumeration.
	ErrUnknownCategory = errors.New("devarchive: unknown resource category")

	// ErrDuplicateResourceName is returned when a name appears twice in one category.
	ErrDuplicateResourceName = errors.New("devarchive: duplicate resource name")

	// ErrResourceNotFound is returned when a lookup misses.
	ErrResourceNotFound = errors.New("devarchive: resource not found")

	// ErrCategoryMismatch is returned when a stored header tag differs from the expected category.
	ErrCategoryMismatch = errors.New("devarchive: category mismatch")

	// ErrTruncatedPayload is returned when a payload is not consumed exactly.
	ErrTruncatedPayload = errors.New("devarchive: payload not fully consumed")

	// ErrOutOfBoundsRegion is returned when offset+size exceeds its container.
	ErrOutOfBoundsRegion = errors.New("devarchive: region out of bounds")

	// ErrBackendAlreadyPresent is returned when appending data for a device the archive already has.
	ErrBackendAlreadyPresent = errors.New("devarchive: backend data already present")

	// ErrStructuralMismatch is returned when two archives being merged differ in their resources.
	ErrStructuralMismatch = errors.New("devarchive: archives differ structurally")

	// ErrNoDeviceData is returned when an operation needs a device block that does not exist.
	ErrNoDeviceData = errors.New("devarchive: no data for device")
)

// ResourceError records a failure concerning a named resource.
type ResourceError struct {
	Op       string
	Category ChunkType
	Name     string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s %q: %v", e.Op, e.Category, e.Name, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// RegionError records a failure concerning a byte range.
type RegionError struct {
	Op     string
	Offset uint64
	Size   uint64
	Limit  uint64
	Err    error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("%s [%d, %d) limit %d: %v", e.Op, e.Offset, e.Offset+e.Size, e.Limit, e.Err)
}

func (e *RegionError) Unwrap() error { return e.Err }

func outOfBounds(op string, off, size, limit uint64) error {
	return &RegionError{Op: op, Offset: off, Size: size, Limit: limit, Err: ErrOutOfBoundsRegion}
}
