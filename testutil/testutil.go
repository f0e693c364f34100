// Package testutil provides byte sources for archive tests.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sync/atomic"
)

// ErrInjected is returned by a MockByteSource configured to fail.
var ErrInjected = errors.New("testutil: injected read failure")

// MockByteSource implements an in-memory byte source that counts reads.
type MockByteSource struct {
	data     []byte
	sourceID string

	reads     atomic.Int64
	bytesRead atomic.Int64
	failAt    atomic.Int64 // fail reads touching offsets >= failAt; 0 disables
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	sum := sha256.Sum256(data)
	return &MockByteSource{
		data:     data,
		sourceID: "mock:" + hex.EncodeToString(sum[:]),
	}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if limit := m.failAt.Load(); limit > 0 && off+int64(len(p)) > limit {
		return 0, ErrInjected
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	m.bytesRead.Add(int64(n))
	if off+int64(n) >= int64(len(m.data)) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns a stable identifier for the source data.
func (m *MockByteSource) SourceID() string {
	return m.sourceID
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// Reads returns the number of ReadAt calls so far.
func (m *MockByteSource) Reads() int64 {
	return m.reads.Load()
}

// BytesRead returns the number of bytes served so far.
func (m *MockByteSource) BytesRead() int64 {
	return m.bytesRead.Load()
}

// ResetStats zeroes the read counters.
func (m *MockByteSource) ResetStats() {
	m.reads.Store(0)
	m.bytesRead.Store(0)
}

// FailFrom makes every read that extends past offset fail with ErrInjected.
// A non-positive offset disables failures.
func (m *MockByteSource) FailFrom(offset int64) {
	m.failAt.Store(offset)
}
