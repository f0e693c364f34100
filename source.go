package devarchive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"
)

// ByteSource provides random access to archive bytes.
//
// Implementations must be safe for concurrent ReadAt calls. SourceID must
// return a stable identifier for the underlying content.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// memorySource serves an archive held in memory.
type memorySource struct {
	data []byte
	id   string
}

// NewMemorySource returns a ByteSource over data. The slice must not be
// modified while the source is in use.
func NewMemorySource(data []byte) ByteSource {
	return &memorySource{data: data, id: digest.FromBytes(data).String()}
}

func (m *memorySource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memorySource) Size() int64      { return int64(len(m.data)) }
func (m *memorySource) SourceID() string { return m.id }

// fileSource wraps *os.File to implement ByteSource.
// os.File has ReadAt but not Size, so we cache the size at construction.
type fileSource struct {
	file     *os.File
	size     int64
	sourceID string
}

func newFileSource(f *os.File) (*fileSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive file: %w", err)
	}
	absPath, err := filepath.Abs(f.Name())
	if err != nil {
		absPath = f.Name()
	}
	id := "file:" + absPath + ":" + strconv.FormatInt(info.Size(), 10) + ":" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
	return &fileSource{file: f, size: info.Size(), sourceID: id}, nil
}

func (fs *fileSource) ReadAt(p []byte, off int64) (int, error) { return fs.file.ReadAt(p, off) }
func (fs *fileSource) Size() int64                             { return fs.size }
func (fs *fileSource) SourceID() string                        { return fs.sourceID }

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// ArchiveFile wraps an Archive with its underlying file handle.
// Close must be called to release file resources.
type ArchiveFile struct {
	*Archive
	file *os.File
}

// Close closes the underlying file. It is a no-op for compressed archives,
// which are decoded into memory when opened.
func (af *ArchiveFile) Close() error {
	if af.file == nil {
		return nil
	}
	err := af.file.Close()
	af.file = nil
	return err
}

// OpenFile opens an archive file for random access.
//
// Files written with WriteWithCompression start with a zstd frame; they are
// decoded into memory (bounded by WithMaxDecodedSize) and the file is closed
// immediately.
func OpenFile(path string, opts ...Option) (*ArchiveFile, error) {
	cfg := newConfig(opts)

	f, err := os.Open(path) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("open archive file: %w", err)
	}

	magic := make([]byte, len(zstdMagic))
	n, err := f.ReadAt(magic, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("read archive file: %w", err)
	}

	if n == len(magic) && bytes.Equal(magic, zstdMagic) {
		data, err := decodeCompressed(f, cfg.maxDecodedSize)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", path, err)
		}
		a, err := open(NewMemorySource(data), cfg)
		if err != nil {
			return nil, err
		}
		return &ArchiveFile{Archive: a}, nil
	}

	src, err := newFileSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	a, err := open(src, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ArchiveFile{Archive: a, file: f}, nil
}

func decodeCompressed(r io.Reader, maxSize uint64) ([]byte, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if maxSize > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(maxSize))
	}
	dec, err := zstd.NewReader(r, opts...)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dec); err != nil {
		return nil, err
	}
	if maxSize > 0 && uint64(buf.Len()) > maxSize {
		return nil, fmt.Errorf("decoded archive exceeds %d bytes", maxSize)
	}
	return buf.Bytes(), nil
}

// sourceReader reads regions from a ByteSource. Concurrent reads of the same
// region share a single ReadAt call; every caller gets its own copy.
type sourceReader struct {
	src   ByteSource
	group singleflight.Group
}

func (r *sourceReader) read(off uint64, size uint32) ([]byte, error) {
	limit := uint64(r.src.Size()) //nolint:gosec // sizes are non-negative
	if off+uint64(size) > limit {
		return nil, outOfBounds("read", off, uint64(size), limit)
	}
	if size == 0 {
		return []byte{}, nil
	}

	key := strconv.FormatUint(off, 10) + ":" + strconv.FormatUint(uint64(size), 10)
	v, err, _ := r.group.Do(key, func() (any, error) {
		buf := make([]byte, size)
		n, err := r.src.ReadAt(buf, int64(off)) //nolint:gosec // bounded by Size above
		if n == len(buf) {
			return buf, nil
		}
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read %d bytes at %d from %s: %w", size, off, r.src.SourceID(), err)
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]byte) //nolint:errcheck // type assertion always succeeds when err is nil
	out := make([]byte, len(shared))
	copy(out, shared)
	return out, nil
}
