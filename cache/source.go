package cache

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/meigma/devarchive"
)

// cachedSource reads a ByteSource through a BlockCache.
type cachedSource struct {
	src      devarchive.ByteSource
	cache    *BlockCache
	sourceID string
}

func (s *cachedSource) Size() int64      { return s.src.Size() }
func (s *cachedSource) SourceID() string { return s.sourceID }

func (s *cachedSource) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	size := s.src.Size()
	if off >= size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), size-off)

	bs := s.cache.blockSize
	first := off / bs
	last := (off + want - 1) / bs
	if limit := s.cache.maxBlocksPerRead; limit > 0 && last-first+1 > int64(limit) {
		return s.src.ReadAt(p, off)
	}

	var n int64
	for index := first; index <= last; index++ {
		start := index * bs
		end := min(start+bs, size)
		data, err := s.cache.getBlock(s.sourceID, index, end-start, func() ([]byte, error) {
			return s.fetch(start, end-start)
		})
		if err != nil {
			return int(n), err
		}
		if int64(len(data)) != end-start {
			return int(n), io.ErrUnexpectedEOF
		}

		from := max(off, start)
		to := min(off+want, end)
		n += int64(copy(p[from-off:to-off], data[from-start:to-start]))
	}

	if want < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

func (s *cachedSource) fetch(off, length int64) ([]byte, error) {
	if length > math.MaxInt {
		return nil, errors.New("cache: block length exceeds max int")
	}
	buf := make([]byte, int(length))
	n, err := s.src.ReadAt(buf, off)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == length) {
		return nil, err
	}
	if int64(n) != length {
		return nil, io.ErrUnexpectedEOF
	}
	return buf, nil
}
