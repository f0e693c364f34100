package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/devarchive"
)

const (
	// DefaultBlockSize is the size of a cached block.
	DefaultBlockSize int64 = 64 << 10

	// DefaultMaxBlocksPerRead is the largest read, in blocks, that goes
	// through the cache. Larger reads, such as whole device blocks copied
	// by a merge, bypass it.
	DefaultMaxBlocksPerRead = 16

	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

// BlockCache is a disk-backed block cache for byte sources. It is safe for
// concurrent use.
type BlockCache struct {
	dir              string
	shardPrefixLen   int
	dirPerm          os.FileMode
	maxBytes         int64
	blockSize        int64
	maxBlocksPerRead int

	bytes      atomic.Int64
	hits       atomic.Int64
	misses     atomic.Int64
	fetchGroup singleflight.Group
	pruneMu    sync.Mutex
}

// Stats counts block lookups since the cache was created.
type Stats struct {
	Hits   int64
	Misses int64
}

// Option configures a BlockCache.
type Option func(*BlockCache)

// WithMaxBytes caps the total size of cached blocks. The oldest blocks are
// pruned to make room. Values <= 0 disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *BlockCache) {
		c.maxBytes = n
	}
}

// WithBlockSize sets the size of cached blocks.
func WithBlockSize(n int64) Option {
	return func(c *BlockCache) {
		c.blockSize = n
	}
}

// WithMaxBlocksPerRead makes reads spanning more than n blocks bypass the
// cache. Values <= 0 cache every read.
func WithMaxBlocksPerRead(n int) Option {
	return func(c *BlockCache) {
		c.maxBlocksPerRead = n
	}
}

// WithShardPrefixLen sets the number of key characters used for
// subdirectories. Use 0 to store every block in dir itself.
func WithShardPrefixLen(n int) Option {
	return func(c *BlockCache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the permissions of created directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *BlockCache) {
		c.dirPerm = mode
	}
}

// New creates a block cache rooted at dir, picking up blocks left by
// earlier runs.
func New(dir string, opts ...Option) (*BlockCache, error) {
	if dir == "" {
		return nil, errors.New("cache: dir is empty")
	}
	c := &BlockCache{
		dir:              dir,
		shardPrefixLen:   defaultShardPrefixLen,
		dirPerm:          defaultDirPerm,
		blockSize:        DefaultBlockSize,
		maxBlocksPerRead: DefaultMaxBlocksPerRead,
	}
	for _, opt := range opts {
		opt(c)
	}
	switch {
	case c.shardPrefixLen < 0:
		return nil, errors.New("cache: shard prefix length must be >= 0")
	case c.maxBytes < 0:
		return nil, errors.New("cache: max bytes must be >= 0")
	case c.blockSize <= 0:
		return nil, errors.New("cache: block size must be > 0")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

// Wrap returns a source that reads src through the cache.
func (c *BlockCache) Wrap(src devarchive.ByteSource) (devarchive.ByteSource, error) {
	if src == nil {
		return nil, errors.New("cache: source is nil")
	}
	id := src.SourceID()
	if id == "" {
		return nil, errors.New("cache: source id is empty")
	}
	return &cachedSource{src: src, cache: c, sourceID: id}, nil
}

// MaxBytes returns the configured size limit (0 = unlimited).
func (c *BlockCache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current size of cached blocks.
func (c *BlockCache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Stats returns the hit and miss counts.
func (c *BlockCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Prune removes the oldest blocks until the cache holds at most
// targetBytes. It returns the number of bytes freed.
func (c *BlockCache) Prune(targetBytes int64) (int64, error) {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, max(targetBytes, 0))
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

// getBlock returns a block from disk, or fetches and stores it. Concurrent
// requests for one block share a single fetch.
func (c *BlockCache) getBlock(sourceID string, index, length int64, fetch func() ([]byte, error)) ([]byte, error) {
	key := blockKey(sourceID, c.blockSize, index)
	result, err, _ := c.fetchGroup.Do(key, func() (any, error) {
		path := c.pathForKey(key)
		data, err := os.ReadFile(path) //nolint:gosec // path is derived from a digest
		switch {
		case err == nil && int64(len(data)) == length:
			c.hits.Add(1)
			return data, nil
		case err == nil:
			c.bytes.Add(-int64(len(data)))
			_ = os.Remove(path)
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}

		c.misses.Add(1)
		data, err = fetch()
		if err != nil {
			return nil, err
		}
		// A block that cannot be stored is still returned.
		_ = c.writeBlock(path, data) //nolint:errcheck // best effort
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil //nolint:errcheck,forcetypeassert // always []byte
}

func (c *BlockCache) writeBlock(path string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if ok, err := c.ensureCapacity(int64(len(data))); err != nil || !ok {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "block-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return err
	}
	c.bytes.Add(int64(len(data)))
	return nil
}

func (c *BlockCache) ensureCapacity(need int64) (bool, error) {
	if c.maxBytes <= 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}

// blockKey names block index of the given size within a source.
func blockKey(sourceID string, blockSize, index int64) string {
	return digest.FromString(fmt.Sprintf("%s\x00%d\x00%d", sourceID, blockSize, index)).Encoded()
}

func (c *BlockCache) pathForKey(key string) string {
	if c.shardPrefixLen <= 0 {
		return filepath.Join(c.dir, key)
	}
	return filepath.Join(c.dir, key[:min(c.shardPrefixLen, len(key))], key)
}
