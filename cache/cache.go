// Package cache implements the buffer cache the btree core is built on top
// of: a synchronous block_index -> bytes map, backed by a block.Store, with
// an admission/eviction policy (ristretto), dirty tracking, and the
// allocate/deallocate notification hooks the core's free-block manager
// calls on every AllocateNode/DeallocateNode.
package cache

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"blocktree/block"
)

// Cache fronts a block.Store with a caching policy. Reads are
// read-your-writes within a single Cache instance: a WriteBlock is visible
// to a subsequent ReadBlock immediately, even before Flush persists it to
// the underlying store — matching the "write-back but coherent for a
// single caller" contract the core requires.
type Cache struct {
	mu    sync.Mutex
	store block.Store
	// dirty holds blocks written but not yet flushed to store.
	dirty map[block.Index][]byte
	// policy decides which clean (non-dirty) blocks stay resident; it is
	// consulted on read and populated on read-through and on flush.
	policy *ristretto.Cache[block.Index, []byte]

	// allocated/deallocated are cumulative counters surfaced by Stats; they
	// exist purely for diagnostics, not correctness.
	allocated   uint64
	deallocated uint64
}

// Open wraps store with a buffer cache whose in-memory policy may hold up
// to capacity blocks beyond whatever is currently dirty.
func Open(store block.Store, capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = 1
	}
	policy, err := ristretto.NewCache(&ristretto.Config[block.Index, []byte]{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity) * int64(store.BlockSize()),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	return &Cache{
		store:  store,
		dirty:  make(map[block.Index][]byte),
		policy: policy,
	}, nil
}

func (c *Cache) NumBlocks() int { return c.store.NumBlocks() }
func (c *Cache) BlockSize() int { return c.store.BlockSize() }

// ReadBlock returns the current bytes of block i: its dirty (unflushed)
// contents if any, else a cached clean copy, else a read-through from the
// underlying store (which is then cached).
func (c *Cache) ReadBlock(i block.Index) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.dirty[i]; ok {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	if data, ok := c.policy.Get(i); ok {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	data, err := c.store.ReadBlock(i)
	if err != nil {
		return nil, fmt.Errorf("cache: read block %d: %w", i, err)
	}
	c.policy.Set(i, data, int64(len(data)))
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteBlock buffers data for block i as dirty. It is visible to
// ReadBlock immediately but is not persisted to the underlying store until
// Flush is called.
func (c *Cache) WriteBlock(i block.Index, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(data) != c.store.BlockSize() {
		return fmt.Errorf("cache: write block %d: data size %d does not match block size %d", i, len(data), c.store.BlockSize())
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	c.dirty[i] = buf
	return nil
}

// NotifyAllocateBlock is advisory bookkeeping called by the free-block
// manager once a block has been handed out of the free list. It has no
// caching-policy effect beyond a diagnostic counter — the block's content
// is about to be rewritten by the caller anyway.
func (c *Cache) NotifyAllocateBlock(i block.Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allocated++
}

// NotifyDeallocateBlock is advisory bookkeeping called once a block has
// been returned to the free list. The cached copy is evicted: its old
// content is no longer meaningful now that the block is unallocated.
func (c *Cache) NotifyDeallocateBlock(i block.Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deallocated++
	c.policy.Del(i)
}

// Flush writes every dirty block through to the underlying store and
// clears the dirty set. It does not touch the eviction policy's resident
// set beyond keeping flushed blocks available to read.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, data := range c.dirty {
		if err := c.store.WriteBlock(i, data); err != nil {
			return fmt.Errorf("cache: flush block %d: %w", i, err)
		}
		c.policy.Set(i, data, int64(len(data)))
		delete(c.dirty, i)
	}
	return nil
}

// Stats reports a snapshot of cache bookkeeping counters, for diagnostics.
type Stats struct {
	DirtyBlocks     int
	Allocated       uint64
	Deallocated     uint64
	PolicyHits      uint64
	PolicyMisses    uint64
	PolicyKeysAdded uint64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.policy.Metrics
	s := Stats{
		DirtyBlocks: len(c.dirty),
		Allocated:   c.allocated,
		Deallocated: c.deallocated,
	}
	if m != nil {
		s.PolicyHits = m.Hits()
		s.PolicyMisses = m.Misses()
		s.PolicyKeysAdded = m.KeysAdded()
	}
	return s
}

// Close flushes any dirty blocks and releases the eviction policy's
// background resources.
func (c *Cache) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	c.policy.Close()
	return nil
}
