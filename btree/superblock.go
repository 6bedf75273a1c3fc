// Package btree is the B+-tree engine: node layout lives in package node,
// the block store and buffer cache are external collaborators (package
// block / package cache), and this package implements everything in
// between — the free-block manager, the superblock, descent, the
// recursive insert/split engine, and traversal/sanity checks.
package btree

import (
	"fmt"

	"blocktree/block"
	"blocktree/btreeerr"
	"blocktree/node"
)

// Store is the buffer-cache contract the core requires: whole-block
// reads/writes plus the allocate/deallocate notification hooks. Any cache
// satisfying this — in particular *cache.Cache — can back an Index.
type Store interface {
	NumBlocks() int
	BlockSize() int
	ReadBlock(i block.Index) ([]byte, error)
	WriteBlock(i block.Index, data []byte) error
	NotifyAllocateBlock(i block.Index)
	NotifyDeallocateBlock(i block.Index)
}

// superblockIndex is always 0.
const superblockIndex block.Index = 0

// Index is an attached B+-tree: a superblock (kept in memory, authoritative
// for rootnode/freelist/numkeys) plus the store it is attached to.
type Index struct {
	store Store
	super *node.Node
}

// Attach mounts a B+-tree index on store. When create is true, store is
// (re)initialized from scratch: a superblock at block 0, an empty root at
// block 1, and blocks 2..NumBlocks-1 threaded into the free list. When
// create is false, the existing superblock is read and validated against
// the keysize/valuesize the caller compiled against.
func Attach(store Store, create bool, keysize, valsize uint32) (*Index, error) {
	if store.NumBlocks() < 3 {
		return nil, fmt.Errorf("btree: attach: %w: need at least 3 blocks (superblock, root, one free block), got %d", btreeerr.ErrSize, store.NumBlocks())
	}

	if create {
		if err := initializeStore(store, keysize, valsize); err != nil {
			return nil, err
		}
	}

	super, err := node.Unserialize(store, superblockIndex)
	if err != nil {
		return nil, fmt.Errorf("btree: attach: %w", err)
	}
	if super.Info.Type != node.Superblock {
		return nil, fmt.Errorf("btree: attach: %w: block 0 has type %s, expected Superblock", btreeerr.ErrInsane, super.Info.Type)
	}
	if !create {
		if super.Info.BlockSize != uint32(store.BlockSize()) ||
			super.Info.KeySize != keysize ||
			super.Info.ValSize != valsize {
			return nil, fmt.Errorf(
				"btree: attach: %w: on-disk (blocksize=%d keysize=%d valuesize=%d) does not match requested (blocksize=%d keysize=%d valuesize=%d)",
				btreeerr.ErrSize, super.Info.BlockSize, super.Info.KeySize, super.Info.ValSize,
				store.BlockSize(), keysize, valsize)
		}
	}

	return &Index{store: store, super: super}, nil
}

func initializeStore(store Store, keysize, valsize uint32) error {
	newsuper := node.New(node.Superblock, keysize, valsize, store)
	newsuper.Info.RootNode = 1
	newsuper.Info.FreeList = 2
	newsuper.Info.NumKeys = 0
	store.NotifyAllocateBlock(superblockIndex)
	if err := newsuper.Serialize(store, superblockIndex); err != nil {
		return fmt.Errorf("btree: attach: create superblock: %w", err)
	}

	newroot := node.New(node.Root, keysize, valsize, store)
	newroot.Info.RootNode = 1
	newroot.Info.FreeList = 2
	newroot.Info.NumKeys = 0
	store.NotifyAllocateBlock(1)
	if err := newroot.Serialize(store, 1); err != nil {
		return fmt.Errorf("btree: attach: create root: %w", err)
	}

	numBlocks := block.Index(store.NumBlocks())
	for i := block.Index(2); i < numBlocks; i++ {
		free := node.New(node.Unallocated, keysize, valsize, store)
		free.Info.RootNode = 1
		if i+1 == numBlocks {
			free.Info.FreeList = 0
		} else {
			free.Info.FreeList = i + 1
		}
		if err := free.Serialize(store, i); err != nil {
			return fmt.Errorf("btree: attach: create free list: %w", err)
		}
	}
	return nil
}

// Detach persists the superblock. It does not flush the underlying buffer
// cache — that is the cache's own responsibility (see cache.Cache.Flush /
// Close).
func (ix *Index) Detach() error {
	if err := ix.super.Serialize(ix.store, superblockIndex); err != nil {
		return fmt.Errorf("btree: detach: %w", err)
	}
	return nil
}

// KeySize and ValSize report the fixed widths this index was created with.
func (ix *Index) KeySize() uint32 { return ix.super.Info.KeySize }
func (ix *Index) ValSize() uint32 { return ix.super.Info.ValSize }

// NumKeys reports the tree-wide number of keys currently stored.
func (ix *Index) NumKeys() uint64 { return ix.super.Info.NumKeys }
