package btree

import (
	"fmt"

	"blocktree/block"
	"blocktree/btreeerr"
	"blocktree/node"
)

// allocateNode pops the head of the free list and returns its block index.
// The caller is responsible for rewriting that block as a Leaf, Interior,
// or Root before anyone else reads it.
func (ix *Index) allocateNode() (block.Index, error) {
	n := ix.super.Info.FreeList
	if n == 0 {
		return 0, btreeerr.ErrNoSpace
	}

	fn, err := node.Unserialize(ix.store, n)
	if err != nil {
		return 0, fmt.Errorf("btree: allocate node: %w", err)
	}
	if fn.Info.Type != node.Unallocated {
		return 0, fmt.Errorf("btree: allocate node: %w: block %d has type %s, expected Unallocated", btreeerr.ErrInsane, n, fn.Info.Type)
	}

	ix.super.Info.FreeList = fn.Info.FreeList
	if err := ix.super.Serialize(ix.store, superblockIndex); err != nil {
		return 0, fmt.Errorf("btree: allocate node: %w", err)
	}
	ix.store.NotifyAllocateBlock(n)

	return n, nil
}

// deallocateNode returns block n to the free list. n must currently hold an
// allocated (non-Unallocated) node.
func (ix *Index) deallocateNode(n block.Index) error {
	fn, err := node.Unserialize(ix.store, n)
	if err != nil {
		return fmt.Errorf("btree: deallocate node: %w", err)
	}
	if fn.Info.Type == node.Unallocated {
		return fmt.Errorf("btree: deallocate node: %w: block %d is already unallocated", btreeerr.ErrInsane, n)
	}

	fn.Info.Type = node.Unallocated
	fn.Info.FreeList = ix.super.Info.FreeList
	if err := fn.Serialize(ix.store, n); err != nil {
		return fmt.Errorf("btree: deallocate node: %w", err)
	}

	ix.super.Info.FreeList = n
	if err := ix.super.Serialize(ix.store, superblockIndex); err != nil {
		return fmt.Errorf("btree: deallocate node: %w", err)
	}
	ix.store.NotifyDeallocateBlock(n)

	return nil
}
