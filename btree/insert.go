package btree

import (
	"bytes"
	"fmt"

	"blocktree/block"
	"blocktree/btreeerr"
	"blocktree/node"
)

// Insert adds a new key/value pair. Returns btreeerr.ErrConflict if key is
// already present, leaving the tree unchanged.
func (ix *Index) Insert(key, value []byte) error {
	if err := ix.checkKeySize(key); err != nil {
		return err
	}
	if err := ix.checkValSize(value); err != nil {
		return err
	}

	root, err := node.Unserialize(ix.store, ix.super.Info.RootNode)
	if err != nil {
		return err
	}

	// The tree is being populated for the first time: fabricate a
	// degenerate root with key as its sole separator and two fresh, mostly
	// empty leaves.
	if root.Info.NumKeys == 0 {
		return ix.bootstrap(key, value)
	}

	leaf, path, err := ix.findLeaf(key)
	if err != nil {
		return err
	}
	if leaf == 0 {
		return fmt.Errorf("btree: insert: %w: could not locate a leaf for the key", btreeerr.ErrInsane)
	}

	return ix.insertRecursive(leaf, path, key, value, 0, false)
}

// bootstrap installs the very first key/value pair into an empty tree.
func (ix *Index) bootstrap(key, value []byte) error {
	rootIdx := ix.super.Info.RootNode

	l1, err := ix.allocateNode()
	if err != nil {
		return err
	}
	l2, err := ix.allocateNode()
	if err != nil {
		return err
	}

	leaf1 := node.New(node.Leaf, ix.super.Info.KeySize, ix.super.Info.ValSize, ix.store)
	leaf1.Info.RootNode = rootIdx
	leaf1.Info.NumKeys = 1
	if err := leaf1.SetKey(0, key); err != nil {
		return err
	}
	if err := leaf1.SetVal(0, value); err != nil {
		return err
	}
	if err := leaf1.Serialize(ix.store, l1); err != nil {
		return err
	}

	leaf2 := node.New(node.Leaf, ix.super.Info.KeySize, ix.super.Info.ValSize, ix.store)
	leaf2.Info.RootNode = rootIdx
	if err := leaf2.Serialize(ix.store, l2); err != nil {
		return err
	}

	root, err := node.Unserialize(ix.store, rootIdx)
	if err != nil {
		return err
	}
	root.Info.NumKeys = 1
	if err := root.SetKey(0, key); err != nil {
		return err
	}
	if err := root.SetPtr(0, l1); err != nil {
		return err
	}
	if err := root.SetPtr(1, l2); err != nil {
		return err
	}
	if err := root.Serialize(ix.store, rootIdx); err != nil {
		return err
	}

	ix.super.Info.NumKeys++
	return ix.super.Serialize(ix.store, superblockIndex)
}

// insertRecursive performs one in-place insert (leaf payload, or interior
// separator/pointer) at nodeIdx, then splits and promotes upward as many
// times as overflow requires. path holds nodeIdx's ancestors, root-first,
// recorded by findLeaf's single descent — popped here instead of
// recomputing FindParent on every promotion.
func (ix *Index) insertRecursive(nodeIdx block.Index, path []block.Index, key, value []byte, newNode block.Index, rhs bool) error {
	if err := ix.insertKeyValue(nodeIdx, key, value, newNode, rhs); err != nil {
		return err
	}

	n, err := node.Unserialize(ix.store, nodeIdx)
	if err != nil {
		return err
	}

	var capacity int
	switch n.Info.Type {
	case node.Leaf:
		capacity = n.NumSlotsAsLeaf()
	case node.Interior, node.Root:
		capacity = n.NumSlotsAsInterior()
	default:
		return fmt.Errorf("btree: insert: %w: block %d has type %s", btreeerr.ErrInsane, nodeIdx, n.Info.Type)
	}

	if n.Info.NumKeys < uint64(splitThreshold(capacity)) {
		return nil
	}

	nw, sep, err := ix.splitNode(n)
	if err != nil {
		return err
	}

	newIdx, err := ix.allocateNode()
	if err != nil {
		return err
	}

	if err := n.Serialize(ix.store, nodeIdx); err != nil {
		return err
	}
	if err := nw.Serialize(ix.store, newIdx); err != nil {
		return err
	}

	if n.Info.Type == node.Root {
		return ix.promoteNewRoot(nodeIdx, sep, newIdx)
	}

	if len(path) == 0 {
		return fmt.Errorf("btree: insert: %w: block %d has no recorded parent", btreeerr.ErrInsane, nodeIdx)
	}
	parent := path[len(path)-1]
	return ix.insertRecursive(parent, path[:len(path)-1], sep, nil, newIdx, true)
}

// splitThreshold is the fill level, in slots, at which a node must split:
// ceil(capacity * 2/3). A freshly split node ends up at roughly 1/3 full on
// each side, leaving slack for the next insert.
func splitThreshold(capacity int) int {
	return (capacity*2 + 2) / 3
}

// insertKeyValue performs a single, non-recursive insert step at nodeIdx:
// a leaf payload insert, or an interior/root separator-and-pointer insert
// (including the exact-match case, where no new separator is needed and
// only a pointer is retargeted).
func (ix *Index) insertKeyValue(nodeIdx block.Index, key, value []byte, newNode block.Index, rhs bool) error {
	n, err := node.Unserialize(ix.store, nodeIdx)
	if err != nil {
		return err
	}

	offset := 0
	found := false
	for ; offset < int(n.Info.NumKeys); offset++ {
		testkey, err := n.GetKey(offset)
		if err != nil {
			return err
		}
		cmp := bytes.Compare(key, testkey)
		if cmp <= 0 {
			found = cmp == 0
			break
		}
	}

	switch n.Info.Type {
	case node.Leaf:
		if found {
			return btreeerr.ErrConflict
		}
		return ix.leafInsertAt(n, nodeIdx, offset, key, value)

	case node.Interior, node.Root:
		if found {
			ptrSlot := offset
			if rhs {
				ptrSlot++
			}
			if err := n.SetPtr(ptrSlot, newNode); err != nil {
				return err
			}
			return n.Serialize(ix.store, nodeIdx)
		}
		return ix.interiorInsertAt(n, nodeIdx, offset, key, newNode, rhs)

	default:
		return fmt.Errorf("btree: insert key/value: %w: block %d has type %s", btreeerr.ErrInsane, nodeIdx, n.Info.Type)
	}
}

// leafInsertAt shifts (key,value) pairs right from offset by one slot and
// writes the new pair at offset, bumping both the node's and the tree-wide
// key counts.
func (ix *Index) leafInsertAt(n *node.Node, nodeIdx block.Index, offset int, key, value []byte) error {
	old := int(n.Info.NumKeys)
	n.Info.NumKeys++

	for i := old; i > offset; i-- {
		k, err := n.GetKey(i - 1)
		if err != nil {
			return err
		}
		v, err := n.GetVal(i - 1)
		if err != nil {
			return err
		}
		if err := n.SetKey(i, k); err != nil {
			return err
		}
		if err := n.SetVal(i, v); err != nil {
			return err
		}
	}
	if err := n.SetKey(offset, key); err != nil {
		return err
	}
	if err := n.SetVal(offset, value); err != nil {
		return err
	}

	ix.super.Info.NumKeys++
	if err := ix.super.Serialize(ix.store, superblockIndex); err != nil {
		return err
	}

	return n.Serialize(ix.store, nodeIdx)
}

// interiorInsertAt shifts separator keys right from offset and pointers
// right from the slot newNode is about to occupy, then writes the new
// separator at offset and newNode at that slot: offset+1 when rhs (the
// common case — a promoted separator's new child is always its right
// sibling), offset otherwise (only used for the two-insert new-root dance
// in promoteNewRoot, and there always as an exact-match retarget instead).
func (ix *Index) interiorInsertAt(n *node.Node, nodeIdx block.Index, offset int, key []byte, newNode block.Index, rhs bool) error {
	old := int(n.Info.NumKeys)
	n.Info.NumKeys++

	insertPtrSlot := offset
	if rhs {
		insertPtrSlot++
	}

	for i := old; i > offset; i-- {
		k, err := n.GetKey(i - 1)
		if err != nil {
			return err
		}
		if err := n.SetKey(i, k); err != nil {
			return err
		}
	}
	for i := old; i >= insertPtrSlot; i-- {
		p, err := n.GetPtr(i)
		if err != nil {
			return err
		}
		if err := n.SetPtr(i+1, p); err != nil {
			return err
		}
	}

	if err := n.SetKey(offset, key); err != nil {
		return err
	}
	if err := n.SetPtr(insertPtrSlot, newNode); err != nil {
		return err
	}

	return n.Serialize(ix.store, nodeIdx)
}

// splitNode allocates no block itself: it builds the in-memory sibling node
// that the caller then persists, and returns the separator key to promote.
// The sibling is always created as an Interior node when splitting an
// interior/root node — a root's extra type never survives a split; a fresh
// Root block is allocated separately by promoteNewRoot.
func (ix *Index) splitNode(n *node.Node) (*node.Node, []byte, error) {
	total := int(n.Info.NumKeys)
	half := total / 2

	sep, err := n.GetKey(half - 1)
	if err != nil {
		return nil, nil, err
	}

	siblingType := n.Info.Type
	if siblingType == node.Root {
		siblingType = node.Interior
	}
	nw := node.New(siblingType, ix.super.Info.KeySize, ix.super.Info.ValSize, ix.store)
	nw.Info.RootNode = n.Info.RootNode

	switch n.Info.Type {
	case node.Leaf:
		nw.Info.NumKeys = uint64(total - half)
		for i := half; i < total; i++ {
			k, err := n.GetKey(i)
			if err != nil {
				return nil, nil, err
			}
			v, err := n.GetVal(i)
			if err != nil {
				return nil, nil, err
			}
			j := i - half
			if err := nw.SetKey(j, k); err != nil {
				return nil, nil, err
			}
			if err := nw.SetVal(j, v); err != nil {
				return nil, nil, err
			}
		}
		n.Info.NumKeys = uint64(half)

	case node.Interior, node.Root:
		nw.Info.NumKeys = uint64(total - half)
		for i := half; i < total; i++ {
			k, err := n.GetKey(i)
			if err != nil {
				return nil, nil, err
			}
			if err := nw.SetKey(i-half, k); err != nil {
				return nil, nil, err
			}
		}
		for i := half; i <= total; i++ {
			p, err := n.GetPtr(i)
			if err != nil {
				return nil, nil, err
			}
			if err := nw.SetPtr(i-half, p); err != nil {
				return nil, nil, err
			}
		}
		// The separator moves up to the parent and pointer `half` now
		// belongs to the sibling, so the left node keeps keys [0, half-1)
		// and pointers [0, half-1].
		n.Info.NumKeys = uint64(half - 1)

	default:
		return nil, nil, fmt.Errorf("btree: split: %w: node type %s", btreeerr.ErrInsane, n.Info.Type)
	}

	return nw, sep, nil
}

// promoteNewRoot handles the one case insertRecursive can't: the node that
// just split was the Root. A new Root block is allocated, the old Root is
// retyped Interior, and the new Root is populated with two non-recursive
// inserts: first the separator with the new sibling as its right-hand
// pointer, then the same separator again — now an exact match — retargeting
// the left-hand pointer to the old Root.
func (ix *Index) promoteNewRoot(oldRootIdx block.Index, sep []byte, newIdx block.Index) error {
	oldRoot, err := node.Unserialize(ix.store, oldRootIdx)
	if err != nil {
		return err
	}
	oldRoot.Info.Type = node.Interior
	if err := oldRoot.Serialize(ix.store, oldRootIdx); err != nil {
		return err
	}

	newRootIdx, err := ix.allocateNode()
	if err != nil {
		return err
	}

	newRoot := node.New(node.Root, ix.super.Info.KeySize, ix.super.Info.ValSize, ix.store)
	newRoot.Info.RootNode = newRootIdx
	if err := newRoot.Serialize(ix.store, newRootIdx); err != nil {
		return err
	}

	ix.super.Info.RootNode = newRootIdx
	if err := ix.super.Serialize(ix.store, superblockIndex); err != nil {
		return err
	}

	if err := ix.insertKeyValue(newRootIdx, sep, nil, newIdx, true); err != nil {
		return err
	}
	if err := ix.insertKeyValue(newRootIdx, sep, nil, oldRootIdx, false); err != nil {
		return err
	}

	return nil
}

// Delete is out of scope for this engine: no rebalancing machinery exists.
func (ix *Index) Delete(key []byte) error {
	return btreeerr.ErrUnimplemented
}
