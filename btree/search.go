package btree

import (
	"bytes"
	"fmt"

	"blocktree/block"
	"blocktree/btreeerr"
	"blocktree/node"
)

// findLeaf descends from the root looking for the leaf that would contain
// key. It returns the leaf's block index and the path of interior/root
// ancestors visited along the way, root-first — a bounded stack (tree
// height is O(log N)) recorded during the one descent Insert already has to
// do, used in place of FindParent's predicate-driven re-descent.
//
// A zero leaf index with a nil error means the tree is still in its
// pre-bootstrap empty state (root has zero keys and nothing to descend
// into yet) — not a structural error.
func (ix *Index) findLeaf(key []byte) (block.Index, []block.Index, error) {
	var path []block.Index
	cur := ix.super.Info.RootNode

	for {
		n, err := node.Unserialize(ix.store, cur)
		if err != nil {
			return 0, nil, err
		}

		switch n.Info.Type {
		case node.Leaf:
			return cur, path, nil
		case node.Interior, node.Root:
			if n.Info.NumKeys == 0 {
				return 0, nil, nil
			}
			path = append(path, cur)
			next, err := descendPtr(n, key)
			if err != nil {
				return 0, nil, err
			}
			cur = next
		default:
			return 0, nil, fmt.Errorf("btree: descend: %w: block %d has type %s", btreeerr.ErrInsane, cur, n.Info.Type)
		}
	}
}

// descendPtr returns the child pointer descent should follow from
// interior/root node n when searching for key: the pointer to the left of
// the first separator >= key, or the trailing pointer if key exceeds every
// separator in n. A key equal to a separator descends left, per the search
// invariant (every key under p_i is <= k_i).
func descendPtr(n *node.Node, key []byte) (block.Index, error) {
	for i := 0; i < int(n.Info.NumKeys); i++ {
		testkey, err := n.GetKey(i)
		if err != nil {
			return 0, err
		}
		if bytes.Compare(key, testkey) <= 0 {
			return n.GetPtr(i)
		}
	}
	return n.GetPtr(int(n.Info.NumKeys))
}

// Lookup returns the value stored for key, or btreeerr.ErrNonExistent if no
// such key is present.
func (ix *Index) Lookup(key []byte) ([]byte, error) {
	if err := ix.checkKeySize(key); err != nil {
		return nil, err
	}

	leaf, _, err := ix.findLeaf(key)
	if err != nil {
		return nil, err
	}
	if leaf == 0 {
		return nil, btreeerr.ErrNonExistent
	}

	n, err := node.Unserialize(ix.store, leaf)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(n.Info.NumKeys); i++ {
		testkey, err := n.GetKey(i)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(testkey, key) {
			return n.GetVal(i)
		}
	}
	return nil, btreeerr.ErrNonExistent
}

// Update overwrites the value stored for an existing key, persisting the
// leaf block in place. Returns btreeerr.ErrNonExistent if key is absent.
func (ix *Index) Update(key, value []byte) error {
	if err := ix.checkKeySize(key); err != nil {
		return err
	}
	if err := ix.checkValSize(value); err != nil {
		return err
	}

	leaf, _, err := ix.findLeaf(key)
	if err != nil {
		return err
	}
	if leaf == 0 {
		return btreeerr.ErrNonExistent
	}

	n, err := node.Unserialize(ix.store, leaf)
	if err != nil {
		return err
	}
	for i := 0; i < int(n.Info.NumKeys); i++ {
		testkey, err := n.GetKey(i)
		if err != nil {
			return err
		}
		if bytes.Equal(testkey, key) {
			if err := n.SetVal(i, value); err != nil {
				return err
			}
			return n.Serialize(ix.store, leaf)
		}
	}
	return btreeerr.ErrNonExistent
}

func (ix *Index) checkKeySize(key []byte) error {
	if uint32(len(key)) != ix.super.Info.KeySize {
		return fmt.Errorf("btree: key length %d does not match keysize %d: %w", len(key), ix.super.Info.KeySize, btreeerr.ErrSize)
	}
	return nil
}

func (ix *Index) checkValSize(val []byte) error {
	if uint32(len(val)) != ix.super.Info.ValSize {
		return fmt.Errorf("btree: value length %d does not match valuesize %d: %w", len(val), ix.super.Info.ValSize, btreeerr.ErrSize)
	}
	return nil
}
