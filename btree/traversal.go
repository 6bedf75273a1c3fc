package btree

import (
	"bytes"
	"fmt"
	"io"

	"blocktree/block"
	"blocktree/btreeerr"
	"blocktree/node"
)

// DisplayStyle selects how Display renders the tree.
type DisplayStyle int

const (
	// Depth renders one indented line per node, interior nodes and leaves
	// alike, in descent order; each leaf line is followed by one line per
	// key/value pair.
	Depth DisplayStyle = iota
	// DepthDot renders the same traversal as Graphviz dot source.
	DepthDot
	// SortedKeyVal renders only leaf key/value pairs, in sorted order.
	SortedKeyVal
)

// Display writes the tree to w using the given style.
func (ix *Index) Display(w io.Writer, style DisplayStyle) error {
	switch style {
	case Depth:
		return ix.displayDepth(w, ix.super.Info.RootNode, 0, false)
	case DepthDot:
		fmt.Fprintln(w, "digraph tree {")
		if err := ix.displayDepth(w, ix.super.Info.RootNode, 0, true); err != nil {
			return err
		}
		fmt.Fprintln(w, "}")
		return nil
	case SortedKeyVal:
		return ix.displaySortedKeyVal(w, ix.super.Info.RootNode)
	default:
		return fmt.Errorf("btree: display: unknown style %d", style)
	}
}

func (ix *Index) displayDepth(w io.Writer, idx block.Index, depth int, dot bool) error {
	n, err := node.Unserialize(ix.store, idx)
	if err != nil {
		return err
	}

	if dot {
		fmt.Fprintf(w, "  n%d [label=\"%s #%d (%d keys)\"];\n", idx, n.Info.Type, idx, n.Info.NumKeys)
	} else {
		indent := ""
		for i := 0; i < depth; i++ {
			indent += "  "
		}
		fmt.Fprintf(w, "%sblock %d: %s, %d keys\n", indent, idx, n.Info.Type, n.Info.NumKeys)
	}

	switch n.Info.Type {
	case node.Leaf:
		for i := 0; i < int(n.Info.NumKeys); i++ {
			k, err := n.GetKey(i)
			if err != nil {
				return err
			}
			v, err := n.GetVal(i)
			if err != nil {
				return err
			}
			if !dot {
				indent := ""
				for j := 0; j <= depth; j++ {
					indent += "  "
				}
				fmt.Fprintf(w, "%s%x -> %x\n", indent, k, v)
			}
		}
	case node.Interior, node.Root:
		for i := 0; i <= int(n.Info.NumKeys); i++ {
			p, err := n.GetPtr(i)
			if err != nil {
				return err
			}
			if dot {
				fmt.Fprintf(w, "  n%d -> n%d;\n", idx, p)
			}
			if err := ix.displayDepth(w, p, depth+1, dot); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ix *Index) displaySortedKeyVal(w io.Writer, idx block.Index) error {
	n, err := node.Unserialize(ix.store, idx)
	if err != nil {
		return err
	}

	switch n.Info.Type {
	case node.Leaf:
		for i := 0; i < int(n.Info.NumKeys); i++ {
			k, err := n.GetKey(i)
			if err != nil {
				return err
			}
			v, err := n.GetVal(i)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%x: %x\n", k, v)
		}
	case node.Interior, node.Root:
		for i := 0; i <= int(n.Info.NumKeys); i++ {
			p, err := n.GetPtr(i)
			if err != nil {
				return err
			}
			if err := ix.displaySortedKeyVal(w, p); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("btree: display: %w: block %d has type %s", btreeerr.ErrInsane, idx, n.Info.Type)
	}
	return nil
}

// KeysInOrder collects every key stored in the tree, in ascending order, by
// walking every child pointer of every interior/root node (not just the
// first — a node with N keys has N+1 children, and all of them hold live
// data).
func (ix *Index) KeysInOrder() ([][]byte, error) {
	var keys [][]byte
	if err := ix.keysInOrder(ix.super.Info.RootNode, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (ix *Index) keysInOrder(idx block.Index, out *[][]byte) error {
	n, err := node.Unserialize(ix.store, idx)
	if err != nil {
		return err
	}

	switch n.Info.Type {
	case node.Leaf:
		for i := 0; i < int(n.Info.NumKeys); i++ {
			k, err := n.GetKey(i)
			if err != nil {
				return err
			}
			*out = append(*out, k)
		}
		return nil
	case node.Interior, node.Root:
		for i := 0; i <= int(n.Info.NumKeys); i++ {
			p, err := n.GetPtr(i)
			if err != nil {
				return err
			}
			if err := ix.keysInOrder(p, out); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("btree: keys in order: %w: block %d has type %s", btreeerr.ErrInsane, idx, n.Info.Type)
	}
}

// AtLeastHalfFull reports whether every node reachable from the root, other
// than the root itself, holds at least half its slot capacity — the
// occupancy invariant a correctly functioning split/promote engine
// maintains (the root is exempt: it may legitimately hold as little as one
// key).
func (ix *Index) AtLeastHalfFull() (bool, error) {
	return ix.atLeastHalfFull(ix.super.Info.RootNode, true)
}

func (ix *Index) atLeastHalfFull(idx block.Index, isRoot bool) (bool, error) {
	n, err := node.Unserialize(ix.store, idx)
	if err != nil {
		return false, err
	}

	var capacity int
	switch n.Info.Type {
	case node.Leaf:
		capacity = n.NumSlotsAsLeaf()
	case node.Interior, node.Root:
		capacity = n.NumSlotsAsInterior()
	default:
		return false, fmt.Errorf("btree: half-full check: %w: block %d has type %s", btreeerr.ErrInsane, idx, n.Info.Type)
	}

	if !isRoot && n.Info.NumKeys == 0 {
		return false, nil
	}
	if !isRoot && int(n.Info.NumKeys)*2 < capacity {
		return false, nil
	}

	if n.Info.Type == node.Leaf {
		return true, nil
	}

	for i := 0; i <= int(n.Info.NumKeys); i++ {
		p, err := n.GetPtr(i)
		if err != nil {
			return false, err
		}
		ok, err := ix.atLeastHalfFull(p, false)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// SanityCheck walks the whole tree and verifies it is well formed: keys come
// back in strictly ascending order with no duplicates, and every separator
// correctly bounds the keys reachable below it. It returns nil (no error)
// when the tree passes; otherwise it describes the first problem found in a
// wrapped btreeerr.ErrNoOrder (keys or separators out of order or
// duplicated) or btreeerr.ErrInsane (a key outside its separator bounds, or
// a block of the wrong type).
func (ix *Index) SanityCheck() error {
	keys, err := ix.KeysInOrder()
	if err != nil {
		return err
	}
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1], keys[i]) >= 0 {
			return fmt.Errorf("btree: sanity check: %w: keys out of order or duplicated at position %d", btreeerr.ErrNoOrder, i)
		}
	}
	return ix.sanityCheckNode(ix.super.Info.RootNode, nil, nil)
}

// sanityCheckNode verifies every key under idx falls in (lo, hi] — lo/hi
// nil meaning unbounded — and recurses into every child.
func (ix *Index) sanityCheckNode(idx block.Index, lo, hi []byte) error {
	n, err := node.Unserialize(ix.store, idx)
	if err != nil {
		return err
	}

	switch n.Info.Type {
	case node.Leaf:
		for i := 0; i < int(n.Info.NumKeys); i++ {
			k, err := n.GetKey(i)
			if err != nil {
				return err
			}
			if lo != nil && bytes.Compare(k, lo) <= 0 {
				return fmt.Errorf("btree: sanity check: %w: block %d key %x at or below lower bound %x", btreeerr.ErrInsane, idx, k, lo)
			}
			if hi != nil && bytes.Compare(k, hi) > 0 {
				return fmt.Errorf("btree: sanity check: %w: block %d key %x above upper bound %x", btreeerr.ErrInsane, idx, k, hi)
			}
		}
		return nil

	case node.Interior, node.Root:
		var prevKey []byte
		for i := 0; i < int(n.Info.NumKeys); i++ {
			k, err := n.GetKey(i)
			if err != nil {
				return err
			}
			if prevKey != nil && bytes.Compare(k, prevKey) <= 0 {
				return fmt.Errorf("btree: sanity check: %w: block %d separators out of order at slot %d", btreeerr.ErrNoOrder, idx, i)
			}
			prevKey = k
		}

		childLo := lo
		for i := 0; i <= int(n.Info.NumKeys); i++ {
			p, err := n.GetPtr(i)
			if err != nil {
				return err
			}
			var childHi []byte
			if i < int(n.Info.NumKeys) {
				childHi, err = n.GetKey(i)
				if err != nil {
					return err
				}
				if hi != nil && bytes.Compare(childHi, hi) > 0 {
					childHi = hi
				}
			} else {
				childHi = hi
			}
			if err := ix.sanityCheckNode(p, childLo, childHi); err != nil {
				return err
			}
			childLo = childHi
		}
		return nil

	default:
		return fmt.Errorf("btree: sanity check: %w: block %d has type %s", btreeerr.ErrInsane, idx, n.Info.Type)
	}
}
