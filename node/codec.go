package node

import (
	"encoding/binary"
	"fmt"

	"blocktree/block"
	"blocktree/btreeerr"
)

// BlockReadWriter is the narrow slice of the buffer cache the codec needs:
// whole-block reads and writes, plus the block size they're measured in.
// Any cache satisfying this (in particular *cache.Cache) can back a Node.
type BlockReadWriter interface {
	BlockSize() int
	ReadBlock(i block.Index) ([]byte, error)
	WriteBlock(i block.Index, data []byte) error
}

// New returns a freshly initialized, empty node of the given type, sized to
// fit one block of cache's block size.
func New(t Type, keysize, valsize uint32, bc BlockReadWriter) *Node {
	bs := uint32(bc.BlockSize())
	return &Node{
		Info: Info{
			Type:      t,
			KeySize:   keysize,
			ValSize:   valsize,
			BlockSize: bs,
		},
		buf: make([]byte, bs),
	}
}

// Unserialize reads block i through bc and decodes it into a Node.
func Unserialize(bc BlockReadWriter, i block.Index) (*Node, error) {
	raw, err := bc.ReadBlock(i)
	if err != nil {
		return nil, fmt.Errorf("node: unserialize block %d: %w", i, err)
	}
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("node: unserialize block %d: %w: block shorter than header", i, btreeerr.ErrSize)
	}

	n := &Node{buf: raw}
	off := 0
	n.Info.Type = Type(raw[off])
	off++
	n.Info.KeySize = binary.LittleEndian.Uint32(raw[off:])
	off += 4
	n.Info.ValSize = binary.LittleEndian.Uint32(raw[off:])
	off += 4
	n.Info.BlockSize = binary.LittleEndian.Uint32(raw[off:])
	off += 4
	n.Info.RootNode = block.Index(binary.LittleEndian.Uint64(raw[off:]))
	off += 8
	n.Info.FreeList = block.Index(binary.LittleEndian.Uint64(raw[off:]))
	off += 8
	n.Info.NumKeys = binary.LittleEndian.Uint64(raw[off:])

	return n, nil
}

// Serialize encodes the node's header into its backing buffer and writes
// the entire block through bc. Partial writes are never observable: the
// whole block is written in one call.
func (n *Node) Serialize(bc BlockReadWriter, i block.Index) error {
	if len(n.buf) != int(n.Info.BlockSize) {
		return fmt.Errorf("node: serialize block %d: %w: buffer length %d does not match blocksize %d", i, btreeerr.ErrSize, len(n.buf), n.Info.BlockSize)
	}

	off := 0
	n.buf[off] = byte(n.Info.Type)
	off++
	binary.LittleEndian.PutUint32(n.buf[off:], n.Info.KeySize)
	off += 4
	binary.LittleEndian.PutUint32(n.buf[off:], n.Info.ValSize)
	off += 4
	binary.LittleEndian.PutUint32(n.buf[off:], n.Info.BlockSize)
	off += 4
	binary.LittleEndian.PutUint64(n.buf[off:], uint64(n.Info.RootNode))
	off += 8
	binary.LittleEndian.PutUint64(n.buf[off:], uint64(n.Info.FreeList))
	off += 8
	binary.LittleEndian.PutUint64(n.buf[off:], n.Info.NumKeys)

	if err := bc.WriteBlock(i, n.buf); err != nil {
		return fmt.Errorf("node: serialize block %d: %w", i, err)
	}
	return nil
}

// ─── Leaf slot accessors: (key, value) pairs ───────────────────────────────

func (n *Node) leafSlotOffset(slot int) int {
	return HeaderSize + slot*(int(n.Info.KeySize)+int(n.Info.ValSize))
}

// GetKey returns slot's key. Valid for leaf and interior/root nodes alike;
// for interior/root, slot must be in [0, NumKeys).
func (n *Node) GetKey(slot int) ([]byte, error) {
	if slot < 0 || uint64(slot) >= n.Info.NumKeys {
		return nil, fmt.Errorf("node: GetKey(%d): %w: numkeys=%d", slot, btreeerr.ErrSize, n.Info.NumKeys)
	}
	off := n.keyOffset(slot)
	ks := int(n.Info.KeySize)
	out := make([]byte, ks)
	copy(out, n.buf[off:off+ks])
	return out, nil
}

// SetKey writes slot's key. slot must be in [0, NumKeys).
func (n *Node) SetKey(slot int, key []byte) error {
	if slot < 0 || uint64(slot) >= n.Info.NumKeys {
		return fmt.Errorf("node: SetKey(%d): %w: numkeys=%d", slot, btreeerr.ErrSize, n.Info.NumKeys)
	}
	if len(key) != int(n.Info.KeySize) {
		return fmt.Errorf("node: SetKey(%d): %w: key length %d does not match keysize %d", slot, btreeerr.ErrSize, len(key), n.Info.KeySize)
	}
	off := n.keyOffset(slot)
	copy(n.buf[off:off+int(n.Info.KeySize)], key)
	return nil
}

// keyOffset dispatches on node type since leaves and interior/root nodes
// pack keys differently.
func (n *Node) keyOffset(slot int) int {
	if n.Info.Type == Leaf {
		return n.leafSlotOffset(slot)
	}
	return n.interiorKeyOffset(slot)
}

// GetVal returns slot's value. Leaf nodes only; slot must be in [0, NumKeys).
func (n *Node) GetVal(slot int) ([]byte, error) {
	if n.Info.Type != Leaf {
		return nil, fmt.Errorf("node: GetVal(%d): %w: not a leaf node", slot, btreeerr.ErrInsane)
	}
	if slot < 0 || uint64(slot) >= n.Info.NumKeys {
		return nil, fmt.Errorf("node: GetVal(%d): %w: numkeys=%d", slot, btreeerr.ErrSize, n.Info.NumKeys)
	}
	off := n.leafSlotOffset(slot) + int(n.Info.KeySize)
	vs := int(n.Info.ValSize)
	out := make([]byte, vs)
	copy(out, n.buf[off:off+vs])
	return out, nil
}

// SetVal writes slot's value. Leaf nodes only; slot must be in [0, NumKeys).
func (n *Node) SetVal(slot int, val []byte) error {
	if n.Info.Type != Leaf {
		return fmt.Errorf("node: SetVal(%d): %w: not a leaf node", slot, btreeerr.ErrInsane)
	}
	if slot < 0 || uint64(slot) >= n.Info.NumKeys {
		return fmt.Errorf("node: SetVal(%d): %w: numkeys=%d", slot, btreeerr.ErrSize, n.Info.NumKeys)
	}
	if len(val) != int(n.Info.ValSize) {
		return fmt.Errorf("node: SetVal(%d): %w: value length %d does not match valuesize %d", slot, btreeerr.ErrSize, len(val), n.Info.ValSize)
	}
	off := n.leafSlotOffset(slot) + int(n.Info.KeySize)
	copy(n.buf[off:off+int(n.Info.ValSize)], val)
	return nil
}

// ─── Interior/root slot accessors: (ptr, key, ptr, key, ..., ptr) ─────────

// interiorKeyOffset is the offset of separator key `slot`: the header, the
// leading pointer, then `slot` complete (key, ptr) pairs.
func (n *Node) interiorKeyOffset(slot int) int {
	return HeaderSize + PtrSize + slot*(int(n.Info.KeySize)+PtrSize)
}

// interiorPtrOffset is the offset of pointer `slot` (0..NumKeys inclusive).
func (n *Node) interiorPtrOffset(slot int) int {
	if slot == 0 {
		return HeaderSize
	}
	return HeaderSize + PtrSize + (slot-1)*(int(n.Info.KeySize)+PtrSize) + int(n.Info.KeySize)
}

// GetPtr returns child pointer `slot`. Interior/root nodes only; slot is in
// [0, NumKeys]. Other node types have no pointer slots and return
// btreeerr.ErrInsane (a free block's successor is in Info.FreeList).
func (n *Node) GetPtr(slot int) (block.Index, error) {
	if n.Info.Type == Interior || n.Info.Type == Root {
		if slot < 0 || uint64(slot) > n.Info.NumKeys {
			return 0, fmt.Errorf("node: GetPtr(%d): %w: numkeys=%d", slot, btreeerr.ErrSize, n.Info.NumKeys)
		}
		off := n.interiorPtrOffset(slot)
		return block.Index(binary.LittleEndian.Uint64(n.buf[off:])), nil
	}
	return 0, fmt.Errorf("node: GetPtr(%d): %w: node type %s has no pointer slots", slot, btreeerr.ErrInsane, n.Info.Type)
}

// SetPtr writes child pointer `slot`. Interior/root nodes only.
func (n *Node) SetPtr(slot int, p block.Index) error {
	if n.Info.Type != Interior && n.Info.Type != Root {
		return fmt.Errorf("node: SetPtr(%d): %w: node type %s has no pointer slots", slot, btreeerr.ErrInsane, n.Info.Type)
	}
	if slot < 0 || uint64(slot) > n.Info.NumKeys {
		return fmt.Errorf("node: SetPtr(%d): %w: numkeys=%d", slot, btreeerr.ErrSize, n.Info.NumKeys)
	}
	off := n.interiorPtrOffset(slot)
	binary.LittleEndian.PutUint64(n.buf[off:], uint64(p))
	return nil
}
