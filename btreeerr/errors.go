// Package btreeerr defines the sentinel error values returned by the btree
// core's public operations. NoError is simply a nil error return; it has no
// value here. Callers match a returned error against a code with errors.Is,
// the way the rest of this module wraps lower-level errors with %w.
package btreeerr

import "errors"

var (
	// ErrNoSpace is returned when the free list is exhausted during
	// AllocateNode.
	ErrNoSpace = errors.New("btree: no space")

	// ErrNonExistent is returned by Lookup/Update when the key is absent.
	ErrNonExistent = errors.New("btree: key does not exist")

	// ErrConflict is returned by Insert when the key already exists.
	ErrConflict = errors.New("btree: key already exists")

	// ErrNoOrder is returned by SanityCheck when key ordering is violated.
	ErrNoOrder = errors.New("btree: keys out of order")

	// ErrSize is returned when a size contract is violated: a superblock
	// whose keysize/valuesize/blocksize does not match what the caller
	// compiled against, or a slot accessor index out of bounds.
	ErrSize = errors.New("btree: size mismatch")

	// ErrInsane is returned when the tree structure itself is found to be
	// corrupt: descent fell off a node, or a block has a node type that
	// cannot legally appear where it was found.
	ErrInsane = errors.New("btree: structure is insane")

	// ErrUnimplemented is returned by Delete.
	ErrUnimplemented = errors.New("btree: not implemented")
)
