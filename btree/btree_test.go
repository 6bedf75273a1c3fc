package btree

import (
	"errors"
	"fmt"
	"testing"

	"blocktree/block"
	"blocktree/btreeerr"
	"blocktree/cache"
)

const (
	testKeySize   = 8
	testValSize   = 8
	testBlockSize = 128
	testNumBlocks = 64
)

// newTestIndex returns a freshly created, empty index backed by an
// in-memory store, small enough (5-ish slots per node) that a few dozen
// inserts reliably exercise splitting and root promotion.
func newTestIndex(t *testing.T) *Index {
	t.Helper()
	store := block.NewMemStore(testNumBlocks, testBlockSize)
	c, err := cache.Open(store, testNumBlocks)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	ix, err := Attach(c, true, testKeySize, testValSize)
	if err != nil {
		t.Fatalf("Attach(create): %v", err)
	}
	return ix
}

func testKey(n int) []byte {
	return []byte(fmt.Sprintf("%08d", n))
}

func testVal(n int) []byte {
	return []byte(fmt.Sprintf("v%07d", n))
}

func TestLookupOnEmptyTreeIsNonExistent(t *testing.T) {
	ix := newTestIndex(t)
	if _, err := ix.Lookup(testKey(1)); err != btreeerr.ErrNonExistent {
		t.Errorf("Lookup on empty tree: expected ErrNonExistent, got %v", err)
	}
}

func TestInsertThenLookup(t *testing.T) {
	ix := newTestIndex(t)

	if err := ix.Insert(testKey(1), testVal(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := ix.Lookup(testKey(1))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if string(got) != string(testVal(1)) {
		t.Errorf("Lookup: expected %s, got %s", testVal(1), got)
	}

	if _, err := ix.Lookup(testKey(2)); err != btreeerr.ErrNonExistent {
		t.Errorf("Lookup(missing key): expected ErrNonExistent, got %v", err)
	}
}

func TestInsertDuplicateIsConflict(t *testing.T) {
	ix := newTestIndex(t)
	if err := ix.Insert(testKey(5), testVal(5)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := ix.Insert(testKey(5), testVal(50)); err != btreeerr.ErrConflict {
		t.Errorf("Insert duplicate: expected ErrConflict, got %v", err)
	}
}

func TestInsertWrongSizeKeyIsSize(t *testing.T) {
	ix := newTestIndex(t)
	if err := ix.Insert([]byte("short"), testVal(1)); !errors.Is(err, btreeerr.ErrSize) {
		t.Errorf("Insert with wrong key size: expected ErrSize, got %v", err)
	}
}

func TestInsertManyTriggersSplitsAndRootPromotion(t *testing.T) {
	ix := newTestIndex(t)

	const n = 40
	for i := 0; i < n; i++ {
		if err := ix.Insert(testKey(i), testVal(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	if ix.NumKeys() != n {
		t.Errorf("NumKeys: expected %d, got %d", n, ix.NumKeys())
	}

	for i := 0; i < n; i++ {
		got, err := ix.Lookup(testKey(i))
		if err != nil {
			t.Fatalf("Lookup(%d): %v", i, err)
		}
		if string(got) != string(testVal(i)) {
			t.Errorf("Lookup(%d): expected %s, got %s", i, testVal(i), got)
		}
	}

	if err := ix.SanityCheck(); err != nil {
		t.Errorf("SanityCheck after %d inserts: %v", n, err)
	}

	keys, err := ix.KeysInOrder()
	if err != nil {
		t.Fatalf("KeysInOrder: %v", err)
	}
	if len(keys) != n {
		t.Errorf("KeysInOrder: expected %d keys, got %d", n, len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if string(keys[i-1]) >= string(keys[i]) {
			t.Errorf("KeysInOrder: not strictly ascending at %d: %s >= %s", i, keys[i-1], keys[i])
		}
	}
}

func TestInsertOutOfOrderStillSorts(t *testing.T) {
	ix := newTestIndex(t)

	order := []int{17, 3, 29, 1, 22, 9, 14, 2, 31, 6, 25, 11, 0, 19, 8}
	for _, i := range order {
		if err := ix.Insert(testKey(i), testVal(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	keys, err := ix.KeysInOrder()
	if err != nil {
		t.Fatalf("KeysInOrder: %v", err)
	}
	if len(keys) != len(order) {
		t.Fatalf("KeysInOrder: expected %d keys, got %d", len(order), len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if string(keys[i-1]) >= string(keys[i]) {
			t.Errorf("not sorted at %d: %s >= %s", i, keys[i-1], keys[i])
		}
	}

	if err := ix.SanityCheck(); err != nil {
		t.Errorf("SanityCheck: %v", err)
	}
}

func TestUpdateExistingKey(t *testing.T) {
	ix := newTestIndex(t)
	if err := ix.Insert(testKey(7), testVal(7)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := ix.Update(testKey(7), testVal(700)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := ix.Lookup(testKey(7))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if string(got) != string(testVal(700)) {
		t.Errorf("Lookup after Update: expected %s, got %s", testVal(700), got)
	}
}

func TestUpdateMissingKeyIsNonExistent(t *testing.T) {
	ix := newTestIndex(t)
	if err := ix.Update(testKey(1), testVal(1)); err != btreeerr.ErrNonExistent {
		t.Errorf("Update missing key: expected ErrNonExistent, got %v", err)
	}
}

func TestDeleteIsUnimplemented(t *testing.T) {
	ix := newTestIndex(t)
	if err := ix.Delete(testKey(1)); err != btreeerr.ErrUnimplemented {
		t.Errorf("Delete: expected ErrUnimplemented, got %v", err)
	}
}

func TestAtLeastHalfFullAfterManyInserts(t *testing.T) {
	ix := newTestIndex(t)
	for i := 0; i < 50; i++ {
		if err := ix.Insert(testKey(i), testVal(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	ok, err := ix.AtLeastHalfFull()
	if err != nil {
		t.Fatalf("AtLeastHalfFull: %v", err)
	}
	if !ok {
		t.Errorf("AtLeastHalfFull: expected true after %d inserts", 50)
	}
}

func TestNoSpaceWhenFreeListExhausted(t *testing.T) {
	store := block.NewMemStore(5, testBlockSize)
	c, err := cache.Open(store, 5)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	ix, err := Attach(c, true, testKeySize, testValSize)
	if err != nil {
		t.Fatalf("Attach(create): %v", err)
	}

	var lastErr error
	inserted := 0
	for i := 0; i < 1000; i++ {
		if err := ix.Insert(testKey(i), testVal(i)); err != nil {
			lastErr = err
			break
		}
		inserted++
	}
	if lastErr != btreeerr.ErrNoSpace {
		t.Fatalf("expected ErrNoSpace once the tiny store fills up, got %v (after %d inserts)", lastErr, inserted)
	}
}

func TestAttachRejectsMismatchedSizes(t *testing.T) {
	store := block.NewMemStore(testNumBlocks, testBlockSize)
	c, err := cache.Open(store, testNumBlocks)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	if _, err := Attach(c, true, testKeySize, testValSize); err != nil {
		t.Fatalf("Attach(create): %v", err)
	}

	if _, err := Attach(c, false, testKeySize+1, testValSize); !errors.Is(err, btreeerr.ErrSize) {
		t.Errorf("Attach with mismatched keysize: expected ErrSize, got %v", err)
	}
}

func TestDetachThenReattach(t *testing.T) {
	store := block.NewMemStore(testNumBlocks, testBlockSize)
	c, err := cache.Open(store, testNumBlocks)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	ix, err := Attach(c, true, testKeySize, testValSize)
	if err != nil {
		t.Fatalf("Attach(create): %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := ix.Insert(testKey(i), testVal(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := ix.Detach(); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	ix2, err := Attach(c, false, testKeySize, testValSize)
	if err != nil {
		t.Fatalf("Attach(reopen): %v", err)
	}
	if ix2.NumKeys() != 10 {
		t.Errorf("NumKeys after reattach: expected 10, got %d", ix2.NumKeys())
	}
	got, err := ix2.Lookup(testKey(3))
	if err != nil {
		t.Fatalf("Lookup after reattach: %v", err)
	}
	if string(got) != string(testVal(3)) {
		t.Errorf("Lookup after reattach: expected %s, got %s", testVal(3), got)
	}
}
