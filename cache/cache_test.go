package cache

import (
	"bytes"
	"testing"

	"blocktree/block"
)

func TestReadYourWritesBeforeFlush(t *testing.T) {
	store := block.NewMemStore(4, 64)
	c, err := Open(store, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	data := bytes.Repeat([]byte{0x42}, 64)
	if err := c.WriteBlock(1, data); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	// Visible through the cache immediately...
	got, err := c.ReadBlock(1)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadBlock: dirty write not visible")
	}

	// ...but not yet in the underlying store.
	raw, err := store.ReadBlock(1)
	if err != nil {
		t.Fatalf("store.ReadBlock: %v", err)
	}
	if bytes.Equal(raw, data) {
		t.Errorf("underlying store was written before Flush")
	}
}

func TestFlushPersistsToStore(t *testing.T) {
	store := block.NewMemStore(4, 64)
	c, err := Open(store, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data := bytes.Repeat([]byte{0x99}, 64)
	if err := c.WriteBlock(2, data); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	raw, err := store.ReadBlock(2)
	if err != nil {
		t.Fatalf("store.ReadBlock: %v", err)
	}
	if !bytes.Equal(raw, data) {
		t.Errorf("Flush did not persist to the underlying store")
	}
	if st := c.Stats(); st.DirtyBlocks != 0 {
		t.Errorf("Stats.DirtyBlocks: expected 0 after flush, got %d", st.DirtyBlocks)
	}
}

func TestReadThroughReturnsStoreData(t *testing.T) {
	store := block.NewMemStore(4, 64)
	data := bytes.Repeat([]byte{0x7}, 64)
	if err := store.WriteBlock(0, data); err != nil {
		t.Fatalf("store.WriteBlock: %v", err)
	}

	c, err := Open(store, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	got, err := c.ReadBlock(0)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadBlock: expected read-through of preexisting store data")
	}
}

func TestNotifyDeallocateCountsDeallocation(t *testing.T) {
	store := block.NewMemStore(4, 64)
	c, err := Open(store, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	data := bytes.Repeat([]byte{0x55}, 64)
	if err := c.WriteBlock(3, data); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	before := c.Stats()
	c.NotifyDeallocateBlock(3)
	after := c.Stats()
	if after.Deallocated != before.Deallocated+1 {
		t.Errorf("Deallocated counter: expected %d, got %d", before.Deallocated+1, after.Deallocated)
	}
}

func TestWriteBlockWrongSize(t *testing.T) {
	store := block.NewMemStore(2, 64)
	c, err := Open(store, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	if err := c.WriteBlock(0, make([]byte, 32)); err == nil {
		t.Errorf("expected size mismatch error, got nil")
	}
}
