// Inspect a B+-tree index file.
// Usage: go run ./cmd/btreeinspect -keysize N -valsize N <path-to-index>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"blocktree/block"
	"blocktree/btree"
	"blocktree/cache"
)

func main() {
	keysize := flag.Uint("keysize", 8, "fixed key width in bytes (must match the index's on-disk size)")
	valsize := flag.Uint("valsize", 8, "fixed value width in bytes (must match the index's on-disk size)")
	blocksize := flag.Uint("blocksize", 4096, "block size in bytes (must match the index's on-disk size)")
	numblocks := flag.Uint("numblocks", 1024, "number of blocks in the store (must match the index's on-disk size)")
	cacheCapacity := flag.Uint("cache", 128, "number of blocks the buffer cache may hold resident")
	style := flag.String("style", "depth", "display style: depth, dot, or sorted")
	sanity := flag.Bool("sanity", true, "run SanityCheck before displaying")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <index-file>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	path := flag.Arg(0)

	if err := inspect(path, uint32(*keysize), uint32(*valsize), int(*blocksize), int(*numblocks), int(*cacheCapacity), *style, *sanity); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func inspect(path string, keysize, valsize uint32, blocksize, numblocks, cacheCapacity int, style string, sanity bool) error {
	store, err := block.OpenFileStore(path, numblocks, blocksize)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	c, err := cache.Open(store, cacheCapacity)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer c.Close()

	ix, err := btree.Attach(c, false, keysize, valsize)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}

	fmt.Printf("%s: %s keys, %s block file (%d blocks of %d bytes)\n",
		path,
		humanize.Comma(int64(ix.NumKeys())),
		humanize.Bytes(uint64(numblocks)*uint64(blocksize)),
		numblocks, blocksize)

	st := c.Stats()
	fmt.Printf("cache: %d dirty blocks, %d allocated, %d deallocated, %d cache hits, %d cache misses\n",
		st.DirtyBlocks, st.Allocated, st.Deallocated, st.PolicyHits, st.PolicyMisses)

	if sanity {
		if err := ix.SanityCheck(); err != nil {
			fmt.Printf("SanityCheck: FAILED: %v\n", err)
		} else {
			fmt.Println("SanityCheck: ok")
		}
		ok, err := ix.AtLeastHalfFull()
		if err != nil {
			fmt.Printf("AtLeastHalfFull: error: %v\n", err)
		} else {
			fmt.Printf("AtLeastHalfFull: %t\n", ok)
		}
	}

	var displayStyle btree.DisplayStyle
	switch style {
	case "depth":
		displayStyle = btree.Depth
	case "dot":
		displayStyle = btree.DepthDot
	case "sorted":
		displayStyle = btree.SortedKeyVal
	default:
		return fmt.Errorf("unknown -style %q (want depth, dot, or sorted)", style)
	}
	return ix.Display(os.Stdout, displayStyle)
}
