// Benchmark compares the B+-tree core against a Pebble (LSM) baseline on an
// insert-then-lookup workload, recording latency and memory stats to CSV and
// rendering a latency bar chart.
//
// Usage: go run ./cmd/btreebench -n 100000 -out results.csv -chart latency.png
package main

import (
	"encoding/binary"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"blocktree/block"
	"blocktree/btree"
	"blocktree/cache"
)

const (
	benchKeySize = 8
	benchValSize = 32
)

// benchResult is one measured (engine, operation) latency sample, alongside
// a snapshot of live heap usage taken right after the run.
type benchResult struct {
	Engine    string
	Operation string
	LatencyNs int64
	AllocMB   uint64
	Objects   uint64
}

func main() {
	n := flag.Int("n", 50000, "number of keys to insert and then look up")
	blocksize := flag.Int("blocksize", 4096, "blocktree block size in bytes")
	numblocks := flag.Int("numblocks", 0, "blocktree store size in blocks (0: sized automatically from -n)")
	cacheCapacity := flag.Int("cache", 4096, "blocktree buffer cache capacity in blocks")
	csvPath := flag.String("out", "btreebench_results.csv", "CSV output path")
	chartPath := flag.String("chart", "btreebench_latency.png", "latency bar chart output path")
	pebbleDir := flag.String("pebbledir", "", "directory for the Pebble baseline (temp dir if empty)")
	flag.Parse()

	if *numblocks == 0 {
		// Rough sizing: each inserted key eventually needs roughly one leaf
		// slot plus interior overhead; pad generously so NoSpace never
		// interferes with the measurement.
		*numblocks = *n*2 + 64
	}

	if err := run(*n, *blocksize, *numblocks, *cacheCapacity, *csvPath, *chartPath, *pebbleDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(n, blocksize, numblocks, cacheCapacity int, csvPath, chartPath, pebbleDir string) error {
	results := make([]benchResult, 0, 4)

	btreeInsert, btreeLookup, err := benchBlocktree(n, blocksize, numblocks, cacheCapacity)
	if err != nil {
		return fmt.Errorf("blocktree benchmark: %w", err)
	}
	results = append(results, btreeInsert, btreeLookup)

	if pebbleDir == "" {
		pebbleDir, err = os.MkdirTemp("", "btreebench_pebble")
		if err != nil {
			return fmt.Errorf("make pebble temp dir: %w", err)
		}
		defer os.RemoveAll(pebbleDir)
	}
	pebbleInsert, pebbleLookup, err := benchPebble(n, pebbleDir)
	if err != nil {
		return fmt.Errorf("pebble benchmark: %w", err)
	}
	results = append(results, pebbleInsert, pebbleLookup)

	if err := writeCSV(csvPath, results); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := writeChart(chartPath, results); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}

	for _, r := range results {
		fmt.Printf("%-10s %-8s %12d ns total  %6d MB  %10d objects\n", r.Engine, r.Operation, r.LatencyNs, r.AllocMB, r.Objects)
	}
	return nil
}

func benchBlocktree(n, blocksize, numblocks, cacheCapacity int) (insert, lookup benchResult, err error) {
	store := block.NewMemStore(numblocks, blocksize)
	c, err := cache.Open(store, cacheCapacity)
	if err != nil {
		return benchResult{}, benchResult{}, fmt.Errorf("cache.Open: %w", err)
	}
	defer c.Close()

	ix, err := btree.Attach(c, true, benchKeySize, benchValSize)
	if err != nil {
		return benchResult{}, benchResult{}, fmt.Errorf("btree.Attach: %w", err)
	}

	keys := make([][]byte, n)
	vals := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = encodeBenchKey(i)
		vals[i] = make([]byte, benchValSize)
		binary.LittleEndian.PutUint64(vals[i], uint64(i))
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		if err := ix.Insert(keys[i], vals[i]); err != nil {
			return benchResult{}, benchResult{}, fmt.Errorf("Insert(%d): %w", i, err)
		}
	}
	insert = benchResult{Engine: "blocktree", Operation: "insert", LatencyNs: time.Since(start).Nanoseconds()}
	insert.AllocMB, insert.Objects = sampleMem()

	start = time.Now()
	for i := 0; i < n; i++ {
		if _, err := ix.Lookup(keys[i]); err != nil {
			return benchResult{}, benchResult{}, fmt.Errorf("Lookup(%d): %w", i, err)
		}
	}
	lookup = benchResult{Engine: "blocktree", Operation: "lookup", LatencyNs: time.Since(start).Nanoseconds()}
	lookup.AllocMB, lookup.Objects = sampleMem()

	return insert, lookup, nil
}

func benchPebble(n int, dir string) (insert, lookup benchResult, err error) {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return benchResult{}, benchResult{}, fmt.Errorf("pebble.Open: %w", err)
	}
	defer db.Close()

	keys := make([][]byte, n)
	vals := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = encodeBenchKey(i)
		vals[i] = make([]byte, benchValSize)
		binary.LittleEndian.PutUint64(vals[i], uint64(i))
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		if err := db.Set(keys[i], vals[i], pebble.NoSync); err != nil {
			return benchResult{}, benchResult{}, fmt.Errorf("Set(%d): %w", i, err)
		}
	}
	insert = benchResult{Engine: "pebble", Operation: "insert", LatencyNs: time.Since(start).Nanoseconds()}
	insert.AllocMB, insert.Objects = sampleMem()

	start = time.Now()
	for i := 0; i < n; i++ {
		val, closer, err := db.Get(keys[i])
		if err != nil {
			return benchResult{}, benchResult{}, fmt.Errorf("Get(%d): %w", i, err)
		}
		_ = val
		closer.Close()
	}
	lookup = benchResult{Engine: "pebble", Operation: "lookup", LatencyNs: time.Since(start).Nanoseconds()}
	lookup.AllocMB, lookup.Objects = sampleMem()

	return insert, lookup, nil
}

func encodeBenchKey(i int) []byte {
	b := make([]byte, benchKeySize)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

// sampleMem forces a GC so the sample reflects live data rather than
// not-yet-collected garbage from the run just finished.
func sampleMem() (allocMB, objects uint64) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return m.Alloc / 1024 / 1024, m.HeapObjects
}

func writeCSV(path string, results []benchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"engine", "operation", "latency_ns", "alloc_mb", "heap_objects"})
	for _, r := range results {
		w.Write([]string{
			r.Engine,
			r.Operation,
			strconv.FormatInt(r.LatencyNs, 10),
			strconv.FormatUint(r.AllocMB, 10),
			strconv.FormatUint(r.Objects, 10),
		})
	}
	return w.Error()
}

func writeChart(path string, results []benchResult) error {
	p := plot.New()
	p.Title.Text = "Insert/lookup latency by engine"
	p.Y.Label.Text = "nanoseconds (total, n ops)"

	values := make(plotter.Values, len(results))
	labels := make([]string, len(results))
	for i, r := range results {
		values[i] = float64(r.LatencyNs)
		labels[i] = r.Engine + " " + r.Operation
	}

	bars, err := plotter.NewBarChart(values, vg.Points(40))
	if err != nil {
		return fmt.Errorf("new bar chart: %w", err)
	}
	p.Add(bars)
	p.NominalX(labels...)

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
