package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	persistlog "pixelmorph.ai/internal/persistence/log"
	"pixelmorph.ai/internal/sim/drawing"
)

type runStat struct {
	RunID       string  `json:"run_id"`
	Generation  uint32  `json:"generation"`
	Batches     int     `json:"batches"`
	Attempts    int64   `json:"attempts"`
	Swaps       int64   `json:"swaps"`
	FirstCost   int64   `json:"first_cost"`
	LastCost    int64   `json:"last_cost"`
	FirstFrame  uint32  `json:"first_frame"`
	LastFrame   uint32  `json:"last_frame"`
	TotalMS     float64 `json:"total_ms"`
	lastBatchNo uint64
}

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory (reads <data>/batches)")
		runID   = flag.String("run", "", "only this run id (optional)")
		asJSON  = flag.Bool("json", false, "print JSON instead of a table")
	)
	flag.Parse()

	files, err := persistlog.Files(filepath.Join(*dataDir, "batches"), "batches")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list batch logs:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no batch logs under", *dataDir)
		os.Exit(2)
	}

	stats, err := summarize(files, *runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "summarize:", err)
		os.Exit(1)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
		return
	}
	printTable(os.Stdout, stats)
}

// summarize folds every batch line into per-run totals, ordered by
// generation. Batches within a run are expected in increasing order.
func summarize(files []string, runFilter string) ([]runStat, error) {
	byRun := map[string]*runStat{}
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var e drawing.BatchLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if runFilter != "" && e.RunID != runFilter {
				return nil
			}
			key := e.RunID
			if key == "" {
				key = fmt.Sprintf("gen-%d", e.Generation)
			}
			st := byRun[key]
			if st == nil {
				st = &runStat{RunID: e.RunID, Generation: e.Generation, FirstCost: e.Cost, FirstFrame: e.Frame}
				byRun[key] = st
			}
			if st.Batches > 0 && e.Batch <= st.lastBatchNo {
				return fmt.Errorf("run %s: batch %d after %d", key, e.Batch, st.lastBatchNo)
			}
			st.lastBatchNo = e.Batch
			st.Batches++
			st.Attempts += int64(e.Attempts)
			st.Swaps += int64(e.Swaps)
			st.LastCost = e.Cost
			st.LastFrame = e.Frame
			st.TotalMS += e.DurationMS
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	out := make([]runStat, 0, len(byRun))
	for _, st := range byRun {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Generation != out[j].Generation {
			return out[i].Generation < out[j].Generation
		}
		return out[i].RunID < out[j].RunID
	})
	return out, nil
}

func printTable(w io.Writer, stats []runStat) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GEN\tRUN\tBATCHES\tSWAPS\tACCEPT%\tCOST\tFRAMES\tMS/BATCH")
	for _, st := range stats {
		accept := 0.0
		if st.Attempts > 0 {
			accept = 100 * float64(st.Swaps) / float64(st.Attempts)
		}
		perBatch := 0.0
		if st.Batches > 0 {
			perBatch = st.TotalMS / float64(st.Batches)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.3f\t%d -> %d\t%d..%d\t%.1f\n",
			st.Generation, st.RunID, st.Batches, st.Swaps, accept,
			st.FirstCost, st.LastCost, st.FirstFrame, st.LastFrame, perBatch)
	}
	_ = tw.Flush()
}
