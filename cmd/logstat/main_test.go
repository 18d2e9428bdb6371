package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	persistlog "pixelmorph.ai/internal/persistence/log"
	"pixelmorph.ai/internal/sim/drawing"
)

func writeBatches(t *testing.T, dir string, entries ...drawing.BatchLogEntry) []string {
	t.Helper()
	l := persistlog.NewBatchLogger(dir)
	for _, e := range entries {
		if err := l.WriteBatch(e); err != nil {
			t.Fatalf("WriteBatch: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	files, err := persistlog.Files(filepath.Join(dir, "batches"), "batches")
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestSummarize(t *testing.T) {
	files := writeBatches(t, t.TempDir(),
		drawing.BatchLogEntry{RunID: "b", Generation: 2, Batch: 1, Attempts: 100, Swaps: 10, Cost: 50, Frame: 3, DurationMS: 4},
		drawing.BatchLogEntry{RunID: "a", Generation: 1, Batch: 1, Attempts: 100, Swaps: 40, Cost: 900, Frame: 0, DurationMS: 2},
		drawing.BatchLogEntry{RunID: "a", Generation: 1, Batch: 2, Attempts: 100, Swaps: 20, Cost: 600, Frame: 1, DurationMS: 6},
	)

	stats, err := summarize(files, "")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(stats) != 2 || stats[0].RunID != "a" || stats[1].RunID != "b" {
		t.Fatalf("order: %+v", stats)
	}
	a := stats[0]
	if a.Batches != 2 || a.Swaps != 60 || a.Attempts != 200 || a.FirstCost != 900 || a.LastCost != 600 || a.TotalMS != 8 {
		t.Fatalf("run a = %+v", a)
	}

	only, err := summarize(files, "b")
	if err != nil || len(only) != 1 || only[0].Generation != 2 {
		t.Fatalf("filtered = %+v (%v)", only, err)
	}

	var buf bytes.Buffer
	printTable(&buf, stats)
	if !strings.Contains(buf.String(), "900 -> 600") || !strings.Contains(buf.String(), "30.000") {
		t.Fatalf("table:\n%s", buf.String())
	}
}

func TestSummarize_RejectsOutOfOrderBatches(t *testing.T) {
	files := writeBatches(t, t.TempDir(),
		drawing.BatchLogEntry{RunID: "a", Batch: 2},
		drawing.BatchLogEntry{RunID: "a", Batch: 1},
	)
	if _, err := summarize(files, ""); err == nil {
		t.Fatalf("expected ordering error")
	}
}
