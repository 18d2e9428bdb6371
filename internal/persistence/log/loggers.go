// Package log writes append-only telemetry as hourly zstd-compressed JSONL
// files and reads them back.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"pixelmorph.ai/internal/sim/drawing"
)

const fileSuffix = ".jsonl.zst"

// JSONLZstdWriter appends one JSON document per line to
// <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst, switching files on the UTC hour.
// Every record is flushed through the encoder before Write returns.
type JSONLZstdWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	hour string
	f    *os.File
	enc  *zstd.Encoder
	buf  *bufio.Writer
}

func NewJSONLZstdWriter(dir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{dir: dir, prefix: prefix, now: time.Now}
}

func (w *JSONLZstdWriter) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s log: %w", w.prefix, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if hour := w.now().UTC().Format("2006-01-02-15"); hour != w.hour {
		if err := w.openLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.buf.Write(append(line, '\n')); err != nil {
		return err
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Path is the file records written at t land in.
func (w *JSONLZstdWriter) Path(t time.Time) string {
	return filepath.Join(w.dir, w.prefix+"-"+t.UTC().Format("2006-01-02-15")+fileSuffix)
}

func (w *JSONLZstdWriter) openLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(w.dir, w.prefix+"-"+hour+fileSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc, w.hour = f, enc, hour
	w.buf = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	if w.f == nil {
		return nil
	}
	err := w.buf.Flush()
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.f, w.enc, w.buf, w.hour = nil, nil, nil, ""
	return err
}

// BatchLogger records one line per optimizer batch under <dataDir>/batches.
type BatchLogger struct{ w *JSONLZstdWriter }

func NewBatchLogger(dataDir string) *BatchLogger {
	return &BatchLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "batches"), "batches")}
}

func (l *BatchLogger) WriteBatch(e drawing.BatchLogEntry) error { return l.w.Write(e) }
func (l *BatchLogger) Close() error                             { return l.w.Close() }

// RunLogger records run starts and ends under <dataDir>/runs.
type RunLogger struct{ w *JSONLZstdWriter }

func NewRunLogger(dataDir string) *RunLogger {
	return &RunLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "runs"), "runs")}
}

func (l *RunLogger) RecordRun(info drawing.RunInfo) error { return l.w.Write(info) }
func (l *RunLogger) Close() error                         { return l.w.Close() }

// BatchSinks fans one batch out to several loggers. All sinks are tried.
type BatchSinks []drawing.BatchLogger

func (s BatchSinks) WriteBatch(e drawing.BatchLogEntry) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.WriteBatch(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type runRecorder interface {
	RecordRun(info drawing.RunInfo) error
}

// RunSinks fans run rows out the same way BatchSinks does.
type RunSinks []runRecorder

func (s RunSinks) RecordRun(info drawing.RunInfo) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.RecordRun(info); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReadJSONL decodes every line of a .jsonl.zst file, in order.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	r := bufio.NewReaderSize(dec, 64*1024)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			if ferr := fn(line); ferr != nil {
				return ferr
			}
		}
		// A file still being written ends mid-frame.
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
}

// Files lists the log files for prefix under dir, oldest first.
func Files(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}
