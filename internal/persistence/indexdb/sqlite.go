// Package indexdb keeps a queryable sqlite read-model of optimizer runs and
// batches. The JSONL logs stay the source of truth; rows may be dropped when
// the writer falls behind.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"pixelmorph.ai/internal/sim/drawing"
	"pixelmorph.ai/internal/sim/tuning"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropRuns    atomic.Uint64
	dropBatches atomic.Uint64
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqBatch
	reqFlush
)

type req struct {
	kind  reqKind
	run   drawing.RunInfo
	batch drawing.BatchLogEntry
	done  chan struct{}
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropRunTotal   uint64 `json:"drop_run_total"`
	DropBatchTotal uint64 `json:"drop_batch_total"`
}

// RunSummary is one row of the runs table joined with its batch totals.
type RunSummary struct {
	drawing.RunInfo
	Batches  int   `json:"batches"`
	Swaps    int64 `json:"swaps"`
	LastCost int64 `json:"last_cost"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db, ch: make(chan req, 4096)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(2*time.Second, 500)
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			generation INTEGER NOT NULL,
			sidelen INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			reason TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_generation ON runs(generation);`,
		`CREATE TABLE IF NOT EXISTS batches (
			run_id TEXT NOT NULL,
			batch INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			frame INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			swaps INTEGER NOT NULL,
			cost INTEGER NOT NULL,
			duration_ms REAL NOT NULL,
			PRIMARY KEY (run_id, batch)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordRun upserts a run row. Calls never block.
func (s *SQLiteIndex) RecordRun(info drawing.RunInfo) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqRun, run: info}:
	default:
		s.dropRuns.Add(1)
	}
	return nil
}

// WriteBatch queues a batch row. Calls never block.
func (s *SQLiteIndex) WriteBatch(entry drawing.BatchLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqBatch, batch: entry}:
	default:
		s.dropBatches.Add(1)
	}
	return nil
}

// Flush waits until every row queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropRunTotal:   s.dropRuns.Load(),
		DropBatchTotal: s.dropBatches.Load(),
	}
}

// UpsertTuning stores the tuning actually applied, keyed by its digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES('tuning',?,?,?)`,
		hex.EncodeToString(sum[:]), string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Runs lists the newest runs first with their batch totals.
func (s *SQLiteIndex) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.generation, r.sidelen, r.seed, r.started_at,
			COALESCE(r.ended_at,''), COALESCE(r.reason,''),
			COUNT(b.batch), COALESCE(SUM(b.swaps),0),
			COALESCE((SELECT cost FROM batches WHERE run_id=r.run_id ORDER BY batch DESC LIMIT 1),0)
		FROM runs r LEFT JOIN batches b ON b.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.generation DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			rs             RunSummary
			started, ended string
		)
		if err := rows.Scan(&rs.RunID, &rs.Generation, &rs.Sidelen, &rs.Seed, &started, &ended, &rs.Reason,
			&rs.Batches, &rs.Swaps, &rs.LastCost); err != nil {
			return nil, err
		}
		rs.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if ended != "" {
			rs.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// loop applies queued rows in batched transactions, committing every
// commitEvery ops or commitMaxWait, whichever comes first.
func (s *SQLiteIndex) loop(commitMaxWait time.Duration, commitEvery int) {
	ctx := context.Background()

	upsertRun, _ := s.db.Prepare(`INSERT INTO runs(run_id,generation,sidelen,seed,started_at,ended_at,reason) VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(run_id) DO UPDATE SET ended_at=COALESCE(excluded.ended_at, runs.ended_at), reason=COALESCE(excluded.reason, runs.reason)`)
	insertBatch, _ := s.db.Prepare(`INSERT OR REPLACE INTO batches(run_id,batch,generation,frame,attempts,swaps,cost,duration_ms) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if upsertRun != nil {
			_ = upsertRun.Close()
		}
		if insertBatch != nil {
			_ = insertBatch.Close()
		}
	}()

	var (
		tx      *sql.Tx
		opCount int
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case <-ticker.C:
			// Idle flush so readers sharing the single connection are not
			// starved by an open transaction.
			commit()
			continue
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		}
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		var err error
		switch r.kind {
		case reqRun:
			if upsertRun == nil {
				continue
			}
			var reason any
			if r.run.Reason != "" {
				reason = r.run.Reason
			}
			_, err = tx.Stmt(upsertRun).Exec(
				r.run.RunID,
				int64(r.run.Generation),
				r.run.Sidelen,
				r.run.Seed,
				r.run.StartedAt.UTC().Format(time.RFC3339Nano),
				formatTime(r.run.EndedAt),
				reason,
			)
		case reqBatch:
			if insertBatch == nil {
				continue
			}
			b := r.batch
			_, err = tx.Stmt(insertBatch).Exec(
				b.RunID,
				int64(b.Batch),
				int64(b.Generation),
				int64(b.Frame),
				b.Attempts,
				b.Swaps,
				b.Cost,
				b.DurationMS,
			)
		}
		if err != nil {
			rollback()
			continue
		}
		opCount++
		if opCount >= commitEvery {
			commit()
		}
	}
}
