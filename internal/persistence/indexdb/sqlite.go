package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/sim/catalogs"
	"tickworld.ai/internal/sim/tuning"
	"tickworld.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of the step journal, audits and
// snapshots. Writes are queued to one writer goroutine and dropped when it
// falls behind; the JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db     *sql.DB
	logger *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropStep     atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
	writeErrors  atomic.Uint64
}

type reqKind int

const (
	reqStep reqKind = iota + 1
	reqAudit
	reqSnapshot
)

type req struct {
	kind reqKind

	step     world.StepLogEntry
	audit    world.AuditEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Step     uint64
	Path     string
	Seed     int64
	Entities int
	Pending  int
	Backlog  int
	Tasks    int
}

// Stats is a point-in-time view of the writer queue.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropStepTotal     uint64 `json:"drop_step_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WriteErrorTotal   uint64 `json:"write_error_total"`
}

func OpenSQLite(path string, logger *log.Logger) (*SQLiteIndex, error) {
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

	s := &SQLiteIndex{
		db:     db,
		logger: logger,
		ch:     make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			step INTEGER PRIMARY KEY,
			clock REAL NOT NULL,
			digest TEXT NOT NULL,
			inputs INTEGER NOT NULL,
			retuned INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ops (
			step INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			op_json TEXT NOT NULL,
			PRIMARY KEY (step, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ops_from_step ON ops(from_id, step);`,
		`CREATE INDEX IF NOT EXISTS idx_ops_to_step ON ops(to_id, step);`,
		`CREATE TABLE IF NOT EXISTS audits (
			step INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			clock REAL NOT NULL,
			kind TEXT NOT NULL,
			entity TEXT NOT NULL,
			op TEXT,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (step, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_entity_step ON audits(entity, step);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_kind_step ON audits(kind, step);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			step INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			pending INTEGER NOT NULL,
			backlog INTEGER NOT NULL,
			tasks INTEGER NOT NULL
		);`,
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

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropStepTotal:     s.dropStep.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

func (s *SQLiteIndex) WriteStep(entry world.StepLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqStep, step: entry}:
	default:
		s.dropStep.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Step:     snap.Header.Step,
		Path:     path,
		Seed:     snap.Seed,
		Entities: len(snap.Entities),
		Pending:  len(snap.Pending),
		Backlog:  len(snap.Backlog),
	}
	for _, rn := range snap.Runners {
		r.Tasks += len(rn.Tasks)
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertCatalogs records the catalog and tuning the world runs with, so that
// indexed steps can be tied to the exact configuration.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "types.json")); err == nil {
			rows = append(rows, kv{name: "types_defs", digest: cats.Types.Digest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Types.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "types_palette", digest: cats.Types.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	return retryOp(defaultRetryConfig, func() error {
		tx, err := s.db.BeginTx(context.Background(), nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if r.name == "" || r.digest == "" || len(r.json) == 0 {
				continue
			}
			if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *SQLiteIndex) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertStep, _ := s.db.Prepare(`INSERT OR REPLACE INTO steps(step,clock,digest,inputs,retuned,raw_json) VALUES(?,?,?,?,?,?)`)
	insertOp, _ := s.db.Prepare(`INSERT OR REPLACE INTO ops(step,seq,type,from_id,to_id,op_json) VALUES(?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(step,seq,clock,kind,entity,op,reason,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(step,path,seed,entities,pending,backlog,tasks) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertStep, insertOp, insertAudit, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditStep uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		err := retryOp(defaultRetryConfig, func() error {
			txx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			tx = txx
			return nil
		})
		if err != nil {
			s.writeErrors.Add(1)
			s.logf("indexdb: begin: %v", err)
			return
		}
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := retryOp(defaultRetryConfig, tx.Commit); err != nil {
			s.writeErrors.Add(1)
			s.logf("indexdb: commit: %v", err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.writeErrors.Add(1)
		s.logf("indexdb: write: %v", err)
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback(err)
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqStep:
			e := r.step
			b, _ := json.Marshal(e)
			retuned := 0
			if e.Tuning != nil {
				retuned = 1
			}
			if !exec(insertStep, int64(e.Step), e.Clock, e.Digest, len(e.Inputs), retuned, string(b)) {
				continue
			}
			for i, op := range e.Inputs {
				opJSON, _ := json.Marshal(op)
				if !exec(insertOp, int64(e.Step), i, op.Type, op.From, op.To, string(opJSON)) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Step != lastAuditStep {
				lastAuditStep = a.Step
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			if !exec(insertAudit, int64(a.Step), seq, a.Clock, a.Kind, a.Entity, a.Op, a.Reason, string(raw)) {
				continue
			}

		case reqSnapshot:
			sn := r.snapshot
			if !exec(insertSnapshot, int64(sn.Step), sn.Path, sn.Seed, sn.Entities, sn.Pending, sn.Backlog, sn.Tasks) {
				continue
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
