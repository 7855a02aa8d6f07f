package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

type AuditQuery struct {
	Entity string
	Kind   string
	Since  uint64
	Limit  int
}

type AuditRow struct {
	Step   uint64  `json:"step"`
	Seq    int     `json:"seq"`
	Clock  float64 `json:"clock"`
	Kind   string  `json:"kind"`
	Entity string  `json:"entity"`
	Op     string  `json:"op,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// Audits lists indexed audits in step order. Rows still queued in the writer
// are not visible yet.
func (s *SQLiteIndex) Audits(ctx context.Context, q AuditQuery) ([]AuditRow, error) {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 100
	}
	var (
		where []string
		args  []any
	)
	where = append(where, "step >= ?")
	args = append(args, int64(q.Since))
	if q.Entity != "" {
		where = append(where, "entity = ?")
		args = append(args, q.Entity)
	}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, q.Kind)
	}
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT step,seq,clock,kind,entity,COALESCE(op,''),COALESCE(reason,'') FROM audits WHERE `+
			strings.Join(where, " AND ")+` ORDER BY step,seq LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var r AuditRow
		var step int64
		if err := rows.Scan(&step, &r.Seq, &r.Clock, &r.Kind, &r.Entity, &r.Op, &r.Reason); err != nil {
			return nil, err
		}
		r.Step = uint64(step)
		out = append(out, r)
	}
	return out, rows.Err()
}

// StepDigest is the recorded state digest of one step.
func (s *SQLiteIndex) StepDigest(ctx context.Context, step uint64) (string, bool, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM steps WHERE step = ?`, int64(step)).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return d, true, nil
}

type SnapshotRow struct {
	Step     uint64 `json:"step"`
	Path     string `json:"path"`
	Seed     int64  `json:"seed"`
	Entities int    `json:"entities"`
	Pending  int    `json:"pending"`
	Backlog  int    `json:"backlog"`
	Tasks    int    `json:"tasks"`
}

// LatestSnapshot is the most recent indexed snapshot, if any.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context) (SnapshotRow, bool, error) {
	var r SnapshotRow
	var step int64
	err := s.db.QueryRowContext(ctx,
		`SELECT step,path,seed,entities,pending,backlog,tasks FROM snapshots ORDER BY step DESC LIMIT 1`,
	).Scan(&step, &r.Path, &r.Seed, &r.Entities, &r.Pending, &r.Backlog, &r.Tasks)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRow{}, false, nil
	}
	if err != nil {
		return SnapshotRow{}, false, err
	}
	r.Step = uint64(step)
	return r, true, nil
}
