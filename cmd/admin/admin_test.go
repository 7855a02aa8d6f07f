package main

import (
	"database/sql"
	"path/filepath"
	"testing"

	"tickworld.ai/internal/persistence/indexdb"
	persistlog "tickworld.ai/internal/persistence/log"
	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/world"
)

func TestListSnapshotsSortsByStep(t *testing.T) {
	dir := t.TempDir()
	for _, step := range []uint64{120, 7, 3600} {
		snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, WorldID: "w", Step: step}}
		if err := snapshot.WriteSnapshot(filepath.Join(dir, snapshot.FileName(step)), snap); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, err := listSnapshots(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len=%d want 3", len(got))
	}
	for i, want := range []uint64{7, 120, 3600} {
		if got[i].Step != want || got[i].WorldID != "w" {
			t.Fatalf("got[%d]=%+v want step %d", i, got[i], want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{WorldID: "w", Step: 9},
		Entities: []snapshot.EntityV1{
			{ID: "world", Type: "world", Terrain: &snapshot.TerrainV1{Mods: []snapshot.ModV1{{ID: "pile_1"}}}},
			{ID: "a1", Type: "acorn"},
			{ID: "a2", Type: "acorn"},
		},
		Pending: [][]byte{[]byte(`{}`)},
		Runners: []snapshot.RunnerV1{{Owner: "char", Tasks: []snapshot.TaskV1{{ID: "char/dig-1"}}}, {Owner: "idle"}},
	}
	got := summarize(s)
	if got.Types["acorn"] != 2 || got.Entities != 3 {
		t.Fatalf("types=%v entities=%d", got.Types, got.Entities)
	}
	if got.Terrain != 1 || got.Pending != 1 {
		t.Fatalf("terrain=%d pending=%d", got.Terrain, got.Pending)
	}
	if len(got.Tasks) != 1 || got.Tasks["char"] != 1 {
		t.Fatalf("tasks=%v", got.Tasks)
	}
}

func TestCollectAuditsFilters(t *testing.T) {
	worldDir := t.TempDir()
	l := persistlog.NewAuditLogger(worldDir)
	for _, e := range []world.AuditEntry{
		{Step: 1, Kind: world.AuditCreated, Entity: "pile_1"},
		{Step: 2, Kind: world.AuditDropped, Entity: "ghost", Op: "eat", Reason: "unknown entity"},
		{Step: 5, Kind: world.AuditDestroyed, Entity: "acorn"},
		{Step: 6, Kind: world.AuditDropped, Entity: "ghost", Op: "cut"},
		{Step: 9, Kind: world.AuditDropped, Entity: "ghost", Op: "wear"},
	} {
		if err := l.WriteAudit(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	tests := []struct {
		name string
		f    auditFilter
		want []uint64
	}{
		{"all", auditFilter{}, []uint64{1, 2, 5, 6, 9}},
		{"kind", auditFilter{Kind: world.AuditDropped}, []uint64{2, 6, 9}},
		{"window", auditFilter{Entity: "ghost", Since: 3, To: 8}, []uint64{6}},
		{"limit", auditFilter{Kind: world.AuditDropped, Limit: 2}, []uint64{2, 6}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := collectAudits(worldDir, tc.f)
			if err != nil {
				t.Fatalf("collect: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d entries want %d: %+v", len(got), len(tc.want), got)
			}
			for i := range got {
				if got[i].Step != tc.want[i] {
					t.Fatalf("got[%d].Step=%d want %d", i, got[i].Step, tc.want[i])
				}
			}
		})
	}
}

func TestDBQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := indexdb.OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	eat := protocol.NewOp("eat", "acorn")
	eat.From = "char"
	cut := protocol.NewOp("cut", "shovel", protocol.NewEntity("world", nil))
	cut.From = "char"
	wear := protocol.NewOp("wear", "coat")
	wear.From = "bob"
	_ = idx.WriteStep(world.StepLogEntry{Step: 1, Clock: 0.25, Digest: "d1"})
	_ = idx.WriteStep(world.StepLogEntry{Step: 2, Clock: 0.5, Digest: "d2", Inputs: []protocol.Operation{eat, cut}})
	_ = idx.WriteStep(world.StepLogEntry{Step: 3, Clock: 0.75, Digest: "d3", Inputs: []protocol.Operation{wear}})
	idx.RecordSnapshot("/data/2.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{Step: 2}, Seed: 5})
	if err := idx.Close(); err != nil {
		t.Fatalf("close index: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	steps, err := querySteps(db, 2, 10)
	if err != nil {
		t.Fatalf("steps: %v", err)
	}
	if len(steps) != 2 || steps[0].(stepRow).Digest != "d2" || steps[1].(stepRow).Inputs != 1 {
		t.Fatalf("steps=%+v", steps)
	}

	ops, err := queryOps(db, opFilter{From: "char", Limit: 10})
	if err != nil {
		t.Fatalf("ops: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("ops=%+v", ops)
	}
	if r := ops[1].(opRow); r.Type != "cut" || r.To != "shovel" || r.Seq != 1 {
		t.Fatalf("second op=%+v", r)
	}
	ops, err = queryOps(db, opFilter{Type: "wear", Limit: 10})
	if err != nil || len(ops) != 1 || ops[0].(opRow).From != "bob" {
		t.Fatalf("wear ops=%+v err=%v", ops, err)
	}

	snaps, err := querySnapshots(db, 10)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].(snapshotRow).Seed != 5 {
		t.Fatalf("snapshots=%+v", snaps)
	}

	cats, err := queryCatalogs(db)
	if err != nil || len(cats) != 0 {
		t.Fatalf("catalogs=%+v err=%v", cats, err)
	}
}
