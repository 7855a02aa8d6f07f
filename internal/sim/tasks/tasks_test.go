package tasks

import (
	"errors"
	"math"
	"testing"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/geom"
	"tickworld.ai/internal/sim/terrain"
	"tickworld.ai/internal/sim/thing"
	"tickworld.ai/internal/sim/tuning"
)

type fixture struct {
	table *thing.Table
	grid  *terrain.Grid
	r     *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tbl := thing.NewTable()
	g := terrain.NewGrid(terrain.SurfaceEarth)
	for _, th := range []*thing.Thing{
		{ID: "w", Type: "world", Behavior: "thing", Terrain: g},
		{ID: "c1", Type: "character", Behavior: "character", Attrs: map[string]any{"loc": "w", "pos": []float64{0, 3, 0}}},
	} {
		if _, err := tbl.Insert(th); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	def := tuning.Defaults()
	params := map[Kind]Params{
		KindDig:   ParamsFrom(def.Tasks["dig"]),
		KindDelve: ParamsFrom(def.Tasks["delve"]),
	}
	return &fixture{table: tbl, grid: g, r: NewRunner("c1", params, tbl.Ref)}
}

func cutOp(tool string) protocol.Operation {
	op := protocol.NewOp("cut", tool, protocol.NewEntity("w", map[string]any{"pos": []float64{1, 0, 1}}))
	op.From = "c1"
	return op
}

func countTypes(ops protocol.OpList) map[string]int {
	out := map[string]int{}
	for _, op := range ops {
		out[op.Type]++
	}
	return out
}

func TestActivate_MissingArgument(t *testing.T) {
	f := newFixture(t)
	op := protocol.NewOp("cut", "shovel")
	op.From = "c1"
	_, _, err := f.r.Start(KindDig, op)
	if !errors.Is(err, protocol.ErrMissingArgument) {
		t.Fatalf("err=%v", err)
	}
	if f.r.Len() != 0 {
		t.Fatalf("task kept after failed activation")
	}

	noPos := protocol.NewOp("cut", "shovel", protocol.NewEntity("w", nil))
	noPos.From = "c1"
	if _, _, err := f.r.Start(KindDig, noPos); !errors.Is(err, protocol.ErrMissingArgument) {
		t.Fatalf("err=%v", err)
	}
}

func TestDig_CompletesOnTenthTick(t *testing.T) {
	f := newFixture(t)
	task, ops, err := f.r.Start(KindDig, cutOp("shovel"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if task.Tool != "shovel" || task.Target.ID != "w" || task.Pos != (geom.Point3{X: 1, Y: 0, Z: 1}) {
		t.Fatalf("activation: %+v", task)
	}
	for i := 1; i < 10; i++ {
		if len(ops) != 1 || ops[0].Type != "tick" {
			t.Fatalf("tick %d: ops=%v", i, ops.Types())
		}
		fs, _ := ops[0].FutureSeconds()
		if fs != 1.75 || ops[0].To != "c1" {
			t.Fatalf("tick %d: rescheduled %v", i, ops[0])
		}
		ops, err = f.r.Deliver(ops[0])
		if err != nil {
			t.Fatalf("deliver: %v", err)
		}
	}
	if len(ops) != 2 || ops[0].Type != "create" || ops[1].Type != "tick" {
		t.Fatalf("10th tick ops=%v", ops.Types())
	}
	create := ops[0]
	if create.To != "w" {
		t.Fatalf("create to=%q", create.To)
	}
	if sn, ok := create.SerialNo(); !ok || sn != 0 {
		t.Fatalf("serialno=%v,%v", sn, ok)
	}
	arg, _ := create.Arg(0)
	if typ, _ := arg.Str("type"); typ != "pile" {
		t.Fatalf("type=%q", typ)
	}
	if mat, _ := arg.Str("material"); mat != "earth" {
		t.Fatalf("material=%q", mat)
	}
	if loc, _ := arg.Str("loc"); loc != "w" {
		t.Fatalf("loc=%q", loc)
	}
	if task.Progress != 0 {
		t.Fatalf("progress=%v after completion", task.Progress)
	}
	if task.Serial != 10 {
		t.Fatalf("serial=%d", task.Serial)
	}
}

func TestTick_ResetOnStall(t *testing.T) {
	f := newFixture(t)
	task, _, err := f.r.Start(KindDig, cutOp("shovel"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := task.Tick(); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	if math.Abs(task.Progress-0.5) > 1e-9 {
		t.Fatalf("progress=%v want 0.5", task.Progress)
	}
	task.Stall()
	if _, err := task.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if math.Abs(task.Progress-0.1) > 1e-9 {
		t.Fatalf("progress=%v want 0.1 after stall", task.Progress)
	}
	if want := 0.1 / 1.75; math.Abs(task.Rate-want) > 1e-12 {
		t.Fatalf("rate=%v want %v", task.Rate, want)
	}
}

func TestTick_VanishedTargetIsIdempotent(t *testing.T) {
	f := newFixture(t)
	task, ops, err := f.r.Start(KindDig, cutOp("shovel"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.table.Remove("w")
	// Something else takes the freed slot; the weak ref must not follow it.
	if _, err := f.table.Insert(&thing.Thing{ID: "w2", Terrain: f.grid}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := f.r.Deliver(ops[0])
	if err != nil || len(got) != 0 {
		t.Fatalf("ops=%v err=%v", got.Types(), err)
	}
	if task.Status != Irrelevant {
		t.Fatalf("status=%v", task.Status)
	}
	if f.r.Len() != 0 {
		t.Fatalf("irrelevant task kept")
	}
	for i := 0; i < 5; i++ {
		if got, _ := task.Tick(); len(got) != 0 {
			t.Fatalf("irrelevant task emitted %v", got.Types())
		}
		if got, _ := f.r.Deliver(ops[0]); len(got) != 0 {
			t.Fatalf("stale tick emitted %v", got.Types())
		}
	}
}

func TestTick_VanishedOwnerIsIrrelevant(t *testing.T) {
	f := newFixture(t)
	task, _, err := f.r.Start(KindDig, cutOp("shovel"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.table.Remove("c1")
	if ops, _ := task.Tick(); len(ops) != 0 || task.Status != Irrelevant {
		t.Fatalf("ops=%v status=%v", ops.Types(), task.Status)
	}
}

func TestDig_UnknownSurfaceDisqualifies(t *testing.T) {
	f := newFixture(t)
	f.grid.SetSurface(1, 1, terrain.SurfaceRock)
	task, _, err := f.r.Start(KindDig, cutOp("shovel"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	task.Progress = 0.95
	ops, err := task.Tick()
	if !errors.Is(err, ErrUnknownSurface) {
		t.Fatalf("err=%v", err)
	}
	if len(ops) != 0 || task.Status != Irrelevant {
		t.Fatalf("ops=%v status=%v", ops.Types(), task.Status)
	}
	if ops, err := task.Tick(); len(ops) != 0 || err != nil {
		t.Fatalf("after irrelevant: ops=%v err=%v", ops.Types(), err)
	}
}

func TestDelve_ReusesQuarryBeforeCreating(t *testing.T) {
	f := newFixture(t)
	f.grid.SetSurface(1, 1, terrain.SurfaceRock)
	f.grid.AddMod(&terrain.Mod{ID: "m0", Name: "pond", Pos: geom.Point3{X: 1, Z: 1}, Radius: 3, Height: 1})
	f.grid.AddMod(&terrain.Mod{ID: "m1", Name: "quarry", Pos: geom.Point3{X: 1, Z: 1}, Radius: 3, Height: 5})
	f.grid.AddMod(&terrain.Mod{ID: "m2", Name: "quarry", Pos: geom.Point3{X: 1, Z: 1}, Radius: 3, Height: 5})

	_, ops, err := f.r.Start(KindDelve, cutOp("pickaxe"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(ops) != 1 || ops[0].Type != "tick" {
		t.Fatalf("first tick ops=%v", ops.Types())
	}
	ops, err = f.r.Deliver(ops[0])
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	n := countTypes(ops)
	if n["update"] != 1 || n["create"] != 1 || n["tick"] != 1 {
		t.Fatalf("ops=%v", ops.Types())
	}
	if ops[0].Type != "update" || ops[0].To != "m1" {
		t.Fatalf("update=%v", ops[0])
	}
	arg, _ := ops[1].Arg(0)
	if typ, _ := arg.Str("type"); typ != "boulder" {
		t.Fatalf("material create type=%q", typ)
	}
	mods := f.grid.FindMods(geom.Point3{X: 1, Z: 1})
	if mods[1].Height != 3 || mods[2].Height != 5 || mods[0].Height != 1 {
		t.Fatalf("heights=%v,%v,%v", mods[0].Height, mods[1].Height, mods[2].Height)
	}
}

func TestDelve_CreatesQuarryWhenNoneMatches(t *testing.T) {
	f := newFixture(t)
	f.grid.SetSurface(1, 1, terrain.SurfaceSnow)

	task, _, err := f.r.Start(KindDelve, cutOp("pickaxe"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ops, err := task.Tick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := ops.Types(); len(got) != 3 || got[0] != "create" || got[1] != "create" || got[2] != "tick" {
		t.Fatalf("ops=%v", got)
	}
	quarry, _ := ops[0].Arg(0)
	if typ, _ := quarry.Str("type"); typ != "path" {
		t.Fatalf("quarry type=%q", typ)
	}
	raw, _ := quarry.Get("terrainmod")
	mod, ok := raw.(map[string]any)
	if !ok {
		t.Fatalf("terrainmod=%T", raw)
	}
	if h, _ := protocol.AsFloat(mod["height"]); h != 4 {
		t.Fatalf("height=%v want owner y+1", h)
	}
	chunk, _ := ops[1].Arg(0)
	if typ, _ := chunk.Str("type"); typ != "ice" {
		t.Fatalf("chunk type=%q", typ)
	}
	if task.Surface != terrain.SurfaceSnow {
		t.Fatalf("surface=%d", task.Surface)
	}
}

func TestDelve_UnknownSurfaceDisqualifies(t *testing.T) {
	f := newFixture(t)
	f.grid.AddMod(&terrain.Mod{ID: "m1", Name: "quarry", Pos: geom.Point3{X: 1, Z: 1}, Radius: 3, Height: 5})
	task, _, err := f.r.Start(KindDelve, cutOp("pickaxe"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ops, err := task.Tick()
	if !errors.Is(err, ErrUnknownSurface) || len(ops) != 0 {
		t.Fatalf("ops=%v err=%v", ops.Types(), err)
	}
	if h := f.grid.Mods()[0].Height; h != 5 {
		t.Fatalf("quarry amended on a disqualified tick: %v", h)
	}
}

func TestRunner_ExportImportStalls(t *testing.T) {
	f := newFixture(t)
	task, _, err := f.r.Start(KindDig, cutOp("shovel"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, _ = task.Tick()
	}
	st := f.r.Export()
	if len(st.Tasks) != 1 || st.Tasks[0].Target != "w" || st.Tasks[0].Owner != "c1" {
		t.Fatalf("export=%+v", st)
	}

	r2 := ImportRunner(st, f.r.params, f.table.Ref)
	got, ok := r2.Get(task.ID)
	if !ok {
		t.Fatalf("task %q not restored", task.ID)
	}
	if got.Rate != 0 {
		t.Fatalf("restored task not stalled: rate=%v", got.Rate)
	}
	_, _ = got.Tick()
	if math.Abs(got.Progress-0.1) > 1e-9 {
		t.Fatalf("progress=%v want restart at 0.1", got.Progress)
	}
	_, _, err = r2.Start(KindDig, cutOp("shovel"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if r2.Len() != 2 {
		t.Fatalf("len=%d; restored counter should avoid id reuse", r2.Len())
	}
}

func TestRunner_RestoreKeepsRate(t *testing.T) {
	f := newFixture(t)
	task, _, err := f.r.Start(KindDig, cutOp("shovel"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _ = task.Tick()
	r2 := RestoreRunner(f.r.Export(), f.r.params, f.table.Ref)
	got, _ := r2.Get(task.ID)
	if got.Rate != task.Rate || got.Progress != task.Progress {
		t.Fatalf("restored rate=%v progress=%v want %v %v", got.Rate, got.Progress, task.Rate, task.Progress)
	}
	_, _ = got.Tick()
	if math.Abs(got.Progress-0.3) > 1e-9 {
		t.Fatalf("progress=%v want 0.3", got.Progress)
	}
}

func TestRunner_UnknownKind(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.r.Start("plough", cutOp("plough")); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err=%v", err)
	}
}
