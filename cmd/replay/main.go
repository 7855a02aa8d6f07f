package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/sim/catalogs"
	"tickworld.ai/internal/sim/tuning"
	"tickworld.ai/internal/sim/world"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		worldDir  = flag.String("world_dir", "", "world data dir containing steps/ (default: two levels above the snapshot)")
		configDir = flag.String("configs", "./configs", "config directory")
		fromStep  = flag.Uint64("from_step", 0, "start verifying from step (inclusive, optional)")
		toStep    = flag.Uint64("to_step", 0, "stop at step (inclusive, optional)")
		summary   = flag.Bool("summary", false, "print the snapshot summary and exit")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	tasks := 0
	for _, r := range snap.Runners {
		tasks += len(r.Tasks)
	}
	fmt.Printf("snapshot v%d world=%s step=%d seed=%d entities=%d pending=%d backlog=%d tasks=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Step, snap.Seed,
		len(snap.Entities), len(snap.Pending), len(snap.Backlog), tasks)
	if *summary {
		return
	}

	dir := *worldDir
	if dir == "" {
		// <world>/snapshots/<step>.snap.zst
		dir = filepath.Dir(filepath.Dir(*snapPath))
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	w, err := world.New(world.WorldConfig{ID: snap.Header.WorldID, Seed: snap.Seed}, tuning.Defaults(), cats, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	if err := w.RestoreSnapshot(snap); err != nil {
		fmt.Fprintln(os.Stderr, "restore snapshot:", err)
		os.Exit(1)
	}

	checked, err := replay(w, dir, *fromStep, *toStep)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d steps (from snapshot step=%d)\n", checked, snap.Header.Step)
}
