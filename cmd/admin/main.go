package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "tickworld.ai/internal/persistence/log"
	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "audits":
			auditsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the worlds under the data dir, or the snapshots of one world.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID == "" {
		entries, err := os.ReadDir(base)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if e.IsDir() {
				fmt.Println(e.Name())
			}
		}
		return
	}

	snaps, err := listSnapshots(filepath.Join(base, *worldID, "snapshots"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list snapshots:", err)
		os.Exit(1)
	}
	for _, s := range snaps {
		printJSON(s)
	}
}

type snapshotFile struct {
	Step    uint64 `json:"step"`
	WorldID string `json:"world_id"`
	Version int    `json:"version"`
	Path    string `json:"path"`
}

// listSnapshots reads the header of every snapshot in dir, oldest first.
// Files whose header cannot be read are skipped.
func listSnapshots(dir string) ([]snapshotFile, error) {
	names, err := filepath.Glob(filepath.Join(dir, "*.snap.zst"))
	if err != nil {
		return nil, err
	}
	out := make([]snapshotFile, 0, len(names))
	for _, p := range names {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			continue
		}
		out = append(out, snapshotFile{Step: h.Step, WorldID: h.WorldID, Version: h.Version, Path: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used to find the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -snapshot")
			os.Exit(2)
		}
		p, ok, err := snapshot.Latest(filepath.Join(*dataDir, "worlds", *worldID, "snapshots"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest snapshot:", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "no snapshot found")
			os.Exit(2)
		}
		path = p
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
}

type snapshotSummary struct {
	WorldID    string         `json:"world_id"`
	Step       uint64         `json:"step"`
	Seed       int64          `json:"seed"`
	TickRateHz int            `json:"tick_rate_hz"`
	Clock      float64        `json:"clock"`
	Entities   int            `json:"entities"`
	Types      map[string]int `json:"types"`
	Pending    int            `json:"pending"`
	Backlog    int            `json:"backlog"`
	Tasks      map[string]int `json:"tasks,omitempty"` // per owner
	Terrain    int            `json:"terrain_mods"`
}

func summarize(s snapshot.SnapshotV1) snapshotSummary {
	out := snapshotSummary{
		WorldID:    s.Header.WorldID,
		Step:       s.Header.Step,
		Seed:       s.Seed,
		TickRateHz: s.TickRateHz,
		Clock:      s.Clock,
		Entities:   len(s.Entities),
		Types:      map[string]int{},
		Pending:    len(s.Pending),
		Backlog:    len(s.Backlog),
	}
	for _, e := range s.Entities {
		out.Types[e.Type]++
		if e.Terrain != nil {
			out.Terrain += len(e.Terrain.Mods)
		}
	}
	for _, r := range s.Runners {
		if len(r.Tasks) == 0 {
			continue
		}
		if out.Tasks == nil {
			out.Tasks = map[string]int{}
		}
		out.Tasks[r.Owner] += len(r.Tasks)
	}
	return out
}

// auditsCmd filters the audit journal on disk. Unlike "db audits" it does not
// need the index and sees every entry that was written.
func auditsCmd(args []string) {
	fs := flag.NewFlagSet("audits", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	entity := fs.String("entity", "", "entity filter")
	kind := fs.String("kind", "", "kind filter (dropped|fault|task_irrelevant|destroyed|...)")
	since := fs.Uint64("since_step", 0, "first step (inclusive)")
	to := fs.Uint64("to_step", 0, "last step (inclusive, optional)")
	limit := fs.Int("limit", 0, "max entries (0 = all)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	recs, err := collectAudits(filepath.Join(*dataDir, "worlds", *worldID), auditFilter{
		Entity: *entity,
		Kind:   *kind,
		Since:  *since,
		To:     *to,
		Limit:  *limit,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	for _, r := range recs {
		printJSON(r)
	}
}

type auditFilter struct {
	Entity string
	Kind   string
	Since  uint64
	To     uint64
	Limit  int
}

func (f auditFilter) match(e world.AuditEntry) bool {
	if e.Step < f.Since {
		return false
	}
	if f.Entity != "" && e.Entity != f.Entity {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return true
}

func collectAudits(worldDir string, f auditFilter) ([]world.AuditEntry, error) {
	var out []world.AuditEntry
	err := persistlog.ReadAudits(worldDir, func(e world.AuditEntry) error {
		if f.To != 0 && e.Step > f.To {
			return io.EOF
		}
		if !f.match(e) {
			return nil
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			return io.EOF
		}
		return nil
	})
	return out, err
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
