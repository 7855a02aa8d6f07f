package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	since := fs.Uint64("since_step", 0, "first step (inclusive)")
	limit := fs.Int("limit", 20, "result limit")
	from := fs.String("from", "", "sender filter (ops)")
	to := fs.String("to", "", "receiver filter (ops)")
	typ := fs.String("type", "", "operation type filter (ops)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	var rows []any
	switch q {
	case "snapshots":
		rows, err = querySnapshots(db, *limit)
	case "steps":
		rows, err = querySteps(db, *since, *limit)
	case "ops":
		rows, err = queryOps(db, opFilter{Since: *since, From: *from, To: *to, Type: *typ, Limit: *limit})
	case "catalogs":
		rows, err = queryCatalogs(db)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] snapshots|steps|ops|catalogs")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

type snapshotRow struct {
	Step     uint64 `json:"step"`
	Path     string `json:"path"`
	Seed     int64  `json:"seed"`
	Entities int    `json:"entities"`
	Pending  int    `json:"pending"`
	Backlog  int    `json:"backlog"`
	Tasks    int    `json:"tasks"`
}

func querySnapshots(db *sql.DB, limit int) ([]any, error) {
	rows, err := db.Query(`SELECT step,path,seed,entities,pending,backlog,tasks FROM snapshots ORDER BY step DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r snapshotRow
		var step int64
		if err := rows.Scan(&step, &r.Path, &r.Seed, &r.Entities, &r.Pending, &r.Backlog, &r.Tasks); err != nil {
			return nil, err
		}
		r.Step = uint64(step)
		out = append(out, r)
	}
	return out, rows.Err()
}

type stepRow struct {
	Step    uint64  `json:"step"`
	Clock   float64 `json:"clock"`
	Digest  string  `json:"digest"`
	Inputs  int     `json:"inputs"`
	Retuned bool    `json:"retuned,omitempty"`
}

func querySteps(db *sql.DB, since uint64, limit int) ([]any, error) {
	rows, err := db.Query(`SELECT step,clock,digest,inputs,retuned FROM steps WHERE step >= ? ORDER BY step LIMIT ?`, int64(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r stepRow
		var step int64
		var retuned int
		if err := rows.Scan(&step, &r.Clock, &r.Digest, &r.Inputs, &retuned); err != nil {
			return nil, err
		}
		r.Step = uint64(step)
		r.Retuned = retuned != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

type opFilter struct {
	Since uint64
	From  string
	To    string
	Type  string
	Limit int
}

type opRow struct {
	Step uint64 `json:"step"`
	Seq  int    `json:"seq"`
	Type string `json:"type"`
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	JSON string `json:"op_json"`
}

// queryOps lists submitted operations. Derived operations are not indexed;
// only what entered the world from outside.
func queryOps(db *sql.DB, f opFilter) ([]any, error) {
	where := []string{"step >= ?"}
	args := []any{int64(f.Since)}
	if f.From != "" {
		where = append(where, "from_id = ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "to_id = ?")
		args = append(args, f.To)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	args = append(args, f.Limit)

	rows, err := db.Query(`SELECT step,seq,type,from_id,to_id,op_json FROM ops WHERE `+
		strings.Join(where, " AND ")+` ORDER BY step,seq LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r opRow
		var step int64
		if err := rows.Scan(&step, &r.Seq, &r.Type, &r.From, &r.To, &r.JSON); err != nil {
			return nil, err
		}
		r.Step = uint64(step)
		out = append(out, r)
	}
	return out, rows.Err()
}

type catalogRow struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	UpdatedAt string `json:"updated_at"`
	Bytes     int    `json:"bytes"`
}

func queryCatalogs(db *sql.DB) ([]any, error) {
	rows, err := db.Query(`SELECT name,digest,updated_at,length(json) FROM catalogs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r catalogRow
		if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt, &r.Bytes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
