package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Step    uint64 `json:"step"`
}

// SnapshotV1 is a resumable world state. Entity attributes and queued
// operations are stored as their JSON wire form so the gob stream never has
// to know about dynamic attribute values.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed       int64   `json:"seed"`
	TickRateHz int     `json:"tick_rate_hz"`
	Clock      float64 `json:"clock"`
	Tuning     []byte  `json:"tuning,omitempty"` // JSON of the tuning in effect

	Entities []EntityV1 `json:"entities"`
	Pending  [][]byte   `json:"pending"` // queued operations, in delivery order
	Backlog  [][]byte   `json:"backlog"` // operations carried over past the per-step cap
	Runners  []RunnerV1 `json:"runners"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextEntity uint64 `json:"next_entity"`
	NextSerial int64  `json:"next_serial"`
}

type EntityV1 struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Behavior string     `json:"behavior"`
	Attrs    []byte     `json:"attrs"`
	Memory   []byte     `json:"memory,omitempty"`
	Terrain  *TerrainV1 `json:"terrain,omitempty"`
}

type TerrainV1 struct {
	DefaultSurface int        `json:"default_surface"`
	Surfaces       []CellV1   `json:"surfaces,omitempty"`
	Heights        []HeightV1 `json:"heights,omitempty"`
	Mods           []ModV1    `json:"mods,omitempty"`
}

type CellV1 struct {
	X    int `json:"x"`
	Z    int `json:"z"`
	Code int `json:"code"`
}

type HeightV1 struct {
	X int     `json:"x"`
	Z int     `json:"z"`
	H float64 `json:"h"`
}

type ModV1 struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	Pos       [3]float64   `json:"pos"`
	Radius    float64      `json:"radius"`
	Height    float64      `json:"height"`
	ShapeType string       `json:"shape_type,omitempty"`
	Points    [][2]float64 `json:"points,omitempty"`
}

type RunnerV1 struct {
	Owner string   `json:"owner"`
	Next  uint64   `json:"next"`
	Tasks []TaskV1 `json:"tasks"`
}

type TaskV1 struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind"`
	Owner    string     `json:"owner"`
	Target   string     `json:"target"`
	Tool     string     `json:"tool,omitempty"`
	Pos      [3]float64 `json:"pos"`
	Rate     float64    `json:"rate"`
	Progress float64    `json:"progress"`
	Surface  int        `json:"surface"`
	Serial   int64      `json:"serial"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	hb, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(hb, &h); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	hb, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(hb, &h)
	return h, err
}

// FileName is the on-disk name of the snapshot taken at step.
func FileName(step uint64) string {
	return fmt.Sprintf("%d.snap.zst", step)
}

// Latest returns the snapshot in dir with the highest step.
func Latest(dir string) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	type cand struct {
		step uint64
		path string
	}
	var cands []cand
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		cands = append(cands, cand{step: n, path: filepath.Join(dir, name)})
	}
	if len(cands) == 0 {
		return "", false, nil
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].step < cands[j].step })
	return cands[len(cands)-1].path, true, nil
}
