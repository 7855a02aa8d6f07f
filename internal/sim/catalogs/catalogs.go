package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Catalogs struct {
	Types TypeCatalog
}

type TypeCatalog struct {
	Palette []string
	Defs    map[string]TypeDef
	Digest  string
}

// TypeDef describes an entity type: the behavior its operations are dispatched
// to and the attributes a freshly created instance starts with.
type TypeDef struct {
	ID       string         `json:"id"`
	Behavior string         `json:"behavior"`
	Task     string         `json:"task,omitempty"`    // task kind a "cut" on this tool starts
	Terrain  bool           `json:"terrain,omitempty"` // instances carry a terrain property
	Attrs    map[string]any `json:"attrs,omitempty"`
}

func (c *TypeCatalog) Get(id string) (TypeDef, bool) {
	d, ok := c.Defs[id]
	return d, ok
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadTypes(filepath.Join(configDir, "types.json"), filepath.Join(configDir, "types.d"), &c.Types); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// loadTypes reads the base catalog and then any per-type overlay files from
// overlayDir (sorted by name, later files win).
func loadTypes(path, overlayDir string, out *TypeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var concat bytes.Buffer
	concat.Write(raw)
	concat.WriteByte('\n')

	var defs []TypeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("types.json: %w", err)
	}
	out.Defs = map[string]TypeDef{}
	for _, d := range defs {
		if err := addType(out, d, "types.json"); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(overlayDir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(overlayDir, e.Name()))
		}
	}
	sort.Strings(files)
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var d TypeDef
		if err := json.Unmarshal(b, &d); err != nil {
			return fmt.Errorf("type %s: %w", filepath.Base(p), err)
		}
		if err := addType(out, d, filepath.Base(p)); err != nil {
			return err
		}
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func addType(out *TypeCatalog, d TypeDef, src string) error {
	if d.ID == "" {
		return fmt.Errorf("%s: empty id", src)
	}
	if d.Behavior == "" {
		d.Behavior = "thing"
	}
	out.Defs[d.ID] = d
	return nil
}
