package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoCatalog(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, id := range []string{"world", "character", "acorn", "apple", "house", "shovel", "pickaxe", "soil", "pile"} {
		if _, ok := cats.Types.Get(id); !ok {
			t.Fatalf("missing type %q", id)
		}
	}
	if d, _ := cats.Types.Get("shovel"); d.Task != "dig" {
		t.Fatalf("shovel task=%q", d.Task)
	}
	if d, _ := cats.Types.Get("pickaxe"); d.Task != "delve" {
		t.Fatalf("pickaxe task=%q", d.Task)
	}
	if cats.Types.Digest == "" || len(cats.Types.Palette) != len(cats.Types.Defs) {
		t.Fatalf("digest/palette not populated")
	}
}

func TestLoad_OverlayWinsAndDefaultsBehavior(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, body string) {
		t.Helper()
		p := filepath.Join(dir, rel)
		_ = os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("types.json", `[{"id":"rock"},{"id":"apple","behavior":"apple","attrs":{"mass":1}}]`)
	base, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d, _ := base.Types.Get("rock"); d.Behavior != "thing" {
		t.Fatalf("rock behavior=%q want thing", d.Behavior)
	}

	write("types.d/apple.json", `{"id":"apple","behavior":"apple","attrs":{"mass":2}}`)
	over, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d, _ := over.Types.Get("apple"); d.Attrs["mass"] != 2.0 {
		t.Fatalf("overlay not applied: %+v", d)
	}
	if over.Types.Digest == base.Types.Digest {
		t.Fatalf("digest should change with overlay")
	}

	write("types.json", `[{"behavior":"apple"}]`)
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected empty id error")
	}
}
