package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/sim/catalogs"
	"tickworld.ai/internal/sim/tuning"
	"tickworld.ai/internal/sim/world"
)

func newTestServer(t *testing.T, withSink bool) (*httptest.Server, chan snapshot.SnapshotV1) {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tune := tuning.Defaults()
	tune.TickRateHz = 50
	w, err := world.New(world.WorldConfig{ID: "W1", Seed: 3}, tune, cats, nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	if _, err := w.SpawnWithID("world", "world", nil); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	var sink chan snapshot.SnapshotV1
	if withSink {
		sink = make(chan snapshot.SnapshotV1, 1)
		w.SetSnapshotSink(sink)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(newMux(httpDeps{World: w, EnableAdmin: true}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv, sink
}

func TestHealthzAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", resp.StatusCode)
	}

	// Give the loop a few steps so metrics are populated.
	time.Sleep(100 * time.Millisecond)
	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	body := string(b)
	for _, want := range []string{
		`tickworld_world_step{world="W1"}`,
		`tickworld_world_entities{world="W1"} 1`,
		`tickworld_ops_total{world="W1",outcome="delivered"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestAdminState(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/admin/v1/state")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state status=%d", resp.StatusCode)
	}
	var st struct {
		WorldID  string `json:"world_id"`
		Entities []struct {
			ID string `json:"id"`
		} `json:"entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.WorldID != "W1" || len(st.Entities) != 1 || st.Entities[0].ID != "world" {
		t.Fatalf("state: %+v", st)
	}
}

func TestAdminSnapshot(t *testing.T) {
	t.Run("without sink", func(t *testing.T) {
		srv, _ := newTestServer(t, false)
		resp, err := http.Post(srv.URL+"/admin/v1/snapshot", "application/json", nil)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("status=%d want 503", resp.StatusCode)
		}
	})
	t.Run("with sink", func(t *testing.T) {
		srv, sink := newTestServer(t, true)
		resp, err := http.Post(srv.URL+"/admin/v1/snapshot", "application/json", nil)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		var out struct {
			OK   bool   `json:"ok"`
			Step uint64 `json:"step"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if !out.OK {
			t.Fatalf("snapshot not ok")
		}
		select {
		case snap := <-sink:
			if snap.Header.Step != out.Step {
				t.Fatalf("step mismatch: %d vs %d", snap.Header.Step, out.Step)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no snapshot")
		}
	})
	t.Run("get not allowed", func(t *testing.T) {
		srv, _ := newTestServer(t, false)
		resp, err := http.Get(srv.URL + "/admin/v1/snapshot")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("status=%d", resp.StatusCode)
		}
	})
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5555": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
