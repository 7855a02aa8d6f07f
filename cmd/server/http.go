package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"tickworld.ai/internal/persistence/indexdb"
	"tickworld.ai/internal/sim/world"
	"tickworld.ai/internal/transport/ws"
)

type httpDeps struct {
	World  *world.World
	Index  runtimeIndex // may be nil
	Logger *log.Logger

	EnableAdmin bool
	EnablePprof bool
}

func newMux(d httpDeps) *http.ServeMux {
	w := d.World
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w.ID(), w.Metrics())
		if d.Index != nil {
			writeIndexMetrics(rw, w.ID(), d.Index.Stats())
		}
	})

	if d.EnableAdmin {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			st, err := w.State(ctx)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				world.StateSummary
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				StateSummary: st,
				Metrics:      w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			step, err := w.RequestSnapshot(ctx)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "step": step, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "step": step})
		})
		mux.HandleFunc("/admin/v1/audits", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if d.Index == nil {
				http.Error(rw, "index disabled", http.StatusNotFound)
				return
			}
			q := r.URL.Query()
			since, _ := strconv.ParseUint(q.Get("since"), 10, 64)
			limit, _ := strconv.Atoi(q.Get("limit"))
			rows, err := d.Index.Audits(r.Context(), indexdb.AuditQuery{
				Entity: q.Get("entity"),
				Kind:   q.Get("kind"),
				Since:  since,
				Limit:  limit,
			})
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"audits": rows})
		})
	} else if d.Logger != nil {
		d.Logger.Printf("admin endpoints disabled (TW_ENABLE_ADMIN_HTTP=false)")
	}
	if d.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, d.Logger).Handler())
	return mux
}

// writeMetrics is a minimal Prometheus exposition of the world metrics.
func writeMetrics(rw http.ResponseWriter, worldID string, m world.WorldMetrics) {
	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP tickworld_%s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE tickworld_%s gauge\n", name)
		fmt.Fprintf(rw, "tickworld_%s{world=%q} %v\n", name, worldID, v)
	}
	gauge("world_step", "Next world step.", m.Step)
	gauge("world_clock_seconds", "Simulated world time.", m.Clock)
	gauge("world_entities", "Live entity count.", m.Entities)
	gauge("world_observers", "Attached observers.", m.Observers)
	gauge("world_tasks", "Active tasks.", m.Tasks)
	gauge("world_step_ms", "Last step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))

	fmt.Fprintf(rw, "# HELP tickworld_world_queue_depth Pending operations by queue.\n")
	fmt.Fprintf(rw, "# TYPE tickworld_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "tickworld_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "schedule", m.QueueDepth)
	fmt.Fprintf(rw, "tickworld_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "backlog", m.Backlog)
	fmt.Fprintf(rw, "tickworld_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.Inbox)

	fmt.Fprintf(rw, "# HELP tickworld_ops_total Operations by outcome.\n")
	fmt.Fprintf(rw, "# TYPE tickworld_ops_total counter\n")
	fmt.Fprintf(rw, "tickworld_ops_total{world=%q,outcome=%q} %d\n", worldID, "delivered", m.Delivered)
	fmt.Fprintf(rw, "tickworld_ops_total{world=%q,outcome=%q} %d\n", worldID, "dropped", m.Dropped)
	fmt.Fprintf(rw, "tickworld_ops_total{world=%q,outcome=%q} %d\n", worldID, "handled", m.Dispatch.Handled)
	fmt.Fprintf(rw, "tickworld_ops_total{world=%q,outcome=%q} %d\n", worldID, "ignored", m.Dispatch.Ignored)
	fmt.Fprintf(rw, "tickworld_ops_total{world=%q,outcome=%q} %d\n", worldID, "blocked", m.Dispatch.Blocked)
	fmt.Fprintf(rw, "tickworld_ops_total{world=%q,outcome=%q} %d\n", worldID, "fault", m.Dispatch.Faults)
}

func writeIndexMetrics(rw http.ResponseWriter, worldID string, s indexdb.Stats) {
	fmt.Fprintf(rw, "# HELP tickworld_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(rw, "# TYPE tickworld_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "tickworld_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)

	fmt.Fprintf(rw, "# HELP tickworld_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE tickworld_index_dropped_total counter\n")
	fmt.Fprintf(rw, "tickworld_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "step", s.DropStepTotal)
	fmt.Fprintf(rw, "tickworld_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", s.DropAuditTotal)
	fmt.Fprintf(rw, "tickworld_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", s.DropSnapshotTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
