package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "tickworld.ai/internal/persistence/log"
	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/sim/catalogs"
	"tickworld.ai/internal/sim/tuning"
	"tickworld.ai/internal/sim/world"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		watchTune  = flag.Bool("watch_tuning", true, "reload tuning.yaml on change")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (steps/audits + catalogs + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		p, ok, err := snapshot.Latest(filepath.Join(worldDir, "snapshots"))
		if err != nil {
			logger.Fatalf("find latest snapshot: %v", err)
		}
		if ok {
			snapshotToLoad = p
		}
	}

	// Load tuning (required for fresh world; optional for snapshot resumes).
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		// Resume fallback: the snapshot carries the effective tuning.
		if os.IsNotExist(tuneErr) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
	}

	// Optional read-model index (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	w, err := world.New(world.WorldConfig{ID: *worldID, Seed: *seed}, tune, cats, logger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s step=%d", filepath.Base(snapshotToLoad), w.CurrentStep())
	} else {
		if _, err := w.SpawnWithID("world", "world", nil); err != nil {
			logger.Fatalf("seed world: %v", err)
		}
		logger.Printf("fresh world %s seed=%d", *worldID, *seed)
	}

	ctx, cancel := signalContext()
	defer cancel()

	stepLog := persistlog.NewStepLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer stepLog.Close()
	defer auditLog.Close()
	journal := fanout{steps: []world.StepLogger{stepLog}, audits: []world.AuditLogger{auditLog}}
	if idx != nil {
		journal.steps = append(journal.steps, idx)
		journal.audits = append(journal.audits, idx)
	}
	w.SetStepLogger(journal)
	w.SetAuditLogger(journal)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", snapshot.FileName(snap.Header.Step))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	if *watchTune {
		go func() {
			err := tuning.Watch(ctx, tp, logger, func(t tuning.Tuning) {
				rctx, rcancel := context.WithTimeout(ctx, 5*time.Second)
				defer rcancel()
				if err := w.Retune(rctx, t); err != nil {
					logger.Printf("retune: %v", err)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("tuning watch stopped: %v", err)
			}
		}()
	}

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := newMux(httpDeps{
		World:       w,
		Index:       idx,
		Logger:      logger,
		EnableAdmin: envBool("TW_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		EnablePprof: envBool("TW_ENABLE_PPROF_HTTP", false),
	})
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
