package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"tickworld.ai/internal/persistence/indexdb"
	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/sim/catalogs"
	"tickworld.ai/internal/sim/tuning"
	"tickworld.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.StepLogger
	world.AuditLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Audits(ctx context.Context, q indexdb.AuditQuery) ([]indexdb.AuditRow, error)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TW_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath, logger)
	default:
		return nil, fmt.Errorf("unsupported TW_INDEX_BACKEND: %s", backend)
	}
}

// fanout sends journal entries to the durable log and, when enabled, the index.
type fanout struct {
	steps  []world.StepLogger
	audits []world.AuditLogger
}

func (f fanout) WriteStep(entry world.StepLogEntry) error {
	for _, l := range f.steps {
		_ = l.WriteStep(entry)
	}
	return nil
}

func (f fanout) WriteAudit(entry world.AuditEntry) error {
	for _, l := range f.audits {
		_ = l.WriteAudit(entry)
	}
	return nil
}
