package world

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/behaviors"
	"tickworld.ai/internal/sim/catalogs"
	"tickworld.ai/internal/sim/chance"
	"tickworld.ai/internal/sim/dispatch"
	"tickworld.ai/internal/sim/schedule"
	"tickworld.ai/internal/sim/tasks"
	"tickworld.ai/internal/sim/thing"
	"tickworld.ai/internal/sim/tuning"
)

var ErrBusy = errors.New("world inbox full")

type WorldConfig struct {
	ID   string
	Seed int64
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	tune     tuning.Tuning
	catalogs *catalogs.Catalogs
	logger   *log.Logger

	step  atomic.Uint64
	clock float64

	things     *thing.Table
	queue      *schedule.Queue
	backlog    []protocol.Operation
	runners    map[string]*tasks.Runner
	taskParams map[tasks.Kind]tasks.Params

	dispatcher *dispatch.Dispatcher
	trial      *chance.Seeded
	env        dispatch.Env

	nextEntity uint64
	nextSerial int64

	inbox         chan protocol.Operation
	retune        chan tuning.Tuning
	observerJoin  chan ObserverJoin
	observerLeave chan string
	admin         chan adminSnapshotReq
	stateReq      chan stateReq
	stop          chan struct{}

	observers map[string]*observer

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	stepLogger  StepLogger
	auditLogger AuditLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	retunedThisStep *tuning.Tuning
	lastDigest      string
	delivered       uint64
	dropped         uint64

	metrics atomic.Value
}

type StepLogger interface {
	WriteStep(entry StepLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// StepLogEntry is enough to replay a step from the previous state.
type StepLogEntry struct {
	Step   uint64               `json:"step"`
	Clock  float64              `json:"clock"`
	Inputs []protocol.Operation `json:"inputs,omitempty"`
	Tuning *tuning.Tuning       `json:"tuning,omitempty"`
	Digest string               `json:"digest"`
}

// Audit kinds.
const (
	AuditDropped    = "dropped"
	AuditFault      = "fault"
	AuditIrrelevant = "task_irrelevant"
	AuditCreated    = "created"
	AuditDestroyed  = "destroyed"
)

type AuditEntry struct {
	Step   uint64  `json:"step"`
	Clock  float64 `json:"clock"`
	Kind   string  `json:"kind"`
	Entity string  `json:"entity"`
	Op     string  `json:"op,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

func New(cfg WorldConfig, tune tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("nil catalogs")
	}
	if err := tune.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = "world_1"
	}
	w := &World{
		cfg:      cfg,
		catalogs: cats,
		logger:   logger,

		things:  thing.NewTable(),
		queue:   schedule.NewQueue(),
		runners: map[string]*tasks.Runner{},
		trial:   chance.NewSeeded(cfg.Seed),

		inbox:         make(chan protocol.Operation, 4096),
		retune:        make(chan tuning.Tuning, 4),
		observerJoin:  make(chan ObserverJoin, 64),
		observerLeave: make(chan string, 64),
		admin:         make(chan adminSnapshotReq, 16),
		stateReq:      make(chan stateReq, 16),
		stop:          make(chan struct{}),

		observers: map[string]*observer{},
	}
	w.dispatcher = behaviors.NewDispatcher(dispatch.Config{DebugLevel: tune.DebugLevel}, logger)
	w.env = dispatch.Env{
		Trial:  w.trial,
		Tasks:  w,
		Logger: logger,
		Lookup: func(id string) (*thing.Thing, bool) { return w.things.Lookup(id) },
	}
	w.applyTuning(tune)
	w.metrics.Store(WorldMetrics{TickRateHz: tune.TickRateHz})
	return w, nil
}

func (w *World) SetStepLogger(l StepLogger)   { w.stepLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.tune.TickRateHz
}

func (w *World) TypesDigest() string { return w.catalogs.Types.Digest }

// CurrentStep is the number of the next step to run.
func (w *World) CurrentStep() uint64 { return w.step.Load() }

func (w *World) applyTuning(t tuning.Tuning) {
	w.tune = t
	w.env.Tuning = t
	w.dispatcher.SetDebugLevel(t.DebugLevel)
	params := make(map[tasks.Kind]tasks.Params, len(t.Tasks))
	for name, tt := range t.Tasks {
		params[tasks.Kind(name)] = tasks.ParamsFrom(tt)
	}
	w.taskParams = params
	for _, r := range w.runners {
		r.Retune(params)
	}
}

func (w *World) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}

func (w *World) audit(kind, entity string, op *protocol.Operation, reason string) {
	if kind == AuditDropped {
		w.dropped++
	}
	if w.auditLogger == nil {
		return
	}
	e := AuditEntry{
		Step:   w.step.Load(),
		Clock:  w.clock,
		Kind:   kind,
		Entity: entity,
		Reason: reason,
	}
	if op != nil {
		e.Op = op.Type
	}
	_ = w.auditLogger.WriteAudit(e)
}

// refOf resolves against whichever table is current, so runners survive a
// snapshot import.
func (w *World) refOf(id string) thing.Ref { return w.things.Ref(id) }
