package manager

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"workermgr/internal/service"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
// The probe budget is part of the control protocol contract: callers time
// ScaleUp against it.
const (
	DefaultProbeAttempts = 10
	DefaultProbeInterval = 1 * time.Second
	DefaultStopGrace     = 2 * time.Second
	DefaultAcceptTimeout = 30 * time.Second
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Loader    service.Loader
	Emitter   service.Emitter
	Publisher EventPublisher
	Ledger    Ledger
	Logger    *zerolog.Logger

	// WorkerBin is executed for every ScaleUp with WorkerArgs. Empty means
	// this executable with the single argument "worker".
	WorkerBin  string
	WorkerArgs []string

	ProbeAttempts int
	ProbeInterval time.Duration
	StopGrace     time.Duration

	AcceptTimeout time.Duration
	// NoAcceptTimeout lets Serve wait for a connection forever (debug mode).
	NoAcceptTimeout bool

	// StrictScaleDown writes the real ScaleDown result instead of the
	// compatibility reply (200, "DONE").
	StrictScaleDown bool
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		loader:          cfg.Loader,
		emitter:         cfg.Emitter,
		publisher:       cfg.Publisher,
		ledger:          cfg.Ledger,
		workerBin:       cfg.WorkerBin,
		workerArgs:      cfg.WorkerArgs,
		stopGrace:       cfg.StopGrace,
		acceptTimeout:   cfg.AcceptTimeout,
		strictScaleDown: cfg.StrictScaleDown,
		store:           newWorkerStore(),
		prober: Prober{
			Attempts: cfg.ProbeAttempts,
			Interval: cfg.ProbeInterval,
			Sentinel: ReadySentinel,
		},
	}
	// Apply defaults if unset
	if m.loader == nil {
		m.loader = service.ManifestLoader{}
	}
	if m.emitter == nil {
		m.emitter = service.NoopEmitter{}
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if m.ledger == nil {
		m.ledger = noopLedger{}
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	} else {
		m.log = zerolog.Nop()
	}
	if m.workerBin == "" {
		if exe, err := os.Executable(); err == nil {
			m.workerBin = exe
			m.workerArgs = []string{"worker"}
		}
	}
	if m.prober.Attempts <= 0 {
		m.prober.Attempts = DefaultProbeAttempts
	}
	if m.prober.Interval <= 0 {
		m.prober.Interval = DefaultProbeInterval
	}
	if m.stopGrace <= 0 {
		m.stopGrace = DefaultStopGrace
	}
	if cfg.NoAcceptTimeout {
		m.acceptTimeout = 0
	} else if m.acceptTimeout <= 0 {
		m.acceptTimeout = DefaultAcceptTimeout
	}
	m.startTime = time.Now()
	return m
}
