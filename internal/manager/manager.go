package manager

import (
	"time"

	"github.com/rs/zerolog"

	"workermgr/internal/service"
	"workermgr/internal/worker"
	"workermgr/pkg/types"
)

// ReadySentinel is the marker a spawned worker writes to a sync file once it
// is serving.
const ReadySentinel = worker.ReadySentinel

type Manager struct {
	log       zerolog.Logger
	loader    service.Loader
	emitter   service.Emitter
	publisher EventPublisher
	ledger    Ledger
	prober    Prober

	workerBin  string
	workerArgs []string
	stopGrace  time.Duration

	acceptTimeout   time.Duration
	strictScaleDown bool

	// store is owned by the control loop; the mutex only serves status readers.
	store     *workerStore
	startTime time.Time
}

// New returns a Manager with package defaults and the built-in loader.
func New(log zerolog.Logger) *Manager {
	return NewWithConfig(ManagerConfig{Logger: &log})
}

// SetEventPublisher installs an EventPublisher. nil restores the no-op default.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		m.publisher = noopPublisher{}
		return
	}
	m.publisher = p
}

// Workers returns a snapshot of the live worker records.
func (m *Manager) Workers() []types.WorkerStatus {
	recs := m.store.snapshot()
	out := make([]types.WorkerStatus, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.status())
	}
	return out
}

// WorkerCount reports how many workers are registered.
func (m *Manager) WorkerCount() int { return m.store.len() }

// Uptime reports how long the manager has existed.
func (m *Manager) Uptime() time.Duration { return time.Since(m.startTime) }
