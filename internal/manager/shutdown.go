package manager

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/workerpool"
)

// maxParallelStops bounds concurrent worker terminations during Shutdown.
const maxParallelStops = 8

// Shutdown terminates every registered worker in parallel and closes the
// ledger. Each worker gets the normal stop grace unless ctx ends first.
func (m *Manager) Shutdown(ctx context.Context) error {
	recs := m.store.snapshot()
	var (
		mu   sync.Mutex
		errs []error
	)
	if len(recs) > 0 {
		wp := workerpool.New(min(len(recs), maxParallelStops))
		for _, r := range recs {
			wp.Submit(func() {
				if err := m.stopRecord(ctx, r); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			})
		}
		wp.StopWait()
		m.log.Info().Int("workers", len(recs)).Msg("workers stopped")
	}
	if err := m.ledger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
