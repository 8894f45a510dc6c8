package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"workermgr/internal/protocol"
	"workermgr/internal/service"
	"workermgr/internal/worker"
)

// Response messages. Callers of the control protocol match on these.
const (
	msgOutOfMemory     = "System out of memory"
	msgScaledUp        = "scaled up"
	msgScaleUpFailed   = "scale up failed"
	msgScaledDown      = "scaled down"
	msgScaleDownFailed = "scale down failed"
	msgScaleDownCompat = "DONE"
)

// Load resolves the model descriptor. An eager model is materialized now and
// returned as a service; a scripted one is returned as deferred parameters for
// the workers to construct. Exactly one of the two is non-nil on success.
// Out-of-memory is reported as a 507 result; any other loader failure is
// returned as an error and ends the connection.
func (m *Manager) Load(ctx context.Context, cmd protocol.LoadCommand) (service.Service, *service.LoadParams, Result, error) {
	p := service.LoadParams{
		ModelName: cmd.ModelName,
		ModelDir:  cmd.ModelPath,
		Handler:   cmd.Handler,
		GPU:       cmd.GPU,
		BatchSize: cmd.BatchSize,
	}
	log := m.log.With().Str("model", p.ModelName).Str("model_dir", p.ModelDir).Logger()

	desc, err := m.loader.Load(ctx, p, false)
	if err != nil {
		return m.loadFailed(p, err)
	}
	msg := "loaded model " + p.ModelName
	if !desc.Manifest().Eager() {
		log.Info().Msg("model loaded (scripted)")
		m.publisher.Publish(Event{Name: EventLoad, Fields: map[string]any{"model": p.ModelName, "eager": false}})
		return nil, &p, Result{Code: 200, Message: msg}, nil
	}
	svc, err := m.loader.Load(ctx, p, true)
	if err != nil {
		return m.loadFailed(p, err)
	}
	log.Info().Msg("model loaded (eager)")
	m.publisher.Publish(Event{Name: EventLoad, Fields: map[string]any{"model": p.ModelName, "eager": true}})
	return svc, nil, Result{Code: 200, Message: msg}, nil
}

func (m *Manager) loadFailed(p service.LoadParams, err error) (service.Service, *service.LoadParams, Result, error) {
	if errors.Is(err, service.ErrOutOfMemory) {
		m.log.Error().Err(err).Str("model", p.ModelName).Msg("model does not fit in memory")
		return nil, nil, Result{Code: 507, Message: msgOutOfMemory, Err: err}, nil
	}
	return nil, nil, Result{}, fmt.Errorf("load model %s: %w", p.ModelName, err)
}

// ScaleUp spawns one worker for the pending service of the connection and
// waits for it to report readiness. A worker that does not become ready is
// terminated and forgotten before the failure is returned.
func (m *Manager) ScaleUp(ctx context.Context, cmd protocol.ScaleUpCommand, svc service.Service, params *service.LoadParams) Result {
	id := cmd.WorkerID()
	log := m.log.With().Str("worker_id", id).Logger()

	spec := worker.Spec{
		ID:       id,
		SockType: cmd.SockType,
		SockName: cmd.SockName,
		Host:     cmd.Host,
		Port:     cmd.Port,
	}
	switch {
	case svc != nil:
		spec.Params = svc.Params()
		spec.Eager = true
	case params != nil:
		spec.Params = *params
	default:
		log.Error().Err(errNoModel).Msg(msgScaleUpFailed)
		return Result{Code: 500, Message: msgScaleUpFailed, Err: errNoModel}
	}

	if prev, ok := m.store.get(id); ok {
		log.Warn().Int("pid", prev.PID).Msg("worker id reused, stopping previous worker")
		if err := m.stopRecord(ctx, prev); err != nil {
			log.Error().Err(err).Int("pid", prev.PID).Msg("stop previous worker")
		}
	}

	start := time.Now()
	m.publisher.Publish(Event{Name: EventSpawnStart, WorkerID: id})
	proc, err := m.startProcess(spec, cmd.SyncPath)
	if err != nil {
		err = spawnError{id: id, err: err}
		scaleUpDuration.WithLabelValues("spawn_error").Observe(time.Since(start).Seconds())
		m.publisher.Publish(Event{Name: EventSpawnFailed, WorkerID: id, Fields: map[string]any{"error": err.Error()}})
		log.Error().Err(err).Msg(msgScaleUpFailed)
		return Result{Code: 500, Message: msgScaleUpFailed, Err: err}
	}

	rec := &WorkerRecord{
		ID:         id,
		InstanceID: uuid.New(),
		PID:        proc.pid(),
		SyncPath:   cmd.SyncPath,
		Target:     SocketTarget{SockType: cmd.SockType, SockName: cmd.SockName, Host: cmd.Host, Port: cmd.Port},
		Model:      spec.Params.ModelName,
		Started:    start,
		proc:       proc,
	}
	m.store.put(rec)
	workersGauge.Set(float64(m.store.len()))
	if err := m.ledger.Put(ledgerEntry(rec)); err != nil {
		log.Warn().Err(err).Msg("ledger put failed")
	}
	log = log.With().Int("pid", rec.PID).Str("instance", rec.InstanceID.String()).Logger()
	log.Info().Str("sync_path", rec.SyncPath).Msg("worker spawned")

	attempts, err := m.awaitReady(ctx, rec)
	readinessAttempts.Observe(float64(attempts))
	if err != nil {
		scaleUpDuration.WithLabelValues("not_ready").Observe(time.Since(start).Seconds())
		log.Error().Err(err).Int("attempts", attempts).Msg("worker did not become ready")
		if stopErr := m.stopRecord(ctx, rec); stopErr != nil {
			log.Error().Err(stopErr).Msg("stop unready worker")
		}
		m.publisher.Publish(Event{Name: EventSpawnFailed, WorkerID: id, Fields: map[string]any{"error": err.Error()}})
		return Result{Code: 500, Message: msgScaleUpFailed, Err: err}
	}

	scaleUpDuration.WithLabelValues("ready").Observe(time.Since(start).Seconds())
	m.publisher.Publish(Event{Name: EventSpawnReady, WorkerID: id, Fields: map[string]any{"pid": rec.PID, "attempts": attempts}})
	log.Info().Int("attempts", attempts).Dur("elapsed", time.Since(start)).Msg("worker ready")
	return Result{Code: 200, Message: msgScaledUp}
}

// awaitReady probes the record's sync files. The probe ends early when the
// process exits.
func (m *Manager) awaitReady(ctx context.Context, rec *WorkerRecord) (int, error) {
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-rec.proc.done:
			cancel()
		case <-probeCtx.Done():
		}
	}()
	attempts, err := m.prober.Probe(probeCtx, rec.OutPath(), rec.ErrPath())
	if err != nil && ctx.Err() == nil && rec.proc.exited() {
		cause := rec.proc.err
		if cause == nil {
			cause = errors.New("exit status 0")
		}
		return attempts, spawnError{id: rec.ID, err: fmt.Errorf("exited before ready: %w", cause)}
	}
	return attempts, err
}

// ScaleDown terminates the worker registered under cmd.ID. An unknown id is
// reported as a failed result and leaves the store untouched.
func (m *Manager) ScaleDown(ctx context.Context, cmd protocol.ScaleDownCommand) Result {
	rec, ok := m.store.get(cmd.ID)
	if !ok {
		err := workerNotFoundError{id: cmd.ID}
		m.log.Warn().Err(err).Str("worker_id", cmd.ID).Msg(msgScaleDownFailed)
		m.publisher.Publish(Event{Name: EventStopUnknown, WorkerID: cmd.ID})
		return Result{Code: 500, Message: msgScaleDownFailed, Err: err}
	}
	if err := m.stopRecord(ctx, rec); err != nil {
		m.log.Error().Err(err).Str("worker_id", rec.ID).Int("pid", rec.PID).Msg(msgScaleDownFailed)
		return Result{Code: 500, Message: msgScaleDownFailed, Err: err}
	}
	m.log.Info().Str("worker_id", rec.ID).Int("pid", rec.PID).Msg("worker stopped")
	return Result{Code: 200, Message: msgScaledDown}
}

// stopRecord terminates the record's process and forgets the record. The sync
// files are left in place.
func (m *Manager) stopRecord(ctx context.Context, rec *WorkerRecord) error {
	err := rec.proc.stop(ctx, m.stopGrace)
	m.store.remove(rec)
	m.removeLedger(rec.ID)
	workersGauge.Set(float64(m.store.len()))
	m.publisher.Publish(Event{Name: EventStop, WorkerID: rec.ID, Fields: map[string]any{"pid": rec.PID}})
	return err
}
