// Package manager is the control side of the worker manager: it accepts
// commands on the control socket, loads models, and spawns, verifies and
// terminates worker processes. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, status getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: WorkerRecord, SocketTarget, Result and per-connection state.
//   - errors.go: error types and helpers (IsWorkerNotFound, IsNotReady, ...).
//   - store.go: the worker record store keyed by worker id.
//   - probe.go: readiness polling of worker sync files.
//   - process.go, procattr_*.go: starting and stopping worker processes.
//   - dispatch.go: Load, ScaleUp and ScaleDown.
//   - conn.go: the per-connection command loop.
//   - listener.go: the control socket and the accept loop (Serve).
//   - ledger.go: optional on-disk record of worker pids and orphan reaping.
//   - shutdown.go: parallel termination of all workers.
//   - metrics.go, events.go: Prometheus collectors and lifecycle events.
//
// A worker is ready once either of its sync files (SyncPath+".out",
// SyncPath+".err") contains ReadySentinel. Workers are started as
// `<WorkerBin> <WorkerArgs...>` with a msgpack worker.Spec on stdin.
package manager
