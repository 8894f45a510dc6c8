package manager

import (
	"time"

	"github.com/google/uuid"

	"workermgr/internal/service"
	"workermgr/pkg/types"
)

// SocketTarget is where a worker serves its data plane.
type SocketTarget struct {
	SockType string
	SockName string
	Host     string
	Port     string
}

// WorkerRecord is one live worker. It exclusively owns its process.
type WorkerRecord struct {
	ID         string
	InstanceID uuid.UUID
	PID        int
	// SyncPath is the base of the worker's two sync files (.out and .err).
	SyncPath string
	Target   SocketTarget
	Model    string
	Started  time.Time

	proc *process
}

func (r *WorkerRecord) OutPath() string { return r.SyncPath + ".out" }
func (r *WorkerRecord) ErrPath() string { return r.SyncPath + ".err" }

func (r *WorkerRecord) status() types.WorkerStatus {
	return types.WorkerStatus{
		ID:          r.ID,
		InstanceID:  r.InstanceID.String(),
		PID:         r.PID,
		Model:       r.Model,
		SockType:    r.Target.SockType,
		SockName:    r.Target.SockName,
		Host:        r.Target.Host,
		Port:        r.Target.Port,
		SyncPath:    r.SyncPath,
		StartedUnix: r.Started.Unix(),
	}
}

// Result is the outcome of one command. Err carries the internal cause of a
// failure for logging; it is never sent on the wire.
type Result struct {
	Code    int32
	Message string
	Err     error
}

func (r Result) OK() bool { return r.Code == 200 }

// connState is the per-connection "current service": either a materialized
// service or deferred construction parameters from the most recent Load.
type connState struct {
	svc    service.Service
	params *service.LoadParams
}
