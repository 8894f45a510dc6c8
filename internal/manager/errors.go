package manager

import (
	"errors"
	"strconv"
)

// ErrAcceptTimeout is returned by Serve when no connection arrives in time.
var ErrAcceptTimeout = errors.New("accept timeout")

// ErrCommandFailed is returned by the connection loop after it wrote a
// non-200 response.
var ErrCommandFailed = errors.New("command failed")

// errNoModel is the ScaleUp failure cause when no Load preceded it.
var errNoModel = errors.New("no model loaded on this connection")

// workerNotFoundError signals a ScaleDown for an id that is not registered.
type workerNotFoundError struct{ id string }

func (e workerNotFoundError) Error() string { return "worker not found: " + e.id }

// IsWorkerNotFound reports whether err indicates an unknown worker id.
func IsWorkerNotFound(err error) bool {
	var e workerNotFoundError
	return errors.As(err, &e)
}

// notReadyError signals that the readiness budget was exhausted.
type notReadyError struct{ attempts int }

func (e notReadyError) Error() string {
	return "worker not ready after " + strconv.Itoa(e.attempts) + " attempts"
}

// IsNotReady reports whether err indicates a readiness timeout.
func IsNotReady(err error) bool {
	var e notReadyError
	return errors.As(err, &e)
}

// spawnError wraps any failure while starting a worker.
type spawnError struct {
	id  string
	err error
}

func (e spawnError) Error() string { return "spawn worker " + e.id + ": " + e.err.Error() }
func (e spawnError) Unwrap() error { return e.err }

// IsSpawnError reports whether err came from worker startup.
func IsSpawnError(err error) bool {
	var e spawnError
	return errors.As(err, &e)
}

// configurationError signals invalid socket configuration at startup.
type configurationError struct {
	msg string
	err error
}

func (e configurationError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}
func (e configurationError) Unwrap() error { return e.err }

// IsConfiguration reports whether err is a startup configuration error.
func IsConfiguration(err error) bool {
	var e configurationError
	return errors.As(err, &e)
}
