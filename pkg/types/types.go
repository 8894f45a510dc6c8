package types

// WorkerStatus describes one live worker process.
type WorkerStatus struct {
	// Worker id: the socket name, or the port for tcp workers.
	// example: /tmp/.ts.sock.9000
	ID string `json:"id" example:"/tmp/.ts.sock.9000"`
	// Unique id of this process incarnation; a reused worker id gets a new one.
	InstanceID string `json:"instance_id"`
	PID        int    `json:"pid"`
	Model      string `json:"model"`
	// unix or tcp
	SockType string `json:"sock_type"`
	SockName string `json:"sock_name,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     string `json:"port,omitempty"`
	// Base path of the worker's .out/.err synchronization files.
	SyncPath    string `json:"sync_path"`
	StartedUnix int64  `json:"started_unix"`
}

// WorkersResponse wraps the list returned by GET /workers.
type WorkersResponse struct {
	Workers       []WorkerStatus `json:"workers"`
	UptimeSeconds int64          `json:"uptime_seconds"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
