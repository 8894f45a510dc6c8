package manager

// Event represents a worker lifecycle event.
// Minimal and stable: name + worker ID and optional fields via key/values.
type Event struct {
	Name     string
	WorkerID string
	Fields   map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Event names.
const (
	EventLoad        = "load"
	EventSpawnStart  = "spawn_start"
	EventSpawnReady  = "spawn_ready"
	EventSpawnFailed = "spawn_failed"
	EventStop        = "stop"
	EventStopUnknown = "stop_unknown"
)
