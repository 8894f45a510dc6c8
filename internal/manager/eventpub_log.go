package manager

import (
	"sort"

	"github.com/rs/zerolog"
)

// LogPublisher writes every lifecycle event as one structured log line.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher { return &LogPublisher{log: log} }

func (p *LogPublisher) Publish(e Event) {
	ev := p.log.Debug()
	if e.Name == EventSpawnFailed {
		ev = p.log.Warn()
	}
	ev = ev.Str("event", e.Name)
	if e.WorkerID != "" {
		ev = ev.Str("worker_id", e.WorkerID)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev = ev.Interface(k, e.Fields[k])
	}
	ev.Msg("worker event")
}
