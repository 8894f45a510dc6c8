package manager

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"workermgr/internal/protocol"
)

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf).Level(zerolog.DebugLevel))

	p.Publish(Event{Name: EventSpawnReady, WorkerID: "w1", Fields: map[string]any{"pid": 42, "attempts": 2}})
	p.Publish(Event{Name: EventSpawnFailed, WorkerID: "w2", Fields: map[string]any{"error": "boom"}})
	p.Publish(Event{Name: EventLoad})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d: %q", len(lines), buf.String())
	}
	var first, second, third map[string]any
	for i, dst := range []*map[string]any{&first, &second, &third} {
		if err := json.Unmarshal([]byte(lines[i]), dst); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
	}
	if first["event"] != EventSpawnReady || first["worker_id"] != "w1" || first["pid"] != float64(42) || first["level"] != "debug" {
		t.Fatalf("unexpected first line: %v", first)
	}
	if second["level"] != "warn" || second["error"] != "boom" {
		t.Fatalf("unexpected second line: %v", second)
	}
	if _, ok := third["worker_id"]; ok || third["event"] != EventLoad {
		t.Fatalf("unexpected third line: %v", third)
	}
}

func TestLogPublisherWiredThroughManager(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.Nop()
	m := NewWithConfig(ManagerConfig{
		Loader:    &fakeLoader{},
		Logger:    &log,
		Publisher: NewLogPublisher(zerolog.New(&buf).Level(zerolog.DebugLevel)),
	})
	m.ScaleDown(testCtx(t), protocol.ScaleDownCommand{ID: "missing"})
	if !strings.Contains(buf.String(), `"event":"`+EventStopUnknown+`"`) {
		t.Fatalf("stop_unknown event not logged: %q", buf.String())
	}
}
