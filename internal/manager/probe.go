package manager

import (
	"bytes"
	"context"
	"os"
	"time"
)

// Prober polls sync files for a readiness sentinel. Each attempt sleeps
// Interval and then re-reads every file in full, so a sentinel split across
// two writes is still found on a later attempt.
type Prober struct {
	Attempts int
	Interval time.Duration
	Sentinel string
}

// Probe returns the number of attempts made and nil once any path contains
// the sentinel. It returns a notReadyError when the budget is exhausted, or
// the context error if ctx ends first.
func (p Prober) Probe(ctx context.Context, paths ...string) (int, error) {
	sentinel := []byte(p.Sentinel)
	t := time.NewTimer(p.Interval)
	defer t.Stop()
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		select {
		case <-ctx.Done():
			return attempt - 1, ctx.Err()
		case <-t.C:
		}
		for _, path := range paths {
			if fileContains(path, sentinel) {
				return attempt, nil
			}
		}
		t.Reset(p.Interval)
	}
	return p.Attempts, notReadyError{attempts: p.Attempts}
}

// fileContains treats unreadable files as "not yet".
func fileContains(path string, needle []byte) bool {
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Contains(b, needle)
}
