package manager

import (
	"os"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	WorkerBin      string `json:"worker_bin,omitempty"`
	WorkerBinFound bool   `json:"worker_bin_found"`
	Workers        int    `json:"workers"`
	Error          string `json:"error,omitempty"`
}

// SanityCheck validates that the worker binary is available.
// It does not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{WorkerBin: m.workerBin, Workers: m.store.len()}
	if m.workerBin == "" {
		r.Error = "worker binary not configured"
		return r
	}
	fi, err := os.Stat(m.workerBin)
	switch {
	case err != nil:
		r.Error = err.Error()
	case fi.IsDir():
		r.Error = "worker path is a directory"
	case fi.Mode()&0o111 == 0:
		r.Error = "worker binary is not executable"
	default:
		r.WorkerBinFound = true
	}
	return r
}
