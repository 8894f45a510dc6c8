package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// HandlerEcho answers data-plane requests with their "body" field.
const HandlerEcho = "echo"

// ManifestLoader is the built-in Loader. It reads the model manifest and sizes
// the serialized artifact against a memory budget; it does not deserialize
// model weights.
type ManifestLoader struct {
	// BudgetMB caps the artifact size in MB. 0 means unlimited.
	BudgetMB int
}

func (l ManifestLoader) Load(ctx context.Context, p LoadParams, init bool) (Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fi, err := os.Stat(p.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("model dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("model dir %s is not a directory", p.ModelDir)
	}
	mf, err := ReadManifest(p.ModelDir)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	sizeMB := artifactSizeMB(p.ModelDir, mf)
	if l.BudgetMB > 0 && sizeMB > l.BudgetMB {
		return nil, fmt.Errorf("model %s needs %d MB, budget %d MB: %w", p.ModelName, sizeMB, l.BudgetMB, ErrOutOfMemory)
	}
	svc := &builtinService{manifest: mf, params: p}
	if init {
		svc.metrics = NewMetricsStore()
		svc.metrics.Set("ModelSizeMB", float64(sizeMB))
		svc.metrics.Set("LoadTimeMs", float64(time.Since(start).Milliseconds()))
	}
	return svc, nil
}

// artifactSizeMB estimates memory need from the serialized file size, with a
// floor of 1 MB so unknown sizes never bypass the budget.
func artifactSizeMB(dir string, mf Manifest) int {
	if mf.Model.SerializedFile == "" {
		return 1
	}
	fi, err := os.Stat(filepath.Join(dir, mf.Model.SerializedFile))
	if err != nil {
		return 1
	}
	mb := int(fi.Size() / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}

type builtinService struct {
	manifest Manifest
	params   LoadParams
	metrics  *MetricsStore
}

func (s *builtinService) Manifest() Manifest     { return s.manifest }
func (s *builtinService) Params() LoadParams     { return s.params }
func (s *builtinService) Metrics() *MetricsStore { return s.metrics }

func (s *builtinService) handler() string {
	if s.params.Handler != nil && *s.params.Handler != "" {
		return *s.params.Handler
	}
	return s.manifest.Model.Handler
}

func (s *builtinService) Handle(_ context.Context, fields map[string][]byte) (int32, string) {
	switch h := s.handler(); h {
	case HandlerEcho:
		if s.metrics != nil {
			s.metrics.Add("Requests", 1)
		}
		return 200, string(fields["body"])
	case "":
		return 501, "model " + s.params.ModelName + " has no handler"
	default:
		return 501, "unknown handler " + h
	}
}
