package service

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsStore holds the named gauge values a service reports.
type MetricsStore struct {
	mu     sync.Mutex
	values map[string]float64
}

func NewMetricsStore() *MetricsStore { return &MetricsStore{values: make(map[string]float64)} }

func (s *MetricsStore) Set(name string, v float64) {
	s.mu.Lock()
	s.values[name] = v
	s.mu.Unlock()
}

func (s *MetricsStore) Add(name string, v float64) {
	s.mu.Lock()
	s.values[name] += v
	s.mu.Unlock()
}

// Len reports how many metrics are populated. A nil store is empty.
func (s *MetricsStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Snapshot returns a copy of the values.
func (s *MetricsStore) Snapshot() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Names returns the metric names in sorted order.
func (s *MetricsStore) Names() []string {
	snap := s.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PrometheusEmitter exposes service metrics as gauges labelled by model and
// metric name.
type PrometheusEmitter struct {
	gauge *prometheus.GaugeVec
}

// NewPrometheusEmitter registers the service gauge with reg.
func NewPrometheusEmitter(reg prometheus.Registerer) (*PrometheusEmitter, error) {
	g := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "workermgr",
			Subsystem: "service",
			Name:      "metric",
			Help:      "Latest value of a metric reported by a loaded service",
		},
		[]string{"model", "metric"},
	)
	if err := reg.Register(g); err != nil {
		return nil, err
	}
	return &PrometheusEmitter{gauge: g}, nil
}

func (e *PrometheusEmitter) Emit(model string, store *MetricsStore) {
	if store == nil {
		return
	}
	for name, v := range store.Snapshot() {
		e.gauge.WithLabelValues(model, name).Set(v)
	}
}
