// Package service holds the collaborator interfaces the manager drives: model
// loading, the loaded service itself, and metrics emission. The built-in
// implementations are deliberately small; real model runtimes plug in behind
// Loader.
package service

import (
	"context"
	"errors"
)

// ErrOutOfMemory is returned by a Loader when the model does not fit.
var ErrOutOfMemory = errors.New("out of memory")

// LoadParams are the construction parameters of a service. They are what a
// scripted model hands to a freshly spawned worker.
type LoadParams struct {
	ModelName string  `msgpack:"model_name"`
	ModelDir  string  `msgpack:"model_dir"`
	Handler   *string `msgpack:"handler,omitempty"`
	GPU       *int    `msgpack:"gpu,omitempty"`
	BatchSize *int    `msgpack:"batch_size,omitempty"`
}

// Loader turns a model directory into a Service. With init=false the returned
// service only exposes its manifest; init=true materializes it.
type Loader interface {
	Load(ctx context.Context, p LoadParams, init bool) (Service, error)
}

// Service is a loaded model.
type Service interface {
	Manifest() Manifest
	Params() LoadParams
	// Metrics is nil until the service is materialized.
	Metrics() *MetricsStore
	// Handle serves one data-plane request and returns a status code and body.
	Handle(ctx context.Context, fields map[string][]byte) (int32, string)
}

// Emitter forwards a service's metrics to the metrics backend.
type Emitter interface {
	Emit(model string, store *MetricsStore)
}

// NoopEmitter drops metrics.
type NoopEmitter struct{}

func (NoopEmitter) Emit(string, *MetricsStore) {}
