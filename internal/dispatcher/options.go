package dispatcher

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultWorkers is the worker count when none is configured
	DefaultWorkers = 8

	// MaxWorkers bounds the worker count
	MaxWorkers = 256

	// DefaultUnreachableAfter is the consecutive connection failures that
	// mark the store as unreachable
	DefaultUnreachableAfter = 16
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the number of concurrent transfers.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		d.workers = n
	}
}

// WithUnreachableAfter sets how many consecutive connection failures stop
// the run. Zero disables the check.
func WithUnreachableAfter(n int) Option {
	return func(d *Dispatcher) {
		d.unreachableAfter = n
	}
}

// WithReclaimUploaded removes each local file once its upload succeeds.
func WithReclaimUploaded(reclaim bool) Option {
	return func(d *Dispatcher) {
		d.reclaim = reclaim
	}
}

// WithLogger configures the dispatcher with a custom logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithTracer records a span per transfer.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// WithMetadata adds user metadata to every uploaded object.
func WithMetadata(metadata map[string]string) Option {
	return func(d *Dispatcher) {
		for k, v := range metadata {
			d.metadata[k] = v
		}
	}
}
