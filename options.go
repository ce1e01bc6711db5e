package s3batch

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/batchtypes"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/obfuscate"
)

// Obfuscator is the reversible payload transform of a run.
type Obfuscator interface {
	// Apply seals a serialized document
	Apply(plaintext []byte) ([]byte, error)

	// Key returns the key in a form suitable for escrow
	Key() string
}

// NewObfuscator returns an Obfuscator with a fresh random key.
func NewObfuscator() (Obfuscator, error) {
	o, err := obfuscate.Generate()
	if err != nil {
		return nil, err
	}
	return o, nil
}

// KeyEscrow stores the obfuscation key of a run where it can be recovered.
// aws/secrets.Escrow implements it.
type KeyEscrow interface {
	Store(ctx context.Context, name, value string) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger configures the runner with a custom logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithTracer records spans for the run, each phase and each transfer.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithObfuscator seals every payload before it is written. Without escrow
// the key is written to the log once generation starts.
func WithObfuscator(o Obfuscator) Option {
	return func(r *Runner) {
		r.obfuscator = o
	}
}

// WithKeyEscrow stores the obfuscation key under name before any payload
// is generated. It has no effect without WithObfuscator.
func WithKeyEscrow(escrow KeyEscrow, name string) Option {
	return func(r *Runner) {
		r.escrow = escrow
		r.secretName = name
	}
}

// WithProgress receives progress of the materializing and uploading phases.
func WithProgress(fn batchtypes.ProgressFunc) Option {
	return func(r *Runner) {
		r.progress = fn
	}
}
