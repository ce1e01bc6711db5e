// Package tracing wires OpenTelemetry for batch runs. A disabled
// configuration yields a no-op tracer so callers never check for nil.
package tracing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName identifies batch runs in traces.
const DefaultServiceName = "s3batch"

// Exporter names accepted in Config.Exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterFile   = "file"
	ExporterOTLP   = "otlp"
)

const defaultOTLPEndpoint = "localhost:4317"

// Config selects where run spans go.
type Config struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`      // one of the Exporter* names
	FilePath     string  `mapstructure:"file_path"`     // JSON lines, appended per run
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"` // gRPC, plaintext
	SampleRate   float64 `mapstructure:"sample_rate"`   // fraction of runs traced
	ServiceName  string  `mapstructure:"service_name"`
}

// DefaultConfig returns tracing disabled with stdout export.
func DefaultConfig() Config {
	return Config{
		Exporter:     ExporterStdout,
		OTLPEndpoint: defaultOTLPEndpoint,
		SampleRate:   1.0,
		ServiceName:  DefaultServiceName,
	}
}

// sink is where a provider sends finished spans. close releases whatever
// the exporter holds open after the provider has flushed.
type sink struct {
	exporter sdktrace.SpanExporter
	sync     bool
	close    func() error
}

type sinkFunc func(ctx context.Context, cfg Config) (sink, error)

var sinks = map[string]sinkFunc{
	ExporterNone:   func(context.Context, Config) (sink, error) { return sink{}, nil },
	ExporterStdout: stdoutSink,
	ExporterFile:   fileSink,
	ExporterOTLP:   otlpSink,
}

// IsExporter reports whether name selects a known exporter. The empty
// name means none.
func IsExporter(name string) bool {
	if name == "" {
		return true
	}
	_, ok := sinks[name]
	return ok
}

// Exporters lists the accepted exporter names in sorted order.
func Exporters() []string {
	names := make([]string, 0, len(sinks))
	for name := range sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stdoutSink(context.Context, Config) (sink, error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return sink{}, fmt.Errorf("create stdout exporter: %w", err)
	}
	return sink{exporter: exp}, nil
}

// fileSink appends one JSON document per span. Spans are exported as they
// end so an interrupted run still leaves its finished phases on disk.
func fileSink(_ context.Context, cfg Config) (sink, error) {
	if cfg.FilePath == "" {
		return sink{}, fmt.Errorf("file_path required for file exporter")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o750); err != nil {
		return sink{}, fmt.Errorf("create trace directory: %w", err)
	}
	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return sink{}, fmt.Errorf("open trace file: %w", err)
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return sink{}, fmt.Errorf("create file exporter: %w", err)
	}
	return sink{exporter: exp, sync: true, close: f.Close}, nil
}

func otlpSink(ctx context.Context, cfg Config) (sink, error) {
	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = defaultOTLPEndpoint
	}
	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return sink{}, fmt.Errorf("create otlp exporter at %s: %w", endpoint, err)
	}
	return sink{exporter: exp}, nil
}

// Provider owns the tracer provider of one run.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	release  func() error
}

// NewProvider builds a provider exporting to cfg.Exporter. attrs are added
// to the trace resource next to service.name, typically the run ID, the
// target bucket and the binary version.
func NewProvider(ctx context.Context, cfg Config, attrs ...attribute.KeyValue) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: Noop()}, nil
	}

	name := cfg.Exporter
	if name == "" {
		name = ExporterNone
	}
	newSink, ok := sinks[name]
	if !ok {
		return nil, fmt.Errorf("unsupported exporter %q, want one of %v", cfg.Exporter, Exporters())
	}
	s, err := newSink(ctx, cfg)
	if err != nil {
		return nil, err
	}

	service := cfg.ServiceName
	if service == "" {
		service = DefaultServiceName
	}
	rate := cfg.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1.0
	}
	res := resource.NewSchemaless(append([]attribute.KeyValue{attribute.String("service.name", service)}, attrs...)...)

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}
	switch {
	case s.exporter == nil:
	case s.sync:
		opts = append(opts, sdktrace.WithSyncer(s.exporter))
	default:
		opts = append(opts, sdktrace.WithBatcher(s.exporter))
	}

	p := &Provider{provider: sdktrace.NewTracerProvider(opts...), release: s.close}
	p.tracer = p.provider.Tracer(service)
	return p, nil
}

// Tracer returns the run tracer. It is never nil.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool {
	return p.provider != nil
}

// Shutdown flushes pending spans and releases the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	err := p.provider.Shutdown(ctx)
	if p.release != nil {
		if cerr := p.release(); err == nil {
			err = cerr
		}
	}
	return err
}

// Noop returns a tracer that records nothing.
func Noop() trace.Tracer {
	return noop.NewTracerProvider().Tracer("noop")
}
