package s3batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/batchtypes"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/fs"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/aggregator"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/dispatcher"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/generator"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/materializer"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/tracing"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/store"
)

// Config describes one batch.
type Config struct {
	// Count is the number of documents to generate
	Count int

	// TotalSize is the aggregate target size in bytes
	TotalSize int64

	// Bucket receives the uploads. It is created if missing.
	Bucket string

	// KeyPrefix is prepended to every artifact name to form its object key
	KeyPrefix string

	// Workers is the number of concurrent transfers
	Workers int

	// ProgressEvery is the progress cadence in items; zero reports only at the end
	ProgressEvery int

	// Pretty writes indented JSON
	Pretty bool

	// ReclaimUploaded removes each local file after a successful upload
	ReclaimUploaded bool

	// UnreachableAfter is the consecutive connection failures that stop the run
	UnreachableAfter int

	// MaxFields caps the data fields per document; zero derives it from size
	MaxFields int

	// SchemaVersion is written into document metadata
	SchemaVersion string

	// Seed makes generation reproducible; zero picks a time-based seed
	Seed uint64

	// RunID identifies the run; a random UUID when empty
	RunID string

	// Workdir holds the materialized files; $XDG_CACHE_HOME/s3batch/<run-id> when empty
	Workdir string
}

// Runner executes one batch. A Runner is single-use: after Run returns it
// stays in Done or Failed.
type Runner struct {
	store      store.Store
	fsys       fs.Filesystem
	cfg        Config
	logger     *slog.Logger
	tracer     trace.Tracer
	obfuscator Obfuscator
	escrow     KeyEscrow
	secretName string
	progress   batchtypes.ProgressFunc
	now        func() time.Time

	materializer *materializer.Materializer

	mu    sync.Mutex
	state State
}

// NewRunner creates a Runner uploading to s and writing its working set to
// fsys. Zero Workers and SchemaVersion take their defaults.
func NewRunner(s store.Store, fsys fs.Filesystem, cfg Config, opts ...Option) (*Runner, error) {
	if cfg.Workers == 0 {
		cfg.Workers = dispatcher.DefaultWorkers
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = generator.SchemaVersion
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Workdir == "" {
		cfg.Workdir = filepath.Join(xdg.CacheHome, "s3batch", cfg.RunID)
	}

	if err := validateConfig(s, fsys, cfg); err != nil {
		return nil, err
	}

	r := &Runner{
		store:  s,
		fsys:   fsys,
		cfg:    cfg,
		tracer: tracing.Noop(),
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}

	mopts := []materializer.Option{
		materializer.WithPretty(cfg.Pretty),
		materializer.WithLogger(r.logger),
	}
	if r.obfuscator != nil {
		mopts = append(mopts, materializer.WithObfuscator(r.obfuscator))
	}
	r.materializer = materializer.New(fsys, cfg.Workdir, mopts...)
	return r, nil
}

func validateConfig(s store.Store, fsys fs.Filesystem, cfg Config) error {
	var msg string
	switch {
	case s == nil:
		msg = "store is required"
	case fsys == nil:
		msg = "filesystem is required"
	case cfg.Count <= 0:
		msg = fmt.Sprintf("count must be positive, got %d", cfg.Count)
	case cfg.TotalSize < 0:
		msg = fmt.Sprintf("total size must not be negative, got %d", cfg.TotalSize)
	case cfg.Bucket == "":
		msg = "bucket is required"
	case cfg.Workers < 1 || cfg.Workers > dispatcher.MaxWorkers:
		msg = fmt.Sprintf("workers must be between 1 and %d, got %d", dispatcher.MaxWorkers, cfg.Workers)
	case cfg.UnreachableAfter < 0:
		msg = fmt.Sprintf("unreachable threshold must not be negative, got %d", cfg.UnreachableAfter)
	default:
		return nil
	}
	return errors.Wrap("newRunner", errors.ErrInvalidConfig, fmt.Errorf("%s", msg))
}

// RunID returns the identifier of the run.
func (r *Runner) RunID() string {
	return r.cfg.RunID
}

// Workdir returns the directory holding the materialized files.
func (r *Runner) Workdir() string {
	return r.cfg.Workdir
}

// State returns the current state. It is safe to call during Run.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) transition(next State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.CanTransition(next) {
		return errors.New(errors.CodeInternal,
			fmt.Sprintf("invalid state transition from %s to %s", r.state, next))
	}
	r.state = next
	if r.logger != nil {
		r.logger.Debug("state changed", "state", next)
	}
	return nil
}

// Run executes the batch. Fatal failures return a nil summary. A run
// canceled while uploading still returns its summary, together with an
// error wrapping errors.ErrCanceled.
func (r *Runner) Run(ctx context.Context) (*batchtypes.BatchSummary, error) {
	if state := r.State(); state != StateIdle {
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf("runner already used, state is %s", state))
	}

	ctx, span := r.tracer.Start(ctx, tracing.SpanRun, trace.WithAttributes(
		attribute.String(tracing.AttrRunID, r.cfg.RunID),
		attribute.String(tracing.AttrBucket, r.cfg.Bucket),
		attribute.Int(tracing.AttrCount, r.cfg.Count),
		attribute.Int(tracing.AttrWorkers, r.cfg.Workers),
		attribute.Bool(tracing.AttrObfuscated, r.obfuscator != nil),
	))
	defer span.End()

	start := r.now()
	if r.logger != nil {
		r.logger.Info("starting batch",
			"run_id", r.cfg.RunID,
			"bucket", r.cfg.Bucket,
			"count", r.cfg.Count,
			"total_size", r.cfg.TotalSize,
			"workers", r.cfg.Workers,
			"workdir", r.cfg.Workdir)
	}

	if err := r.preflight(ctx); err != nil {
		return r.fail(span, err)
	}

	// Generating
	if err := r.transition(StateGenerating); err != nil {
		return r.fail(span, err)
	}
	genStart := r.now()
	gen, specs, err := r.plan(ctx)
	if err != nil {
		return r.fail(span, err)
	}

	// Materializing
	if err := r.transition(StateMaterializing); err != nil {
		return r.fail(span, err)
	}
	artifacts, bytesGenerated, err := r.materialize(ctx, gen, specs)
	if err != nil {
		return r.fail(span, err)
	}
	genTime := r.now().Sub(genStart)

	// Uploading
	if err := r.transition(StateUploading); err != nil {
		return r.fail(span, err)
	}
	uploadStart := r.now()
	agg := aggregator.New(len(artifacts), r.cfg.ProgressEvery,
		aggregator.WithProgress(r.progress),
		aggregator.WithLogger(r.logger))
	totals, uploadErr := r.upload(ctx, agg, artifacts)
	uploadTime := r.now().Sub(uploadStart)
	if uploadErr != nil && errors.IsFatal(uploadErr) {
		return r.fail(span, uploadErr)
	}

	// Summarizing
	if err := r.transition(StateSummarizing); err != nil {
		return r.fail(span, err)
	}
	summary := agg.Summarize(totals, aggregator.Timings{
		Generation: genTime,
		Upload:     uploadTime,
		Total:      r.now().Sub(start),
	})
	summary.RunID = r.cfg.RunID
	summary.Bucket = r.cfg.Bucket
	summary.Requested = r.cfg.Count
	summary.Generated = len(artifacts)
	summary.BytesGenerated = bytesGenerated
	summary.Obfuscated = r.obfuscator != nil
	summary.State = StateDone.Phase()

	if err := r.transition(StateDone); err != nil {
		return r.fail(span, err)
	}

	span.SetAttributes(
		attribute.Int(tracing.AttrUploaded, summary.Uploaded),
		attribute.Int(tracing.AttrFailed, summary.Failed),
	)
	r.logSummary(&summary)

	if uploadErr != nil {
		tracing.Fail(span, uploadErr)
		return &summary, uploadErr
	}
	return &summary, nil
}

// preflight validates credentials, ensures the bucket and escrows the key.
func (r *Runner) preflight(ctx context.Context) error {
	if err := r.store.ValidateIdentity(ctx); err != nil {
		return errors.Wrap("validateIdentity", errors.ErrAuthentication, err)
	}
	if r.logger != nil {
		r.logger.Info("credentials validated")
	}

	if err := r.store.EnsureBucket(ctx, r.cfg.Bucket); err != nil {
		return errors.Wrap("ensureBucket", errors.ErrContainerCreation, err).WithBucket(r.cfg.Bucket)
	}

	if r.obfuscator == nil {
		return nil
	}
	if r.escrow == nil {
		if r.logger != nil {
			r.logger.Warn("obfuscation key not escrowed, record it to restore payloads",
				"key", r.obfuscator.Key())
		}
		return nil
	}
	if err := r.escrow.Store(ctx, r.secretName, r.obfuscator.Key()); err != nil {
		return errors.Wrap("escrowKey", errors.ErrKeyEscrow, err)
	}
	if r.logger != nil {
		r.logger.Info("obfuscation key escrowed", "secret_name", r.secretName)
	}
	return nil
}

func (r *Runner) plan(ctx context.Context) (*generator.Generator, []generator.Spec, error) {
	_, span := r.tracer.Start(ctx, tracing.SpanPrefixPhase+string(StateGenerating))
	defer span.End()

	gen, err := generator.New(
		generator.WithSeed(r.cfg.Seed),
		generator.WithSchemaVersion(r.cfg.SchemaVersion),
		generator.WithBatchID(r.cfg.RunID),
		generator.WithMaxFields(r.cfg.MaxFields),
		generator.WithClock(r.now),
	)
	if err != nil {
		return nil, nil, errors.Wrap("plan", errors.ErrInvalidConfig, err)
	}

	specs, err := gen.Plan(r.cfg.Count, r.cfg.TotalSize)
	if err != nil {
		return nil, nil, errors.Wrap("plan", errors.ErrInvalidConfig, err)
	}
	if r.logger != nil {
		r.logger.Info("batch planned", "count", len(specs), "seed", gen.Seed())
	}
	return gen, specs, nil
}

// materialize builds and writes every document in order. The first
// failure aborts the batch.
func (r *Runner) materialize(
	ctx context.Context,
	gen *generator.Generator,
	specs []generator.Spec,
) ([]batchtypes.Artifact, int64, error) {
	_, span := r.tracer.Start(ctx, tracing.SpanPrefixPhase+string(StateMaterializing))
	defer span.End()

	if err := r.materializer.Prepare(); err != nil {
		return nil, 0, err
	}

	ticker := aggregator.New(len(specs), r.cfg.ProgressEvery,
		aggregator.WithProgress(r.progress),
		aggregator.WithLogger(r.logger))

	artifacts := make([]batchtypes.Artifact, 0, len(specs))
	var total int64
	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, 0, errors.Wrap("materialize", errors.ErrCanceled, context.Cause(ctx))
		}
		doc, err := gen.Build(spec)
		if err != nil {
			return nil, 0, errors.Wrap("materialize", errors.ErrLocalIO, err).WithKey(spec.Name)
		}
		art, err := r.materializer.Materialize(spec, doc)
		if err != nil {
			return nil, 0, err
		}
		artifacts = append(artifacts, art)
		total += art.Size
		ticker.Tick(batchtypes.PhaseMaterializing, i+1, total)
	}

	if r.logger != nil {
		r.logger.Info("documents generated",
			"count", len(artifacts),
			"mb", float64(total)/(1024*1024),
			"obfuscated", r.materializer.Obfuscated())
	}
	return artifacts, total, nil
}

// upload runs the dispatcher and the aggregator concurrently and joins both.
func (r *Runner) upload(
	ctx context.Context,
	agg *aggregator.Aggregator,
	artifacts []batchtypes.Artifact,
) (aggregator.Totals, error) {
	ctx, span := r.tracer.Start(ctx, tracing.SpanPrefixPhase+string(StateUploading))
	defer span.End()

	d, err := dispatcher.New(r.store, r.fsys,
		dispatcher.WithWorkers(r.cfg.Workers),
		dispatcher.WithUnreachableAfter(r.cfg.UnreachableAfter),
		dispatcher.WithReclaimUploaded(r.cfg.ReclaimUploaded),
		dispatcher.WithLogger(r.logger),
		dispatcher.WithTracer(r.tracer),
		dispatcher.WithMetadata(map[string]string{dispatcher.MetaBatchID: r.cfg.RunID}),
	)
	if err != nil {
		return aggregator.Totals{}, err
	}

	results := make(chan batchtypes.UploadResult)
	done := make(chan aggregator.Totals, 1)
	go func() {
		done <- agg.Consume(results)
	}()

	runErr := d.Run(ctx, r.cfg.Bucket, r.cfg.KeyPrefix, artifacts, results)
	totals := <-done
	tracing.Fail(span, runErr)
	return totals, runErr
}

func (r *Runner) fail(span trace.Span, err error) (*batchtypes.BatchSummary, error) {
	r.mu.Lock()
	r.state = StateFailed
	r.mu.Unlock()

	tracing.Fail(span, err)
	if r.logger != nil {
		r.logger.Error("batch failed", "code", errors.CodeOf(err), "error", err)
	}
	return nil, err
}

func (r *Runner) logSummary(s *batchtypes.BatchSummary) {
	if r.logger == nil {
		return
	}
	r.logger.Info("batch complete",
		"bucket", s.Bucket,
		"generated", s.Generated,
		"uploaded", s.Uploaded,
		"failed", s.Failed,
		"obfuscated", s.Obfuscated,
		"total_time", s.TotalTime,
		"upload_time", s.UploadTime,
		"files_per_second", s.Throughput)
	for _, f := range s.Failures {
		r.logger.Warn("upload failed", "name", f.Name, "key", f.Key, "error", f.Error)
	}
}

// Cleanup removes the working directory. Errors wrap errors.ErrCleanup and
// are not fatal: the batch is already complete.
func (r *Runner) Cleanup() error {
	return r.materializer.Cleanup()
}
