package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/batchtypes"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/fs"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/tracing"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/store"
)

// Object metadata keys set on every upload
const (
	MetaContentDigest = "content-digest"
	MetaLogicalSize   = "logical-size"
	MetaBatchID       = "batch-id"
)

// Stats is a snapshot of worker usage.
type Stats struct {
	// Workers is the configured worker count
	Workers int

	// InFlight is the number of transfers currently running
	InFlight int

	// Available is Workers minus InFlight
	Available int
}

// Dispatcher uploads artifacts through a store.Store.
// A Dispatcher runs one batch at a time.
type Dispatcher struct {
	store            store.Store
	fsys             fs.Filesystem
	workers          int
	unreachableAfter int
	reclaim          bool
	logger           *slog.Logger
	tracer           trace.Tracer
	metadata         map[string]string

	inFlight atomic.Int64
}

// batch is the state of one Run.
type batch struct {
	threshold   int
	logger      *slog.Logger
	consecutive atomic.Int64
	tripOnce    sync.Once
	unreachable chan struct{}
	cause       error
}

// New creates a Dispatcher reading artifacts from fsys.
func New(s store.Store, fsys fs.Filesystem, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		store:            s,
		fsys:             fsys,
		workers:          DefaultWorkers,
		unreachableAfter: DefaultUnreachableAfter,
		tracer:           tracing.Noop(),
		metadata:         make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.workers < 1 || d.workers > MaxWorkers {
		return nil, errors.Wrap("newDispatcher", errors.ErrInvalidConfig,
			fmt.Errorf("workers must be between 1 and %d, got %d", MaxWorkers, d.workers))
	}
	if d.unreachableAfter < 0 {
		return nil, errors.Wrap("newDispatcher", errors.ErrInvalidConfig,
			fmt.Errorf("unreachable threshold must not be negative, got %d", d.unreachableAfter))
	}
	if err := validation.ValidateMetadata(d.metadata); err != nil {
		return nil, errors.Wrap("newDispatcher", errors.ErrInvalidConfig, err)
	}
	return d, nil
}

// Stats reports worker usage. It is safe to call during Run.
func (d *Dispatcher) Stats() Stats {
	inFlight := int(d.inFlight.Load())
	return Stats{
		Workers:   d.workers,
		InFlight:  inFlight,
		Available: d.workers - inFlight,
	}
}

// Run uploads every artifact to bucket under keyPrefix+name and sends one
// result per artifact to results, which it closes before returning.
//
// Individual transfer failures are reported through results only. Run
// returns an error wrapping errors.ErrStoreUnreachable when the store
// stopped answering, or errors.ErrCanceled when ctx ended during the run.
func (d *Dispatcher) Run(
	ctx context.Context,
	bucket, keyPrefix string,
	artifacts []batchtypes.Artifact,
	results chan<- batchtypes.UploadResult,
) error {
	defer close(results)

	b := &batch{
		threshold:   d.unreachableAfter,
		logger:      d.logger,
		unreachable: make(chan struct{}),
	}

	queue := make(chan batchtypes.Artifact)
	var g errgroup.Group

	g.Go(func() error {
		defer close(queue)
		for i, a := range artifacts {
			if reason := b.stopReason(ctx); reason != nil {
				d.abandon(artifacts[i:], keyPrefix, reason, results)
				return nil
			}
			select {
			case queue <- a:
			case <-ctx.Done():
				d.abandon(artifacts[i:], keyPrefix, b.stopReason(ctx), results)
				return nil
			case <-b.unreachable:
				d.abandon(artifacts[i:], keyPrefix, b.stopReason(ctx), results)
				return nil
			}
		}
		return nil
	})

	for range d.workers {
		g.Go(func() error {
			for a := range queue {
				key := keyPrefix + a.Name
				if reason := b.stopReason(ctx); reason != nil {
					results <- failed(a, key, reason)
					continue
				}
				results <- d.transfer(context.WithoutCancel(ctx), b, bucket, key, a)
			}
			return nil
		})
	}

	_ = g.Wait()

	select {
	case <-b.unreachable:
		return errors.Wrap("upload", errors.ErrStoreUnreachable, b.cause).WithBucket(bucket)
	default:
	}
	if ctx.Err() != nil {
		return errors.Wrap("upload", errors.ErrCanceled, context.Cause(ctx)).WithBucket(bucket)
	}
	return nil
}

// stopReason returns why no further transfers may start, or nil.
func (b *batch) stopReason(ctx context.Context) error {
	select {
	case <-b.unreachable:
		return errors.Wrap("upload", errors.ErrStoreUnreachable, nil)
	default:
	}
	if ctx.Err() != nil {
		return errors.Wrap("upload", errors.ErrCanceled, context.Cause(ctx))
	}
	return nil
}

// abandon reports artifacts that will never be started.
func (d *Dispatcher) abandon(
	artifacts []batchtypes.Artifact,
	keyPrefix string,
	reason error,
	results chan<- batchtypes.UploadResult,
) {
	if d.logger != nil && len(artifacts) > 0 {
		d.logger.Warn("abandoning queued artifacts", "count", len(artifacts), "reason", reason)
	}
	for _, a := range artifacts {
		results <- failed(a, keyPrefix+a.Name, reason)
	}
}

func failed(a batchtypes.Artifact, key string, err error) batchtypes.UploadResult {
	return batchtypes.UploadResult{
		Name:    a.Name,
		Key:     key,
		Outcome: batchtypes.OutcomeFailure,
		Size:    a.Size,
		Err:     err,
	}
}

// transfer uploads one artifact. It never returns an error; failures are
// carried in the result.
func (d *Dispatcher) transfer(ctx context.Context, b *batch, bucket, key string, a batchtypes.Artifact) batchtypes.UploadResult {
	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	ctx, span := d.tracer.Start(ctx, tracing.SpanTransfer, trace.WithAttributes(
		attribute.String(tracing.AttrArtifact, a.Name),
		attribute.String(tracing.AttrObjectKey, key),
		attribute.Int64(tracing.AttrSize, a.Size),
	))
	defer span.End()

	start := time.Now()
	etag, err := d.put(ctx, bucket, key, a)
	res := batchtypes.UploadResult{
		Name:     a.Name,
		Key:      key,
		Outcome:  batchtypes.OutcomeSuccess,
		Size:     a.Size,
		ETag:     etag,
		Duration: time.Since(start),
	}

	if err != nil {
		res.Outcome = batchtypes.OutcomeFailure
		res.Err = errors.Wrap("upload", errors.ErrTransfer, err).WithBucket(bucket).WithKey(key)
		span.SetAttributes(attribute.String(tracing.AttrErrorCode, string(errors.CodeOf(err))))
		tracing.Fail(span, err)
		b.observeFailure(err)
		if d.logger != nil {
			d.logger.Warn("transfer failed", "key", key, "error", err)
		}
	} else {
		b.consecutive.Store(0)
		if d.logger != nil {
			d.logger.Debug("transfer complete", "key", key, "size", a.Size, "duration", res.Duration)
		}
		if d.reclaim {
			d.reclaimFile(a.Path)
		}
	}
	span.SetAttributes(attribute.String(tracing.AttrOutcome, string(res.Outcome)))
	return res
}

func (d *Dispatcher) put(ctx context.Context, bucket, key string, a batchtypes.Artifact) (string, error) {
	if err := validation.ValidateObjectKey(key); err != nil {
		return "", err
	}

	f, err := d.fsys.Open(a.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", a.Path, err)
	}
	defer f.Close()

	out, err := d.store.Put(ctx, &store.PutInput{
		Bucket:      bucket,
		Key:         key,
		Body:        f,
		Size:        a.Size,
		ContentType: a.ContentType,
		Metadata:    d.objectMetadata(a),
	})
	if err != nil {
		return "", err
	}
	return out.ETag, nil
}

func (d *Dispatcher) objectMetadata(a batchtypes.Artifact) map[string]string {
	md := make(map[string]string, len(d.metadata)+2)
	for k, v := range d.metadata {
		md[k] = v
	}
	if a.Digest != "" {
		md[MetaContentDigest] = a.Digest.String()
	}
	md[MetaLogicalSize] = strconv.FormatInt(a.LogicalSize, 10)
	return md
}

// observeFailure trips the unreachable signal after enough consecutive
// connection failures. Any other failure resets the streak.
func (b *batch) observeFailure(err error) {
	if !errors.IsConnection(err) {
		b.consecutive.Store(0)
		return
	}
	n := b.consecutive.Add(1)
	if b.threshold == 0 || n < int64(b.threshold) {
		return
	}
	b.tripOnce.Do(func() {
		b.cause = err
		close(b.unreachable)
		if b.logger != nil {
			b.logger.Error("object store unreachable", "consecutive_failures", n, "error", err)
		}
	})
}

func (d *Dispatcher) reclaimFile(path string) {
	if err := d.fsys.Remove(path); err != nil && d.logger != nil {
		d.logger.Warn("failed to reclaim local file", "path", path, "error", err)
	}
}
