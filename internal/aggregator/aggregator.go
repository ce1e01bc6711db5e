// Package aggregator is the single consumer of upload results. It owns the
// running totals of a batch, reports progress at a fixed cadence and
// derives the final summary.
package aggregator

import (
	"log/slog"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/batchtypes"
)

// DefaultEvery is the progress cadence when none is configured.
const DefaultEvery = 100

// Totals are the running counts of the upload phase.
type Totals struct {
	Completed int
	Succeeded int
	Failed    int

	// Bytes is the sum of sizes of successful uploads
	Bytes int64

	Failures []batchtypes.Failure
}

// Timings are the phase durations of a run.
type Timings struct {
	Generation time.Duration
	Upload     time.Duration
	Total      time.Duration
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithProgress receives every progress snapshot.
func WithProgress(fn batchtypes.ProgressFunc) Option {
	return func(a *Aggregator) {
		a.progress = fn
	}
}

// WithLogger configures the aggregator with a custom logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// Aggregator counts results for a batch of known size.
type Aggregator struct {
	total    int
	every    int
	progress batchtypes.ProgressFunc
	logger   *slog.Logger
}

// New creates an Aggregator for total items that reports every Nth item.
// every <= 0 reports only once, at the end.
func New(total, every int, opts ...Option) *Aggregator {
	a := &Aggregator{total: total, every: every}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Consume drains results until the channel is closed and returns the
// final totals. It must be the only reader of results.
func (a *Aggregator) Consume(results <-chan batchtypes.UploadResult) Totals {
	var t Totals
	emitted := 0
	for r := range results {
		t.Completed++
		if r.Succeeded() {
			t.Succeeded++
			t.Bytes += r.Size
		} else {
			t.Failed++
			msg := "unknown error"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			t.Failures = append(t.Failures, batchtypes.Failure{Name: r.Name, Key: r.Key, Error: msg})
		}

		if a.due(t.Completed) {
			a.emit(a.snapshot(batchtypes.PhaseUploading, t))
			emitted = t.Completed
		}
	}
	if emitted != t.Completed || t.Completed == 0 {
		a.emit(a.snapshot(batchtypes.PhaseUploading, t))
	}
	return t
}

// Tick reports progress of a sequential phase after completed items
// totalling bytes. It emits on the same cadence as Consume.
func (a *Aggregator) Tick(phase batchtypes.Phase, completed int, bytes int64) {
	if !a.due(completed) {
		return
	}
	a.emit(batchtypes.Progress{
		Phase:     phase,
		Completed: completed,
		Total:     a.total,
		Succeeded: completed,
		Bytes:     bytes,
	})
}

// Summarize derives the summary fields owned by the upload phase.
// Throughput covers the upload phase only; generation time is excluded.
func (a *Aggregator) Summarize(t Totals, timings Timings) batchtypes.BatchSummary {
	s := batchtypes.BatchSummary{
		Requested:      a.total,
		Uploaded:       t.Succeeded,
		Failed:         t.Failed,
		BytesUploaded:  t.Bytes,
		GenerationTime: timings.Generation,
		UploadTime:     timings.Upload,
		TotalTime:      timings.Total,
		Failures:       t.Failures,
	}
	if secs := timings.Upload.Seconds(); secs > 0 {
		s.Throughput = float64(t.Completed) / secs
		s.ByteThroughput = float64(t.Bytes) / secs
	}
	return s
}

func (a *Aggregator) due(completed int) bool {
	if completed <= 0 {
		return false
	}
	if completed == a.total {
		return true
	}
	return a.every > 0 && completed%a.every == 0
}

func (a *Aggregator) snapshot(phase batchtypes.Phase, t Totals) batchtypes.Progress {
	return batchtypes.Progress{
		Phase:     phase,
		Completed: t.Completed,
		Total:     a.total,
		Succeeded: t.Succeeded,
		Failed:    t.Failed,
		Bytes:     t.Bytes,
	}
}

func (a *Aggregator) emit(p batchtypes.Progress) {
	if a.progress != nil {
		a.progress(p)
	}
	if a.logger != nil {
		percent := 0.0
		if p.Total > 0 {
			percent = float64(p.Completed) / float64(p.Total) * 100
		}
		a.logger.Info("progress",
			"phase", p.Phase,
			"completed", p.Completed,
			"total", p.Total,
			"percent", percent,
			"succeeded", p.Succeeded,
			"failed", p.Failed,
			"mb", float64(p.Bytes)/(1024*1024))
	}
}
