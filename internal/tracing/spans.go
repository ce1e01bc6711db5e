package tracing

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names
const (
	SpanRun         = "batch.run"
	SpanPrefixPhase = "batch.phase."
	SpanTransfer    = "batch.transfer"
)

// Span attribute keys
const (
	AttrRunID      = "batch.run_id"
	AttrBucket     = "batch.bucket"
	AttrCount      = "batch.count"
	AttrWorkers    = "batch.workers"
	AttrArtifact   = "artifact.name"
	AttrObjectKey  = "artifact.key"
	AttrSize       = "artifact.size"
	AttrOutcome    = "artifact.outcome"
	AttrErrorCode  = "error.code"
	AttrUploaded   = "batch.uploaded"
	AttrFailed     = "batch.failed"
	AttrObfuscated = "batch.obfuscated"
)

// Fail records err on span and marks it as errored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
