// Package batchtypes provides shared type definitions for batch runs.
package batchtypes

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Outcome is the result of a single artifact transfer.
type Outcome string

// Transfer outcomes
const (
	// OutcomeSuccess means the object store accepted the artifact
	OutcomeSuccess Outcome = "success"

	// OutcomeFailure means the transfer failed or was never attempted
	OutcomeFailure Outcome = "failure"
)

// Phase names a stage of a batch run.
type Phase string

// Batch phases, in run order
const (
	PhaseIdle          Phase = "idle"
	PhaseGenerating    Phase = "generating"
	PhaseMaterializing Phase = "materializing"
	PhaseUploading     Phase = "uploading"
	PhaseSummarizing   Phase = "summarizing"
	PhaseDone          Phase = "done"
	PhaseFailed        Phase = "failed"
)

// Artifact is one generated document materialized in the working directory.
// It is immutable once returned by the materializer.
type Artifact struct {
	// Name is the artifact identity, also used as the object key suffix
	Name string

	// Path is the local file holding the materialized bytes
	Path string

	// Size is the realized size on disk, after any transform
	Size int64

	// LogicalSize is the serialized document size before any transform
	LogicalSize int64

	// Digest is the sha256 digest of the materialized bytes
	Digest digest.Digest

	// ContentType is the MIME type sent with the object
	ContentType string

	// GeneratedAt is when the document was generated
	GeneratedAt time.Time
}

// UploadResult is the outcome of transferring one Artifact.
// Exactly one is produced per artifact handed to the dispatcher.
type UploadResult struct {
	// Name is the artifact identity
	Name string

	// Key is the object key the artifact was (or would have been) stored under
	Key string

	// Outcome is success or failure
	Outcome Outcome

	// Size is copied from the Artifact, never re-measured
	Size int64

	// ETag is the entity tag returned by the store on success
	ETag string

	// Duration is the wall time spent on the transfer
	Duration time.Duration

	// Err holds the failure cause; nil on success
	Err error
}

// Succeeded reports whether the transfer succeeded.
func (r UploadResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Failure records one failed artifact in a summary.
type Failure struct {
	Name  string `json:"name"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

// BatchSummary is the final report for one run.
type BatchSummary struct {
	RunID          string        `json:"run_id"`
	Bucket         string        `json:"bucket"`
	Requested      int           `json:"requested"`
	Generated      int           `json:"generated"`
	Uploaded       int           `json:"uploaded"`
	Failed         int           `json:"failed"`
	BytesGenerated int64         `json:"bytes_generated"`
	BytesUploaded  int64         `json:"bytes_uploaded"`
	Obfuscated     bool          `json:"obfuscated"`
	GenerationTime time.Duration `json:"generation_time"`
	UploadTime     time.Duration `json:"upload_time"`
	TotalTime      time.Duration `json:"total_time"`

	// Throughput is completed transfers per second, uploaded and failed alike,
	// over the upload phase only
	Throughput float64 `json:"throughput"`

	// ByteThroughput is uploaded bytes per second over the upload phase only
	ByteThroughput float64   `json:"byte_throughput"`
	Failures       []Failure `json:"failures,omitempty"`
	State          Phase     `json:"state"`
}

// Incomplete reports whether fewer artifacts were uploaded than requested.
func (s *BatchSummary) Incomplete() bool {
	return s.Uploaded < s.Requested
}

// Progress is a periodic snapshot of a running phase.
type Progress struct {
	Phase     Phase
	Completed int
	Total     int
	Succeeded int
	Failed    int
	Bytes     int64
}

// ProgressFunc receives progress snapshots. It is called from a single
// goroutine and must not block for long.
type ProgressFunc func(Progress)
