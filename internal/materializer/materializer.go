// Package materializer writes generated documents into the run's working
// directory and describes each written file as an Artifact.
package materializer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/opencontainers/go-digest"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/batchtypes"
	batcherrors "github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/fs"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/generator"
)

// ObfuscatedContentType is sent for payloads passed through the obfuscator.
const ObfuscatedContentType = "application/octet-stream"

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// Sealer transforms a payload before it is written.
// obfuscate.Obfuscator implements it.
type Sealer interface {
	Apply(plaintext []byte) ([]byte, error)
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithPretty writes two-space indented JSON.
func WithPretty(pretty bool) Option {
	return func(m *Materializer) {
		m.pretty = pretty
	}
}

// WithObfuscator seals every payload before it is written.
// A nil sealer writes plain JSON.
func WithObfuscator(o Sealer) Option {
	return func(m *Materializer) {
		m.obfuscator = o
	}
}

// WithLogger configures the materializer with a custom logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Materializer) {
		m.logger = logger
	}
}

// Materializer persists documents under a single working directory.
type Materializer struct {
	fsys       fs.Filesystem
	workdir    string
	pretty     bool
	obfuscator Sealer
	logger     *slog.Logger
}

// New creates a Materializer writing below workdir on fsys.
func New(fsys fs.Filesystem, workdir string, opts ...Option) *Materializer {
	m := &Materializer{
		fsys:    fsys,
		workdir: workdir,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Workdir returns the working directory.
func (m *Materializer) Workdir() string {
	return m.workdir
}

// Obfuscated reports whether payloads are sealed before writing.
func (m *Materializer) Obfuscated() bool {
	return m.obfuscator != nil
}

// Prepare creates the working directory.
func (m *Materializer) Prepare() error {
	if err := m.fsys.MkdirAll(m.workdir, dirPerm); err != nil {
		return batcherrors.Wrap("prepare", batcherrors.ErrLocalIO, err).WithKey(m.workdir)
	}
	if m.logger != nil {
		m.logger.Debug("working directory ready", "workdir", m.workdir)
	}
	return nil
}

// Materialize encodes doc, applies the obfuscator if any and writes the
// result to <workdir>/<spec.Name> in a single write. The returned Artifact
// carries the size of the bytes actually written.
func (m *Materializer) Materialize(spec generator.Spec, doc *generator.Document) (batchtypes.Artifact, error) {
	payload, err := doc.Marshal(m.pretty)
	if err != nil {
		return batchtypes.Artifact{}, batcherrors.Wrap("materialize", batcherrors.ErrLocalIO, err).WithKey(spec.Name)
	}
	logical := int64(len(payload))

	contentType := ObfuscatedContentType
	if m.obfuscator != nil {
		payload, err = m.obfuscator.Apply(payload)
		if err != nil {
			return batchtypes.Artifact{}, batcherrors.Wrap("materialize", batcherrors.ErrLocalIO, err).WithKey(spec.Name)
		}
	} else {
		contentType = mimetype.Detect(payload).String()
	}

	path := filepath.Join(m.workdir, spec.Name)
	if err := m.fsys.WriteFile(path, payload, filePerm); err != nil {
		return batchtypes.Artifact{}, batcherrors.Wrap("materialize", batcherrors.ErrLocalIO, err).WithKey(spec.Name)
	}

	return batchtypes.Artifact{
		Name:        spec.Name,
		Path:        path,
		Size:        int64(len(payload)),
		LogicalSize: logical,
		Digest:      digest.FromBytes(payload),
		ContentType: contentType,
		GeneratedAt: spec.GeneratedAt,
	}, nil
}

// Cleanup removes the working directory and everything below it. A
// directory that was never prepared is not an error.
func (m *Materializer) Cleanup() error {
	reclaimed, _ := m.Usage() // zero when the directory is missing
	if err := m.fsys.RemoveAll(m.workdir); err != nil {
		return batcherrors.Wrap("cleanup", batcherrors.ErrCleanup, err).WithKey(m.workdir)
	}
	if m.logger != nil {
		m.logger.Info("cleaned up working directory", "workdir", m.workdir, "bytes", reclaimed)
	}
	return nil
}

// Usage returns the bytes currently held in the working directory.
func (m *Materializer) Usage() (int64, error) {
	size, err := fs.DirSize(m.fsys, m.workdir)
	if err != nil {
		return 0, fmt.Errorf("failed to measure %s: %w", m.workdir, err)
	}
	return size, nil
}
