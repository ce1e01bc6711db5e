package s3batch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/batchtypes"
	batcherrors "github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/fs"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/dispatcher"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/generator"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/obfuscate"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/tracing"
)

const testBucket = "json-batch-test"

type recordingEscrow struct {
	mu     sync.Mutex
	err    error
	stored map[string]string
}

func (e *recordingEscrow) Store(_ context.Context, name, value string) error {
	if e.err != nil {
		return e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stored == nil {
		e.stored = make(map[string]string)
	}
	e.stored[name] = value
	return nil
}

type readOnlyFS struct {
	fs.Filesystem
}

func (readOnlyFS) WriteFile(string, []byte, os.FileMode) error {
	return errors.New("read-only file system")
}

func testConfig(count int, totalSize int64) Config {
	return Config{
		Count:         count,
		TotalSize:     totalSize,
		Bucket:        testBucket,
		Workers:       2,
		ProgressEvery: 100,
		Seed:          1,
		RunID:         "run-1",
		Workdir:       "/work",
	}
}

func newRunner(t *testing.T, st *testutil.FakeStore, fsys fs.Filesystem, cfg Config, opts ...Option) *Runner {
	t.Helper()
	r, err := NewRunner(st, fsys, cfg, opts...)
	require.NoError(t, err)
	return r
}

func TestRun_TenArtifactsTwoWorkers(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	st := testutil.NewFakeStore()
	st.Delay = 5 * time.Millisecond

	r := newRunner(t, st, fsys, testConfig(10, 1_000_000))
	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, StateDone, r.State())
	assert.Equal(t, batchtypes.PhaseDone, summary.State)
	assert.Equal(t, 10, summary.Requested)
	assert.Equal(t, 10, summary.Generated)
	assert.Equal(t, 10, summary.Uploaded)
	assert.Equal(t, 0, summary.Failed)
	assert.False(t, summary.Incomplete())
	assert.Equal(t, testBucket, summary.Bucket)
	assert.Equal(t, "run-1", summary.RunID)
	assert.False(t, summary.Obfuscated)

	objects := st.Objects()
	require.Len(t, objects, 10)

	var stored int64
	for key, obj := range objects {
		size := int64(len(obj.Body))
		stored += size
		assert.GreaterOrEqual(t, size, int64(80_000), key)
		assert.LessOrEqual(t, size, int64(121_000), key)
		assert.True(t, json.Valid(obj.Body))
		assert.Regexp(t, generator.NamePattern, key)
		assert.Equal(t, "run-1", obj.Metadata[dispatcher.MetaBatchID])

		local, err := fsys.ReadFile("/work/" + key)
		require.NoError(t, err)
		assert.Equal(t, local, obj.Body)
	}
	assert.Equal(t, stored, summary.BytesUploaded)
	assert.Equal(t, stored, summary.BytesGenerated)
	assert.LessOrEqual(t, st.MaxInFlight(), int64(2))
	assert.Positive(t, summary.Throughput)
	assert.Equal(t, []string{testBucket}, st.Buckets())
}

func TestRun_AuthenticationFailureStopsBeforeWork(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	st := testutil.NewFakeStore()
	st.IdentityErr = batcherrors.ErrInvalidCredentials

	r := newRunner(t, st, fsys, testConfig(5, 1000))
	summary, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, batcherrors.ErrAuthentication)
	assert.ErrorIs(t, err, batcherrors.ErrInvalidCredentials)
	assert.Equal(t, StateFailed, r.State())

	assert.Empty(t, st.Buckets())
	exists, err := fsys.Exists("/work")
	require.NoError(t, err)
	assert.False(t, exists, "no generation work after a failed credential check")
}

func TestRun_BucketCreationFailure(t *testing.T) {
	st := testutil.NewFakeStore()
	st.BucketErr = batcherrors.ErrAccessDenied

	r := newRunner(t, st, billy.NewInMemoryFS(), testConfig(5, 1000))
	summary, err := r.Run(context.Background())
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, batcherrors.ErrContainerCreation)
	assert.Equal(t, batcherrors.CodeContainerFailed, batcherrors.CodeOf(err))
	assert.Equal(t, StateFailed, r.State())
}

func TestRun_LocalIOFailureAbortsBeforeUpload(t *testing.T) {
	st := testutil.NewFakeStore()
	fsys := readOnlyFS{Filesystem: billy.NewInMemoryFS()}

	r := newRunner(t, st, fsys, testConfig(5, 1000))
	summary, err := r.Run(context.Background())
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, batcherrors.ErrLocalIO)
	assert.Equal(t, StateFailed, r.State())
	assert.Zero(t, st.Calls(), "no artifact uploaded")
}

func TestRun_EveryThirdTransferFails(t *testing.T) {
	st := testutil.NewFakeStore()
	st.PutFunc = testutil.FailEvery(3, errors.New("simulated 503"))

	cfg := testConfig(9, 9000)
	cfg.Workers = 3
	r := newRunner(t, st, billy.NewInMemoryFS(), cfg)

	summary, err := r.Run(context.Background())
	require.NoError(t, err, "transfer failures are not fatal")
	assert.Equal(t, 6, summary.Uploaded)
	assert.Equal(t, 3, summary.Failed)
	assert.True(t, summary.Incomplete())
	require.Len(t, summary.Failures, 3)
	for _, f := range summary.Failures {
		assert.Contains(t, f.Error, "simulated 503")
	}
	assert.Equal(t, StateDone, r.State())
}

func TestRun_StoreUnreachableIsFatal(t *testing.T) {
	st := testutil.NewFakeStore()
	st.PutFunc = testutil.FailEvery(1, batcherrors.ErrConnection)

	cfg := testConfig(20, 20_000)
	cfg.UnreachableAfter = 2
	r := newRunner(t, st, billy.NewInMemoryFS(), cfg)

	summary, err := r.Run(context.Background())
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, batcherrors.ErrStoreUnreachable)
	assert.Equal(t, StateFailed, r.State())
}

func TestRun_ObfuscatedWithEscrow(t *testing.T) {
	st := testutil.NewFakeStore()
	o, err := obfuscate.Generate()
	require.NoError(t, err)
	escrow := &recordingEscrow{}

	r := newRunner(t, st, billy.NewInMemoryFS(), testConfig(4, 8000),
		WithObfuscator(o),
		WithKeyEscrow(escrow, "s3batch/"+testBucket))

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Obfuscated)
	assert.Equal(t, 4, summary.Uploaded)

	key := escrow.stored["s3batch/"+testBucket]
	require.NotEmpty(t, key)
	restored, err := obfuscate.FromString(key)
	require.NoError(t, err)

	for _, obj := range st.Objects() {
		assert.Equal(t, "application/octet-stream", obj.ContentType)
		plain, err := restored.Reverse(obj.Body)
		require.NoError(t, err)
		assert.True(t, json.Valid(plain))
		assert.Equal(t, "run-1", batchIDOf(t, plain))
	}
}

func TestRun_ObfuscatedWithoutEscrowLogsKey(t *testing.T) {
	o, err := NewObfuscator()
	require.NoError(t, err)
	rec, logger := testutil.NewLogRecorder()

	r := newRunner(t, testutil.NewFakeStore(), billy.NewInMemoryFS(), testConfig(2, 1000),
		WithObfuscator(o), WithLogger(logger))
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	var found bool
	for _, e := range rec.Entries() {
		if e.Attrs["key"] == o.Key() {
			found = true
			assert.Equal(t, "WARN", e.Level.String())
		}
	}
	assert.True(t, found, "key must be reported when not escrowed")
	assert.NotEmpty(t, rec.Find("batch complete"))
}

func TestRun_EscrowFailureIsFatal(t *testing.T) {
	st := testutil.NewFakeStore()
	o, err := obfuscate.Generate()
	require.NoError(t, err)

	r := newRunner(t, st, billy.NewInMemoryFS(), testConfig(3, 1000),
		WithObfuscator(o),
		WithKeyEscrow(&recordingEscrow{err: errors.New("denied")}, "name"))

	summary, err := r.Run(context.Background())
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, batcherrors.ErrKeyEscrow)
	assert.Zero(t, st.Calls())
}

func TestRun_ProgressCadence(t *testing.T) {
	progress := &testutil.ProgressRecorder{}
	cfg := testConfig(10, 5000)
	cfg.ProgressEvery = 4

	r := newRunner(t, testutil.NewFakeStore(), billy.NewInMemoryFS(), cfg, WithProgress(progress.Record))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	completed := func(phase batchtypes.Phase) []int {
		var out []int
		for _, p := range progress.ForPhase(phase) {
			out = append(out, p.Completed)
		}
		return out
	}
	assert.Equal(t, []int{4, 8, 10}, completed(batchtypes.PhaseMaterializing))
	assert.Equal(t, []int{4, 8, 10}, completed(batchtypes.PhaseUploading))
}

func TestRun_CancelDuringUpload(t *testing.T) {
	const k = 6
	st := testutil.NewFakeStore()
	st.Delay = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(k, 6000)
	cfg.Workers = 1
	cfg.ProgressEvery = 1
	r := newRunner(t, st, billy.NewInMemoryFS(), cfg, WithProgress(func(p batchtypes.Progress) {
		if p.Phase == batchtypes.PhaseUploading && p.Completed == 1 {
			cancel()
		}
	}))

	summary, err := r.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, batcherrors.ErrCanceled)
	require.NotNil(t, summary, "a canceled upload still reports its summary")
	assert.Equal(t, k, summary.Uploaded+summary.Failed)
	assert.GreaterOrEqual(t, summary.Uploaded, 1)
	assert.Less(t, summary.Uploaded, k)
	assert.Equal(t, int64(summary.Uploaded), st.Calls())
	assert.Equal(t, StateDone, r.State())
}

func TestRun_OnlyOnce(t *testing.T) {
	r := newRunner(t, testutil.NewFakeStore(), billy.NewInMemoryFS(), testConfig(1, 100))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.Equal(t, batcherrors.CodeInternal, batcherrors.CodeOf(err))
}

func TestRun_ReclaimAndCleanup(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	cfg := testConfig(3, 3000)
	cfg.ReclaimUploaded = true
	r := newRunner(t, testutil.NewFakeStore(), fsys, cfg)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	entries, err := fsys.ReadDir("/work")
	require.NoError(t, err)
	assert.Empty(t, entries, "uploaded files are reclaimed")

	require.NoError(t, r.Cleanup())
	exists, err := fsys.Exists("/work")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_Traces(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := newRunner(t, testutil.NewFakeStore(), billy.NewInMemoryFS(), testConfig(3, 300),
		WithTracer(tp.Tracer("test")))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	names := make(map[string]int)
	for _, s := range exporter.GetSpans() {
		names[s.Name]++
	}
	assert.Equal(t, 1, names[tracing.SpanRun])
	assert.Equal(t, 1, names[tracing.SpanPrefixPhase+"generating"])
	assert.Equal(t, 1, names[tracing.SpanPrefixPhase+"materializing"])
	assert.Equal(t, 1, names[tracing.SpanPrefixPhase+"uploading"])
	assert.Equal(t, 3, names[tracing.SpanTransfer])
}

func TestNewRunner_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero count", func(c *Config) { c.Count = 0 }},
		{"negative size", func(c *Config) { c.TotalSize = -1 }},
		{"no bucket", func(c *Config) { c.Bucket = "" }},
		{"too many workers", func(c *Config) { c.Workers = 1000 }},
		{"negative threshold", func(c *Config) { c.UnreachableAfter = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(1, 1)
			tt.modify(&cfg)
			_, err := NewRunner(testutil.NewFakeStore(), billy.NewInMemoryFS(), cfg)
			assert.Equal(t, batcherrors.CodeInvalidConfig, batcherrors.CodeOf(err))
			assert.ErrorIs(t, err, batcherrors.ErrInvalidConfig)
			assert.True(t, batcherrors.IsFatal(err))
		})
	}

	_, err := NewRunner(nil, billy.NewInMemoryFS(), testConfig(1, 1))
	assert.ErrorIs(t, err, batcherrors.ErrInvalidConfig)
	_, err = NewRunner(testutil.NewFakeStore(), nil, testConfig(1, 1))
	assert.ErrorIs(t, err, batcherrors.ErrInvalidConfig)
}

func TestNewRunner_Defaults(t *testing.T) {
	cfg := testConfig(1, 1)
	cfg.Workers = 0
	cfg.RunID = ""
	cfg.Workdir = ""

	r, err := NewRunner(testutil.NewFakeStore(), billy.NewInMemoryFS(), cfg)
	require.NoError(t, err)
	assert.Len(t, r.RunID(), 36)
	assert.True(t, strings.HasSuffix(r.Workdir(), "/s3batch/"+r.RunID()))
	assert.Equal(t, StateIdle, r.State())
}

func batchIDOf(t *testing.T, doc []byte) string {
	t.Helper()
	var decoded struct {
		Metadata struct {
			BatchID string `json:"batch_id"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(doc, &decoded))
	return decoded.Metadata.BatchID
}
