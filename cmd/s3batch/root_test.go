package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/batchtypes"
	batcherrors "github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/config"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/store"
)

// execute runs the CLI with args against st and an empty config file.
func execute(t *testing.T, st store.Store, args ...string) (*app, string, error) {
	t.Helper()
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, nil, 0o600))

	a := newApp()
	a.newStore = func(context.Context, config.Config, *slog.Logger) (store.Store, error) {
		return st, nil
	}
	root := newRootCmd(a, "test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--config", cfgFile))
	err := root.ExecuteContext(context.Background())
	return a, out.String(), err
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"incomplete", fmt.Errorf("%w: 2 of 3", errIncomplete), exitIncomplete},
		{"canceled", batcherrors.Wrap("run", batcherrors.ErrCanceled, context.Canceled), exitIncomplete},
		{"fatal", batcherrors.Wrap("run", batcherrors.ErrAuthentication, errors.New("denied")), exitFatal},
		{"plain", errors.New("unknown flag"), exitFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])

	_, err = newLogger(io.Discard, config.LogConfig{Level: "loud"})
	assert.ErrorIs(t, err, batcherrors.ErrInvalidConfig)
	_, err = newLogger(io.Discard, config.LogConfig{Level: "info", Format: "xml"})
	assert.ErrorIs(t, err, batcherrors.ErrInvalidConfig)
}

func TestRun_UploadsBatch(t *testing.T) {
	st := testutil.NewFakeStore()
	workdir := t.TempDir()

	_, out, err := execute(t, st, "run",
		"--count", "4",
		"--total-size", "4000",
		"--bucket", "cli-test-bucket",
		"--workers", "2",
		"--obfuscate=false",
		"--workdir", workdir,
		"--cleanup",
		"--json")
	require.NoError(t, err)

	var summary batchtypes.BatchSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 4, summary.Uploaded)
	assert.Equal(t, "cli-test-bucket", summary.Bucket)
	assert.Len(t, st.Objects(), 4)
	assert.Equal(t, []string{"cli-test-bucket"}, st.Buckets())

	entries, err := os.ReadDir(workdir)
	require.NoError(t, err)
	assert.Empty(t, entries, "run directory removed by --cleanup")
}

func TestRun_IncompleteExitsWithTwo(t *testing.T) {
	st := testutil.NewFakeStore()
	st.PutFunc = testutil.FailEvery(2, errors.New("slow down"))

	_, _, err := execute(t, st, "run",
		"--count", "4",
		"--total-size", "400",
		"--bucket", "cli-test-bucket",
		"--workdir", t.TempDir(),
		"--cleanup")
	require.Error(t, err)
	assert.ErrorIs(t, err, errIncomplete)
	assert.Equal(t, exitIncomplete, exitCode(err))
}

func TestRun_FatalExitsWithOne(t *testing.T) {
	st := testutil.NewFakeStore()
	st.IdentityErr = batcherrors.ErrInvalidCredentials

	_, _, err := execute(t, st, "run", "--count", "1", "--workdir", t.TempDir())
	assert.ErrorIs(t, err, batcherrors.ErrAuthentication)
	assert.Equal(t, exitFatal, exitCode(err))
}

func TestRun_InvalidConfig(t *testing.T) {
	_, _, err := execute(t, testutil.NewFakeStore(), "run", "--workers", "0")
	assert.ErrorIs(t, err, batcherrors.ErrInvalidConfig)

	_, _, err = execute(t, testutil.NewFakeStore(), "run", "--backend", "gcs")
	assert.ErrorIs(t, err, batcherrors.ErrInvalidConfig)
}

func TestInitConfig_FileAndEnvironment(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "s3batch.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("count: 7\nworkers: 4\ns3:\n  region: eu-west-1\n"), 0o600))
	t.Setenv("S3BATCH_WORKERS", "3")
	t.Setenv("S3BATCH_LOG_LEVEL", "debug")

	a := newApp()
	root := newRootCmd(a, "test")
	root.SetErr(io.Discard)
	root.SetArgs([]string{"clean", "--all", "--config", cfgFile, "--workdir", t.TempDir()})
	require.NoError(t, root.Execute())

	assert.Equal(t, 7, a.cfg.Count)
	assert.Equal(t, 3, a.cfg.Workers, "environment overrides the file")
	assert.Equal(t, "eu-west-1", a.cfg.S3.Region)
	assert.Equal(t, "debug", a.cfg.Log.Level)
	assert.True(t, a.cfg.Obfuscate)
}

func TestInitConfig_MissingExplicitFile(t *testing.T) {
	a := newApp()
	root := newRootCmd(a, "test")
	root.SetErr(io.Discard)
	root.SetArgs([]string{"clean", "--all", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	err := root.Execute()
	assert.ErrorIs(t, err, batcherrors.ErrInvalidConfig)
}

func TestClean(t *testing.T) {
	parent := t.TempDir()
	runA, runB := uuid.NewString(), uuid.NewString()
	for _, id := range []string{runA, runB} {
		dir := filepath.Join(parent, id)
		require.NoError(t, os.MkdirAll(dir, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.json"), []byte("{}"), 0o600))
	}

	_, _, err := execute(t, nil, "clean", "--workdir", parent, runA, uuid.NewString())
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(parent, runA))
	assert.DirExists(t, filepath.Join(parent, runB))

	for _, bad := range []string{"../escape", "notes", strings.ToUpper(runB)} {
		_, _, err = execute(t, nil, "clean", "--workdir", parent, bad)
		assert.ErrorIs(t, err, batcherrors.ErrInvalidConfig, bad)
	}
	assert.DirExists(t, filepath.Join(parent, runB))

	_, _, err = execute(t, nil, "clean", "--workdir", parent)
	assert.Error(t, err)
}

func TestClean_AllKeepsUnrelatedEntries(t *testing.T) {
	parent := t.TempDir()
	runs := []string{uuid.NewString(), uuid.NewString()}
	for _, id := range runs {
		dir := filepath.Join(parent, id)
		require.NoError(t, os.MkdirAll(dir, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.json"), []byte("{}"), 0o600))
	}
	sibling := filepath.Join(parent, "thesis.docx")
	require.NoError(t, os.WriteFile(sibling, []byte("chapter one"), 0o600))
	photos := filepath.Join(parent, "photos")
	require.NoError(t, os.MkdirAll(photos, 0o750))
	uuidFile := filepath.Join(parent, uuid.NewString())
	require.NoError(t, os.WriteFile(uuidFile, []byte("x"), 0o600))

	_, _, err := execute(t, nil, "clean", "--workdir", parent, "--all")
	require.NoError(t, err)

	for _, id := range runs {
		assert.NoDirExists(t, filepath.Join(parent, id))
	}
	assert.DirExists(t, parent)
	assert.FileExists(t, sibling)
	assert.DirExists(t, photos)
	assert.FileExists(t, uuidFile)
}

func TestClean_AllMissingParent(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "never-created")
	_, _, err := execute(t, nil, "clean", "--workdir", parent, "--all")
	require.NoError(t, err)
	assert.NoDirExists(t, parent)
}
