package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/aws/s3"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/aws/secrets"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/batchtypes"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/config"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/tracing"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/store"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/store/minio"
)

func newRunCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a batch and upload it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := a.run(cmd.Context())
			if summary != nil && asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(summary); encErr != nil {
					return fmt.Errorf("failed to write summary: %w", encErr)
				}
			}
			if err != nil {
				return err
			}
			if summary.Incomplete() {
				return fmt.Errorf("%w: %d of %d artifacts uploaded", errIncomplete, summary.Uploaded, summary.Requested)
			}
			return nil
		},
	}

	d := config.Defaults()
	f := cmd.Flags()
	f.IntP("count", "n", d.Count, "number of documents to generate")
	f.Int64P("total-size", "s", d.TotalSize, "aggregate size of the batch in bytes")
	f.StringP("bucket", "b", "", "bucket name (default: <bucket-prefix>-<timestamp>)")
	f.String("bucket-prefix", d.BucketPrefix, "prefix of the generated bucket name")
	f.String("key-prefix", "", "prefix prepended to every object key")
	f.IntP("workers", "w", d.Workers, "concurrent uploads")
	f.Int("progress-every", d.ProgressEvery, "report progress every N items")
	f.Bool("pretty", d.Pretty, "write indented JSON")
	f.Bool("obfuscate", d.Obfuscate, "encrypt payloads with a run key")
	f.Bool("reclaim", d.ReclaimUploaded, "remove each local file once uploaded")
	f.Int("unreachable-after", d.UnreachableAfter, "consecutive connection failures that stop the run (0 disables)")
	f.Int("max-fields", d.MaxFields, "cap on data fields per document (0 derives it from size)")
	f.Uint64("seed", d.Seed, "generator seed (0 picks one)")
	f.Bool("cleanup", d.Cleanup, "remove the working directory after the run")
	f.String("backend", d.Backend, "object store backend: s3 or minio")
	f.String("region", "", "AWS region")
	f.String("endpoint", "", "custom S3 endpoint, e.g. for LocalStack")
	f.Bool("path-style", false, "use path-style S3 addressing")
	f.Bool("escrow", false, "store the obfuscation key in AWS Secrets Manager")
	f.BoolVar(&asJSON, "json", false, "print the summary as JSON on stdout")

	a.bind(f, map[string]string{
		"count":               "count",
		"total_size":          "total-size",
		"bucket":              "bucket",
		"bucket_prefix":       "bucket-prefix",
		"key_prefix":          "key-prefix",
		"workers":             "workers",
		"progress_every":      "progress-every",
		"pretty":              "pretty",
		"obfuscate":           "obfuscate",
		"reclaim_uploaded":    "reclaim",
		"unreachable_after":   "unreachable-after",
		"max_fields":          "max-fields",
		"seed":                "seed",
		"cleanup":             "cleanup",
		"backend":             "backend",
		"s3.region":           "region",
		"s3.endpoint":         "endpoint",
		"s3.force_path_style": "path-style",
		"escrow.enabled":      "escrow",
	})
	return cmd
}

// run executes one batch with the loaded configuration.
func (a *app) run(ctx context.Context) (*batchtypes.BatchSummary, error) {
	cfg := a.cfg
	runID := uuid.NewString()
	bucket := cfg.BucketName(time.Now().UTC())
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, errors.Wrap("run", errors.ErrInvalidConfig, err)
	}

	st, err := a.newStore(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}

	tp, err := tracing.NewProvider(ctx, cfg.Tracing,
		attribute.String("service.version", a.version),
		attribute.String("s3batch.run_id", runID),
		attribute.String("s3batch.bucket", bucket),
	)
	if err != nil {
		return nil, errors.Wrap("run", errors.ErrInvalidConfig, err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("failed to flush traces", "error", err)
		}
	}()

	opts := []s3batch.Option{
		s3batch.WithLogger(a.logger),
		s3batch.WithTracer(tp.Tracer()),
	}
	if cfg.Obfuscate {
		o, err := s3batch.NewObfuscator()
		if err != nil {
			return nil, err
		}
		opts = append(opts, s3batch.WithObfuscator(o))

		if cfg.Escrow.Enabled {
			escrow, err := openEscrow(ctx, cfg, a.logger)
			if err != nil {
				return nil, err
			}
			opts = append(opts, s3batch.WithKeyEscrow(escrow, cfg.SecretName(bucket, runID)))
		}
	}

	runner, err := s3batch.NewRunner(st, billy.NewHostFS(), s3batch.Config{
		Count:            cfg.Count,
		TotalSize:        cfg.TotalSize,
		Bucket:           bucket,
		KeyPrefix:        cfg.KeyPrefix,
		Workers:          cfg.Workers,
		ProgressEvery:    cfg.ProgressEvery,
		Pretty:           cfg.Pretty,
		ReclaimUploaded:  cfg.ReclaimUploaded,
		UnreachableAfter: cfg.UnreachableAfter,
		MaxFields:        cfg.MaxFields,
		SchemaVersion:    cfg.SchemaVersion,
		Seed:             cfg.Seed,
		RunID:            runID,
		Workdir:          cfg.WorkdirFor(runID),
	}, opts...)
	if err != nil {
		return nil, err
	}

	summary, runErr := runner.Run(ctx)

	if cfg.Cleanup {
		if err := runner.Cleanup(); err != nil {
			a.logger.Warn("failed to remove working directory", "workdir", runner.Workdir(), "error", err)
		}
	} else {
		a.logger.Info("working files kept", "workdir", runner.Workdir(), "run_id", runID)
	}
	return summary, runErr
}

// openStore opens the backend named in cfg.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Backend == config.BackendMinIO {
		client, err := minio.New(minio.Config{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			Region:          cfg.MinIO.Region,
			UseSSL:          cfg.MinIO.UseSSL,
		}, minio.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := s3.New(ctx,
		s3.WithRegion(cfg.S3.Region),
		s3.WithEndpoint(cfg.S3.Endpoint),
		s3.WithForcePathStyle(cfg.S3.ForcePathStyle),
		s3.WithMaxRetries(cfg.S3.MaxRetries),
		s3.WithTimeout(cfg.S3.Timeout),
		s3.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// openEscrow connects to Secrets Manager in the same region and endpoint as S3.
func openEscrow(ctx context.Context, cfg config.Config, logger *slog.Logger) (*secrets.Escrow, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.S3.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap("openEscrow", errors.ErrKeyEscrow, err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger),
		secrets.WithDescription("s3batch obfuscation key"),
	}
	if cfg.Escrow.KMSKeyID != "" {
		opts = append(opts, secrets.WithKMSKey(cfg.Escrow.KMSKeyID))
	}
	return secrets.NewWithConfig(awsCfg, cfg.S3.Endpoint, opts...), nil
}
