// Package config provides configuration types, defaults and validation for
// s3batch. Values come from flags, a YAML file and S3BATCH_* environment
// variables, merged by viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/dispatcher"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/generator"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/tracing"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/validation"
)

// EnvPrefix prefixes every environment variable read by the CLI.
const EnvPrefix = "S3BATCH"

// AppName names the cache directory and the default config file.
const AppName = "s3batch"

// bucketTimeLayout renders the run timestamp in default bucket names.
const bucketTimeLayout = "20060102-150405"

// Storage backends
const (
	BackendS3    = "s3"
	BackendMinIO = "minio"
)

// Config holds all configuration options for a run.
type Config struct {
	Count     int    `mapstructure:"count"`
	TotalSize int64  `mapstructure:"total_size"`
	Bucket    string `mapstructure:"bucket"`

	// BucketPrefix is used to derive a timestamped bucket name when Bucket is empty
	BucketPrefix     string `mapstructure:"bucket_prefix"`
	KeyPrefix        string `mapstructure:"key_prefix"`
	Workers          int    `mapstructure:"workers"`
	ProgressEvery    int    `mapstructure:"progress_every"`
	Pretty           bool   `mapstructure:"pretty"` // off: sizing targets compact bytes
	Obfuscate        bool   `mapstructure:"obfuscate"`
	ReclaimUploaded  bool   `mapstructure:"reclaim_uploaded"`
	UnreachableAfter int    `mapstructure:"unreachable_after"`
	MaxFields        int    `mapstructure:"max_fields"`
	SchemaVersion    string `mapstructure:"schema_version"`
	Seed             uint64 `mapstructure:"seed"`

	// Workdir overrides the per-run cache directory
	Workdir string `mapstructure:"workdir"`

	// Cleanup removes the working directory after the run
	Cleanup bool `mapstructure:"cleanup"`

	Backend string         `mapstructure:"backend"`
	S3      S3Config       `mapstructure:"s3"`
	MinIO   MinIOConfig    `mapstructure:"minio"`
	Escrow  EscrowConfig   `mapstructure:"escrow"`
	Log     LogConfig      `mapstructure:"log"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// S3Config configures the AWS S3 backend.
type S3Config struct {
	Region         string        `mapstructure:"region"`
	Endpoint       string        `mapstructure:"endpoint"`
	ForcePathStyle bool          `mapstructure:"force_path_style"`
	MaxRetries     int           `mapstructure:"max_retries"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// MinIOConfig configures the MinIO backend.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// EscrowConfig configures publication of the obfuscation key.
type EscrowConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// SecretName defaults to s3batch/<bucket>/<run-id>
	SecretName string `mapstructure:"secret_name"`
	KMSKeyID   string `mapstructure:"kms_key_id"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

// Defaults returns the configuration of a run with no overrides:
// 3000 obfuscated documents totalling 512 MiB.
func Defaults() Config {
	return Config{
		Count:            3000,
		TotalSize:        512 << 20,
		BucketPrefix:     "json-batch",
		Workers:          dispatcher.DefaultWorkers,
		ProgressEvery:    100,
		Obfuscate:        true,
		UnreachableAfter: dispatcher.DefaultUnreachableAfter,
		SchemaVersion:    generator.SchemaVersion,
		Backend:          BackendS3,
		S3: S3Config{
			MaxRetries: 3,
			Timeout:    5 * time.Minute,
		},
		MinIO: MinIOConfig{
			UseSSL: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// SetDefaults registers every key of Defaults with v, so environment
// variables and config files can override any of them.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("count", d.Count)
	v.SetDefault("total_size", d.TotalSize)
	v.SetDefault("bucket", d.Bucket)
	v.SetDefault("bucket_prefix", d.BucketPrefix)
	v.SetDefault("key_prefix", d.KeyPrefix)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("progress_every", d.ProgressEvery)
	v.SetDefault("pretty", d.Pretty)
	v.SetDefault("obfuscate", d.Obfuscate)
	v.SetDefault("reclaim_uploaded", d.ReclaimUploaded)
	v.SetDefault("unreachable_after", d.UnreachableAfter)
	v.SetDefault("max_fields", d.MaxFields)
	v.SetDefault("schema_version", d.SchemaVersion)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("workdir", d.Workdir)
	v.SetDefault("cleanup", d.Cleanup)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("s3.force_path_style", d.S3.ForcePathStyle)
	v.SetDefault("s3.max_retries", d.S3.MaxRetries)
	v.SetDefault("s3.timeout", d.S3.Timeout)
	v.SetDefault("minio.endpoint", d.MinIO.Endpoint)
	v.SetDefault("minio.access_key_id", d.MinIO.AccessKeyID)
	v.SetDefault("minio.secret_access_key", d.MinIO.SecretAccessKey)
	v.SetDefault("minio.region", d.MinIO.Region)
	v.SetDefault("minio.use_ssl", d.MinIO.UseSSL)
	v.SetDefault("escrow.enabled", d.Escrow.Enabled)
	v.SetDefault("escrow.secret_name", d.Escrow.SecretName)
	v.SetDefault("escrow.kms_key_id", d.Escrow.KMSKeyID)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// BindEnv makes v read S3BATCH_* variables, with dots in keys replaced by
// underscores (S3BATCH_S3_REGION for s3.region).
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap("loadConfig", errors.ErrInvalidConfig, err)
	}
	if err := Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration for errors. Errors wrap
// errors.ErrInvalidConfig.
func Validate(c Config) error {
	var msg string
	switch {
	case c.Count <= 0:
		msg = fmt.Sprintf("count must be positive, got %d", c.Count)
	case c.TotalSize < 0:
		msg = fmt.Sprintf("total_size must not be negative, got %d", c.TotalSize)
	case c.Workers < 1 || c.Workers > dispatcher.MaxWorkers:
		msg = fmt.Sprintf("workers must be between 1 and %d, got %d", dispatcher.MaxWorkers, c.Workers)
	case c.ProgressEvery < 0:
		msg = fmt.Sprintf("progress_every must not be negative, got %d", c.ProgressEvery)
	case c.UnreachableAfter < 0:
		msg = fmt.Sprintf("unreachable_after must not be negative, got %d", c.UnreachableAfter)
	case c.MaxFields < 0:
		msg = fmt.Sprintf("max_fields must not be negative, got %d", c.MaxFields)
	case c.Bucket == "" && c.BucketPrefix == "":
		msg = "either bucket or bucket_prefix is required"
	case c.Backend != BackendS3 && c.Backend != BackendMinIO:
		msg = fmt.Sprintf("backend must be %q or %q, got %q", BackendS3, BackendMinIO, c.Backend)
	case c.Backend == BackendMinIO && c.MinIO.Endpoint == "":
		msg = "minio.endpoint is required when backend is \"minio\""
	case c.Escrow.Enabled && c.Backend != BackendS3:
		msg = "escrow requires the s3 backend"
	case c.Workdir != "" && !filepath.IsAbs(c.Workdir):
		msg = fmt.Sprintf("workdir must be an absolute path, got %q", c.Workdir)
	}
	if msg != "" {
		return errors.Wrap("validateConfig", errors.ErrInvalidConfig, fmt.Errorf("%s", msg))
	}

	if err := validation.ValidateBucketName(c.BucketName(time.Time{})); err != nil {
		return errors.Wrap("validateConfig", errors.ErrInvalidConfig, err)
	}
	if err := validation.ValidateKeyPrefix(c.KeyPrefix); err != nil {
		return errors.Wrap("validateConfig", errors.ErrInvalidConfig, err)
	}

	ok, err := generator.IsCompatible(c.SchemaVersion)
	if err != nil {
		return errors.Wrap("validateConfig", errors.ErrInvalidConfig, err)
	}
	if !ok {
		return errors.Wrap("validateConfig", errors.ErrInvalidConfig,
			fmt.Errorf("schema_version %s is not compatible with %s", c.SchemaVersion, generator.SchemaVersion))
	}

	return validateTracing(c.Tracing)
}

func validateTracing(t tracing.Config) error {
	var msg string
	switch {
	case t.SampleRate < 0.0 || t.SampleRate > 1.0:
		msg = fmt.Sprintf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	case !tracing.IsExporter(t.Exporter):
		msg = fmt.Sprintf("tracing.exporter must be one of %v, got %q", tracing.Exporters(), t.Exporter)
	case t.Enabled && t.Exporter == tracing.ExporterFile && t.FilePath == "":
		msg = "tracing.file_path is required when exporter is \"file\""
	}
	if msg != "" {
		return errors.Wrap("validateConfig", errors.ErrInvalidConfig, fmt.Errorf("%s", msg))
	}
	return nil
}

// BucketName returns the configured bucket, or <bucket_prefix>-<timestamp>.
func (c Config) BucketName(now time.Time) string {
	if c.Bucket != "" {
		return c.Bucket
	}
	return c.BucketPrefix + "-" + now.Format(bucketTimeLayout)
}

// WorkdirFor returns the working directory of run runID: the configured
// workdir, or $XDG_CACHE_HOME/s3batch/<runID>.
func (c Config) WorkdirFor(runID string) string {
	if c.Workdir != "" {
		return filepath.Join(c.Workdir, runID)
	}
	return filepath.Join(xdg.CacheHome, AppName, runID)
}

// SecretName returns the escrow secret name for run runID writing to
// bucket. The default is unique per run so a later run never moves an
// earlier key off AWSCURRENT.
func (c Config) SecretName(bucket, runID string) string {
	if c.Escrow.SecretName != "" {
		return c.Escrow.SecretName
	}
	return AppName + "/" + bucket + "/" + runID
}
