// Package minio implements the batch object store on MinIO and other
// S3-compatible servers using minio-go.
package minio

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/store"
)

var _ store.Store = (*Client)(nil)

// API is the subset of *minio.Client used by Client.
type API interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(
		ctx context.Context,
		bucketName, objectName string,
		reader io.Reader,
		objectSize int64,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
}

var _ API = (*minio.Client)(nil)

// Config holds connection settings for a MinIO server.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	UseSSL          bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger configures the client with a custom logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client stores batch artifacts on a MinIO server.
type Client struct {
	api    API
	region string
	logger *slog.Logger
}

// New connects to the server described by cfg. No request is made until
// the first operation.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.Wrap("newClient", errors.ErrInvalidConfig, fmt.Errorf("minio endpoint cannot be empty"))
	}
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.NewError("client initialization", err)
	}
	return NewWithAPI(api, cfg.Region, opts...), nil
}

// NewWithAPI creates a Client around an existing API implementation.
func NewWithAPI(api API, region string, opts ...Option) *Client {
	c := &Client{api: api, region: region}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateIdentity lists buckets to check that the credentials are accepted.
func (c *Client) ValidateIdentity(ctx context.Context) error {
	if _, err := c.api.ListBuckets(ctx); err != nil {
		return errors.NewError("validateIdentity", translateError(err))
	}
	return nil
}

// EnsureBucket creates bucket. An existing bucket is not an error.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return err
	}

	err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.region})
	if err == nil {
		c.log(ctx, slog.LevelInfo, "bucket created", "bucket", bucket)
		return nil
	}

	converted := translateError(err)
	switch {
	case errors.Is(converted, errors.ErrBucketAlreadyOwned):
		c.log(ctx, slog.LevelDebug, "bucket already owned", "bucket", bucket)
		return nil
	case errors.Is(converted, errors.ErrBucketAlreadyExists):
		c.log(ctx, slog.LevelWarn, "bucket already exists", "bucket", bucket)
		return nil
	}
	return errors.NewError("createBucket", converted).WithBucket(bucket)
}

// Put stores one object.
func (c *Client) Put(ctx context.Context, in *store.PutInput) (*store.PutOutput, error) {
	if in == nil || in.Body == nil || in.Bucket == "" {
		return nil, errors.NewError("put", errors.ErrInvalidInput).WithMessage("bucket and body are required")
	}
	if err := validation.ValidateObjectKey(in.Key); err != nil {
		return nil, err
	}
	if err := validation.ValidateMetadata(in.Metadata); err != nil {
		return nil, err
	}

	info, err := c.api.PutObject(ctx, in.Bucket, in.Key, in.Body, in.Size, minio.PutObjectOptions{
		ContentType:  in.ContentType,
		UserMetadata: in.Metadata,
	})
	if err != nil {
		return nil, errors.NewError("put", translateError(err)).
			WithBucket(in.Bucket).
			WithKey(in.Key)
	}
	return &store.PutOutput{ETag: info.ETag, VersionID: info.VersionID}, nil
}

func (c *Client) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if c.logger != nil {
		c.logger.Log(ctx, level, msg, args...)
	}
}

// translateError maps minio-go errors onto the sentinels of the errors
// package, keeping the original error in the chain.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	var netErr net.Error
	if stderrors.As(err, &urlErr) || stderrors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", errors.ErrConnection, err)
	}

	var sentinel error
	switch minio.ToErrorResponse(err).Code {
	case "AccessDenied":
		sentinel = errors.ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		sentinel = errors.ErrInvalidCredentials
	case "BucketAlreadyOwnedByYou":
		sentinel = errors.ErrBucketAlreadyOwned
	case "BucketAlreadyExists":
		sentinel = errors.ErrBucketAlreadyExists
	case "NoSuchBucket":
		sentinel = errors.ErrBucketNotFound
	case "SlowDown", "SlowDownWrite", "XMinioServerNotInitialized":
		sentinel = errors.ErrTooManyRequests
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
