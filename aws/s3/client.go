package s3

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/store"
)

const defaultRegion = "us-east-1"

var _ store.Store = (*Client)(nil)

// Client stores batch artifacts in S3.
// It is safe for concurrent use; the AWS SDK client is thread-safe.
type Client struct {
	s3Client s3api.S3API
	region   string
	logger   *slog.Logger
}

// New creates a new S3 client with the provided options.
// It loads AWS credentials using the default credential chain unless a
// custom configuration or static credentials are given.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	clientCfg := &ClientConfig{
		MaxRetries: 3,
	}
	for _, opt := range opts {
		opt(clientCfg)
	}

	var cfg aws.Config
	if clientCfg.CustomAWSConfig != nil {
		cfg = *clientCfg.CustomAWSConfig
	} else {
		var err error
		cfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.NewError("client initialization", err)
		}
	}

	if clientCfg.Region != "" {
		cfg.Region = clientCfg.Region
	} else if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if clientCfg.MaxRetries > 0 {
		cfg.RetryMaxAttempts = clientCfg.MaxRetries
	}
	if clientCfg.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(
			clientCfg.AccessKeyID, clientCfg.SecretAccessKey, clientCfg.SessionToken)
	}

	var s3Opts []func(*s3.Options)
	if clientCfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	if clientCfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(clientCfg.Endpoint)
		})
	}
	if clientCfg.Timeout > 0 {
		httpClient := &http.Client{Timeout: clientCfg.Timeout}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.HTTPClient = httpClient
		})
	}

	return &Client{
		s3Client: s3.NewFromConfig(cfg, s3Opts...),
		region:   cfg.Region,
		logger:   clientCfg.Logger,
	}, nil
}

// NewWithClient creates a Client around a custom S3API implementation.
// This is primarily used for testing with mocked clients.
func NewWithClient(s3Client s3api.S3API, opts ...Option) *Client {
	clientCfg := &ClientConfig{Region: defaultRegion}
	for _, opt := range opts {
		opt(clientCfg)
	}
	return &Client{
		s3Client: s3Client,
		region:   clientCfg.Region,
		logger:   clientCfg.Logger,
	}
}

// Region returns the region requests are signed for.
func (c *Client) Region() string {
	return c.region
}
