package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	batcherrors "github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
)

// AWS error code constants
const (
	ResourceExistsException   = "ResourceExistsException"
	ResourceNotFoundException = "ResourceNotFoundException"
	AccessDeniedException     = "AccessDeniedException"
)

// ManagerAPI is the subset of the Secrets Manager client used for escrow.
type ManagerAPI interface {
	CreateSecret(
		ctx context.Context,
		params *secretsmanager.CreateSecretInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.CreateSecretOutput, error)

	PutSecretValue(
		ctx context.Context,
		params *secretsmanager.PutSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.PutSecretValueOutput, error)
}

var _ ManagerAPI = (*secretsmanager.Client)(nil)

// Retry settings for Secrets Manager calls.
const (
	maxAttempts = 10
	maxBackoff  = 30 * time.Second
)

// newRetryer backs off exponentially and also retries throughput errors,
// which Secrets Manager returns under bursty writes.
func newRetryer() aws.Retryer {
	return retry.NewStandard(func(o *retry.StandardOptions) {
		o.MaxAttempts = maxAttempts
		o.MaxBackoff = maxBackoff
		o.Retryables = append(o.Retryables, retry.RetryableErrorCode{
			Codes: map[string]struct{}{
				"ThrottlingException":                    {},
				"ProvisionedThroughputExceededException": {},
			},
		})
	})
}

// Option is a functional option for configuring the Escrow.
type Option func(*Escrow)

// WithLogger configures the escrow with a custom logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Escrow) {
		e.logger = logger
	}
}

// WithKMSKey encrypts newly created secrets with the given KMS key.
func WithKMSKey(kmsKeyID string) Option {
	return func(e *Escrow) {
		e.kmsKeyID = kmsKeyID
	}
}

// WithDescription sets the description of newly created secrets.
func WithDescription(description string) Option {
	return func(e *Escrow) {
		e.description = description
	}
}

// Escrow stores secret values in AWS Secrets Manager.
// It is safe for concurrent use.
type Escrow struct {
	api         ManagerAPI
	logger      *slog.Logger
	kmsKeyID    string
	description string
}

// New creates an Escrow using the default AWS credential chain.
func New(ctx context.Context, opts ...Option) (*Escrow, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithConfig(cfg, "", opts...), nil
}

// NewWithConfig creates an Escrow from an AWS configuration. A non-empty
// endpoint overrides the service endpoint, e.g. for LocalStack.
func NewWithConfig(cfg aws.Config, endpoint string, opts ...Option) *Escrow {
	api := secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
		o.Retryer = newRetryer()
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewWithAPI(api, opts...)
}

// NewWithAPI creates an Escrow around a custom ManagerAPI implementation.
func NewWithAPI(api ManagerAPI, opts ...Option) *Escrow {
	e := &Escrow{api: api}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store saves value under name. The secret is created if it does not
// exist; otherwise a new version is added. Errors wrap ErrKeyEscrow.
func (e *Escrow) Store(ctx context.Context, name, value string) error {
	if name == "" {
		return batcherrors.Wrap("escrowKey", batcherrors.ErrKeyEscrow, errors.New("secret name cannot be empty"))
	}
	if value == "" {
		return batcherrors.Wrap("escrowKey", batcherrors.ErrKeyEscrow, errors.New("secret value cannot be empty"))
	}

	if e.logger != nil {
		e.logger.InfoContext(ctx, "escrowing key", "secret_name", name)
	}

	input := &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
	}
	if e.kmsKeyID != "" {
		input.KmsKeyId = aws.String(e.kmsKeyID)
	}
	if e.description != "" {
		input.Description = aws.String(e.description)
	}

	_, err := e.api.CreateSecret(ctx, input)
	if err == nil {
		return nil
	}
	if errorCode(err) != ResourceExistsException {
		return e.fail(ctx, name, "CreateSecret", err)
	}

	if e.logger != nil {
		e.logger.DebugContext(ctx, "secret exists, adding version", "secret_name", name)
	}
	_, err = e.api.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	if err != nil {
		return e.fail(ctx, name, "PutSecretValue", err)
	}
	return nil
}

// fail logs and wraps an escrow error. For smithy API errors only the code
// and message are kept, never request parameters.
func (e *Escrow) fail(ctx context.Context, name, operation string, err error) error {
	if e.logger != nil {
		e.logger.ErrorContext(ctx, "failed to escrow key",
			"secret_name", name,
			"operation", operation,
			"error", err)
	}

	var cause error
	var apiErr smithy.APIError
	switch {
	case errorCode(err) == AccessDeniedException:
		cause = fmt.Errorf("%s: %w", operation, batcherrors.ErrAccessDenied)
	case errors.As(err, &apiErr):
		cause = fmt.Errorf("%s operation failed: %s: %s", operation, apiErr.ErrorCode(), apiErr.ErrorMessage())
	default:
		cause = fmt.Errorf("%s operation failed: %w", operation, err)
	}
	return batcherrors.Wrap("escrowKey", batcherrors.ErrKeyEscrow, cause)
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
