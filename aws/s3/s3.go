package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/store"
)

// DefaultContentType is sent when the caller does not provide one.
const DefaultContentType = "application/octet-stream"

// ValidateIdentity checks that the configured credentials are accepted by
// listing at most one bucket.
func (c *Client) ValidateIdentity(ctx context.Context) error {
	_, err := c.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{
		MaxBuckets: aws.Int32(1),
	})
	if err != nil {
		return errors.NewError("validateIdentity", convertAWSError(err))
	}
	c.debug(ctx, "credentials accepted", "region", c.region)
	return nil
}

// EnsureBucket creates bucket in the client's region.
// A bucket the caller already owns is not an error. A bucket name taken by
// another account is logged as a warning and also not treated as an error;
// the following puts fail with access denied if the bucket is unusable.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return err
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	// us-east-1 rejects an explicit location constraint
	if c.region != "" && c.region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}

	_, err := c.s3Client.CreateBucket(ctx, input)
	if err == nil {
		c.info(ctx, "bucket created", "bucket", bucket, "region", c.region)
		return nil
	}

	converted := convertAWSError(err)
	switch {
	case errors.Is(converted, errors.ErrBucketAlreadyOwned):
		c.debug(ctx, "bucket already owned", "bucket", bucket)
		return nil
	case errors.Is(converted, errors.ErrBucketAlreadyExists):
		c.warn(ctx, "bucket already exists", "bucket", bucket)
		return nil
	}
	return errors.NewError("createBucket", converted).WithBucket(bucket)
}

// Put stores one object with a single PutObject request.
func (c *Client) Put(ctx context.Context, in *store.PutInput) (*store.PutOutput, error) {
	if err := checkPutInput(in); err != nil {
		return nil, err
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(in.Bucket),
		Key:           aws.String(in.Key),
		Body:          in.Body,
		ContentLength: aws.Int64(in.Size),
		ContentType:   aws.String(contentType),
	}
	if len(in.Metadata) > 0 {
		input.Metadata = in.Metadata
	}

	out, err := c.s3Client.PutObject(ctx, input)
	if err != nil {
		return nil, errors.NewError("put", convertAWSError(err)).
			WithBucket(in.Bucket).
			WithKey(in.Key)
	}

	return &store.PutOutput{
		ETag:      aws.ToString(out.ETag),
		VersionID: aws.ToString(out.VersionId),
	}, nil
}

// checkPutInput validates a put request before any network call.
func checkPutInput(in *store.PutInput) error {
	if in == nil {
		return errors.NewError("put", errors.ErrInvalidInput).WithMessage("input cannot be nil")
	}
	if in.Bucket == "" {
		return errors.NewError("put", errors.ErrInvalidInput).
			WithKey(in.Key).
			WithMessage("bucket name cannot be empty")
	}
	if err := validation.ValidateObjectKey(in.Key); err != nil {
		return err
	}
	if in.Body == nil {
		return errors.NewError("put", errors.ErrInvalidInput).
			WithBucket(in.Bucket).
			WithKey(in.Key).
			WithMessage("body cannot be nil")
	}
	if in.Size < 0 {
		return errors.NewError("put", errors.ErrInvalidInput).
			WithBucket(in.Bucket).
			WithKey(in.Key).
			WithMessage("size cannot be negative")
	}
	return validation.ValidateMetadata(in.Metadata)
}

func (c *Client) debug(ctx context.Context, msg string, args ...any) {
	if c.logger != nil {
		c.logger.DebugContext(ctx, msg, args...)
	}
}

func (c *Client) info(ctx context.Context, msg string, args ...any) {
	if c.logger != nil {
		c.logger.InfoContext(ctx, msg, args...)
	}
}

func (c *Client) warn(ctx context.Context, msg string, args ...any) {
	if c.logger != nil {
		c.logger.WarnContext(ctx, msg, args...)
	}
}
