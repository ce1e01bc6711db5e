package s3

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
)

// convertAWSError classifies an AWS SDK error with a sentinel from the
// errors package. The original error stays in the chain.
func convertAWSError(err error) error {
	if err == nil {
		return nil
	}
	if sentinel := classify(err); sentinel != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}

func classify(err error) error {
	var sendErr *smithyhttp.RequestSendError
	if stderrors.As(err, &sendErr) {
		return errors.ErrConnection
	}

	var alreadyExists *types.BucketAlreadyExists
	if stderrors.As(err, &alreadyExists) {
		return errors.ErrBucketAlreadyExists
	}

	var alreadyOwned *types.BucketAlreadyOwnedByYou
	if stderrors.As(err, &alreadyOwned) {
		return errors.ErrBucketAlreadyOwned
	}

	var noSuchBucket *types.NoSuchBucket
	if stderrors.As(err, &noSuchBucket) {
		return errors.ErrBucketNotFound
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AllAccessDisabled", "AccountProblem":
			return errors.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken", "TokenRefreshRequired":
			return errors.ErrInvalidCredentials
		case "SlowDown", "Throttling", "ThrottlingException", "TooManyRequests", "RequestLimitExceeded":
			return errors.ErrTooManyRequests
		case "BucketAlreadyExists":
			return errors.ErrBucketAlreadyExists
		case "BucketAlreadyOwnedByYou":
			return errors.ErrBucketAlreadyOwned
		case "NoSuchBucket":
			return errors.ErrBucketNotFound
		}
	}

	// Some S3-compatible services return codes the SDK does not model.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "BucketAlreadyOwnedByYou"):
		return errors.ErrBucketAlreadyOwned
	case strings.Contains(msg, "BucketAlreadyExists"):
		return errors.ErrBucketAlreadyExists
	case strings.Contains(msg, "NoSuchBucket"):
		return errors.ErrBucketNotFound
	}
	return nil
}
