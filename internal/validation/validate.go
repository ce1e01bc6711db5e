package validation

import (
	"fmt"
	"net"
	"path"
	"strings"
	"unicode"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
)

const (
	minBucketLen     = 3
	maxBucketLen     = 63
	maxKeyLen        = 1024
	maxMetaKeyLen    = 128
	maxMetaValueLen  = 2048
	maxKeyPrefixLen  = 512
	opValidateBucket = "validateBucketName"
	opValidateKey    = "validateObjectKey"
	opValidateMeta   = "validateMetadata"
)

type bucketRule struct {
	invalid func(string) bool
	message string
}

// bucketRules are applied in order; the first failing rule is reported.
var bucketRules = []bucketRule{
	{
		func(b string) bool { return b == "" },
		"bucket name cannot be empty",
	},
	{
		func(b string) bool { return len(b) < minBucketLen || len(b) > maxBucketLen },
		"bucket name must be between 3 and 63 characters long",
	},
	{
		func(b string) bool { return strings.IndexFunc(b, isInvalidBucketChar) >= 0 },
		"bucket name can only contain lowercase letters, numbers, dots, and hyphens",
	},
	{
		func(b string) bool { return strings.ContainsAny(b[:1], "-.") || strings.ContainsAny(b[len(b)-1:], "-.") },
		"bucket name cannot start or end with a hyphen or dot",
	},
	{
		func(b string) bool { return net.ParseIP(b) != nil },
		"bucket name cannot be formatted as an IP address",
	},
	{
		func(b string) bool { return strings.Contains(b, "..") || strings.Contains(b, "--") },
		"bucket name cannot contain two adjacent periods or hyphens",
	},
	{
		func(b string) bool { return b == "localhost" },
		"bucket name cannot be a reserved word",
	},
}

// ValidateBucketName validates that a bucket name is DNS-compliant according
// to S3 naming rules. Returns an error wrapping ErrInvalidBucketName.
func ValidateBucketName(bucket string) error {
	for _, rule := range bucketRules {
		if rule.invalid(bucket) {
			return errors.NewError(opValidateBucket, errors.ErrInvalidBucketName).
				WithBucket(bucket).
				WithMessage(rule.message)
		}
	}
	return nil
}

func isInvalidBucketChar(r rune) bool {
	return (r < '0' || r > '9') && (r < 'a' || r > 'z') && r != '.' && r != '-'
}

// ValidateObjectKey validates an object key: non-empty, at most 1024 bytes,
// no traversal sequences, no control characters.
func ValidateObjectKey(key string) error {
	var msg string
	switch {
	case key == "":
		msg = "object key cannot be empty"
	case hasPathTraversal(key):
		msg = "object key cannot contain path traversal sequences"
	case len(key) > maxKeyLen:
		msg = "object key cannot exceed 1024 characters"
	case strings.IndexFunc(key, unicode.IsControl) >= 0:
		msg = "object key cannot contain control characters"
	default:
		return nil
	}
	return errors.NewError(opValidateKey, errors.ErrInvalidObjectKey).
		WithKey(key).
		WithMessage(msg)
}

// ValidateKeyPrefix validates a key prefix. An empty prefix is allowed;
// otherwise the prefix must itself be a valid key and leave room for names.
func ValidateKeyPrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if len(prefix) > maxKeyPrefixLen {
		return errors.NewError(opValidateKey, errors.ErrInvalidObjectKey).
			WithKey(prefix).
			WithMessage("key prefix cannot exceed 512 characters")
	}
	return ValidateObjectKey(prefix)
}

// ValidateMetadata validates user metadata keys and values according to S3 rules.
func ValidateMetadata(metadata map[string]string) error {
	for key, value := range metadata {
		if err := validateMetadataKey(key); err != nil {
			return err
		}
		if err := validateMetadataValue(key, value); err != nil {
			return err
		}
	}
	return nil
}

func hasPathTraversal(key string) bool {
	if strings.Contains(key, "..") {
		return true
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(path.Clean(key), "/") {
		return true
	}
	// Windows drive paths such as C:\ or C:/
	return len(key) >= 3 && key[1] == ':' && (key[2] == '\\' || key[2] == '/')
}

func validateMetadataKey(key string) error {
	if key == "" {
		return errors.NewError(opValidateMeta, errors.ErrInvalidInput).
			WithMessage("metadata key cannot be empty")
	}
	if len(key) > maxMetaKeyLen {
		return errors.NewError(opValidateMeta, errors.ErrInvalidInput).
			WithMessage("metadata key cannot exceed 128 characters")
	}
	lower := strings.ToLower(key)
	for _, prefix := range []string{"aws:", "x-amz-", "x-amz:"} {
		if strings.HasPrefix(lower, prefix) {
			return errors.NewError(opValidateMeta, errors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("metadata key cannot start with reserved prefix: %s", prefix))
		}
	}
	for _, r := range key {
		if r <= ' ' || r > '~' {
			return errors.NewError(opValidateMeta, errors.ErrInvalidInput).
				WithMessage("metadata key can only contain printable ASCII characters")
		}
	}
	return nil
}

func validateMetadataValue(key, value string) error {
	if len(value) > maxMetaValueLen {
		return errors.NewError(opValidateMeta, errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("metadata value for %q cannot exceed 2048 characters", key))
	}
	for _, r := range value {
		if !unicode.IsPrint(r) {
			return errors.NewError(opValidateMeta, errors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("metadata value for %q can only contain printable characters", key))
		}
	}
	return nil
}
