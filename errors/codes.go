// Package errors provides the error model for batch generation and upload runs.
// It extends Go's standard error handling with structured error codes, a
// fatal/recoverable classification and operation context.
package errors

// ErrorCode represents a specific error condition.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Resource errors.

	// CodeNotFound indicates a requested resource does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a resource already exists and cannot be created again.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Permission errors.

	// CodeUnauthorized indicates the request lacks valid authentication credentials.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeForbidden indicates the authenticated identity lacks permission for the operation.
	CodeForbidden ErrorCode = "FORBIDDEN"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// Infrastructure errors.

	// CodeNetwork indicates a network operation failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates the rate limit has been exceeded.
	CodeRateLimit ErrorCode = "RATE_LIMIT_EXCEEDED"

	// CodeLocalIO indicates a local filesystem operation failed.
	CodeLocalIO ErrorCode = "LOCAL_IO_ERROR"

	// Execution errors.

	// CodeContainerFailed indicates the remote bucket could not be created.
	CodeContainerFailed ErrorCode = "CONTAINER_CREATION_FAILED"

	// CodeTransferFailed indicates a single object transfer failed.
	CodeTransferFailed ErrorCode = "TRANSFER_FAILED"

	// CodeCleanupFailed indicates local working files could not be removed.
	CodeCleanupFailed ErrorCode = "CLEANUP_FAILED"

	// CodeCanceled indicates the operation was interrupted before completion.
	CodeCanceled ErrorCode = "CANCELED"

	// System errors.

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnavailable indicates the remote service is unavailable.
	CodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Generic errors.

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)
