package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error represents a failed operation with context about where it failed.
// It wraps the underlying error with a code, the operation name and the
// bucket/key involved for better debugging.
type Error struct {
	// Code classifies the failure
	Code ErrorCode

	// Op is the operation that failed (e.g., "put", "ensureBucket", "materialize")
	Op string

	// Bucket is the bucket name (if applicable)
	Bucket string

	// Key is the object key or local artifact name (if applicable)
	Key string

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
// The code is derived from the error chain.
func NewError(op string, err error) *Error {
	return &Error{
		Code: CodeOf(err),
		Op:   op,
		Err:  err,
	}
}

// New creates an Error carrying an explicit code and message. It is meant
// for codes without a kind sentinel, such as CodeInternal; use Wrap for kinds.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code: code,
		Op:   string(code),
		Err:  errors.New(message),
	}
}

// Wrap attaches a kind sentinel to cause. Both remain reachable through
// errors.Is and errors.As.
func Wrap(op string, kind, cause error) *Error {
	var err error
	switch {
	case cause == nil:
		err = kind
	case errors.Is(cause, kind):
		err = cause
	default:
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &Error{
		Code: CodeOf(kind),
		Op:   op,
		Err:  err,
	}
}

// Kinds of failure a batch run distinguishes. Fatal kinds stop the run.
var (
	// ErrAuthentication indicates the credential check failed
	ErrAuthentication = errors.New("authentication failed")

	// ErrContainerCreation indicates the bucket could not be created
	ErrContainerCreation = errors.New("container creation failed")

	// ErrLocalIO indicates a local write or read failed while materializing
	ErrLocalIO = errors.New("local i/o failed")

	// ErrTransfer indicates a single object transfer failed
	ErrTransfer = errors.New("transfer failed")

	// ErrCleanup indicates the working directory could not be removed
	ErrCleanup = errors.New("cleanup failed")

	// ErrStoreUnreachable indicates the object store stopped answering altogether
	ErrStoreUnreachable = errors.New("object store unreachable")

	// ErrKeyEscrow indicates the obfuscation key could not be stored
	ErrKeyEscrow = errors.New("key escrow failed")

	// ErrInvalidConfig indicates the run configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCanceled indicates work was not attempted because the run was interrupted
	ErrCanceled = errors.New("canceled")
)

// Sentinel errors used to classify object store failures.
var (
	// ErrConnection indicates the request never reached the store
	ErrConnection = errors.New("connection error")

	// ErrAccessDenied indicates that access to the resource is denied
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidCredentials indicates the credentials are missing or invalid
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrBucketAlreadyExists indicates the bucket name is taken
	ErrBucketAlreadyExists = errors.New("bucket already exists")

	// ErrBucketAlreadyOwned indicates the caller already owns the bucket
	ErrBucketAlreadyOwned = errors.New("bucket already owned by you")

	// ErrBucketNotFound indicates that the requested bucket does not exist
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidBucketName indicates that the bucket name is invalid
	ErrInvalidBucketName = errors.New("invalid bucket name")

	// ErrInvalidObjectKey indicates that the object key is invalid
	ErrInvalidObjectKey = errors.New("invalid object key")

	// ErrTooManyRequests indicates that the request rate is too high
	ErrTooManyRequests = errors.New("too many requests")
)

var codes = []struct {
	err  error
	code ErrorCode
}{
	{ErrAuthentication, CodeUnauthorized},
	{ErrInvalidCredentials, CodeUnauthorized},
	{ErrAccessDenied, CodeForbidden},
	{ErrContainerCreation, CodeContainerFailed},
	{ErrLocalIO, CodeLocalIO},
	{ErrStoreUnreachable, CodeUnavailable},
	{ErrKeyEscrow, CodeUnavailable},
	{ErrInvalidConfig, CodeInvalidConfig},
	{ErrCanceled, CodeCanceled},
	{ErrCleanup, CodeCleanupFailed},
	{ErrConnection, CodeNetwork},
	{ErrTooManyRequests, CodeRateLimit},
	{ErrBucketAlreadyExists, CodeAlreadyExists},
	{ErrBucketAlreadyOwned, CodeAlreadyExists},
	{ErrBucketNotFound, CodeNotFound},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrInvalidBucketName, CodeInvalidInput},
	{ErrInvalidObjectKey, CodeInvalidInput},
	{ErrTransfer, CodeTransferFailed},
	{context.DeadlineExceeded, CodeTimeout},
}

// CodeOf returns the code of the first classified error in err's chain.
// An *Error with an explicit code wins over sentinel lookup.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != "" && e.Code != CodeUnknown {
		return e.Code
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

// IsFatal reports whether err must stop a batch run.
// Transfer and cleanup failures are recoverable; everything else is not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrContainerCreation) ||
		errors.Is(err, ErrLocalIO) ||
		errors.Is(err, ErrStoreUnreachable) ||
		errors.Is(err, ErrKeyEscrow) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsConnection reports whether err means the request never reached the store.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
