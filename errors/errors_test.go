package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"op only", NewError("put", cause), "put: boom"},
		{"bucket", NewError("ensureBucket", cause).WithBucket("b1"), "ensureBucket bucket b1: boom"},
		{"key", NewError("materialize", cause).WithKey("a.json"), "materialize object a.json: boom"},
		{"bucket and key", NewError("put", cause).WithBucket("b1").WithKey("a.json"), "put b1/a.json: boom"},
		{"message", NewError("put", cause).WithMessage("open file"), "put: open file: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrap_PreservesKindAndCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: %w", context.DeadlineExceeded)
	err := Wrap("validateIdentity", ErrAuthentication, cause)

	assert.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, CodeUnauthorized, err.Code)
	assert.True(t, IsFatal(err))
}

func TestWrap_NilCause(t *testing.T) {
	err := Wrap("run", ErrCanceled, nil)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, CodeCanceled, err.Code)
	assert.Equal(t, "run: canceled", err.Error())
}

func TestWrap_CauseAlreadyOfKind(t *testing.T) {
	inner := Wrap("put", ErrTransfer, errors.New("500"))
	outer := Wrap("dispatch", ErrTransfer, inner)
	assert.ErrorIs(t, outer, ErrTransfer)
	assert.Equal(t, "dispatch: put: transfer failed: 500", outer.Error())
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"unclassified", errors.New("x"), CodeUnknown},
		{"connection", fmt.Errorf("put: %w", ErrConnection), CodeNetwork},
		{"local io", Wrap("materialize", ErrLocalIO, errors.New("disk full")), CodeLocalIO},
		{"explicit code", New(CodeInternal, "invalid state transition"), CodeInternal},
		{"deadline", fmt.Errorf("put: %w", context.DeadlineExceeded), CodeTimeout},
		{"kind over cause", Wrap("put", ErrTransfer, context.DeadlineExceeded), CodeTransferFailed},
		{"owned bucket", ErrBucketAlreadyOwned, CodeAlreadyExists},
		{"throttled", ErrTooManyRequests, CodeRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	fatal := []error{ErrAuthentication, ErrContainerCreation, ErrLocalIO, ErrStoreUnreachable, ErrKeyEscrow, ErrInvalidConfig}
	for _, err := range fatal {
		require.True(t, IsFatal(Wrap("op", err, errors.New("cause"))), err.Error())
	}

	recoverable := []error{nil, ErrTransfer, ErrCleanup, ErrConnection, errors.New("other")}
	for _, err := range recoverable {
		assert.False(t, IsFatal(err))
	}
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsConnection(fmt.Errorf("x: %w", ErrConnection)))
	assert.False(t, IsConnection(ErrAccessDenied))
}
