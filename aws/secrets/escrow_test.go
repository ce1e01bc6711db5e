package secrets

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	batcherrors "github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/testutil"
)

// mockManagerAPI implements ManagerAPI for testing
type mockManagerAPI struct {
	createSecretFunc   func(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	putSecretValueFunc func(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
}

func (m *mockManagerAPI) CreateSecret(
	ctx context.Context,
	params *secretsmanager.CreateSecretInput,
	optFns ...func(*secretsmanager.Options),
) (*secretsmanager.CreateSecretOutput, error) {
	if m.createSecretFunc != nil {
		return m.createSecretFunc(ctx, params, optFns...)
	}
	return nil, fmt.Errorf("CreateSecret not implemented")
}

func (m *mockManagerAPI) PutSecretValue(
	ctx context.Context,
	params *secretsmanager.PutSecretValueInput,
	optFns ...func(*secretsmanager.Options),
) (*secretsmanager.PutSecretValueOutput, error) {
	if m.putSecretValueFunc != nil {
		return m.putSecretValueFunc(ctx, params, optFns...)
	}
	return nil, fmt.Errorf("PutSecretValue not implemented")
}

func TestEscrow_Store_CreatesSecret(t *testing.T) {
	var got *secretsmanager.CreateSecretInput
	api := &mockManagerAPI{
		createSecretFunc: func(_ context.Context, in *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
			got = in
			return &secretsmanager.CreateSecretOutput{}, nil
		},
	}
	e := NewWithAPI(api, WithKMSKey("alias/batch"), WithDescription("payload key"))

	require.NoError(t, e.Store(context.Background(), "s3batch/run-1", "a2V5"))
	assert.Equal(t, "s3batch/run-1", aws.ToString(got.Name))
	assert.Equal(t, "a2V5", aws.ToString(got.SecretString))
	assert.Equal(t, "alias/batch", aws.ToString(got.KmsKeyId))
	assert.Equal(t, "payload key", aws.ToString(got.Description))
}

func TestEscrow_Store_ExistingSecretAddsVersion(t *testing.T) {
	var put *secretsmanager.PutSecretValueInput
	api := &mockManagerAPI{
		createSecretFunc: func(context.Context, *secretsmanager.CreateSecretInput, ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
			return nil, &smithy.GenericAPIError{Code: ResourceExistsException, Message: "exists"}
		},
		putSecretValueFunc: func(_ context.Context, in *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
			put = in
			return &secretsmanager.PutSecretValueOutput{}, nil
		},
	}

	require.NoError(t, NewWithAPI(api).Store(context.Background(), "name", "value"))
	require.NotNil(t, put)
	assert.Equal(t, "name", aws.ToString(put.SecretId))
	assert.Equal(t, "value", aws.ToString(put.SecretString))
}

func TestEscrow_Store_Errors(t *testing.T) {
	tests := []struct {
		name      string
		createErr error
		putErr    error
		wantIs    error
		wantText  string
	}{
		{
			name:      "access denied",
			createErr: &smithy.GenericAPIError{Code: AccessDeniedException},
			wantIs:    batcherrors.ErrAccessDenied,
		},
		{
			name:      "api error",
			createErr: &smithy.GenericAPIError{Code: "LimitExceededException", Message: "too many"},
			wantText:  "CreateSecret operation failed: LimitExceededException: too many",
		},
		{
			name:      "put fails after exists",
			createErr: &smithy.GenericAPIError{Code: ResourceExistsException},
			putErr:    errors.New("network down"),
			wantText:  "PutSecretValue operation failed: network down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockManagerAPI{
				createSecretFunc: func(context.Context, *secretsmanager.CreateSecretInput, ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
					return nil, tt.createErr
				},
				putSecretValueFunc: func(context.Context, *secretsmanager.PutSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
					return nil, tt.putErr
				},
			}
			rec, logger := testutil.NewLogRecorder()

			err := NewWithAPI(api, WithLogger(logger)).Store(context.Background(), "name", "super-secret-value")
			require.Error(t, err)
			assert.ErrorIs(t, err, batcherrors.ErrKeyEscrow)
			assert.True(t, batcherrors.IsFatal(err))
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantText != "" {
				assert.Contains(t, err.Error(), tt.wantText)
			}

			for _, entry := range rec.Entries() {
				for _, v := range entry.Attrs {
					assert.NotContains(t, fmt.Sprint(v), "super-secret-value", "secret value must never be logged")
				}
			}
		})
	}
}

func TestEscrow_Store_RejectsEmptyInput(t *testing.T) {
	e := NewWithAPI(&mockManagerAPI{})
	assert.ErrorIs(t, e.Store(context.Background(), "", "v"), batcherrors.ErrKeyEscrow)
	assert.ErrorIs(t, e.Store(context.Background(), "n", ""), batcherrors.ErrKeyEscrow)
}

func TestNewRetryer(t *testing.T) {
	r := newRetryer()
	assert.Equal(t, maxAttempts, r.MaxAttempts())
	assert.True(t, r.IsErrorRetryable(&smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}))
	assert.True(t, r.IsErrorRetryable(&smithy.GenericAPIError{Code: "ThrottlingException"}))
	assert.False(t, r.IsErrorRetryable(&smithy.GenericAPIError{Code: AccessDeniedException}))
}
