package minio

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/store"
)

type fakeAPI struct {
	listErr error
	makeErr error
	putErr  error

	madeRegion string
	putOpts    minio.PutObjectOptions
	putBody    []byte
	putSize    int64
}

func (f *fakeAPI) ListBuckets(context.Context) ([]minio.BucketInfo, error) {
	return nil, f.listErr
}

func (f *fakeAPI) MakeBucket(_ context.Context, _ string, opts minio.MakeBucketOptions) error {
	f.madeRegion = opts.Region
	return f.makeErr
}

func (f *fakeAPI) PutObject(
	_ context.Context,
	bucket, key string,
	reader io.Reader,
	size int64,
	opts minio.PutObjectOptions,
) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	f.putBody, _ = io.ReadAll(reader)
	f.putSize = size
	f.putOpts = opts
	return minio.UploadInfo{Bucket: bucket, Key: key, ETag: "etag-1", VersionID: "v1", Size: size}, nil
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.CodeOf(err))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestNew_ValidEndpoint(t *testing.T) {
	c, err := New(Config{Endpoint: "localhost:9000", AccessKeyID: "minio", SecretAccessKey: "minio123"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestClient_Put(t *testing.T) {
	api := &fakeAPI{}
	c := NewWithAPI(api, "us-east-1")

	out, err := c.Put(context.Background(), &store.PutInput{
		Bucket:      "json-batch",
		Key:         "a.json",
		Body:        bytes.NewReader([]byte("{}")),
		Size:        2,
		ContentType: "application/json",
		Metadata:    map[string]string{"logical-size": "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "etag-1", out.ETag)
	assert.Equal(t, "v1", out.VersionID)
	assert.Equal(t, []byte("{}"), api.putBody)
	assert.Equal(t, int64(2), api.putSize)
	assert.Equal(t, "application/json", api.putOpts.ContentType)
	assert.Equal(t, "2", api.putOpts.UserMetadata["logical-size"])
}

func TestClient_Put_InvalidInput(t *testing.T) {
	c := NewWithAPI(&fakeAPI{}, "")
	_, err := c.Put(context.Background(), &store.PutInput{Bucket: "b", Key: "k"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = c.Put(context.Background(), &store.PutInput{Bucket: "b", Key: "/abs", Body: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, errors.ErrInvalidObjectKey)
}

func TestClient_Put_Errors(t *testing.T) {
	tests := []struct {
		name   string
		putErr error
		want   error
	}{
		{"connection", &url.Error{Op: "Put", URL: "http://localhost:9000", Err: io.ErrUnexpectedEOF}, errors.ErrConnection},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, errors.ErrAccessDenied},
		{"throttled", minio.ErrorResponse{Code: "SlowDown", StatusCode: 503}, errors.ErrTooManyRequests},
		{"missing bucket", minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: 404}, errors.ErrBucketNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewWithAPI(&fakeAPI{putErr: tt.putErr}, "")
			_, err := c.Put(context.Background(), &store.PutInput{Bucket: "b-1", Key: "k", Body: bytes.NewReader(nil)})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_EnsureBucket(t *testing.T) {
	tests := []struct {
		name    string
		makeErr error
		wantErr error
		wantLog string
	}{
		{name: "created", wantLog: "bucket created"},
		{name: "owned", makeErr: minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou"}, wantLog: "bucket already owned"},
		{name: "exists", makeErr: minio.ErrorResponse{Code: "BucketAlreadyExists"}, wantLog: "bucket already exists"},
		{name: "denied", makeErr: minio.ErrorResponse{Code: "AccessDenied"}, wantErr: errors.ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{makeErr: tt.makeErr}
			rec, logger := testutil.NewLogRecorder()
			c := NewWithAPI(api, "eu-central-1", WithLogger(logger))

			err := c.EnsureBucket(context.Background(), "json-batch-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "eu-central-1", api.madeRegion)
			assert.Len(t, rec.Find(tt.wantLog), 1)
		})
	}
}

func TestClient_ValidateIdentity(t *testing.T) {
	require.NoError(t, NewWithAPI(&fakeAPI{}, "").ValidateIdentity(context.Background()))

	err := NewWithAPI(&fakeAPI{listErr: minio.ErrorResponse{Code: "InvalidAccessKeyId"}}, "").
		ValidateIdentity(context.Background())
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
}
