package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/store"
)

var _ store.Store = (*FakeStore)(nil)

// StoredObject is an object recorded by FakeStore.
type StoredObject struct {
	Bucket      string
	Key         string
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// FakeStore is an in-memory store.Store instrumented for concurrency tests.
// It counts transfers in flight and records the highest count observed.
type FakeStore struct {
	// Delay is held inside Put while the transfer counts as in flight
	Delay time.Duration

	// PutFunc, when set, decides the outcome of the n-th Put (1-based, in
	// call order). Returning an error fails that transfer.
	PutFunc func(n int64, in *store.PutInput) error

	IdentityErr error
	BucketErr   error

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	mu      sync.Mutex
	objects map[string]StoredObject
	buckets []string
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{objects: make(map[string]StoredObject)}
}

// ValidateIdentity implements store.Store.
func (f *FakeStore) ValidateIdentity(context.Context) error {
	return f.IdentityErr
}

// EnsureBucket implements store.Store.
func (f *FakeStore) EnsureBucket(_ context.Context, bucket string) error {
	if f.BucketErr != nil {
		return f.BucketErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets = append(f.buckets, bucket)
	return nil
}

// Put implements store.Store.
func (f *FakeStore) Put(ctx context.Context, in *store.PutInput) (*store.PutOutput, error) {
	n := f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		peak := f.maxInFlight.Load()
		if cur <= peak || f.maxInFlight.CompareAndSwap(peak, cur) {
			break
		}
	}

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, fmt.Errorf("fake store: read body: %w", err)
	}
	if int64(len(body)) != in.Size {
		return nil, fmt.Errorf("fake store: body has %d bytes, declared %d", len(body), in.Size)
	}

	if f.PutFunc != nil {
		if err := f.PutFunc(n, in); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[in.Key] = StoredObject{
		Bucket:      in.Bucket,
		Key:         in.Key,
		Body:        bytes.Clone(body),
		ContentType: in.ContentType,
		Metadata:    in.Metadata,
	}
	return &store.PutOutput{ETag: fmt.Sprintf(`"etag-%d"`, n)}, nil
}

// Calls returns the number of Put calls made.
func (f *FakeStore) Calls() int64 {
	return f.calls.Load()
}

// MaxInFlight returns the highest number of concurrent Put calls observed.
func (f *FakeStore) MaxInFlight() int64 {
	return f.maxInFlight.Load()
}

// Objects returns a copy of the stored objects keyed by object key.
func (f *FakeStore) Objects() map[string]StoredObject {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]StoredObject, len(f.objects))
	for k, v := range f.objects {
		out[k] = v
	}
	return out
}

// Buckets returns the buckets passed to EnsureBucket, in call order.
func (f *FakeStore) Buckets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.buckets...)
}

// FailEvery returns a PutFunc that fails every n-th call with err.
func FailEvery(n int64, err error) func(int64, *store.PutInput) error {
	return func(call int64, _ *store.PutInput) error {
		if call%n == 0 {
			return err
		}
		return nil
	}
}
