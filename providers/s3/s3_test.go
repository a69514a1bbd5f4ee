package s3bucket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory S3Client.
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", *params.Key)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*params.Key]; !ok {
		return nil, fmt.Errorf("NotFound: %s", *params.Key)
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewWithClient(newFakeS3(), "backups", "clinic")

	require.NoError(t, store.Put(ctx, "clinicvault-full-20260301T100000Z", []byte("wrapped")))

	data, err := store.Get(ctx, "clinicvault-full-20260301T100000Z")
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped"), data)
}

func TestPutRefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := NewWithClient(fake, "backups", "")

	require.NoError(t, store.Put(ctx, "obj", []byte("first")))
	assert.Error(t, store.Put(ctx, "obj", []byte("second")))
	assert.Equal(t, []byte("first"), fake.objects["obj"])
}

func TestKeyPrefix(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := NewWithClient(fake, "backups", "tenant-a")

	require.NoError(t, store.Put(ctx, "obj", []byte("data")))
	assert.Contains(t, fake.objects, "tenant-a/obj")

	_, err := store.Get(ctx, "obj")
	require.NoError(t, err)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), "", "")
	assert.Error(t, err)
}
