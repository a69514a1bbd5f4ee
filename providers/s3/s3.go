// Package s3bucket stores backup artifacts in an S3 bucket, implementing
// the backup coordinator's ArtifactStore.
package s3bucket

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client is the subset of the S3 API the store uses.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// ArtifactStore writes and reads backup artifact objects in one bucket under
// an optional key prefix. Objects are already wrapped by the coordinator;
// the store never sees plaintext.
type ArtifactStore struct {
	client S3Client
	bucket string
	prefix string
}

// New loads the default AWS configuration and returns a store over the
// given bucket.
func New(ctx context.Context, bucket, prefix string) (*ArtifactStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return &ArtifactStore{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

// NewWithClient returns a store over an existing client, for tests.
func NewWithClient(client S3Client, bucket, prefix string) *ArtifactStore {
	return &ArtifactStore{client: client, bucket: bucket, prefix: prefix}
}

func (a *ArtifactStore) key(name string) string {
	if a.prefix == "" {
		return name
	}
	return a.prefix + "/" + name
}

// Put uploads an artifact object. Existing objects are not overwritten;
// artifacts are immutable once written.
func (a *ArtifactStore) Put(ctx context.Context, name string, data []byte) error {
	key := a.key(name)
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return fmt.Errorf("artifact object '%s' already exists", name)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact object '%s': %w", name, err)
	}
	return nil
}

// Get downloads an artifact object.
func (a *ArtifactStore) Get(ctx context.Context, name string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(name)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact object '%s': %w", name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact object '%s': %w", name, err)
	}
	return data, nil
}
