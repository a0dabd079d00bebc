// Package s3 provides a capture store backed by Amazon S3 or any
// S3-compatible object store.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"pipestream/internal/capture"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// API is the subset of *s3.Client used by Bucket.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Bucket adapts an S3 bucket to remote.Bucket.
type Bucket struct {
	api  API
	name string
}

func NewBucket(api API, name string) *Bucket {
	return &Bucket{api: api, name: name}
}

func (b *Bucket) Upload(ctx context.Context, key string, f *os.File, size int64) error {
	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.name),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
	})
	return err
}

func (b *Bucket) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, notFound(err, key)
	}
	return out.Body, nil
}

// Delete checks for the object first because S3 deletes are idempotent
// and never report a missing key.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	if _, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	}); err != nil {
		return notFound(err, key)
	}
	_, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	return err
}

func notFound(err error, key string) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return fmt.Errorf("%w: %s", capture.ErrNotFound, key)
	}
	return err
}
