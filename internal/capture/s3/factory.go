package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pipestream/internal/capture"
	"pipestream/internal/capture/remote"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Factory parameter keys.
const (
	ParamBucket    = "bucket"
	ParamPrefix    = "prefix"
	ParamRegion    = "region"
	ParamEndpoint  = "endpoint" // S3-compatible endpoint (MinIO, R2, ...)
	ParamAccessKey = "accessKey"
	ParamSecretKey = "secretKey"
	ParamSpoolDir  = "spoolDir"
)

var (
	ErrMissingBucketParam = errors.New("missing required parameter: bucket")
	ErrPartialCredentials = errors.New("accessKey and secretKey must be set together")
)

// NewFactory returns a factory function that creates S3 capture stores.
// Credentials default to the AWS SDK chain (environment, shared config,
// instance role) unless accessKey and secretKey are given.
func NewFactory() capture.Factory {
	return func(params map[string]string, logger *slog.Logger) (capture.Store, error) {
		bucket := params[ParamBucket]
		if bucket == "" {
			return nil, ErrMissingBucketParam
		}
		ak, sk := params[ParamAccessKey], params[ParamSecretKey]
		if (ak == "") != (sk == "") {
			return nil, ErrPartialCredentials
		}

		var opts []func(*awsconfig.LoadOptions) error
		if r := params[ParamRegion]; r != "" {
			opts = append(opts, awsconfig.WithRegion(r))
		}
		if ak != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(ak, sk, "")))
		}
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}

		endpoint := params[ParamEndpoint]
		client := s3.NewFromConfig(cfg, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		})

		return remote.NewStore(remote.Config{
			Bucket:   NewBucket(client, bucket),
			Prefix:   params[ParamPrefix],
			SpoolDir: params[ParamSpoolDir],
			Type:     "s3",
			Logger:   logger,
		})
	}
}
