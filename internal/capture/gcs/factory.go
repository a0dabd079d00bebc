package gcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pipestream/internal/capture"
	"pipestream/internal/capture/remote"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Factory parameter keys.
const (
	ParamBucket          = "bucket"
	ParamPrefix          = "prefix"
	ParamEndpoint        = "endpoint"
	ParamCredentialsFile = "credentialsFile"
	ParamAnonymous       = "anonymous" // "true" disables authentication (emulators)
	ParamSpoolDir        = "spoolDir"
)

var ErrMissingBucketParam = errors.New("missing required parameter: bucket")

// NewFactory returns a factory function that creates GCS capture stores.
// Credentials default to Application Default Credentials.
func NewFactory() capture.Factory {
	return func(params map[string]string, logger *slog.Logger) (capture.Store, error) {
		bucket := params[ParamBucket]
		if bucket == "" {
			return nil, ErrMissingBucketParam
		}

		var opts []option.ClientOption
		if ep := params[ParamEndpoint]; ep != "" {
			opts = append(opts, option.WithEndpoint(ep))
		}
		switch {
		case params[ParamAnonymous] == "true":
			opts = append(opts, option.WithoutAuthentication())
		case params[ParamCredentialsFile] != "":
			opts = append(opts, option.WithCredentialsFile(params[ParamCredentialsFile])) //nolint:staticcheck // SA1019: explicit key files are still supported
		}

		client, err := storage.NewClient(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}

		return remote.NewStore(remote.Config{
			Bucket:   NewBucket(client.Bucket(bucket)),
			Prefix:   params[ParamPrefix],
			SpoolDir: params[ParamSpoolDir],
			Type:     "gcs",
			Logger:   logger,
		})
	}
}
