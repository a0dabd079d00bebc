package azure

import (
	"errors"
	"fmt"
	"log/slog"

	"pipestream/internal/capture"
	"pipestream/internal/capture/remote"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Factory parameter keys.
const (
	ParamConnectionString = "connectionString"
	ParamContainer        = "container"
	ParamPrefix           = "prefix"
	ParamSpoolDir         = "spoolDir"
)

var (
	ErrMissingConnectionString = errors.New("missing required parameter: connectionString")
	ErrMissingContainerParam   = errors.New("missing required parameter: container")
)

// NewFactory returns a factory function that creates Azure Blob capture stores.
func NewFactory() capture.Factory {
	return func(params map[string]string, logger *slog.Logger) (capture.Store, error) {
		conn := params[ParamConnectionString]
		if conn == "" {
			return nil, ErrMissingConnectionString
		}
		container := params[ParamContainer]
		if container == "" {
			return nil, ErrMissingContainerParam
		}
		client, err := azblob.NewClientFromConnectionString(conn, nil)
		if err != nil {
			return nil, fmt.Errorf("create azure blob client: %w", err)
		}
		return remote.NewStore(remote.Config{
			Bucket:   NewContainer(client, container),
			Prefix:   params[ParamPrefix],
			SpoolDir: params[ParamSpoolDir],
			Type:     "azure",
			Logger:   logger,
		})
	}
}
