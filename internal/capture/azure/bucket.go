// Package azure provides a capture store backed by Azure Blob Storage.
package azure

import (
	"context"
	"fmt"
	"io"
	"os"

	"pipestream/internal/capture"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// Container adapts an Azure blob container to remote.Bucket.
type Container struct {
	client    *azblob.Client
	container string
}

func NewContainer(client *azblob.Client, container string) *Container {
	return &Container{client: client, container: container}
}

func (c *Container) Upload(ctx context.Context, key string, f *os.File, _ int64) error {
	_, err := c.client.UploadFile(ctx, c.container, key, f, nil)
	return err
}

func (c *Container) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, c.container, key, nil)
	if err != nil {
		return nil, notFound(err, key)
	}
	return resp.Body, nil
}

func (c *Container) Delete(ctx context.Context, key string) error {
	if _, err := c.client.DeleteBlob(ctx, c.container, key, nil); err != nil {
		return notFound(err, key)
	}
	return nil
}

func notFound(err error, key string) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return fmt.Errorf("%w: %s", capture.ErrNotFound, key)
	}
	return err
}
