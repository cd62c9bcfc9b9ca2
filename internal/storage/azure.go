package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBackend is a Backend over Azure Blob Storage, built from a storage
// account connection string. Blobs are written as block blobs.
type AzureBackend struct {
	client *azblob.Client
}

// NewAzureBackend parses connection and creates a blob client. Parsing does
// not contact the service; an unreachable account surfaces on first use.
func NewAzureBackend(connection string) (*AzureBackend, error) {
	client, err := azblob.NewClientFromConnectionString(connection, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: create client from connection string: %w", err)
	}
	return &AzureBackend{client: client}, nil
}

func (s *AzureBackend) EnsureContainer(ctx context.Context, container string) error {
	_, err := s.client.CreateContainer(ctx, container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("azure: create container %s: %w", container, err)
	}
	return nil
}

func (s *AzureBackend) UploadFile(ctx context.Context, container, name string, f *os.File) error {
	if _, err := s.client.UploadFile(ctx, container, name, f, nil); err != nil {
		return fmt.Errorf("azure: upload %s/%s: %w", container, name, err)
	}
	return nil
}

func (s *AzureBackend) DownloadFile(ctx context.Context, container, name string, f *os.File) (int64, error) {
	n, err := s.client.DownloadFile(ctx, container, name, f, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return n, fmt.Errorf("azure: download %s/%s: %w", container, name, ErrNotFound)
		}
		return n, fmt.Errorf("azure: download %s/%s: %w", container, name, err)
	}
	return n, nil
}

func (s *AzureBackend) Stat(ctx context.Context, container, name string) (*BlobInfo, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(container).NewBlobClient(name)
	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, fmt.Errorf("azure: %s/%s: %w", container, name, ErrNotFound)
		}
		return nil, fmt.Errorf("azure: get properties %s/%s: %w", container, name, err)
	}

	info := &BlobInfo{Container: container, Name: name}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		info.LastModified = props.LastModified.UTC()
	}
	return info, nil
}

func (s *AzureBackend) Delete(ctx context.Context, container, name string) error {
	if _, err := s.client.DeleteBlob(ctx, container, name, nil); err != nil {
		if isAzureNotFound(err) {
			return fmt.Errorf("azure: delete %s/%s: %w", container, name, ErrNotFound)
		}
		return fmt.Errorf("azure: delete %s/%s: %w", container, name, err)
	}
	return nil
}

// Close satisfies Backend; the SDK client holds no per-connection resources.
func (s *AzureBackend) Close() error { return nil }

// isAzureNotFound reports whether err means the blob or its container is absent.
// HEAD responses carry no error body, so the status code is checked as well.
func isAzureNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}

var _ Backend = (*AzureBackend)(nil)
