package storage

import (
	"context"
	"errors"
	"os"
	"time"
)

// ErrNotFound is returned when a blob, or the container holding it, does not exist.
var ErrNotFound = errors.New("blob not found")

// Backend is one resolved connection to a remote blob account.
// A Backend is opened per archive operation and closed when it returns.
type Backend interface {
	// EnsureContainer creates the container if it is not there already.
	EnsureContainer(ctx context.Context, container string) error

	// UploadFile writes the full contents of f as the named blob, replacing any existing blob.
	UploadFile(ctx context.Context, container, name string, f *os.File) error

	// DownloadFile writes the named blob into f and returns the byte count.
	DownloadFile(ctx context.Context, container, name string, f *os.File) (int64, error)

	// Stat returns the blob's properties, or ErrNotFound.
	Stat(ctx context.Context, container, name string) (*BlobInfo, error)

	// Delete removes the named blob, or returns ErrNotFound.
	Delete(ctx context.Context, container, name string) error

	// Close releases the connection.
	Close() error
}

// BlobInfo is the subset of blob properties the archive operations use.
type BlobInfo struct {
	Container    string
	Name         string
	Size         int64
	LastModified time.Time
}
