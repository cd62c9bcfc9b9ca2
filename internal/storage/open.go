package storage

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies which backend a connection string resolves to.
type Kind string

const (
	KindAzure Kind = "azure"
	KindS3    Kind = "s3"
	KindGCS   Kind = "gcs"
	KindFile  Kind = "file"
)

// KindOf classifies a connection string by its scheme. Anything without a
// recognised scheme is treated as an Azure storage connection string.
func KindOf(connection string) Kind {
	lower := strings.ToLower(strings.TrimSpace(connection))
	switch {
	case strings.HasPrefix(lower, "s3://"):
		return KindS3
	case strings.HasPrefix(lower, "gs://"):
		return KindGCS
	case strings.HasPrefix(lower, "file://"):
		return KindFile
	default:
		return KindAzure
	}
}

// Open parses connection and returns a Backend for it. No state is cached
// between calls: every call builds a fresh client.
func Open(ctx context.Context, connection string) (Backend, error) {
	connection = strings.TrimSpace(connection)
	if connection == "" {
		return nil, fmt.Errorf("empty connection string")
	}

	switch KindOf(connection) {
	case KindS3:
		return NewS3Backend(ctx, connection)
	case KindGCS:
		return NewGCSBackend(ctx, connection)
	case KindFile:
		return NewFileBackendFromURL(connection)
	default:
		return NewAzureBackend(connection)
	}
}
