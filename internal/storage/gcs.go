package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSOptions are the settings carried in a gs:// connection string:
//
//	gs://?project=P&endpoint=http://localhost:4443/storage/v1/&credentials_file=/etc/gcs.json
//
// Containers map onto buckets; project is only needed to create buckets.
type GCSOptions struct {
	Project         string
	Endpoint        string
	CredentialsFile string
}

// ParseGCSConnection extracts GCSOptions from a gs:// connection string.
func ParseGCSConnection(connection string) (GCSOptions, error) {
	u, err := url.Parse(connection)
	if err != nil {
		return GCSOptions{}, fmt.Errorf("gcs: parse connection: %w", err)
	}
	q := u.Query()
	return GCSOptions{
		Project:         q.Get("project"),
		Endpoint:        q.Get("endpoint"),
		CredentialsFile: q.Get("credentials_file"),
	}, nil
}

// GCSBackend is a Backend over Google Cloud Storage.
type GCSBackend struct {
	client  *storage.Client
	project string
}

// NewGCSBackend creates a storage client for the options in connection.
// An endpoint without credentials is assumed to be an emulator.
func NewGCSBackend(ctx context.Context, connection string) (*GCSBackend, error) {
	opts, err := ParseGCSConnection(connection)
	if err != nil {
		return nil, err
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
		if opts.CredentialsFile == "" {
			clientOpts = append(clientOpts, option.WithoutAuthentication())
		}
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}
	return &GCSBackend{client: client, project: opts.Project}, nil
}

func (s *GCSBackend) EnsureContainer(ctx context.Context, container string) error {
	bucket := s.client.Bucket(container)
	_, err := bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("gcs: bucket attrs %s: %w", container, err)
	}
	if s.project == "" {
		return fmt.Errorf("gcs: bucket %s does not exist and no project is configured to create it", container)
	}
	if err := bucket.Create(ctx, s.project, nil); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("gcs: create bucket %s: %w", container, err)
	}
	return nil
}

// UploadFile streams f into the object. A failed read cancels the writer so
// Close does not commit what was copied so far.
func (s *GCSBackend) UploadFile(ctx context.Context, container, name string, f *os.File) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(container).Object(name).NewWriter(wctx)
	if _, err := io.Copy(w, f); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("gcs: write %s/%s: %w", container, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: commit %s/%s: %w", container, name, err)
	}
	return nil
}

func (s *GCSBackend) DownloadFile(ctx context.Context, container, name string, f *os.File) (int64, error) {
	r, err := s.client.Bucket(container).Object(name).NewReader(ctx)
	if err != nil {
		if isGCSNotFound(err) {
			return 0, fmt.Errorf("gcs: read %s/%s: %w", container, name, ErrNotFound)
		}
		return 0, fmt.Errorf("gcs: read %s/%s: %w", container, name, err)
	}
	defer r.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return n, fmt.Errorf("gcs: copy %s/%s: %w", container, name, err)
	}
	return n, nil
}

func (s *GCSBackend) Stat(ctx context.Context, container, name string) (*BlobInfo, error) {
	attrs, err := s.client.Bucket(container).Object(name).Attrs(ctx)
	if err != nil {
		if isGCSNotFound(err) {
			return nil, fmt.Errorf("gcs: %s/%s: %w", container, name, ErrNotFound)
		}
		return nil, fmt.Errorf("gcs: object attrs %s/%s: %w", container, name, err)
	}
	return &BlobInfo{
		Container:    container,
		Name:         name,
		Size:         attrs.Size,
		LastModified: attrs.Updated.UTC(),
	}, nil
}

func (s *GCSBackend) Delete(ctx context.Context, container, name string) error {
	if err := s.client.Bucket(container).Object(name).Delete(ctx); err != nil {
		if isGCSNotFound(err) {
			return fmt.Errorf("gcs: delete %s/%s: %w", container, name, ErrNotFound)
		}
		return fmt.Errorf("gcs: delete %s/%s: %w", container, name, err)
	}
	return nil
}

func (s *GCSBackend) Close() error {
	return s.client.Close()
}

func isGCSNotFound(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist)
}

var _ Backend = (*GCSBackend)(nil)
