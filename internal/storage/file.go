package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileBackend is a Backend over a local directory.
// Blobs are stored as files under <baseDir>/<container>/<name>; a container
// is a directory. It stands in for a remote account in development and tests.
type FileBackend struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileBackend creates a directory-backed store rooted at baseDir.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("file backend: base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FileBackend{baseDir: baseDir}, nil
}

// NewFileBackendFromURL accepts connection strings of the form file:///abs/dir.
func NewFileBackendFromURL(connection string) (*FileBackend, error) {
	u, err := url.Parse(connection)
	if err != nil {
		return nil, fmt.Errorf("file backend: parse connection: %w", err)
	}
	dir := u.Path
	if u.Host != "" && u.Host != "localhost" {
		// file://relative/dir
		dir = filepath.Join(u.Host, u.Path)
	}
	return NewFileBackend(dir)
}

// BaseDir returns the root directory of the store.
func (s *FileBackend) BaseDir() string {
	return s.baseDir
}

func (s *FileBackend) containerPath(container string) (string, error) {
	if container == "" || strings.ContainsAny(container, `/\`) || container == "." || container == ".." {
		return "", fmt.Errorf("invalid container name %q", container)
	}
	return filepath.Join(s.baseDir, container), nil
}

func (s *FileBackend) blobPath(container, name string) (string, error) {
	dir, err := s.containerPath(container)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + name)
	if name == "" || clean == "/" {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

func (s *FileBackend) EnsureContainer(ctx context.Context, container string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.containerPath(container)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create container directory: %w", err)
	}
	return nil
}

// UploadFile copies f into a temp file next to the blob and renames it into
// place, so readers never observe a partial blob.
func (s *FileBackend) UploadFile(ctx context.Context, container, name string, f *os.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.containerPath(container)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("container %s: %w", container, ErrNotFound)
		}
		return fmt.Errorf("failed to stat container: %w", err)
	}

	path, err := s.blobPath(container, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, f); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to commit blob: %w", err)
	}
	return nil
}

func (s *FileBackend) DownloadFile(ctx context.Context, container, name string, f *os.File) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.blobPath(container, name)
	if err != nil {
		return 0, err
	}
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("blob %s/%s: %w", container, name, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to read blob: %w", err)
	}
	defer src.Close()

	n, err := io.Copy(f, src)
	if err != nil {
		return n, fmt.Errorf("failed to copy blob: %w", err)
	}
	return n, nil
}

func (s *FileBackend) Stat(ctx context.Context, container, name string) (*BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.blobPath(container, name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s/%s: %w", container, name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat blob: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("blob %s/%s: %w", container, name, ErrNotFound)
	}

	return &BlobInfo{
		Container:    container,
		Name:         name,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

func (s *FileBackend) Delete(ctx context.Context, container, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.blobPath(container, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob %s/%s: %w", container, name, ErrNotFound)
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *FileBackend) Close() error { return nil }

var _ Backend = (*FileBackend)(nil)
