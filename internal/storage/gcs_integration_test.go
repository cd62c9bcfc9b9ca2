//go:build integration

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestGCSBackend_Integration runs the backend against fake-gcs-server. Requires Docker.
func TestGCSBackend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "fsouza/fake-gcs-server:1.52",
			ExposedPorts: []string{"4443/tcp"},
			Cmd:          []string{"-scheme", "http", "-port", "4443"},
			WaitingFor:   wait.ForHTTP("/storage/v1/b").WithPort("4443/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	}()

	endpoint, err := container.PortEndpoint(ctx, "4443/tcp", "http")
	require.NoError(t, err)

	backend, err := Open(ctx, "gs://?project=test&endpoint="+endpoint+"/storage/v1/")
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.EnsureContainer(ctx, "c1"))
	require.NoError(t, backend.EnsureContainer(ctx, "c1"))

	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("0123456789"), 0644))
	f, err := os.Open(src)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, backend.UploadFile(ctx, "c1", "f1", f))

	info, err := backend.Stat(ctx, "c1", "f1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size)

	dest, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	n, err := backend.DownloadFile(ctx, "c1", "f1", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	dest.Close()
	data, err := os.ReadFile(dest.Name())
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	missing, err := os.Create(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	defer missing.Close()
	_, err = backend.DownloadFile(ctx, "c1", "nope", missing)
	assert.True(t, errors.Is(err, ErrNotFound))

	// A source that cannot be read leaves no object behind.
	wonly, err := os.OpenFile(src, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer wonly.Close()
	require.Error(t, backend.UploadFile(ctx, "c1", "partial", wonly))
	_, err = backend.Stat(ctx, "c1", "partial")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, backend.Delete(ctx, "c1", "f1"))
	_, err = backend.Stat(ctx, "c1", "f1")
	assert.True(t, errors.Is(err, ErrNotFound))
}
