package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// devAccountKey is the well-known local emulator key.
const devAccountKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

// fakeBlobService answers the handful of blob REST calls the backend makes:
// create container, put, get, get properties and delete blob.
type fakeBlobService struct {
	mu         sync.Mutex
	containers map[string]bool
	blobs      map[string][]byte // container/name -> content
}

const fakeLastModified = "Mon, 02 Jan 2006 15:04:05 GMT"

func (f *fakeBlobService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// /devstoreaccount1/<container>[/<blob>]
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 3)
	if len(parts) < 2 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	container := parts[1]

	if len(parts) == 2 && r.URL.Query().Get("restype") == "container" && r.Method == http.MethodPut {
		if f.containers[container] {
			writeAzureError(w, http.StatusConflict, "ContainerAlreadyExists")
			return
		}
		f.containers[container] = true
		w.WriteHeader(http.StatusCreated)
		return
	}
	if len(parts) != 3 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	key := container + "/" + parts[2]
	data, ok := f.blobs[key]
	switch r.Method {
	case http.MethodPut:
		if !f.containers[container] {
			writeAzureError(w, http.StatusNotFound, "ContainerNotFound")
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.blobs[key] = body
		w.Header().Set("ETag", `"0x1"`)
		w.Header().Set("Last-Modified", fakeLastModified)
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		if !ok {
			writeAzureError(w, http.StatusNotFound, "BlobNotFound")
			return
		}
		w.Header().Set("ETag", `"0x1"`)
		w.Header().Set("Last-Modified", fakeLastModified)
		w.Header().Set("x-ms-blob-type", "BlockBlob")
		rng := r.Header.Get("x-ms-range")
		if rng == "" {
			rng = r.Header.Get("Range")
		}
		start, end, ranged := parseByteRange(rng, int64(len(data)))
		if !ranged {
			w.Header().Set("Content-Length", fmt.Sprint(len(data)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
		w.Header().Set("Content-Length", fmt.Sprint(end-start+1))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(data[start : end+1])
	case http.MethodHead:
		if !ok {
			w.Header().Set("x-ms-error-code", "BlobNotFound")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Header().Set("ETag", `"0x1"`)
		w.Header().Set("Last-Modified", fakeLastModified)
		w.Header().Set("x-ms-blob-type", "BlockBlob")
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		if !ok {
			writeAzureError(w, http.StatusNotFound, "BlobNotFound")
			return
		}
		delete(f.blobs, key)
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// parseByteRange reads "bytes=s-e" or "bytes=s-", clamped to size.
func parseByteRange(h string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(h, "bytes=")
	if !found || size == 0 {
		return 0, 0, false
	}
	from, to, _ := strings.Cut(spec, "-")
	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil || start >= size {
		return 0, 0, false
	}
	end = size - 1
	if to != "" {
		if e, err := strconv.ParseInt(to, 10, 64); err == nil && e < end {
			end = e
		}
	}
	return start, end, true
}

func writeAzureError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("x-ms-error-code", code)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

func setupAzureBackend(t *testing.T) (*AzureBackend, *fakeBlobService) {
	t.Helper()
	fake := &fakeBlobService{containers: map[string]bool{}, blobs: map[string][]byte{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	connection := fmt.Sprintf("DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=%s;BlobEndpoint=%s/devstoreaccount1;",
		devAccountKey, server.URL)
	backend, err := NewAzureBackend(connection)
	require.NoError(t, err)
	return backend, fake
}

func TestAzureBackend_EnsureContainer(t *testing.T) {
	backend, fake := setupAzureBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.EnsureContainer(ctx, "c1"))
	assert.True(t, fake.containers["c1"])

	// A second call sees ContainerAlreadyExists and treats it as success.
	require.NoError(t, backend.EnsureContainer(ctx, "c1"))
}

func TestAzureBackend_Stat(t *testing.T) {
	backend, fake := setupAzureBackend(t)
	fake.blobs["c1/f1"] = []byte("0123456789")
	ctx := context.Background()

	info, err := backend.Stat(ctx, "c1", "f1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size)
	assert.False(t, info.LastModified.IsZero())

	_, err = backend.Stat(ctx, "c1", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAzureBackend_Delete(t *testing.T) {
	backend, fake := setupAzureBackend(t)
	fake.blobs["c1/f1"] = []byte("abc")
	ctx := context.Background()

	require.NoError(t, backend.Delete(ctx, "c1", "f1"))
	assert.NotContains(t, fake.blobs, "c1/f1")

	err := backend.Delete(ctx, "c1", "f1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAzureBackend_UploadDownload(t *testing.T) {
	backend, fake := setupAzureBackend(t)
	ctx := context.Background()
	require.NoError(t, backend.EnsureContainer(ctx, "c1"))

	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(src, []byte("0123456789"), 0644))
	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()

	require.NoError(t, backend.UploadFile(ctx, "c1", "f1", in))
	assert.Equal(t, []byte("0123456789"), fake.blobs["c1/f1"])

	out, err := os.Create(filepath.Join(t.TempDir(), "dest"))
	require.NoError(t, err)
	defer out.Close()

	n, err := backend.DownloadFile(ctx, "c1", "f1", out)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	data, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

func TestAzureBackend_UploadMissingContainer(t *testing.T) {
	backend, _ := setupAzureBackend(t)

	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0644))
	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()

	err = backend.UploadFile(context.Background(), "nope", "f1", in)
	require.Error(t, err)
	assert.True(t, isAzureNotFound(err))
}

func TestAzureBackend_DownloadMissing(t *testing.T) {
	backend, fake := setupAzureBackend(t)
	fake.containers["c1"] = true

	out, err := os.Create(filepath.Join(t.TempDir(), "dest"))
	require.NoError(t, err)
	defer out.Close()

	_, err = backend.DownloadFile(context.Background(), "c1", "missing", out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestIsAzureNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"blob not found code", &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "BlobNotFound"}, true},
		{"container not found code", &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ContainerNotFound"}, true},
		{"bare 404", &azcore.ResponseError{StatusCode: http.StatusNotFound}, true},
		{"wrapped 404", fmt.Errorf("outer: %w", &azcore.ResponseError{StatusCode: http.StatusNotFound}), true},
		{"forbidden", &azcore.ResponseError{StatusCode: http.StatusForbidden, ErrorCode: "AuthenticationFailed"}, false},
		{"plain error", errors.New("dial tcp: connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAzureNotFound(tt.err))
		})
	}
}
