// Package archive exposes the archive operations over HTTP for hosts that
// cannot load the C library. The connection string is fixed by the server;
// clients only name containers, blobs and server-local paths.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	blobarchive "github.com/asad/blobsync/internal/archive"
	"github.com/asad/blobsync/internal/core"
	"github.com/asad/blobsync/internal/logging"
)

const defaultMode os.FileMode = 0644

// Operations is the subset of *archive.Adapter the service calls.
type Operations interface {
	PutNewFile(ctx context.Context, ref blobarchive.Ref, localPath string) error
	PutTheFile(ctx context.Context, ref blobarchive.Ref, localPath string, origin blobarchive.Origin) error
	GetTheFile(ctx context.Context, ref blobarchive.Ref, dest string, mode os.FileMode) error
	GetTheFileStatus(ctx context.Context, ref blobarchive.Ref) bool
	GetTheFileLength(ctx context.Context, ref blobarchive.Ref) (int64, error)
	DeleteTheFile(ctx context.Context, ref blobarchive.Ref) error
}

// Service mounts the archive operations under /archive.
type Service struct {
	ops        Operations
	connection string
	timeout    time.Duration
	logger     logging.Logger
}

// NewService creates the HTTP service. Every request runs against
// connection and is bounded by timeout when it is positive.
func NewService(ops Operations, connection string, timeout time.Duration, logger logging.Logger) *Service {
	return &Service{
		ops:        ops,
		connection: connection,
		timeout:    timeout,
		logger:     logger,
	}
}

// Name returns the mount prefix.
func (s *Service) Name() string {
	return "archive"
}

// RegisterRoutes sets up:
//   - PUT    /{container}/{blob...}  upload a server-local file
//   - POST   /{container}/{blob...}  download into a server-local file
//   - GET    /{container}/{blob...}  existence and length as JSON
//   - HEAD   /{container}/{blob...}  length in X-Blob-Length, or 404
//   - DELETE /{container}/{blob...}  remove the blob
func (s *Service) RegisterRoutes(router chi.Router) {
	router.Put("/{container}/*", s.handlePut)
	router.Post("/{container}/*", s.handleGet)
	router.Get("/{container}/*", s.handleStatus)
	router.Head("/{container}/*", s.handleHead)
	router.Delete("/{container}/*", s.handleDelete)
}

func (s *Service) ref(r *http.Request) (blobarchive.Ref, bool) {
	ref := blobarchive.Ref{
		Connection: s.connection,
		Container:  chi.URLParam(r, "container"),
		Name:       chi.URLParam(r, "*"),
	}
	return ref, ref.Container != "" && ref.Name != ""
}

func (s *Service) opContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(r.Context(), s.timeout)
	}
	return context.WithCancel(r.Context())
}

func (s *Service) handlePut(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.ref(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "Container and blob name are required", 0)
		return
	}

	var req PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "Malformed request body", 0)
		return
	}
	if req.Source == "" {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "source is required", 0)
		return
	}

	origin := blobarchive.OriginFromPrevPath(req.PrevPhysicalPath)
	if req.Origin != "" {
		parsed, err := blobarchive.ParseOrigin(req.Origin)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error(), 0)
			return
		}
		origin = parsed
	}

	ctx, cancel := s.opContext(r)
	defer cancel()

	var err error
	if req.New {
		err = s.ops.PutNewFile(ctx, ref, req.Source)
	} else {
		err = s.ops.PutTheFile(ctx, ref, req.Source, origin)
	}
	if err != nil {
		s.writeArchiveError(w, "Failed to upload blob", err)
		return
	}

	s.logger.Info("blob uploaded",
		logging.String("container", ref.Container),
		logging.String("blob", ref.Name),
		logging.String("origin", origin.String()),
	)
	w.WriteHeader(http.StatusCreated)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.ref(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "Container and blob name are required", 0)
		return
	}

	var req GetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "Malformed request body", 0)
		return
	}
	if req.Destination == "" {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "destination is required", 0)
		return
	}
	mode := defaultMode
	if req.Mode != "" {
		parsed, err := strconv.ParseUint(req.Mode, 8, 32)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "InvalidRequest", "mode must be an octal permission such as 0644", 0)
			return
		}
		mode = os.FileMode(parsed).Perm()
	}

	ctx, cancel := s.opContext(r)
	defer cancel()

	if err := s.ops.GetTheFile(ctx, ref, req.Destination, mode); err != nil {
		s.writeArchiveError(w, "Failed to download blob", err)
		return
	}

	s.logger.Info("blob downloaded",
		logging.String("container", ref.Container),
		logging.String("blob", ref.Name),
		logging.String("destination", req.Destination),
	)
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.ref(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "Container and blob name are required", 0)
		return
	}

	ctx, cancel := s.opContext(r)
	defer cancel()

	length, err := s.ops.GetTheFileLength(ctx, ref)
	if err != nil {
		s.writeArchiveError(w, "Failed to read blob properties", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(StatusResponse{Exists: length >= 0, Length: length}); err != nil {
		s.logger.Error("failed to encode response", logging.ErrorField(err))
	}
}

func (s *Service) handleHead(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.ref(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx, cancel := s.opContext(r)
	defer cancel()

	length, err := s.ops.GetTheFileLength(ctx, ref)
	switch {
	case err != nil:
		w.WriteHeader(http.StatusInternalServerError)
	case length < 0:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.Header().Set("X-Blob-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.ref(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "Container and blob name are required", 0)
		return
	}

	ctx, cancel := s.opContext(r)
	defer cancel()

	if err := s.ops.DeleteTheFile(ctx, ref); err != nil {
		s.writeArchiveError(w, "Failed to delete blob", err)
		return
	}

	s.logger.Info("blob deleted",
		logging.String("container", ref.Container),
		logging.String("blob", ref.Name),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) writeArchiveError(w http.ResponseWriter, message string, err error) {
	s.logger.Error(message, logging.ErrorField(err))

	var archiveCode int64
	var ae *blobarchive.Error
	if errors.As(err, &ae) {
		archiveCode = ae.Code
	}
	s.writeError(w, http.StatusInternalServerError, "ArchiveError", message+": "+err.Error(), archiveCode)
}

func (s *Service) writeError(w http.ResponseWriter, statusCode int, code, message string, archiveCode int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{
		Code:        code,
		Message:     message,
		ArchiveCode: archiveCode,
	}})
}

var _ core.Service = (*Service)(nil)
