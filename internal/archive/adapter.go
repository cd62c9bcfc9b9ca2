// Package archive implements the blob adapter used by archival and tiering
// systems: put, get, delete, existence and length of a blob identified by a
// connection string, a container and a name.
//
// Every operation is stateless. It resolves its own backend from the
// connection string, closes it before returning, and never lets a panic from
// the storage SDK escape.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/asad/blobsync/internal/logging"
	"github.com/asad/blobsync/internal/storage"
)

const tracerName = "github.com/asad/blobsync/internal/archive"

// Ref names one blob on one account.
type Ref struct {
	Connection string
	Container  string
	Name       string
}

// Opener resolves a connection string into a backend.
type Opener func(ctx context.Context, connection string) (storage.Backend, error)

// Adapter runs archive operations against whatever backend each connection
// string resolves to. The zero value is not usable; call New.
type Adapter struct {
	open   Opener
	logger logging.Logger
	tracer trace.Tracer
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithOpener replaces storage.Open as the connection resolver.
func WithOpener(open Opener) Option {
	return func(a *Adapter) { a.open = open }
}

// WithLogger sets the logger; the default discards output.
func WithLogger(logger logging.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithTracerProvider sets the tracer provider; the default is the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Adapter) { a.tracer = tp.Tracer(tracerName) }
}

// New creates an Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		open:   storage.Open,
		logger: logging.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// guard runs fn inside a span and converts a panic into an error.
func (a *Adapter) guard(ctx context.Context, op string, ref Ref, fn func(context.Context) error) (err error) {
	ctx, span := a.tracer.Start(ctx, "archive."+op, trace.WithAttributes(
		attribute.String("blob.container", ref.Container),
		attribute.String("blob.name", ref.Name),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: recovered from panic: %v", op, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	return fn(ctx)
}

// withBackend opens a backend for connection, runs fn and closes it.
func (a *Adapter) withBackend(ctx context.Context, connection string, fn func(storage.Backend) error) error {
	backend, err := a.open(ctx, connection)
	if err != nil {
		return fmt.Errorf("resolve connection: %w", err)
	}
	defer backend.Close()
	return fn(backend)
}

func (a *Adapter) log(ref Ref) logging.Logger {
	return a.logger.With(
		logging.String("container", ref.Container),
		logging.String("blob", ref.Name),
	)
}

// PutNewFile uploads the file at localPath as ref, creating the container if
// needed and overwriting any existing blob. A failure is an *Error with
// SyncToArchErr. A partial write is left for the next upload to replace.
func (a *Adapter) PutNewFile(ctx context.Context, ref Ref, localPath string) error {
	start := time.Now()
	err := a.guard(ctx, "PutNewFile", ref, func(ctx context.Context) error {
		return a.putNew(ctx, ref, localPath)
	})
	if err != nil {
		a.log(ref).Error("could not put file", logging.String("source", localPath), logging.ErrorField(err))
		return syncErr("putNewFile", err)
	}
	a.log(ref).Debug("put file",
		logging.String("source", localPath),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (a *Adapter) putNew(ctx context.Context, ref Ref, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	return a.withBackend(ctx, ref.Connection, func(b storage.Backend) error {
		if err := b.EnsureContainer(ctx, ref.Container); err != nil {
			return err
		}
		return b.UploadFile(ctx, ref.Container, ref.Name, f)
	})
}

// PutTheFile replaces ref with the file at localPath. Unless origin is
// OriginLocalOnly, an existing blob is deleted before the upload. When the
// existence check or the delete fails the upload is not attempted.
func (a *Adapter) PutTheFile(ctx context.Context, ref Ref, localPath string, origin Origin) error {
	logger := a.log(ref).With(logging.String("origin", origin.String()))

	err := a.guard(ctx, "PutTheFile", ref, func(ctx context.Context) error {
		if origin == OriginLocalOnly {
			return nil
		}
		found, err := a.exists(ctx, ref)
		if err != nil {
			return fmt.Errorf("error in getTheFileStatus: %w", err)
		}
		if !found {
			return nil
		}
		logger.Debug("removing existing blob before put")
		if err := a.remove(ctx, ref); err != nil {
			return fmt.Errorf("error in deleteTheFile: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("could not replace file", logging.ErrorField(err))
		return syncErr("putTheFile", err)
	}

	return a.PutNewFile(ctx, ref, localPath)
}

// GetTheFile downloads ref into dest, created or truncated with mode. The
// destination is created before any remote call so local problems fail
// fast with an *Error carrying UnixFileOpenErr-errno. On any later failure
// dest is removed. On success mode is applied again, since the process
// umask may have masked it at creation.
func (a *Adapter) GetTheFile(ctx context.Context, ref Ref, dest string, mode os.FileMode) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		a.log(ref).Error("could not create destination", logging.String("destination", dest), logging.ErrorField(err))
		return openErr("getTheFile", err)
	}

	var n int64
	err = a.guard(ctx, "GetTheFile", ref, func(ctx context.Context) error {
		return a.withBackend(ctx, ref.Connection, func(b storage.Backend) error {
			var err error
			n, err = b.DownloadFile(ctx, ref.Container, ref.Name, f)
			return err
		})
	})
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close destination: %w", closeErr)
	}
	if err == nil {
		if chmodErr := os.Chmod(dest, mode.Perm()); chmodErr != nil {
			err = fmt.Errorf("apply mode: %w", chmodErr)
		}
	}

	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierror.Append(err, fmt.Errorf("remove partial destination: %w", rmErr))
		}
		a.log(ref).Error("could not get file", logging.String("destination", dest), logging.ErrorField(err))
		return fmt.Errorf("getTheFile: %w", err)
	}

	a.log(ref).Debug("got file", logging.String("destination", dest), logging.Int64("bytes", n))
	return nil
}

// GetTheFileStatus reports whether ref exists. Errors, including a missing
// container, count as "does not exist".
func (a *Adapter) GetTheFileStatus(ctx context.Context, ref Ref) bool {
	var found bool
	err := a.guard(ctx, "GetTheFileStatus", ref, func(ctx context.Context) error {
		var err error
		found, err = a.exists(ctx, ref)
		return err
	})
	if err != nil {
		a.log(ref).Debug("could not check file existence", logging.ErrorField(err))
		return false
	}
	return found
}

func (a *Adapter) exists(ctx context.Context, ref Ref) (bool, error) {
	var found bool
	err := a.withBackend(ctx, ref.Connection, func(b storage.Backend) error {
		_, err := b.Stat(ctx, ref.Container, ref.Name)
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, storage.ErrNotFound):
			return nil
		default:
			return err
		}
	})
	return found, err
}

// GetTheFileLength returns the size of ref in bytes, or -1 when it does not
// exist. The length is meaningless when err is non-nil.
func (a *Adapter) GetTheFileLength(ctx context.Context, ref Ref) (int64, error) {
	length := int64(-1)
	err := a.guard(ctx, "GetTheFileLength", ref, func(ctx context.Context) error {
		return a.withBackend(ctx, ref.Connection, func(b storage.Backend) error {
			info, err := b.Stat(ctx, ref.Container, ref.Name)
			switch {
			case err == nil:
				length = info.Size
				return nil
			case errors.Is(err, storage.ErrNotFound):
				return nil
			default:
				return err
			}
		})
	})
	if err != nil {
		a.log(ref).Warn("could not get file length", logging.ErrorField(err))
		return 0, fmt.Errorf("getTheFileLength: %w", err)
	}
	return length, nil
}

// DeleteTheFile removes ref. A blob that is already absent is not an error,
// so a nil return always means the blob is gone.
func (a *Adapter) DeleteTheFile(ctx context.Context, ref Ref) error {
	err := a.guard(ctx, "DeleteTheFile", ref, func(ctx context.Context) error {
		return a.remove(ctx, ref)
	})
	if err != nil {
		a.log(ref).Error("could not delete blob", logging.ErrorField(err))
		return fmt.Errorf("deleteTheFile: %w", err)
	}
	return nil
}

func (a *Adapter) remove(ctx context.Context, ref Ref) error {
	return a.withBackend(ctx, ref.Connection, func(b storage.Backend) error {
		err := b.Delete(ctx, ref.Container, ref.Name)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return nil
	})
}
