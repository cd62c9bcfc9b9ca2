package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/asad/blobsync/internal/config"
	"github.com/asad/blobsync/internal/core"
	"github.com/asad/blobsync/internal/logging"
)

// EdgeRouter is the single HTTP entry point of `serve`. It mounts every
// registered service under its name and answers /health itself.
type EdgeRouter struct {
	router chi.Router
	logger logging.Logger
}

// NewEdgeRouter builds the router. Services must be registered with
// core.RegisterService before it is called.
func NewEdgeRouter(cfg *config.Config, logger logging.Logger) *EdgeRouter {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	// A transfer may legitimately run for the whole operation timeout.
	r.Use(middleware.Timeout(cfg.Timeout + 30*time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"blobsync"}`))
	})

	for _, service := range core.GetRegisteredServices() {
		logger.Info("registering service routes", logging.String("service", service.Name()))
		r.Route("/"+service.Name(), service.RegisterRoutes)
	}

	return &EdgeRouter{router: r, logger: logger}
}

// ServeHTTP implements http.Handler.
func (er *EdgeRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	er.router.ServeHTTP(w, r)
}

func requestLoggingMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", ww.Status()),
				logging.Duration("latency", time.Since(start)),
				logging.String("request_id", middleware.GetReqID(r.Context())),
				logging.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
