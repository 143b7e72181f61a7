package adapthttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mindfulweb/internal/app"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	ingest  *app.IngestionService
	history *app.HistoryService
	health  Pinger
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Server wired to the given application services. health may
// be nil, in which case the health check never consults the database.
func New(ingest *app.IngestionService, history *app.HistoryService, health Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ingest:  ingest,
		history: history,
		health:  health,
		logger:  logger.With("component", "http"),
		now:     time.Now,
	}
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware, withNoCache)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthcheck", s.handleHealthcheck)
		r.Post("/events", s.handleSendEvents)
		r.Get("/events", s.handleRecentEvents)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeResourceNotFound, "resource not found")
	})
	return r
}
