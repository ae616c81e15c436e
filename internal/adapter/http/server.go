package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CellSource exposes the cells tracked after the most recent frame.
type CellSource interface {
	Cells() []domain.CellRecord
}

// Server exposes health, readiness, metrics, and tracked-cell HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, /cells,
// and /cells/{id} routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, cells CellSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /cells", handleCells(cells))
	mux.HandleFunc("GET /cells/{id}", handleCell(cells))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleCells(src CellSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		cells := src.Cells()
		if cells == nil {
			cells = []domain.CellRecord{}
		}
		sharedobs.WriteJSON(w, http.StatusOK, cells)
	}
}

func handleCell(src CellSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil || id <= 0 {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "cell id must be a positive integer"})
			return
		}
		for _, c := range src.Cells() {
			if c.ID == id {
				sharedobs.WriteJSON(w, http.StatusOK, c)
				return
			}
		}
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "cell not tracked"})
	}
}
