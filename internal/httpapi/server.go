// Package httpapi is the External Interfaces surface: the ingest, document,
// collection-management, retrieval, and health HTTP endpoints, routed with
// chi (replacing the teacher's bare http.ServeMux so request-scoped
// middleware — recovery, timeout, CORS, request logging — doesn't have to
// be hand-rolled per handler the way the teacher's playground API does it).
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ragfabric/internal/ingest"
	"ragfabric/internal/obslog"
	"ragfabric/internal/retrieve"
	"ragfabric/internal/vectorstore"
)

// Server exposes the RAG API: collection lifecycle, document ingest/update/
// delete, and query retrieval.
type Server struct {
	ingest   *ingest.Orchestrator
	retrieve *retrieve.Orchestrator
	store    vectorstore.Store
	log      obslog.Logger
	router   chi.Router
}

// New wires the Ingestion and Retrieval Orchestrators and the Vector Store
// Facade behind one HTTP surface. requestTimeout bounds every request via
// chi's middleware.Timeout, per spec.md §5's per-request deadline model.
func New(ing *ingest.Orchestrator, ret *retrieve.Orchestrator, store vectorstore.Store, log obslog.Logger, corsOrigins []string, requestTimeout time.Duration) *Server {
	s := &Server{ingest: ing, retrieve: ret, store: store, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/collections", s.handleListCollections)
		r.Post("/collections", s.handleCreateCollection)
		r.Get("/collections/{name}", s.handleDescribeCollection)
		r.Delete("/collections/{name}", s.handleDeleteCollection)

		r.Post("/ingest", s.handleIngest)
		r.Put("/documents/{id}", s.handleUpdateDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)

		r.Post("/retrieve", s.handleRetrieve)
	})
	s.router = r
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(log obslog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Info("http request", map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
				"ms":     time.Since(start).Milliseconds(),
			})
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
