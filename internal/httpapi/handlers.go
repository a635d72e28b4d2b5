package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ragfabric/internal/chunker"
	"ragfabric/internal/ingest"
	"ragfabric/internal/metadata"
	"ragfabric/internal/ragerr"
	"ragfabric/internal/ragtypes"
	"ragfabric/internal/retrieve"
	"ragfabric/internal/vectorstore"
)

// --- Collections -----------------------------------------------------------

type createCollectionRequest struct {
	Name        string `json:"name"`
	Dimension   int    `json:"dimension"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListCollections(r.Context())
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"collections": names})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" || req.Dimension <= 0 {
		respondError(w, http.StatusBadRequest, errors.New("name and a positive dimension are required"))
		return
	}
	if err := s.store.CreateCollection(r.Context(), req.Name, req.Dimension, req.Description); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"name": req.Name})
}

func (s *Server) handleDescribeCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	coll, count, err := s.store.DescribeCollection(r.Context(), name)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"collection": coll, "count": count})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.DeleteCollection(r.Context(), name); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": name})
}

// --- Ingest / documents -----------------------------------------------------

// ingestRequest mirrors spec.md §6's POST /v1/ingest body. Field names
// follow spec.md's own wire vocabulary (keywords_count, generate_metadata,
// …) rather than this service's internal Options/Counts naming, since
// that's the documented public contract.
type ingestRequest struct {
	Document        ragtypes.Document `json:"document"`
	ChunkOptions    chunker.Options   `json:"chunk_options,omitempty"`
	CreateIfMissing bool              `json:"create_if_missing,omitempty"`
	EmbeddingModel  string            `json:"embedding_model,omitempty"`
	StorageMode     string            `json:"storage_mode,omitempty"`

	GenerateMetadata   *bool  `json:"generate_metadata,omitempty"`
	GenerateEmbeddings *bool  `json:"generate_embeddings,omitempty"`
	KeywordsCount      int    `json:"keywords_count,omitempty"`
	TopicsCount        int    `json:"topics_count,omitempty"`
	QuestionsCount     int    `json:"questions_count,omitempty"`
	SummaryLength      string `json:"summary_length,omitempty"`
}

func (req ingestRequest) toOptions() ingest.Options {
	return ingest.Options{
		ChunkOptions:    req.ChunkOptions,
		CreateIfMissing: req.CreateIfMissing,
		EmbeddingModel:  req.EmbeddingModel,
		StorageMode:     req.StorageMode,
		MetadataCounts: metadata.Counts{
			Keywords:  req.KeywordsCount,
			Topics:    req.TopicsCount,
			Questions: req.QuestionsCount,
			Summary:   req.SummaryLength,
		},
		GenerateMetadata:   req.GenerateMetadata,
		GenerateEmbeddings: req.GenerateEmbeddings,
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Document.ID == "" || req.Document.Collection == "" {
		respondError(w, http.StatusBadRequest, errors.New("document.id and document.collection are required"))
		return
	}
	if req.Document.TenantID == "" {
		req.Document.TenantID = "default"
	}
	result, err := s.ingest.Ingest(r.Context(), req.Document, req.toOptions())
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	req.Document.ID = id
	if req.Document.Collection == "" {
		respondError(w, http.StatusBadRequest, errors.New("document.collection is required"))
		return
	}
	if req.Document.TenantID == "" {
		req.Document.TenantID = "default"
	}
	result, err := s.ingest.Update(r.Context(), req.Document, req.toOptions())
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	collection := r.URL.Query().Get("collection")
	tenant := r.URL.Query().Get("tenant")
	if collection == "" {
		respondError(w, http.StatusBadRequest, errors.New("collection query parameter is required"))
		return
	}
	deleted, err := s.ingest.Delete(r.Context(), collection, id, tenant)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted_count": deleted})
}

// --- Retrieve ----------------------------------------------------------------

type retrieveRequest struct {
	Query              string             `json:"query"`
	Collection         string             `json:"collection"`
	Tenant             string             `json:"tenant,omitempty"`
	SearchTopK         int                `json:"search_top_k,omitempty"`
	RerankTopK         int                `json:"rerank_top_k,omitempty"`
	MaxContextChunks   int                `json:"max_context_chunks,omitempty"`
	EnableReranking    *bool              `json:"enable_reranking,omitempty"`
	EnableCompression  *bool              `json:"enable_compression,omitempty"`
	MetadataBoost      *bool              `json:"metadata_boost,omitempty"`
	EnableCitations    *bool              `json:"enable_citations,omitempty"`
	AnswerModel        string             `json:"answer_model,omitempty"`
	Temperature        float64            `json:"temperature,omitempty"`
	Filter             vectorstore.Filter `json:"filter,omitempty"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == "" || req.Collection == "" {
		respondError(w, http.StatusBadRequest, errors.New("query and collection are required"))
		return
	}

	opt := retrieve.DefaultOptions()
	opt.Collection = req.Collection
	opt.Tenant = req.Tenant
	opt.SearchFilter = req.Filter
	if req.SearchTopK > 0 {
		opt.SearchTopK = req.SearchTopK
	}
	if req.RerankTopK > 0 {
		opt.RerankTopK = req.RerankTopK
	}
	if req.MaxContextChunks > 0 {
		opt.MaxContextChunks = req.MaxContextChunks
	}
	if req.EnableReranking != nil {
		opt.EnableReranking = *req.EnableReranking
	}
	if req.EnableCompression != nil {
		opt.EnableCompression = *req.EnableCompression
	}
	if req.MetadataBoost != nil {
		opt.MetadataBoost = *req.MetadataBoost
	}
	if req.EnableCitations != nil {
		opt.EnableCitations = *req.EnableCitations
	}
	if req.AnswerModel != "" {
		opt.AnswerModel = req.AnswerModel
	}
	if req.Temperature > 0 {
		opt.Temperature = req.Temperature
	}

	result, err := s.retrieve.Retrieve(r.Context(), req.Query, opt)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// --- Response helpers --------------------------------------------------------

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// statusFromError maps the shared ragerr taxonomy to HTTP statuses, per
// spec.md §4.12's "Search failure -> 503, Answer failure -> 502" failure
// surfaces and §4.1/§4.2's per-component error sets.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, ragerr.ErrInvalidRequest), errors.Is(err, ragerr.ErrInvalidFilter),
		errors.Is(err, ragerr.ErrEmptyDocument), errors.Is(err, ragerr.ErrChunkingFailed),
		errors.Is(err, ragerr.ErrModelUnknown):
		return http.StatusBadRequest
	case errors.Is(err, ragerr.ErrCollectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ragerr.ErrCollectionExists):
		return http.StatusConflict
	case errors.Is(err, ragerr.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ragerr.ErrRateLimited), errors.Is(err, ragerr.ErrGatewayBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, ragerr.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ragerr.ErrRequestCancelled):
		return 499
	case errors.Is(err, ragerr.ErrProviderUnavailable), errors.Is(err, ragerr.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ragerr.ErrInvalidResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
