package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ragfabric/internal/obslog"
	"ragfabric/internal/ragerr"
	"ragfabric/internal/ragtypes"
	"ragfabric/internal/vectorstore"
)

type fakeStore struct {
	collections []string
}

func (f *fakeStore) CreateCollection(ctx context.Context, name string, dim int, description string) error {
	return nil
}
func (f *fakeStore) DeleteCollection(ctx context.Context, name string) error { return nil }
func (f *fakeStore) ListCollections(ctx context.Context) ([]string, error)  { return f.collections, nil }
func (f *fakeStore) DescribeCollection(ctx context.Context, name string) (ragtypes.Collection, int64, error) {
	return ragtypes.Collection{Name: name}, 0, nil
}
func (f *fakeStore) Insert(ctx context.Context, collection string, chunks []ragtypes.Chunk, createIfMissing bool) (vectorstore.InsertResult, error) {
	return vectorstore.InsertResult{}, nil
}
func (f *fakeStore) DeleteByFilter(ctx context.Context, collection string, filter vectorstore.Filter) (vectorstore.DeleteResult, error) {
	return vectorstore.DeleteResult{}, nil
}
func (f *fakeStore) Update(ctx context.Context, collection string, filter vectorstore.Filter, chunks []ragtypes.Chunk) (vectorstore.UpdateResult, error) {
	return vectorstore.UpdateResult{}, nil
}
func (f *fakeStore) Search(ctx context.Context, collection string, queryVec []float32, topK int, tenant string, extraFilter vectorstore.Filter) ([]ragtypes.Candidate, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

func newTestServer() *Server {
	return New(nil, nil, &fakeStore{collections: []string{"docs"}}, obslog.NewNoop(), []string{"*"}, time.Second)
}

func TestHealth_ReturnsOK(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListCollections_ReturnsStoreCollections(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/collections", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cols, _ := body["collections"].([]any)
	if len(cols) != 1 || cols[0] != "docs" {
		t.Errorf("expected [\"docs\"], got %+v", body["collections"])
	}
}

func TestCreateCollection_MissingFieldsReturns400(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/collections", strings.NewReader(`{"name":""}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIngest_MissingFieldsReturns400(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{"document":{"id":""}}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRetrieve_MissingFieldsReturns400(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(`{"query":""}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteDocument_MissingCollectionReturns400(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	req := httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatusFromError_MapsKnownSentinels(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{ragerr.ErrCollectionNotFound, http.StatusNotFound},
		{ragerr.ErrCollectionExists, http.StatusConflict},
		{ragerr.ErrDimensionMismatch, http.StatusUnprocessableEntity},
		{ragerr.ErrRateLimited, http.StatusTooManyRequests},
		{ragerr.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{errors.New("unmapped"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFromError(c.err); got != c.want {
			t.Errorf("statusFromError(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
