package search

import (
	"context"
	"testing"

	"ragfabric/internal/ragtypes"
	"ragfabric/internal/vectorstore"
)

type fakeEmbedder struct{ vec []float32 }

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}
func (f *fakeEmbedder) Model() string                          { return "fake" }
func (f *fakeEmbedder) Dimension() int                          { return len(f.vec) }
func (f *fakeEmbedder) HealthCheck(ctx context.Context) error { return nil }

type fakeStore struct {
	candidates []ragtypes.Candidate
}

func (f *fakeStore) CreateCollection(ctx context.Context, name string, dim int, description string) error {
	return nil
}
func (f *fakeStore) DeleteCollection(ctx context.Context, name string) error { return nil }
func (f *fakeStore) ListCollections(ctx context.Context) ([]string, error)  { return nil, nil }
func (f *fakeStore) DescribeCollection(ctx context.Context, name string) (ragtypes.Collection, int64, error) {
	return ragtypes.Collection{}, 0, nil
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
	return f.candidates, nil
}
func (f *fakeStore) Close() error { return nil }

func TestSearch_MetadataBoostReordersCandidates(t *testing.T) {
	t.Parallel()
	store := &fakeStore{candidates: []ragtypes.Candidate{
		{Chunk: ragtypes.Chunk{ChunkIndex: 0, Questions: "what is the refund policy"}, Score: 0.50},
		{Chunk: ragtypes.Chunk{ChunkIndex: 1}, Score: 0.55},
	}}
	s := New(&fakeEmbedder{vec: []float32{1, 0}}, store)
	out, err := s.Search(context.Background(), "refund policy", "docs", Options{TopK: 10, MetadataBoost: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if out[0].Chunk.ChunkIndex != 0 {
		t.Fatalf("expected the boosted candidate to rank first, got order %+v", out)
	}
	if out[0].Score < 0.69 || out[0].Score > 0.71 {
		t.Errorf("expected boosted score ~0.70, got %f", out[0].Score)
	}
}

func TestSearch_BoostCappedAtMax(t *testing.T) {
	t.Parallel()
	store := &fakeStore{candidates: []ragtypes.Candidate{
		{Chunk: ragtypes.Chunk{
			ChunkIndex: 0, Questions: "refund policy", Keywords: "refund", Topics: "refund", Summary: "refund",
		}, Score: 0.10},
	}}
	s := New(&fakeEmbedder{vec: []float32{1}}, store)
	out, err := s.Search(context.Background(), "refund", "docs", Options{TopK: 5, MetadataBoost: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if out[0].Score > 0.60+1e-9 {
		t.Errorf("expected boost capped at +0.50, got score %f", out[0].Score)
	}
}

func TestSearch_TiesBrokenByAscendingChunkIndex(t *testing.T) {
	t.Parallel()
	store := &fakeStore{candidates: []ragtypes.Candidate{
		{Chunk: ragtypes.Chunk{ChunkIndex: 2}, Score: 0.5},
		{Chunk: ragtypes.Chunk{ChunkIndex: 0}, Score: 0.5},
		{Chunk: ragtypes.Chunk{ChunkIndex: 1}, Score: 0.5},
	}}
	s := New(&fakeEmbedder{vec: []float32{1}}, store)
	out, err := s.Search(context.Background(), "q", "docs", Options{TopK: 10})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	for i, c := range out {
		if c.Chunk.ChunkIndex != i {
			t.Fatalf("expected ascending chunk_index tie-break, got order %+v", out)
		}
	}
}

func TestSearch_TopKTruncates(t *testing.T) {
	t.Parallel()
	store := &fakeStore{candidates: []ragtypes.Candidate{
		{Chunk: ragtypes.Chunk{ChunkIndex: 0}, Score: 0.9},
		{Chunk: ragtypes.Chunk{ChunkIndex: 1}, Score: 0.8},
		{Chunk: ragtypes.Chunk{ChunkIndex: 2}, Score: 0.7},
	}}
	s := New(&fakeEmbedder{vec: []float32{1}}, store)
	out, err := s.Search(context.Background(), "q", "docs", Options{TopK: 2})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected topK truncation to 2, got %d", len(out))
	}
}
