package retrieve

import (
	"context"
	"errors"
	"testing"

	"ragfabric/internal/answer"
	"ragfabric/internal/compressor"
	"ragfabric/internal/ragtypes"
	"ragfabric/internal/search"
)

type fakeIntent struct {
	intent  ragtypes.Intent
	release chan struct{} // if non-nil, Classify blocks until closed
}

func (f *fakeIntent) Classify(ctx context.Context, query string) ragtypes.Intent {
	if f.release != nil {
		<-f.release
	}
	return f.intent
}

type fakeSearcher struct {
	candidates []ragtypes.Candidate
	err        error
}

func (f *fakeSearcher) Search(ctx context.Context, query, collection string, opt search.Options) ([]ragtypes.Candidate, error) {
	return f.candidates, f.err
}

type fakeRerank struct {
	out []ragtypes.Candidate
	err error
}

func (f *fakeRerank) Rerank(ctx context.Context, query string, candidates []ragtypes.Candidate, topN int) ([]ragtypes.Candidate, error) {
	return f.out, f.err
}

type fakeCompress struct{ called bool }

func (f *fakeCompress) Compress(ctx context.Context, query string, candidates []ragtypes.Candidate, opt compressor.Options) []ragtypes.Candidate {
	f.called = true
	return candidates
}

type fakeAnswerGen struct {
	result answer.Result
	err    error
	gotIn  ragtypes.Intent
}

func (f *fakeAnswerGen) Generate(ctx context.Context, query string, in ragtypes.Intent, chunks []ragtypes.Chunk, opt answer.Options) (answer.Result, error) {
	f.gotIn = in
	return f.result, f.err
}

func candidates(n int) []ragtypes.Candidate {
	out := make([]ragtypes.Candidate, n)
	for i := range out {
		out[i] = ragtypes.Candidate{Chunk: ragtypes.Chunk{ID: "c" + string(rune('0'+i)), ChunkIndex: i}, Score: 1.0 - float64(i)*0.1}
	}
	return out
}

func TestRetrieve_HappyPath(t *testing.T) {
	t.Parallel()
	in := &fakeIntent{intent: ragtypes.Intent{Label: ragtypes.IntentComparison, RecommendedModel: "strong"}}
	s := &fakeSearcher{candidates: candidates(5)}
	r := &fakeRerank{out: candidates(3)}
	c := &fakeCompress{}
	ans := &fakeAnswerGen{result: answer.Result{Answer: "the answer"}}

	o := newOrchestrator(in, s, r, c, ans)
	resp, err := o.Retrieve(context.Background(), "q", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != "the answer" {
		t.Errorf("expected answer passthrough, got %q", resp.Answer)
	}
	if ans.gotIn.Label != ragtypes.IntentComparison {
		t.Errorf("expected intent to reach Answer, got %+v", ans.gotIn)
	}
	if resp.IntentSkipped {
		t.Error("expected intent not skipped when it arrives in time")
	}
}

func TestRetrieve_SearchFailureIsFatal(t *testing.T) {
	t.Parallel()
	in := &fakeIntent{intent: ragtypes.Intent{}}
	s := &fakeSearcher{err: errors.New("store down")}
	o := newOrchestrator(in, s, &fakeRerank{}, &fakeCompress{}, &fakeAnswerGen{})

	_, err := o.Retrieve(context.Background(), "q", DefaultOptions())
	if err == nil {
		t.Fatal("expected search failure to be fatal")
	}
}

func TestRetrieve_RerankFailureDegradesAndContinues(t *testing.T) {
	t.Parallel()
	in := &fakeIntent{intent: ragtypes.Intent{}}
	s := &fakeSearcher{candidates: candidates(5)}
	r := &fakeRerank{err: errors.New("rerank down")}
	ans := &fakeAnswerGen{result: answer.Result{Answer: "ok"}}

	o := newOrchestrator(in, s, r, &fakeCompress{}, ans)
	resp, err := o.Retrieve(context.Background(), "q", DefaultOptions())
	if err != nil {
		t.Fatalf("expected rerank failure to degrade, not fail the request: %v", err)
	}
	if resp.Answer != "ok" {
		t.Errorf("expected pipeline to continue to Answer, got %q", resp.Answer)
	}
	found := false
	for _, st := range resp.Stages {
		if st.Name == "rerank" {
			found = true
			if !st.Degraded {
				t.Error("expected rerank stage marked degraded")
			}
		}
	}
	if !found {
		t.Error("expected a rerank stage report")
	}
}

func TestRetrieve_AnswerFailureIsFatal(t *testing.T) {
	t.Parallel()
	in := &fakeIntent{intent: ragtypes.Intent{}}
	s := &fakeSearcher{candidates: candidates(3)}
	ans := &fakeAnswerGen{err: errors.New("gateway down")}

	o := newOrchestrator(in, s, &fakeRerank{out: candidates(3)}, &fakeCompress{}, ans)
	_, err := o.Retrieve(context.Background(), "q", DefaultOptions())
	if err == nil {
		t.Fatal("expected answer failure to be fatal")
	}
}

func TestRetrieve_CompressionSkippedByDefault(t *testing.T) {
	t.Parallel()
	in := &fakeIntent{intent: ragtypes.Intent{}}
	s := &fakeSearcher{candidates: candidates(3)}
	c := &fakeCompress{}
	o := newOrchestrator(in, s, &fakeRerank{out: candidates(3)}, c, &fakeAnswerGen{})

	opt := DefaultOptions()
	if _, err := o.Retrieve(context.Background(), "q", opt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.called {
		t.Error("expected compress stage skipped when EnableCompression is false")
	}
}

func TestRetrieve_MaxContextChunksTruncates(t *testing.T) {
	t.Parallel()
	in := &fakeIntent{intent: ragtypes.Intent{}}
	s := &fakeSearcher{candidates: candidates(10)}
	ans := &fakeAnswerGen{}
	o := newOrchestrator(in, s, &fakeRerank{out: candidates(10)}, &fakeCompress{}, ans)

	opt := DefaultOptions()
	opt.MaxContextChunks = 2
	resp, err := o.Retrieve(context.Background(), "q", opt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ContextChunks) != 2 {
		t.Errorf("expected 2 context chunks, got %d", len(resp.ContextChunks))
	}
}

func TestRetrieve_IntentSkippedWhenSlowerThanPipeline(t *testing.T) {
	t.Parallel()
	in := &fakeIntent{intent: ragtypes.Intent{Label: ragtypes.IntentSynthesis}, release: make(chan struct{})}
	s := &fakeSearcher{candidates: candidates(3)}
	ans := &fakeAnswerGen{}
	o := newOrchestrator(in, s, &fakeRerank{out: candidates(3)}, &fakeCompress{}, ans)

	resp, err := o.Retrieve(context.Background(), "q", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IntentSkipped {
		t.Error("expected intent to be marked skipped when it hasn't arrived yet")
	}
	if ans.gotIn.Label != ragtypes.IntentFactualRetrieval {
		t.Errorf("expected factual_retrieval fallback, got %+v", ans.gotIn)
	}
	close(in.release)
}

func TestDefaultOptions_MatchesSpecDefaults(t *testing.T) {
	t.Parallel()
	opt := DefaultOptions()
	if opt.SearchTopK != 10 || opt.RerankTopK != 3 || opt.MaxContextChunks != 3 {
		t.Errorf("unexpected topK defaults: %+v", opt)
	}
	if !opt.EnableReranking || opt.EnableCompression || !opt.MetadataBoost || !opt.EnableCitations {
		t.Errorf("unexpected toggle defaults: %+v", opt)
	}
	if opt.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", opt.Temperature)
	}
}
