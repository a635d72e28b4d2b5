package compressor

import (
	"context"
	"errors"
	"testing"

	"ragfabric/internal/llmgateway"
	"ragfabric/internal/ragtypes"
)

type fakeChatter struct {
	content string
	err     error
}

func (f *fakeChatter) Chat(ctx context.Context, req llmgateway.ChatRequest) (llmgateway.ChatResponse, error) {
	if f.err != nil {
		return llmgateway.ChatResponse{}, f.err
	}
	return llmgateway.ChatResponse{Content: f.content}, nil
}

func oneCandidate(text string) []ragtypes.Candidate {
	return []ragtypes.Candidate{{Chunk: ragtypes.Chunk{ChunkIndex: 0, Text: text}, Score: 1}}
}

func TestCompress_DisabledIsPassthrough(t *testing.T) {
	t.Parallel()
	c := &Compressor{gateway: &fakeChatter{}}
	in := oneCandidate("original text")
	out := c.Compress(context.Background(), "q", in, Options{Enabled: false})
	if len(out) != 1 || out[0].Chunk.Text != "original text" {
		t.Fatalf("expected unchanged passthrough, got %+v", out)
	}
}

func TestCompress_KeepsHighRelevanceSentences(t *testing.T) {
	t.Parallel()
	c := &Compressor{gateway: &fakeChatter{content: `{"sentences":[{"text":"kept.","relevance":0.9},{"text":"dropped.","relevance":0.1}]}`}}
	out := c.Compress(context.Background(), "q", oneCandidate("kept. dropped."), Options{Enabled: true})
	if len(out) != 1 {
		t.Fatalf("expected 1 candidate kept, got %d", len(out))
	}
	if out[0].Chunk.Text != "kept." {
		t.Errorf("expected only the high-relevance sentence kept, got %q", out[0].Chunk.Text)
	}
}

func TestCompress_DropsChunkWhenAllSentencesBelowThreshold(t *testing.T) {
	t.Parallel()
	c := &Compressor{gateway: &fakeChatter{content: `{"sentences":[{"text":"a.","relevance":0.1},{"text":"b.","relevance":0.05}]}`}}
	out := c.Compress(context.Background(), "q", oneCandidate("a. b."), Options{Enabled: true, ScoreThreshold: 0.3})
	if len(out) != 0 {
		t.Fatalf("expected chunk dropped entirely, got %+v", out)
	}
}

func TestCompress_FallsBackToOriginalOnLLMFailure(t *testing.T) {
	t.Parallel()
	c := &Compressor{gateway: &fakeChatter{err: errors.New("upstream down")}}
	in := oneCandidate("original text")
	out := c.Compress(context.Background(), "q", in, Options{Enabled: true})
	if len(out) != 1 || out[0].Chunk.Text != "original text" {
		t.Fatalf("expected fallback to original text, got %+v", out)
	}
}

func TestCompress_FallsBackOnMalformedJSON(t *testing.T) {
	t.Parallel()
	c := &Compressor{gateway: &fakeChatter{content: "not json"}}
	in := oneCandidate("original text")
	out := c.Compress(context.Background(), "q", in, Options{Enabled: true})
	if len(out) != 1 || out[0].Chunk.Text != "original text" {
		t.Fatalf("expected fallback to original text on malformed response, got %+v", out)
	}
}
