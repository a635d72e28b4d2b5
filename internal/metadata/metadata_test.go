package metadata

import (
	"context"
	"errors"
	"testing"

	"ragfabric/internal/llmgateway"
	"ragfabric/internal/obslog"
)

type fakeChatter struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeChatter) Chat(ctx context.Context, req llmgateway.ChatRequest) (llmgateway.ChatResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return llmgateway.ChatResponse{}, f.errs[i]
	}
	if i >= len(f.responses) {
		return llmgateway.ChatResponse{Content: f.responses[len(f.responses)-1]}, nil
	}
	return llmgateway.ChatResponse{Content: f.responses[i]}, nil
}

func TestParseFields_StrictJSON(t *testing.T) {
	t.Parallel()
	raw := `{"keywords":"a, b","topics":"x","questions":"why?","summary":"short"}`
	f, err := parseFields(raw)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if f.Keywords != "a, b" || f.Summary != "short" {
		t.Errorf("unexpected fields: %+v", f)
	}
}

func TestParseFields_StripsCodeFence(t *testing.T) {
	t.Parallel()
	raw := "```json\n{\"keywords\":\"a\",\"topics\":\"b\",\"questions\":\"c\",\"summary\":\"d\"}\n```"
	f, err := parseFields(raw)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if f.Keywords != "a" {
		t.Errorf("expected fenced JSON to parse, got %+v", f)
	}
}

func TestParseFields_MalformedReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := parseFields("not json at all"); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestExtractBatch_RetriesOnceThenEmpty(t *testing.T) {
	t.Parallel()
	chatter := &fakeChatter{
		responses: []string{"not json", "still not json"},
	}
	e := newExtractor(chatter, "gpt-4o-mini", 2, obslog.NewNoop())
	out := e.ExtractBatch(context.Background(), []string{"hello world"}, DefaultCounts())
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0] != (Fields{}) {
		t.Errorf("expected empty fields after second failure, got %+v", out[0])
	}
	if chatter.calls != 2 {
		t.Errorf("expected exactly one retry (2 calls), got %d", chatter.calls)
	}
}

func TestExtractBatch_SucceedsOnRetry(t *testing.T) {
	t.Parallel()
	chatter := &fakeChatter{
		responses: []string{"garbage", `{"keywords":"k","topics":"t","questions":"q","summary":"s"}`},
	}
	e := newExtractor(chatter, "gpt-4o-mini", 2, obslog.NewNoop())
	out := e.ExtractBatch(context.Background(), []string{"chunk text"}, DefaultCounts())
	if out[0].Keywords != "k" {
		t.Errorf("expected successful second attempt, got %+v", out[0])
	}
}

func TestExtractBatch_IsolatesPerChunkFailures(t *testing.T) {
	t.Parallel()
	chatter := &fakeChatter{
		errs: []error{
			errors.New("upstream down"), errors.New("upstream down"),
			errors.New("upstream down"), errors.New("upstream down"),
		},
		responses: []string{
			`{"keywords":"k","topics":"t","questions":"q","summary":"s"}`,
		},
	}
	e := newExtractor(chatter, "gpt-4o-mini", 5, obslog.NewNoop())
	out := e.ExtractBatch(context.Background(), []string{"bad chunk", "bad chunk 2"}, DefaultCounts())
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	for _, f := range out {
		if f != (Fields{}) {
			t.Errorf("expected empty fields when backend errors persist, got %+v", f)
		}
	}
}

func TestDefaultCounts(t *testing.T) {
	t.Parallel()
	c := DefaultCounts()
	if c.Keywords != 5 || c.Topics != 3 || c.Questions != 3 {
		t.Errorf("unexpected default counts: %+v", c)
	}
}
