package answer

import (
	"context"
	"testing"

	"ragfabric/internal/llmgateway"
	"ragfabric/internal/ragtypes"
)

type fakeChatter struct {
	content string
	calls   int
}

func (f *fakeChatter) Chat(ctx context.Context, req llmgateway.ChatRequest) (llmgateway.ChatResponse, error) {
	f.calls++
	return llmgateway.ChatResponse{Content: f.content}, nil
}

func TestStripThink_RemovesTagsRegardlessOfModel(t *testing.T) {
	t.Parallel()
	in := "<think>internal reasoning</think>The answer is 42."
	if got := StripThink(in); got != "The answer is 42." {
		t.Errorf("got %q", got)
	}
}

func TestStripThink_NoOpWithoutTags(t *testing.T) {
	t.Parallel()
	if got := StripThink("plain answer"); got != "plain answer" {
		t.Errorf("got %q", got)
	}
}

func TestGenerate_ResolvesModelFromIntentTier(t *testing.T) {
	t.Parallel()
	chatter := &fakeChatter{content: "answer text"}
	g := newGenerator(chatter, "fast-model", "strong-model")
	in := ragtypes.Intent{Label: ragtypes.IntentSynthesis, RecommendedModel: "strong"}
	_, err := g.Generate(context.Background(), "q", in, nil, Options{})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	// resolveModel is exercised indirectly; assert via a second call path.
	if g.resolveModel(in, Options{}) != "strong-model" {
		t.Errorf("expected strong tier to resolve to strong-model")
	}
}

func TestGenerate_CallerOverrideWinsOverIntent(t *testing.T) {
	t.Parallel()
	g := newGenerator(&fakeChatter{}, "fast-model", "strong-model")
	in := ragtypes.Intent{RecommendedModel: "strong"}
	got := g.resolveModel(in, Options{Model: "explicit-model"})
	if got != "explicit-model" {
		t.Errorf("expected caller override to win, got %s", got)
	}
}

func TestGenerate_ExtractsAndValidatesCitations(t *testing.T) {
	t.Parallel()
	chatter := &fakeChatter{content: "Fact one [Source 1]. Fact two [Source 99]."}
	g := newGenerator(chatter, "fast-model", "strong-model")
	chunks := []ragtypes.Chunk{{ID: "c1", DocumentID: "d1", Text: "source text"}}
	result, err := g.Generate(context.Background(), "q", ragtypes.Intent{}, chunks, Options{EnableCitations: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(result.Citations) != 1 || result.Citations[0].SourceID != 1 {
		t.Fatalf("expected exactly one valid citation, got %+v", result.Citations)
	}
	if result.Answer != "Fact one [Source 1]. Fact two ." {
		t.Errorf("expected out-of-range marker stripped, got %q", result.Answer)
	}
}

func TestGenerate_CachesByQueryIntentChunksModelTemperature(t *testing.T) {
	t.Parallel()
	chatter := &fakeChatter{content: "cached answer"}
	g := newGenerator(chatter, "fast-model", "strong-model")
	chunks := []ragtypes.Chunk{{ID: "c1", Text: "x"}}
	in := ragtypes.Intent{Label: ragtypes.IntentFactualRetrieval}
	_, _ = g.Generate(context.Background(), "same query", in, chunks, Options{})
	_, _ = g.Generate(context.Background(), "same query", in, chunks, Options{})
	if chatter.calls != 1 {
		t.Errorf("expected second identical call to hit cache, got %d upstream calls", chatter.calls)
	}
}

func TestPromptFor_UnknownIntentFallsBack(t *testing.T) {
	t.Parallel()
	if promptFor("not_a_real_intent") != fallbackPrompt {
		t.Error("expected fallback prompt for unknown intent label")
	}
}

func TestPromptFor_AllFifteenLabelsHaveDistinctTemplates(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for _, label := range ragtypes.IntentLabels {
		p := promptFor(label)
		if p == fallbackPrompt {
			t.Errorf("intent %s has no dedicated template", label)
		}
		if seen[p] {
			t.Errorf("intent %s shares a template with another label", label)
		}
		seen[p] = true
	}
}
