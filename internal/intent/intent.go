// Package intent is the Intent Classifier: query text -> Intent label,
// cache-then-call-then-fallback, grounded on the HybridClassifier shape in
// Aman-CERP-amanmcp's internal/search/classifier.go (LRU-cache-first, LLM
// call, then a fixed fallback on failure rather than a second classifier —
// spec.md §4.7 pins the fallback to factual_retrieval/0.5, so there is no
// pattern-matcher tier here the way the teacher-of-that-file has one).
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"ragfabric/internal/answer"
	"ragfabric/internal/llmgateway"
	"ragfabric/internal/ragtypes"
)

const defaultCacheSize = 10000

// fallbackModel is used for recommended_model on the documented fallback
// path, where no classification succeeded to recommend one.
const fallbackModel = "gpt-4o-mini"

type chatCaller interface {
	Chat(ctx context.Context, req llmgateway.ChatRequest) (llmgateway.ChatResponse, error)
}

// Classifier classifies query text into one of the 15 closed intent
// labels. It never owns an *http.Client of its own — all outbound calls
// route through the shared Gateway, and Classifier holds only a reference
// to it, so a classifier-level probe can never close a client other
// components still depend on.
type Classifier struct {
	gateway chatCaller
	model   string
	cache   *lru.Cache[string, ragtypes.Intent]
}

func New(gateway *llmgateway.Gateway, model string, cacheSize int) *Classifier {
	return newClassifier(gateway, model, cacheSize)
}

func newClassifier(gateway chatCaller, model string, cacheSize int) *Classifier {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, _ := lru.New[string, ragtypes.Intent](cacheSize)
	return &Classifier{gateway: gateway, model: model, cache: cache}
}

// Classify returns the query's Intent. On cache miss it issues a single LLM
// call; on parse failure or upstream error it returns the documented
// fallback (factual_retrieval, confidence 0.5) rather than propagating an
// error, per spec.md §4.7.
func (c *Classifier) Classify(ctx context.Context, query string) ragtypes.Intent {
	key := normalize(query)
	if key == "" {
		return fallback()
	}
	if cached, ok := c.cache.Get(key); ok {
		return cached
	}

	out, err := c.classifyViaLLM(ctx, query)
	if err != nil {
		return fallback()
	}
	c.cache.Add(key, out)
	return out
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func fallback() ragtypes.Intent {
	return ragtypes.Intent{
		Label:            ragtypes.IntentFactualRetrieval,
		Confidence:       0.5,
		Language:         "en",
		RecommendedModel: fallbackModel,
	}
}

type classificationOutput struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

func (c *Classifier) classifyViaLLM(ctx context.Context, query string) (ragtypes.Intent, error) {
	resp, err := c.gateway.Chat(ctx, llmgateway.ChatRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []llmgateway.Message{
			{Role: "system", Content: classificationPrompt()},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return ragtypes.Intent{}, err
	}

	var out classificationOutput
	raw := answer.StripThink(resp.Content)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return ragtypes.Intent{}, fmt.Errorf("parse intent json: %w", err)
	}
	if !validLabel(out.Label) {
		return ragtypes.Intent{}, fmt.Errorf("unrecognized intent label %q", out.Label)
	}
	if out.Language == "" {
		out.Language = "en"
	}
	return ragtypes.Intent{
		Label:            out.Label,
		Confidence:       out.Confidence,
		Language:         out.Language,
		RecommendedModel: recommendedModel(out.Label),
	}, nil
}

func validLabel(label string) bool {
	for _, l := range ragtypes.IntentLabels {
		if l == label {
			return true
		}
	}
	return false
}

// recommendedModel hints the Answer Generator's tier selection (spec.md
// §4.11): complex intents get the strong tier, everything else fast.
func recommendedModel(label string) string {
	if ragtypes.ComplexIntents[label] {
		return "strong"
	}
	return "fast"
}

func classificationPrompt() string {
	var b strings.Builder
	b.WriteString("You classify a user query into exactly one of the following intent labels:\n")
	for _, l := range ragtypes.IntentLabels {
		b.WriteString("- " + l + "\n")
	}
	b.WriteString(
		"Return ONLY a JSON object with keys \"label\" (one of the above, verbatim), " +
			"\"confidence\" (0 to 1), and \"language\" (ISO 639-1 code of the query's language). " +
			"Do not include any text outside the JSON object.",
	)
	return b.String()
}
