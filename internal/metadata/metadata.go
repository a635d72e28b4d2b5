// Package metadata is the Metadata Extractor: per-chunk LLM-driven
// extraction of four semantic fields, built the way the teacher builds
// structured-output LLM calls (internal/llm/openai/schema.go's JSON-schema
// contract for chat completions) and the way internal/sefii/engine.go
// isolates per-item failures so one bad chunk never fails a whole batch.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/semaphore"

	"ragfabric/internal/llmgateway"
	"ragfabric/internal/obslog"
)

// Fields is the four-key contract spec.md §4.4 requires verbatim.
type Fields struct {
	Keywords  string `json:"keywords"`
	Topics    string `json:"topics"`
	Questions string `json:"questions"`
	Summary   string `json:"summary"`
}

// Counts lets the caller override the default field counts (5/3/3/"1-2
// sentences").
type Counts struct {
	Keywords  int
	Topics    int
	Questions int
	Summary   string // free-form size hint, e.g. "1-2 sentences"
}

func DefaultCounts() Counts {
	return Counts{Keywords: 5, Topics: 3, Questions: 3, Summary: "1-2 sentences"}
}

// MergeCounts overlays every non-zero field of override onto defaults, so a
// caller that only sets keywords_count still gets the default topics/
// questions/summary sizing instead of zeroing them out.
func MergeCounts(override, defaults Counts) Counts {
	out := defaults
	if override.Keywords > 0 {
		out.Keywords = override.Keywords
	}
	if override.Topics > 0 {
		out.Topics = override.Topics
	}
	if override.Questions > 0 {
		out.Questions = override.Questions
	}
	if override.Summary != "" {
		out.Summary = override.Summary
	}
	return out
}

// chatCaller is the narrow slice of *llmgateway.Gateway the extractor
// needs; accepting the interface rather than the concrete type keeps the
// retry/parse logic below testable without a real gateway.
type chatCaller interface {
	Chat(ctx context.Context, req llmgateway.ChatRequest) (llmgateway.ChatResponse, error)
}

// Extractor runs the four-field extraction for a batch of chunk texts,
// capping outbound LLM concurrency with a semaphore (default 20, per
// spec.md §4.4).
type Extractor struct {
	gateway chatCaller
	model   string
	sem     *semaphore.Weighted
	logger  obslog.Logger
}

func New(gateway *llmgateway.Gateway, model string, concurrency int64, logger obslog.Logger) *Extractor {
	return newExtractor(gateway, model, concurrency, logger)
}

func newExtractor(gateway chatCaller, model string, concurrency int64, logger obslog.Logger) *Extractor {
	if concurrency <= 0 {
		concurrency = 20
	}
	return &Extractor{gateway: gateway, model: model, sem: semaphore.NewWeighted(concurrency), logger: logger}
}

// ExtractBatch extracts metadata for each text independently; a failure on
// any one text degrades to empty fields for that text only — the batch
// itself never fails as long as the gateway is reachable for at least one
// call (spec.md §4.4 "Concurrency").
func (e *Extractor) ExtractBatch(ctx context.Context, texts []string, counts Counts) []Fields {
	out := make([]Fields, len(texts))
	done := make(chan struct{}, len(texts))
	for i, text := range texts {
		i, text := i, text
		go func() {
			defer func() { done <- struct{}{} }()
			if err := e.sem.Acquire(ctx, 1); err != nil {
				out[i] = Fields{}
				return
			}
			defer e.sem.Release(1)
			out[i] = e.extractOne(ctx, text, counts)
		}()
	}
	for range texts {
		<-done
	}
	return out
}

func (e *Extractor) extractOne(ctx context.Context, text string, counts Counts) Fields {
	fields, err := e.call(ctx, text, counts, 0.2)
	if err == nil {
		return fields
	}
	e.logger.Debug("metadata_extract_retry", map[string]any{"error": err.Error()})
	fields, err = e.call(ctx, text, counts, 0.0)
	if err == nil {
		return fields
	}
	e.logger.Error("metadata_extract_failed_after_retry", map[string]any{"error": err.Error()})
	return Fields{}
}

func (e *Extractor) call(ctx context.Context, text string, counts Counts, temperature float64) (Fields, error) {
	resp, err := e.gateway.Chat(ctx, llmgateway.ChatRequest{
		Model:       e.model,
		Temperature: temperature,
		Messages: []llmgateway.Message{
			{Role: "system", Content: promptFor(counts)},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return Fields{}, err
	}
	return parseFields(resp.Content)
}

func promptFor(c Counts) string {
	return fmt.Sprintf(
		"You extract structured metadata from a single document chunk. "+
			"Return ONLY a JSON object with exactly these four keys: "+
			`"keywords", "topics", "questions", "summary". `+
			"keywords: up to %d comma-separated keywords present in the text. "+
			"topics: up to %d comma-separated topics the text covers. "+
			"questions: up to %d questions the text would answer, separated by '; '. "+
			"summary: a %s summary. "+
			"Extract only what is present in the text; never invent content that isn't there. "+
			"Do not include any text outside the JSON object.",
		c.Keywords, c.Topics, c.Questions, c.Summary,
	)
}

// parseFields parses strictly: any JSON error or non-object response is
// treated as a failure so the caller's retry-once policy applies.
func parseFields(raw string) (Fields, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var f Fields
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return Fields{}, fmt.Errorf("parse metadata json: %w", err)
	}
	return f, nil
}
