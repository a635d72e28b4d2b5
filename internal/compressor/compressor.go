// Package compressor implements the optional Compressor stage:
// compress(query, chunks, ratio, scoreThreshold) -> compressedChunks. Each
// chunk is compressed independently and a per-chunk failure falls back to
// that chunk's original text, mirroring the per-item
// try/continue-on-error loop in internal/sefii/context_retrieval.go's
// RetrieveWithContext, and the per-chunk-isolation idiom established in
// internal/metadata for "never fail the whole batch" stages.
package compressor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ragfabric/internal/answer"
	"ragfabric/internal/llmgateway"
	"ragfabric/internal/ragtypes"
)

const defaultRatio = 0.5
const defaultScoreThreshold = 0.3

type chatCaller interface {
	Chat(ctx context.Context, req llmgateway.ChatRequest) (llmgateway.ChatResponse, error)
}

// Options controls the compression target; Enabled defaults to false per
// spec.md §4.10 ("Default. Disabled.").
type Options struct {
	Enabled        bool
	Ratio          float64
	ScoreThreshold float64
	Model          string
}

func (o Options) normalized() Options {
	if o.Ratio <= 0 {
		o.Ratio = defaultRatio
	}
	if o.ScoreThreshold <= 0 {
		o.ScoreThreshold = defaultScoreThreshold
	}
	return o
}

type Compressor struct {
	gateway chatCaller
}

func New(gateway *llmgateway.Gateway) *Compressor {
	return &Compressor{gateway: gateway}
}

type sentenceScore struct {
	Text      string  `json:"text"`
	Relevance float64 `json:"relevance"`
}

type extractionOutput struct {
	Sentences []sentenceScore `json:"sentences"`
}

// Compress runs the optional sentence-extraction stage over candidates.
// When Options.Enabled is false, candidates pass through unchanged. A chunk
// whose every sentence falls below ScoreThreshold is dropped entirely
// (never kept empty); a chunk whose LLM call fails falls back to its
// original text unchanged (never expands, never fabricates).
func (c *Compressor) Compress(ctx context.Context, query string, candidates []ragtypes.Candidate, opt Options) []ragtypes.Candidate {
	if !opt.Enabled {
		return candidates
	}
	opt = opt.normalized()

	out := make([]ragtypes.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		compressed, keep := c.compressOne(ctx, query, cand, opt)
		if keep {
			out = append(out, compressed)
		}
	}
	return out
}

func (c *Compressor) compressOne(ctx context.Context, query string, cand ragtypes.Candidate, opt Options) (ragtypes.Candidate, bool) {
	resp, err := c.gateway.Chat(ctx, llmgateway.ChatRequest{
		Model:       opt.Model,
		Temperature: 0,
		Messages: []llmgateway.Message{
			{Role: "system", Content: extractionPrompt(opt.Ratio)},
			{Role: "user", Content: fmt.Sprintf("Query: %s\n\nText:\n%s", query, cand.Chunk.Text)},
		},
	})
	if err != nil {
		return cand, true // failure policy: fall back to the original text
	}

	var parsed extractionOutput
	if err := json.Unmarshal([]byte(answer.StripThink(resp.Content)), &parsed); err != nil {
		return cand, true
	}

	var kept []string
	for _, s := range parsed.Sentences {
		if s.Relevance >= opt.ScoreThreshold {
			kept = append(kept, s.Text)
		}
	}
	if len(kept) == 0 {
		return ragtypes.Candidate{}, false // every sentence below threshold: drop the chunk
	}

	cand.Chunk.Text = strings.Join(kept, " ")
	return cand, true
}

func extractionPrompt(ratio float64) string {
	return fmt.Sprintf(
		"Given a query and a passage, select only the sentences from the passage whose "+
			"meaning is required to answer the query. Preserve the original wording exactly — "+
			"do not paraphrase or add anything. Target keeping about %.0f%% of the original length. "+
			"Return ONLY a JSON object: {\"sentences\": [{\"text\": string, \"relevance\": number 0-1}]} "+
			"listing every sentence you considered, each with its relevance score.",
		ratio*100,
	)
}
