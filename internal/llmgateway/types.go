package llmgateway

// Message mirrors the teacher's llm.Message shape, trimmed to the fields
// the gateway's chat operation actually needs (no tool calls — none of the
// spec's components drive function calling through the gateway).
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ChatRequest is the gateway's provider-neutral chat call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ChatResponse carries the raw model output, including any <think> block —
// stripping is the caller's concern (internal/answer.StripThink), not the
// gateway's, so every caller sees the same unmodified text.
type ChatResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Cached           bool
}

// EmbedRequest batches up to 128 texts per call per spec.md §4.3.
type EmbedRequest struct {
	Model string
	Texts []string
}

type EmbedResponse struct {
	Vectors [][]float32
	Cached  bool
}

// RerankRequest/Response, shape ported from the teacher's sefii rerank
// contract (internal/sefii/rerank.go: RerankRequest/RerankResponse).
type RerankRequest struct {
	Model     string
	Query     string
	TopN      int
	Documents []string
}

type RerankResult struct {
	Index          int
	RelevanceScore float64
}

type RerankResponse struct {
	Results []RerankResult
}
