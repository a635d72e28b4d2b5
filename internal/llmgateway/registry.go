// Package llmgateway is the single egress point for every outbound call to
// a model provider: chat, embed, and rerank all funnel through here so that
// caching, connection pooling, and rate budgeting apply uniformly. No other
// package is permitted to hold a provider HTTP client of its own.
package llmgateway

import (
	"fmt"
	"strings"

	"ragfabric/internal/ragerr"
)

// ProviderFamily names the closed set of backends this gateway speaks.
type ProviderFamily string

const (
	ProviderOpenAI    ProviderFamily = "openai"
	ProviderAnthropic ProviderFamily = "anthropic"
	ProviderGemini    ProviderFamily = "gemini"
)

// Capability flags what an operation a resolved model supports.
type Capability string

const (
	CapChat   Capability = "chat"
	CapEmbed  Capability = "embed"
	CapRerank Capability = "rerank"
)

// ModelSpec is what resolveModel returns: enough to route a call without
// the caller ever touching a provider-specific detail.
type ModelSpec struct {
	ID           string
	Provider     ProviderFamily
	Endpoint     string // routing override: jinaMarker selects the Jina-configured client; any other value uses the family's default client
	Dimension    int    // 0 for chat-only models
	Capabilities map[Capability]bool
	Tier         string // "fast" | "strong"; ModelsForTier lists chat models by it
}

// registry is the closed set of models this service knows how to dispatch.
// resolveModel rejects unknown IDs with ErrModelUnknown when a gateway call
// (or embedder.New) resolves them; the HTTP handlers do not check model IDs
// before the pipeline starts.
var registry = map[string]ModelSpec{
	"gpt-4o-mini": {
		ID: "gpt-4o-mini", Provider: ProviderOpenAI, Tier: "fast",
		Capabilities: map[Capability]bool{CapChat: true},
	},
	"gpt-4o": {
		ID: "gpt-4o", Provider: ProviderOpenAI, Tier: "strong",
		Capabilities: map[Capability]bool{CapChat: true},
	},
	"claude-3-5-sonnet-latest": {
		ID: "claude-3-5-sonnet-latest", Provider: ProviderAnthropic, Tier: "strong",
		Capabilities: map[Capability]bool{CapChat: true},
	},
	"claude-3-5-haiku-latest": {
		ID: "claude-3-5-haiku-latest", Provider: ProviderAnthropic, Tier: "fast",
		Capabilities: map[Capability]bool{CapChat: true},
	},
	"gemini-2.0-flash": {
		ID: "gemini-2.0-flash", Provider: ProviderGemini, Tier: "fast",
		Capabilities: map[Capability]bool{CapChat: true},
	},
	"gemini-1.5-pro": {
		ID: "gemini-1.5-pro", Provider: ProviderGemini, Tier: "strong",
		Capabilities: map[Capability]bool{CapChat: true},
	},
	"jina-v3": {
		ID: "jina-v3", Provider: ProviderOpenAI, Endpoint: jinaMarker, Dimension: 1024,
		Capabilities: map[Capability]bool{CapEmbed: true},
	},
	"jina-v4": {
		ID: "jina-v4", Provider: ProviderOpenAI, Endpoint: jinaMarker, Dimension: 2048,
		Capabilities: map[Capability]bool{CapEmbed: true},
	},
	"bge-multilingual-gemma2": {
		ID: "bge-multilingual-gemma2", Provider: ProviderOpenAI, Dimension: 3584,
		Capabilities: map[Capability]bool{CapEmbed: true},
	},
	"e5-mistral-7b": {
		ID: "e5-mistral-7b", Provider: ProviderOpenAI, Dimension: 4096,
		Capabilities: map[Capability]bool{CapEmbed: true},
	},
	"bge-en-icl": {
		ID: "bge-en-icl", Provider: ProviderOpenAI, Dimension: 4096,
		Capabilities: map[Capability]bool{CapEmbed: true},
	},
	"qwen3-8b": {
		ID: "qwen3-8b", Provider: ProviderOpenAI, Dimension: 4096,
		Capabilities: map[Capability]bool{CapEmbed: true},
	},
	"bge-reranker-v2-m3": {
		ID: "bge-reranker-v2-m3", Provider: ProviderOpenAI,
		Capabilities: map[Capability]bool{CapRerank: true},
	},
	"jina-reranker-v2": {
		ID: "jina-reranker-v2", Provider: ProviderOpenAI, Endpoint: jinaMarker,
		Capabilities: map[Capability]bool{CapRerank: true},
	},
}

// modelAliases maps the human-readable model names spec.md's own worked
// examples use (e.g. "jina-embeddings-v3", "E5-Mistral-7B-Instruct") onto
// this gateway's canonical registry keys. Keyed lower-case; NormalizeModelAlias
// does the case-folding.
var modelAliases = map[string]string{
	"jina-embeddings-v3":      "jina-v3",
	"jina-embeddings-v4":      "jina-v4",
	"e5-mistral-7b-instruct":  "e5-mistral-7b",
	"e5-mistral":              "e5-mistral-7b",
	"bge-multilingual-gemma-2": "bge-multilingual-gemma2",
	"bge-reranker-v2-m3":       "bge-reranker-v2-m3",
	"jina-reranker-v2-base":    "jina-reranker-v2",
}

// NormalizeModelAlias resolves a human-readable model name to this
// gateway's canonical registry key. Names not found in the alias table pass
// through unchanged, so resolveModel's own unknown-model error still fires
// on genuinely bad input rather than this function silently swallowing it.
func NormalizeModelAlias(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if canon, ok := modelAliases[key]; ok {
		return canon
	}
	return name
}

// resolveModel is the registry's sole lookup entrypoint.
func resolveModel(id string) (ModelSpec, error) {
	spec, ok := registry[NormalizeModelAlias(id)]
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: unknown model %q", ragerr.ErrModelUnknown, id)
	}
	return spec, nil
}

// RegisterModel allows a deployment to extend the closed set at process
// start (e.g. a self-hosted endpoint under a house model name). Not safe
// for concurrent use with resolveModel; call only during startup wiring.
func RegisterModel(spec ModelSpec) {
	registry[spec.ID] = spec
}

// ModelsForTier returns every chat-capable model registered under a tier.
func ModelsForTier(tier string) []string {
	var out []string
	for id, spec := range registry {
		if spec.Tier == tier && spec.Capabilities[CapChat] {
			out = append(out, id)
		}
	}
	return out
}
