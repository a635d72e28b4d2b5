// Package answer is the Answer Generator: generate(query, intent,
// contextChunks, model?, temperature, enableCitations) -> {answer,
// citations}, built the way the teacher structures its LLM message/template
// assembly (internal/llm/completions.go's Message slice, internal/llm's
// schema-constrained-prompt idiom) instead of ad hoc string concatenation.
package answer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"ragfabric/internal/llmgateway"
	"ragfabric/internal/ragtypes"
)

const (
	defaultTemperature = 0.3
	defaultTier        = "fast"
	defaultCacheSize   = 5000
	defaultCacheTTL    = 2 * time.Hour
)

type chatCaller interface {
	Chat(ctx context.Context, req llmgateway.ChatRequest) (llmgateway.ChatResponse, error)
}

// Options carries generate()'s caller-supplied parameters.
type Options struct {
	Model           string // caller override; wins over intent.recommended_model
	Temperature     float64
	EnableCitations bool
}

// Result is generate()'s return value.
type Result struct {
	Answer    string
	Citations []ragtypes.Citation
}

type Generator struct {
	gateway   chatCaller
	cache     *lru.LRU[string, Result]
	fastModel string
	strongModel string
}

// New builds a Generator; fastModel/strongModel resolve the "fast"/"strong"
// tier hints the Intent Classifier emits (spec.md §4.11 step 1).
func New(gateway *llmgateway.Gateway, fastModel, strongModel string) *Generator {
	return newGenerator(gateway, fastModel, strongModel)
}

func newGenerator(gateway chatCaller, fastModel, strongModel string) *Generator {
	return &Generator{
		gateway:     gateway,
		cache:       lru.NewLRU[string, Result](defaultCacheSize, nil, defaultCacheTTL),
		fastModel:   fastModel,
		strongModel: strongModel,
	}
}

// Generate produces an answer grounded in contextChunks, following the
// intent's prompt template. Model resolution order: Options.Model >
// intent.RecommendedModel > the "fast" tier default.
func (g *Generator) Generate(ctx context.Context, query string, in ragtypes.Intent, contextChunks []ragtypes.Chunk, opt Options) (Result, error) {
	model := g.resolveModel(in, opt)
	temperature := opt.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	key := cacheKey(query, in.Label, contextChunks, model, temperature)
	if cached, ok := g.cache.Get(key); ok {
		return cached, nil
	}

	resp, err := g.gateway.Chat(ctx, llmgateway.ChatRequest{
		Model:       model,
		Temperature: temperature,
		Messages: []llmgateway.Message{
			{Role: "system", Content: promptFor(in.Label)},
			{Role: "user", Content: buildUserMessage(query, contextChunks)},
		},
	})
	if err != nil {
		return Result{}, err
	}

	text := StripThink(resp.Content)
	result := Result{Answer: text}
	if opt.EnableCitations {
		result.Answer, result.Citations = extractCitations(text, contextChunks)
	}
	g.cache.Add(key, result)
	return result, nil
}

// resolveModel implements spec.md §4.11 step 1's override chain, mapping
// unresolved tier hints ("fast"/"strong") to concrete model ids and any
// other value (a concrete model id from a prior classification) straight
// through.
func (g *Generator) resolveModel(in ragtypes.Intent, opt Options) string {
	if opt.Model != "" {
		return opt.Model
	}
	switch in.RecommendedModel {
	case "strong":
		return g.strongModel
	case "fast", "":
		return g.fastModel
	default:
		return in.RecommendedModel
	}
}

func buildUserMessage(query string, chunks []ragtypes.Chunk) string {
	var b strings.Builder
	b.WriteString("Question: " + query + "\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "Source %d:\n%s\n\n", i+1, c.Text)
	}
	b.WriteString(
		"Answer the question using only the sources above. Cite sources inline using " +
			"[Source N] markers for every claim drawn from a source. If the sources do not " +
			"contain enough information to answer, say so explicitly rather than guessing.",
	)
	return b.String()
}

// thinkTagRe matches a <think>...</think> span, including across lines,
// regardless of which model emitted it — applied to every answer.
var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink removes any <think>...</think> reasoning spans from model
// output. Shared across Answer, Compressor, and Intent so the regex isn't
// duplicated three times.
func StripThink(text string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(text, ""))
}

var citationRe = regexp.MustCompile(`\[Source (\d+)\]`)

// extractCitations finds every [Source N] marker, builds a Citation per
// distinct N that is within range, strips out-of-range markers from the
// text, and omits citations for sources never referenced.
func extractCitations(text string, chunks []ragtypes.Chunk) (string, []ragtypes.Citation) {
	seen := map[int]bool{}
	var citations []ragtypes.Citation

	cleaned := citationRe.ReplaceAllStringFunc(text, func(match string) string {
		m := citationRe.FindStringSubmatch(match)
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(chunks) {
			return "" // reference beyond K: stripped from the text
		}
		if !seen[n] {
			seen[n] = true
			chunk := chunks[n-1]
			citations = append(citations, ragtypes.Citation{
				SourceID:    n,
				ChunkID:     chunk.ID,
				DocumentID:  chunk.DocumentID,
				TextPreview: preview(chunk.Text),
			})
		}
		return match
	})
	return cleaned, citations
}

func preview(text string) string {
	const maxLen = 200
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen]) + "..."
}

func cacheKey(query, intentLabel string, chunks []ragtypes.Chunk, model string, temperature float64) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteByte('\x00')
	b.WriteString(intentLabel)
	b.WriteByte('\x00')
	for _, c := range chunks {
		b.WriteString(c.ID)
		b.WriteByte(',')
	}
	b.WriteByte('\x00')
	b.WriteString(model)
	b.WriteByte('\x00')
	fmt.Fprintf(&b, "%.2f", temperature)
	return b.String()
}
