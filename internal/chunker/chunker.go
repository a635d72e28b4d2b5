// Package chunker is the Chunker: split(text, method, maxSize, overlap,
// separators?, headers?) -> chunks[], generalized from the teacher's
// internal/rag/chunker/chunker.go strategy switch and
// internal/textsplitters' separator-ranked recursive splitting.
package chunker

import (
	"strconv"
	"strings"

	"ragfabric/internal/ragtypes"
)

const (
	MinMaxSize     = 100
	MaxMaxSize     = 10000
	DefaultMaxSize = 1000
	MinOverlap     = 0
	MaxOverlap     = 1000
	DefaultOverlap = 300
)

// Options mirrors spec.md §4.5's split() parameters.
type Options struct {
	Strategy        string // "recursive" (default) | "markdown" | "token"
	MaxSize         int    // tokens
	Overlap         int    // tokens
	Separators      []string
	MarkdownHeaders []string // e.g. "#", "##", "###"
	Model           string   // tokenizer model name, passed to the tokenizer
}

// Chunk is the chunker's raw output before metadata/embedding are attached.
type Chunk struct {
	Index     int
	Text      string
	CharCount int
	TokenCount int
}

// defaultSeparators is the paragraph -> line -> sentence -> word -> character
// ranked list spec.md §4.5 describes for the recursive strategy.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Split is the Chunker's entrypoint. Output is always in document order
// with strictly ascending indices starting at 0 (spec.md §4.5 "Output").
func Split(text string, opt Options) ([]Chunk, error) {
	opt = normalizeOptions(opt)
	tok := tokenizerFor(opt.Model)

	var pieces []string
	switch strings.ToLower(opt.Strategy) {
	case "markdown", "md":
		pieces = splitMarkdown(text, opt, tok)
	case "token":
		pieces = splitTokenWindows(text, opt, tok)
	default:
		pieces = splitRecursive(text, opt.MaxSize, separatorsOrDefault(opt.Separators), tok)
		pieces = applyOverlap(pieces, opt.Overlap, tok)
	}

	out := make([]Chunk, 0, len(pieces))
	idx := 0
	for _, p := range pieces {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		out = append(out, Chunk{
			Index:      idx,
			Text:       trimmed,
			CharCount:  len([]rune(trimmed)),
			TokenCount: tok.Count(trimmed),
		})
		idx++
	}
	return out, nil
}

func normalizeOptions(opt Options) Options {
	if opt.MaxSize < MinMaxSize || opt.MaxSize > MaxMaxSize {
		opt.MaxSize = DefaultMaxSize
	}
	if opt.Overlap < MinOverlap || opt.Overlap > MaxOverlap {
		opt.Overlap = DefaultOverlap
	}
	if opt.Overlap >= opt.MaxSize {
		opt.Overlap = opt.MaxSize / 4
	}
	return opt
}

func separatorsOrDefault(s []string) []string {
	if len(s) == 0 {
		return defaultSeparators
	}
	return s
}

// ToRagtypeChunks projects the chunker's output into ragtypes.Chunk records
// for a document, assigning the id/tenant/document linkage the Ingestion
// Orchestrator is responsible for (spec.md §4.6 step 3).
func ToRagtypeChunks(documentID, tenantID string, chunks []Chunk) []ragtypes.Chunk {
	out := make([]ragtypes.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = ragtypes.Chunk{
			ID:         documentID + "_chunk_" + strconv.Itoa(c.Index),
			DocumentID: documentID,
			TenantID:   tenantID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			CharCount:  c.CharCount,
			TokenCount: c.TokenCount,
		}
	}
	return out
}
