// Package retrieve is the Retrieval Orchestrator: Intent ∥ Search -> Rerank
// -> Compress? -> Answer for one query, composed the way the teacher's
// internal/rag/service.Service.Retrieve strings together ParallelCandidates,
// AssembleResults, and per-stage metrics timing, narrowed from its
// full-text+vector+graph fan-out down to the single Intent ∥ Search
// composition this design calls for.
package retrieve

import (
	"context"
	"time"

	"ragfabric/internal/answer"
	"ragfabric/internal/compressor"
	"ragfabric/internal/intent"
	"ragfabric/internal/ragtypes"
	"ragfabric/internal/reranker"
	"ragfabric/internal/search"
	"ragfabric/internal/vectorstore"
)

// intentClassifier is the narrow slice of *intent.Classifier this package
// needs, kept as an interface so the best-effort-intent race is testable
// with a fake that can be made to arrive late or not at all.
type intentClassifier interface {
	Classify(ctx context.Context, query string) ragtypes.Intent
}

// searcher is the narrow slice of *search.Searcher this package needs.
type searcher interface {
	Search(ctx context.Context, query, collection string, opt search.Options) ([]ragtypes.Candidate, error)
}

// answerGenerator is the narrow slice of *answer.Generator this package needs.
type answerGenerator interface {
	Generate(ctx context.Context, query string, in ragtypes.Intent, contextChunks []ragtypes.Chunk, opt answer.Options) (answer.Result, error)
}

// compressorStage is the narrow slice of *compressor.Compressor this package
// needs.
type compressorStage interface {
	Compress(ctx context.Context, query string, candidates []ragtypes.Candidate, opt compressor.Options) []ragtypes.Candidate
}

// Options controls one retrieve call, mirroring spec.md §4.12's parameter
// defaults summary.
type Options struct {
	Collection         string
	Tenant             string
	SearchTopK         int
	RerankTopK         int
	MaxContextChunks   int
	EnableReranking    bool
	EnableCompression  bool
	MetadataBoost      bool
	SearchFilter       vectorstore.Filter
	AnswerModel        string
	Temperature        float64
	EnableCitations    bool
	CompressionOptions compressor.Options
}

// DefaultOptions returns spec.md §4.12's parameter defaults:
// search_top_k=10, rerank_top_k=3, max_context_chunks=3, compression=off,
// citations=on, temperature=0.3, metadata_boost=on.
func DefaultOptions() Options {
	return Options{
		SearchTopK:        10,
		RerankTopK:        3,
		MaxContextChunks:  3,
		EnableReranking:   true,
		EnableCompression: false,
		MetadataBoost:     true,
		Temperature:       0.3,
		EnableCitations:   true,
	}
}

// StageReport records one pipeline stage's outcome, per spec.md §3's
// {time_ms, success, skipped, metadata} shape.
type StageReport struct {
	Name     string
	Skipped  bool
	Degraded bool
	Err      error
	Count    int
	Duration time.Duration
}

// Response is Retrieve's return value.
type Response struct {
	Answer        string
	Citations     []ragtypes.Citation
	ContextChunks []ragtypes.Chunk
	Stages        []StageReport
	TotalTime     time.Duration
	IntentSkipped bool
}

type Orchestrator struct {
	intent   intentClassifier
	search   searcher
	rerank   reranker.Reranker
	compress compressorStage
	answer   answerGenerator
}

// New wires the five stage components into one orchestrator. rerank and
// compress are optional (nil is valid when the corresponding toggle is
// always left off by callers); a nil rerank/compress with its toggle on
// at call time degrades that stage rather than panicking.
func New(in *intent.Classifier, s *search.Searcher, rerank reranker.Reranker, compress *compressor.Compressor, gen *answer.Generator) *Orchestrator {
	return newOrchestrator(in, s, rerank, compress, gen)
}

func newOrchestrator(in intentClassifier, s searcher, rerank reranker.Reranker, compress compressorStage, gen answerGenerator) *Orchestrator {
	return &Orchestrator{intent: in, search: s, rerank: rerank, compress: compress, answer: gen}
}

// Retrieve runs the full pipeline for one query, per spec.md §4.12.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, opt Options) (Response, error) {
	start := time.Now()
	var stages []StageReport

	// Step 1: launch Intent concurrently with Stage 1 (Search). Intent is
	// best-effort — its result is consumed only if it has already arrived
	// by the time Stage 4 is ready to start.
	intentCh := make(chan ragtypes.Intent, 1)
	intentStart := time.Now()
	go func() {
		intentCh <- o.intent.Classify(ctx, query)
	}()

	// Stage 1: Search. Fatal on failure.
	searchStart := time.Now()
	topK := opt.SearchTopK
	if topK <= 0 {
		topK = 10
	}
	searchOpt := search.Options{
		TopK:          topK,
		Tenant:        opt.Tenant,
		MetadataBoost: opt.MetadataBoost,
		Filter:        opt.SearchFilter,
	}
	candidates, err := o.search.Search(ctx, query, opt.Collection, searchOpt)
	stages = append(stages, StageReport{Name: "search", Err: err, Count: len(candidates), Duration: time.Since(searchStart)})
	if err != nil {
		return Response{Stages: stages, TotalTime: time.Since(start)}, err
	}

	// Stage 2: Rerank (toggle enableReranking, default on). Degraded on
	// failure.
	rerankStart := time.Now()
	if opt.EnableReranking && o.rerank != nil {
		rerankTopK := opt.RerankTopK
		if rerankTopK <= 0 {
			rerankTopK = 3
		}
		reranked, rerr := o.rerank.Rerank(ctx, query, candidates, rerankTopK)
		if rerr != nil {
			stages = append(stages, StageReport{Name: "rerank", Degraded: true, Err: rerr, Count: len(candidates), Duration: time.Since(rerankStart)})
		} else {
			candidates = reranked
			stages = append(stages, StageReport{Name: "rerank", Count: len(candidates), Duration: time.Since(rerankStart)})
		}
	} else {
		stages = append(stages, StageReport{Name: "rerank", Skipped: true, Count: len(candidates), Duration: time.Since(rerankStart)})
	}

	// Stage 3: Compress (toggle enableCompression, default off). Degraded
	// on failure; the compressor itself never surfaces a hard error (each
	// candidate independently falls back to its original text), so this
	// stage only ever reports skipped or succeeded.
	compressStart := time.Now()
	if opt.EnableCompression && o.compress != nil {
		compOpt := opt.CompressionOptions
		compOpt.Enabled = true
		candidates = o.compress.Compress(ctx, query, candidates, compOpt)
		stages = append(stages, StageReport{Name: "compress", Count: len(candidates), Duration: time.Since(compressStart)})
	} else {
		stages = append(stages, StageReport{Name: "compress", Skipped: true, Count: len(candidates), Duration: time.Since(compressStart)})
	}

	// Stage 4: Answer. Takes at most maxContextChunks from stage 3's
	// output. Fatal on failure.
	maxChunks := opt.MaxContextChunks
	if maxChunks <= 0 {
		maxChunks = 3
	}
	contextChunks := make([]ragtypes.Chunk, 0, maxChunks)
	for i, c := range candidates {
		if i >= maxChunks {
			break
		}
		contextChunks = append(contextChunks, c.Chunk)
	}

	in, intentSkipped := o.resolveIntent(intentCh)
	stages = append(stages, StageReport{Name: "intent", Skipped: intentSkipped, Duration: time.Since(intentStart)})

	answerStart := time.Now()
	ansOpt := answer.Options{
		Model:           opt.AnswerModel,
		Temperature:     opt.Temperature,
		EnableCitations: opt.EnableCitations,
	}
	result, err := o.answer.Generate(ctx, query, in, contextChunks, ansOpt)
	stages = append(stages, StageReport{Name: "answer", Err: err, Duration: time.Since(answerStart)})
	if err != nil {
		return Response{Stages: stages, ContextChunks: contextChunks, TotalTime: time.Since(start), IntentSkipped: intentSkipped}, err
	}

	return Response{
		Answer:        result.Answer,
		Citations:     result.Citations,
		ContextChunks: contextChunks,
		Stages:        stages,
		TotalTime:     time.Since(start),
		IntentSkipped: intentSkipped,
	}, nil
}

// resolveIntent performs the non-blocking check spec.md §4.12 step 1
// describes: if Intent hasn't produced a result by the time Answer is
// ready to start, proceed with factual_retrieval defaults.
func (o *Orchestrator) resolveIntent(ch <-chan ragtypes.Intent) (ragtypes.Intent, bool) {
	select {
	case in := <-ch:
		return in, false
	default:
		return ragtypes.Intent{
			Label:            ragtypes.IntentFactualRetrieval,
			Confidence:       0.5,
			Language:         "en",
			RecommendedModel: "fast",
		}, true
	}
}
