// Package ingest is the Ingestion Orchestrator: Chunker -> (Metadata
// Extractor ∥ Embedder) -> Vector Store for one document, generalized from
// the teacher's internal/rag/ingest request/options/stats shape
// (api.go's IngestRequest/IngestOptions/IngestStats) and
// idempotency.go's ResolveIdempotency decision table.
package ingest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ragfabric/internal/chunker"
	"ragfabric/internal/embedder"
	"ragfabric/internal/htmlprep"
	"ragfabric/internal/llmgateway"
	"ragfabric/internal/metadata"
	"ragfabric/internal/ragerr"
	"ragfabric/internal/ragtypes"
	"ragfabric/internal/registry"
	"ragfabric/internal/vectorstore"
)

// Clock abstracts time.Now so stage timing is testable.
type Clock interface{ Now() time.Time }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// StorageDense is the only storage_mode this service implements; any other
// value is rejected at request-validation time rather than silently
// ignored.
const StorageDense = "dense"

// Options controls one ingest call.
type Options struct {
	ChunkOptions    chunker.Options
	MetadataCounts  metadata.Counts
	CreateIfMissing bool
	// ReingestPolicy governs what happens when the registry ledger (if
	// wired) already has a record for this document. Zero value behaves
	// like registry.PolicyOverwrite.
	ReingestPolicy registry.ReingestPolicy
	// EmbeddingModel overrides the orchestrator's default embedder for
	// this call. Empty uses the default. A value other than the default
	// embedder's model requires an embedder factory (WithEmbedderFactory)
	// to be wired, per spec.md §6's embedding_model ingest parameter.
	EmbeddingModel string
	// GenerateMetadata, when non-nil and false, skips the Metadata
	// Extractor stage entirely (chunks are inserted with empty
	// keywords/topics/questions/summary). Nil/true runs it.
	GenerateMetadata *bool
	// GenerateEmbeddings, when non-nil and false, skips embedding and
	// insertion: Ingest only chunks (and optionally extracts metadata),
	// returning the chunk count without writing to the Vector Store. Nil/
	// true runs the full pipeline.
	GenerateEmbeddings *bool
	// StorageMode must be "" or StorageDense; spec.md §6 names the
	// parameter without defining non-dense modes, so only dense storage is
	// accepted.
	StorageMode string
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// StageReport records one stage's outcome for observability, per spec.md
// §4.6 step 5's "Return a StageReport map" requirement.
type StageReport struct {
	Name     string
	Skipped  bool
	Degraded bool
	Err      error
	Duration time.Duration
}

// Result is ingest()'s return value.
type Result struct {
	ChunksCreated  int
	ChunksInserted int
	TotalTime      time.Duration
	Stages         []StageReport
	// Skipped is true when the registry ledger (if wired) determined this
	// document's content is unchanged under registry.PolicySkipIfUnchanged.
	Skipped bool
}

// registryLedger is the narrow slice of *registry.Registry this package
// needs; nil is valid and disables idempotency tracking entirely.
type registryLedger interface {
	Resolve(ctx context.Context, documentID, tenantID, collection, newHash string, policy registry.ReingestPolicy) (registry.Decision, error)
	Upsert(ctx context.Context, documentID, tenantID, collection, hash string, version int) error
	Delete(ctx context.Context, documentID, tenantID, collection string) error
}

// metadataExtractor is the narrow slice of *metadata.Extractor the
// orchestrator needs; accepting the interface keeps this package testable
// without a real gateway-backed extractor.
type metadataExtractor interface {
	ExtractBatch(ctx context.Context, texts []string, counts metadata.Counts) []metadata.Fields
}

// embedderFactory builds a model-specific Embedder on demand, letting
// Ingest honor a per-request embedding_model override without the
// orchestrator holding one Embedder per model up front. *embedder.Factory
// satisfies this.
type embedderFactory interface {
	New(model string) (embedder.Embedder, error)
}

type Orchestrator struct {
	chunker  func(text string, opt chunker.Options) ([]chunker.Chunk, error)
	metadata metadataExtractor
	embedder embedder.Embedder
	factory  embedderFactory
	store    vectorstore.Store
	registry registryLedger
	clock    Clock
}

func New(extractor *metadata.Extractor, emb embedder.Embedder, store vectorstore.Store) *Orchestrator {
	return newOrchestrator(extractor, emb, store)
}

func newOrchestrator(extractor metadataExtractor, emb embedder.Embedder, store vectorstore.Store) *Orchestrator {
	return &Orchestrator{
		chunker:  chunker.Split,
		metadata: extractor,
		embedder: emb,
		store:    store,
		clock:    systemClock{},
	}
}

// WithRegistry attaches the idempotency ledger; Ingest consults it before
// chunking and records the outcome after a successful insert. Returns the
// receiver so it can be chained onto New.
func (o *Orchestrator) WithRegistry(reg *registry.Registry) *Orchestrator {
	o.registry = reg
	return o
}

// WithEmbedderFactory attaches a per-model Embedder factory so Ingest can
// honor a per-request embedding_model override that differs from the
// orchestrator's default embedder. Returns the receiver so it can be
// chained onto New.
func (o *Orchestrator) WithEmbedderFactory(f *embedder.Factory) *Orchestrator {
	o.factory = f
	return o
}

// Ingest runs the full pipeline for one document, per spec.md §4.6.
func (o *Orchestrator) Ingest(ctx context.Context, doc ragtypes.Document, opt Options) (Result, error) {
	start := o.clock.Now()
	var stages []StageReport

	if opt.StorageMode != "" && opt.StorageMode != StorageDense {
		return Result{}, fmt.Errorf("%w: unsupported storage_mode %q", ragerr.ErrInvalidRequest, opt.StorageMode)
	}

	emb := o.embedder
	if opt.EmbeddingModel != "" {
		canon := llmgateway.NormalizeModelAlias(opt.EmbeddingModel)
		switch {
		case o.embedder != nil && canon == o.embedder.Model():
			// already the default embedder; nothing to do.
		case o.factory != nil:
			resolved, err := o.factory.New(canon)
			if err != nil {
				return Result{}, err
			}
			emb = resolved
		default:
			return Result{}, fmt.Errorf("%w: embedding_model %q requires an embedder factory", ragerr.ErrModelUnknown, opt.EmbeddingModel)
		}
	}

	generateMetadata := boolOr(opt.GenerateMetadata, true)
	generateEmbeddings := boolOr(opt.GenerateEmbeddings, true)

	text := doc.Text
	if htmlprep.LooksLikeHTML(text) {
		if md, err := htmlprep.ToMarkdown(text, doc.ID); err == nil {
			text = md
		}
		// preprocessing failure falls back to chunking the raw HTML rather
		// than failing the ingest outright.
	}

	var contentHash string
	registryVersion := 1
	if o.registry != nil {
		contentHash = registry.ContentHash(text)
		decision, err := o.registry.Resolve(ctx, doc.ID, doc.TenantID, doc.Collection, contentHash, opt.ReingestPolicy)
		if err != nil {
			return Result{}, fmt.Errorf("resolve registry idempotency: %w", err)
		}
		if decision.Action == "skip" {
			return Result{Skipped: true, TotalTime: o.clock.Now().Sub(start)}, nil
		}
		registryVersion = decision.Version
	}

	chunks, err := o.chunker(text, opt.ChunkOptions)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ragerr.ErrChunkingFailed, err)
	}
	if len(chunks) == 0 {
		return Result{}, ragerr.ErrEmptyDocument
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var (
		metaFields []metadata.Fields
		vectors    [][]float32
	)
	metaStart := o.clock.Now()
	embedStart := o.clock.Now()
	const (
		metadataStageDeadline = 60 * time.Second
		embedStageDeadline    = 30 * time.Second
	)
	g, gctx := errgroup.WithContext(ctx)
	if generateMetadata {
		g.Go(func() error {
			mctx, cancel := context.WithTimeout(gctx, metadataStageDeadline)
			defer cancel()
			counts := metadata.MergeCounts(opt.MetadataCounts, metadata.DefaultCounts())
			metaFields = o.metadata.ExtractBatch(mctx, texts, counts)
			return nil // metadata failures degrade per-chunk; never fatal here
		})
	}
	if generateEmbeddings {
		g.Go(func() error {
			ectx, cancel := context.WithTimeout(gctx, embedStageDeadline)
			defer cancel()
			v, err := emb.EmbedBatch(ectx, texts)
			if err != nil {
				return err
			}
			vectors = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		stages = append(stages, StageReport{Name: "embed", Err: err, Duration: o.clock.Now().Sub(embedStart)})
		return Result{ChunksCreated: len(chunks), Stages: stages, TotalTime: o.clock.Now().Sub(start)}, err
	}
	stages = append(stages,
		StageReport{Name: "metadata", Skipped: !generateMetadata, Duration: o.clock.Now().Sub(metaStart)},
		StageReport{Name: "embed", Skipped: !generateEmbeddings, Duration: o.clock.Now().Sub(embedStart)},
	)

	if !generateEmbeddings {
		// No vectors means nothing dimension-compatible to insert; the
		// caller asked for a chunk/metadata preview only, per spec.md §6's
		// generate_embeddings=false.
		stages = append(stages, StageReport{Name: "insert", Skipped: true})
		return Result{ChunksCreated: len(chunks), Stages: stages, TotalTime: o.clock.Now().Sub(start)}, nil
	}

	ragChunks := chunker.ToRagtypeChunks(doc.ID, doc.TenantID, chunks)
	now := o.clock.Now()
	for i := range ragChunks {
		if i < len(vectors) {
			ragChunks[i].DenseVector = vectors[i]
		}
		if i < len(metaFields) {
			ragChunks[i].Keywords = metaFields[i].Keywords
			ragChunks[i].Topics = metaFields[i].Topics
			ragChunks[i].Questions = metaFields[i].Questions
			ragChunks[i].Summary = metaFields[i].Summary
		}
		ragChunks[i].CreatedAt = now
		ragChunks[i].UpdatedAt = now
	}

	// Re-ingesting an existing document_id REPLACES it: delete any chunks
	// already indexed under this document_id before inserting the new
	// set, so repeated POST /v1/ingest calls never accumulate duplicate
	// rows. DeleteByFilter is a no-op when nothing matches, so this is
	// safe even on a genuinely new document.
	deleteStart := o.clock.Now()
	if _, err := o.store.DeleteByFilter(ctx, doc.Collection, vectorstore.Filter{"document_id": doc.ID}); err != nil {
		stages = append(stages, StageReport{Name: "delete_existing", Err: err, Duration: o.clock.Now().Sub(deleteStart)})
		return Result{ChunksCreated: len(chunks), Stages: stages, TotalTime: o.clock.Now().Sub(start)}, err
	}
	stages = append(stages, StageReport{Name: "delete_existing", Duration: o.clock.Now().Sub(deleteStart)})

	insertStart := o.clock.Now()
	insertResult, err := o.store.Insert(ctx, doc.Collection, ragChunks, opt.CreateIfMissing)
	stages = append(stages, StageReport{Name: "insert", Err: err, Duration: o.clock.Now().Sub(insertStart)})
	if err != nil {
		return Result{ChunksCreated: len(chunks), Stages: stages, TotalTime: o.clock.Now().Sub(start)}, err
	}

	if o.registry != nil {
		// best-effort: a registry write failure doesn't unwind a
		// successful insert; the next ingest simply resolves against the
		// stale ledger row rather than losing the data already inserted.
		if rerr := o.registry.Upsert(ctx, doc.ID, doc.TenantID, doc.Collection, contentHash, registryVersion); rerr != nil {
			stages = append(stages, StageReport{Name: "registry", Degraded: true, Err: rerr})
		}
	}

	return Result{
		ChunksCreated:  len(chunks),
		ChunksInserted: insertResult.InsertedCount,
		TotalTime:      o.clock.Now().Sub(start),
		Stages:         stages,
	}, nil
}

// Update is an alias for Ingest kept for the PUT /v1/documents/{id}
// endpoint: Ingest itself now deletes any chunks already indexed under
// doc.ID before inserting the replacement set, per spec.md §4.6's "delete
// then reinsert" semantics. The two steps are NOT atomic across an
// external failure: a reinsert failure surfaces the error, leaving the
// collection without that document.
func (o *Orchestrator) Update(ctx context.Context, doc ragtypes.Document, opt Options) (Result, error) {
	return o.Ingest(ctx, doc, opt)
}

// Delete removes every chunk belonging to docID from collection,
// optionally scoped to a tenant.
func (o *Orchestrator) Delete(ctx context.Context, collection, docID, tenant string) (int, error) {
	filter := vectorstore.Filter{"document_id": docID}
	if tenant != "" {
		filter["tenant_id"] = tenant
	}
	res, err := o.store.DeleteByFilter(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	if o.registry != nil {
		_ = o.registry.Delete(ctx, docID, tenant, collection)
	}
	return res.DeletedCount, nil
}
