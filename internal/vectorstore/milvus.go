package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"ragfabric/internal/ragerr"
	"ragfabric/internal/ragtypes"
)

// Field names for the fixed chunk schema. Metadata fields are never
// generalized beyond the four canonical ones without a collection-schema
// bump (§9 "Metadata fields" design note).
const (
	fieldID         = "id"
	fieldDocumentID = "document_id"
	fieldTenantID   = "tenant_id"
	fieldChunkIndex = "chunk_index"
	fieldText       = "text"
	fieldKeywords   = "keywords"
	fieldTopics     = "topics"
	fieldQuestions  = "questions"
	fieldSummary    = "summary"
	fieldCharCount  = "char_count"
	fieldTokenCount = "token_count"
	fieldVector     = "dense_vector"
)

// milvusAdapter is the primary Vector Store Facade backend: its native
// partition-key model is the only one of the pack's vector DBs that
// expresses "256 partitions, tenant-hash routed" as a first-class concept,
// grounded on other_examples' cloudwego-eino-ext Milvus indexer (schema
// construction, PartitionNum, batch insert).
type milvusAdapter struct {
	cli        client.Client
	metric     entity.MetricType
	dimensions map[string]int
}

func newMilvusAdapter(ctx context.Context, dsn, metric string) (Store, error) {
	cli, err := client.NewClient(ctx, client.Config{Address: dsn})
	if err != nil {
		return nil, fmt.Errorf("%w: connect milvus: %v", ragerr.ErrStoreUnavailable, err)
	}
	m := entity.IP
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "l2", "euclidean":
		m = entity.L2
	case "cosine":
		m = entity.COSINE
	}
	return &milvusAdapter{cli: cli, metric: m, dimensions: make(map[string]int)}, nil
}

func chunkSchema(name string, description string, dim int) *entity.Schema {
	return entity.NewSchema().
		WithName(name).
		WithDescription(description).
		WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(128)).
		WithField(entity.NewField().WithName(fieldDocumentID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
		WithField(entity.NewField().WithName(fieldTenantID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128).WithIsPartitionKey(true)).
		WithField(entity.NewField().WithName(fieldChunkIndex).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
		WithField(entity.NewField().WithName(fieldKeywords).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1000)).
		WithField(entity.NewField().WithName(fieldTopics).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1000)).
		WithField(entity.NewField().WithName(fieldQuestions).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1000)).
		WithField(entity.NewField().WithName(fieldSummary).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1000)).
		WithField(entity.NewField().WithName(fieldCharCount).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(fieldTokenCount).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(fieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim)))
}

func (m *milvusAdapter) CreateCollection(ctx context.Context, name string, dim int, description string) error {
	exists, err := m.cli.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ragerr.ErrCollectionExists, name)
	}
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be > 0", ragerr.ErrInvalidRequest)
	}
	err = m.cli.CreateCollection(ctx, chunkSchema(name, description, dim), 2,
		client.WithPartitionNum(int64(NumPartitions)),
		client.WithConsistencyLevel(entity.ClBounded),
	)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	if err := m.cli.CreateIndex(ctx, name, fieldVector,
		entity.NewGenericIndex("dense_vector_flat", entity.Flat, map[string]string{"metric_type": string(m.metric)}), false); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := m.cli.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	m.dimensions[name] = dim
	return nil
}

func (m *milvusAdapter) DeleteCollection(ctx context.Context, name string) error {
	if err := m.cli.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("%w: %v", ragerr.ErrCollectionNotFound, err)
	}
	delete(m.dimensions, name)
	return nil
}

func (m *milvusAdapter) ListCollections(ctx context.Context) ([]string, error) {
	cols, err := m.cli.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, c.Name)
	}
	return out, nil
}

func (m *milvusAdapter) DescribeCollection(ctx context.Context, name string) (ragtypes.Collection, int64, error) {
	_, err := m.cli.DescribeCollection(ctx, name)
	if err != nil {
		return ragtypes.Collection{}, 0, fmt.Errorf("%w: %v", ragerr.ErrCollectionNotFound, err)
	}
	stats, err := m.cli.GetCollectionStatistics(ctx, name)
	var count int64
	if err == nil {
		if v, ok := stats["row_count"]; ok {
			count, _ = strconv.ParseInt(v, 10, 64)
		}
	}
	return ragtypes.Collection{Name: name, Dimension: m.dimensions[name], NumPartitions: NumPartitions}, count, nil
}

func (m *milvusAdapter) ensureDimension(ctx context.Context, collection string, chunks []ragtypes.Chunk, createIfMissing bool) (int, error) {
	if dim, ok := m.dimensions[collection]; ok {
		return dim, nil
	}
	exists, err := m.cli.HasCollection(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	if !exists {
		if !createIfMissing {
			return 0, fmt.Errorf("%w: %s", ragerr.ErrCollectionNotFound, collection)
		}
		dim := len(chunks[0].DenseVector)
		if err := m.CreateCollection(ctx, collection, dim, ""); err != nil {
			return 0, err
		}
		return dim, nil
	}
	// Existing collection but dimension not yet cached in this process;
	// the schema carries it, but resolving it requires walking fields,
	// which CreateCollection's own cache already covers for collections
	// this process created. For collections created elsewhere, the first
	// insert's vector length is trusted and cached.
	dim := len(chunks[0].DenseVector)
	m.dimensions[collection] = dim
	return dim, nil
}

func (m *milvusAdapter) Insert(ctx context.Context, collection string, chunks []ragtypes.Chunk, createIfMissing bool) (InsertResult, error) {
	if len(chunks) == 0 {
		return InsertResult{}, nil
	}
	dim, err := m.ensureDimension(ctx, collection, chunks, createIfMissing)
	if err != nil {
		return InsertResult{}, err
	}
	if err := ValidateDimension(dim, chunks); err != nil {
		return InsertResult{}, err
	}

	ids := make([]string, len(chunks))
	docIDs := make([]string, len(chunks))
	tenantIDs := make([]string, len(chunks))
	chunkIdx := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	keywords := make([]string, len(chunks))
	topics := make([]string, len(chunks))
	questions := make([]string, len(chunks))
	summaries := make([]string, len(chunks))
	charCounts := make([]int64, len(chunks))
	tokenCounts := make([]int64, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		docIDs[i] = c.DocumentID
		tenantIDs[i] = c.TenantID
		chunkIdx[i] = int64(c.ChunkIndex)
		texts[i] = c.Text
		keywords[i] = c.Keywords
		topics[i] = c.Topics
		questions[i] = c.Questions
		summaries[i] = c.Summary
		charCounts[i] = int64(c.CharCount)
		tokenCounts[i] = int64(c.TokenCount)
		vectors[i] = c.DenseVector
	}
	columns := []entity.Column{
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldDocumentID, docIDs),
		entity.NewColumnVarChar(fieldTenantID, tenantIDs),
		entity.NewColumnInt64(fieldChunkIndex, chunkIdx),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldKeywords, keywords),
		entity.NewColumnVarChar(fieldTopics, topics),
		entity.NewColumnVarChar(fieldQuestions, questions),
		entity.NewColumnVarChar(fieldSummary, summaries),
		entity.NewColumnInt64(fieldCharCount, charCounts),
		entity.NewColumnInt64(fieldTokenCount, tokenCounts),
		entity.NewColumnFloatVector(fieldVector, dim, vectors),
	}
	if _, err := m.cli.Insert(ctx, collection, "", columns...); err != nil {
		return InsertResult{}, fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	// No manual flush: the facade's contract forbids blocking on
	// synchronous visibility after insert (§9 "Flush semantics").
	return InsertResult{InsertedCount: len(ids), IDs: ids}, nil
}

func (m *milvusAdapter) DeleteByFilter(ctx context.Context, collection string, filter Filter) (DeleteResult, error) {
	expr := filterExpr(filter)
	if err := m.cli.Delete(ctx, collection, "", expr); err != nil {
		return DeleteResult{}, fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	return DeleteResult{DeletedCount: -1}, nil
}

func (m *milvusAdapter) Update(ctx context.Context, collection string, filter Filter, chunks []ragtypes.Chunk) (UpdateResult, error) {
	if _, err := m.DeleteByFilter(ctx, collection, filter); err != nil {
		return UpdateResult{}, err
	}
	res, err := m.Insert(ctx, collection, chunks, true)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{UpdatedCount: res.InsertedCount}, nil
}

func (m *milvusAdapter) Search(ctx context.Context, collection string, queryVec []float32, topK int, tenant string, extraFilter Filter) ([]ragtypes.Candidate, error) {
	if topK <= 0 {
		topK = 10
	}
	filter := Filter{}
	for k, v := range extraFilter {
		filter[k] = v
	}
	if tenant != "" {
		filter[fieldTenantID] = tenant
	}
	expr := filterExpr(filter)

	vec := entity.FloatVector(queryVec)
	results, err := m.cli.Search(ctx, collection, nil, expr,
		[]string{fieldID, fieldDocumentID, fieldTenantID, fieldChunkIndex, fieldText, fieldKeywords, fieldTopics, fieldQuestions, fieldSummary, fieldCharCount, fieldTokenCount},
		[]entity.Vector{vec}, fieldVector, m.metric, topK, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	var out []ragtypes.Candidate
	for _, r := range results {
		for i := 0; i < r.ResultCount; i++ {
			c := ragtypes.Chunk{}
			for _, col := range r.Fields {
				switch col.Name() {
				case fieldID:
					c.ID, _ = col.GetAsString(i)
				case fieldDocumentID:
					c.DocumentID, _ = col.GetAsString(i)
				case fieldTenantID:
					c.TenantID, _ = col.GetAsString(i)
				case fieldChunkIndex:
					v, _ := col.GetAsInt64(i)
					c.ChunkIndex = int(v)
				case fieldText:
					c.Text, _ = col.GetAsString(i)
				case fieldKeywords:
					c.Keywords, _ = col.GetAsString(i)
				case fieldTopics:
					c.Topics, _ = col.GetAsString(i)
				case fieldQuestions:
					c.Questions, _ = col.GetAsString(i)
				case fieldSummary:
					c.Summary, _ = col.GetAsString(i)
				case fieldCharCount:
					v, _ := col.GetAsInt64(i)
					c.CharCount = int(v)
				case fieldTokenCount:
					v, _ := col.GetAsInt64(i)
					c.TokenCount = int(v)
				}
			}
			score := float64(r.Scores[i])
			out = append(out, ragtypes.Candidate{Chunk: c, Score: score})
		}
	}
	return out, nil
}

func (m *milvusAdapter) Close() error {
	return m.cli.Close()
}

func filterExpr(filter Filter) string {
	if len(filter) == 0 {
		return ""
	}
	parts := make([]string, 0, len(filter))
	for k, v := range filter {
		parts = append(parts, fmt.Sprintf("%s == %q", k, v))
	}
	return strings.Join(parts, " && ")
}
