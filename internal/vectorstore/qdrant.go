package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"ragfabric/internal/ragerr"
	"ragfabric/internal/ragtypes"
)

// qdrantPayloadIDField stores the caller-assigned chunk ID in the point
// payload, since Qdrant only accepts UUIDs or positive integers as point
// IDs. Ported from the teacher's qdrant_vector.go.
const qdrantPayloadIDField = "_original_id"

// qdrantPartitionField stores the emulated 256-way partition tag in the
// payload; Qdrant has no native partition-key concept, so search-by-tenant
// is expressed as an equality filter on this field instead of routing to a
// physically separate partition.
const qdrantPartitionField = "_partition"

type qdrantAdapter struct {
	client     *qdrant.Client
	dimensions map[string]int // collection name -> dimension, cached after describe/create
	metric     string
}

func newQdrantAdapter(dsn, metric string) (Store, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &qdrantAdapter{client: client, dimensions: make(map[string]int), metric: strings.ToLower(strings.TrimSpace(metric))}, nil
}

func (q *qdrantAdapter) distance() qdrant.Distance {
	switch q.metric {
	case "l2", "euclidean":
		return qdrant.Distance_Euclid
	case "ip", "dot":
		return qdrant.Distance_Dot
	case "manhattan":
		return qdrant.Distance_Manhattan
	default:
		return qdrant.Distance_Cosine
	}
}

func (q *qdrantAdapter) CreateCollection(ctx context.Context, name string, dim int, description string) error {
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ragerr.ErrCollectionExists, name)
	}
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be > 0", ragerr.ErrInvalidRequest)
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: q.distance(),
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	q.dimensions[name] = dim
	return nil
}

func (q *qdrantAdapter) DeleteCollection(ctx context.Context, name string) error {
	if err := q.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("%w: %v", ragerr.ErrCollectionNotFound, err)
	}
	delete(q.dimensions, name)
	return nil
}

func (q *qdrantAdapter) ListCollections(ctx context.Context) ([]string, error) {
	names, err := q.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	return names, nil
}

func (q *qdrantAdapter) DescribeCollection(ctx context.Context, name string) (ragtypes.Collection, int64, error) {
	info, err := q.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return ragtypes.Collection{}, 0, fmt.Errorf("%w: %v", ragerr.ErrCollectionNotFound, err)
	}
	dim := q.dimensions[name]
	var count int64
	if info != nil && info.PointsCount != nil {
		count = int64(*info.PointsCount)
	}
	return ragtypes.Collection{Name: name, Dimension: dim, NumPartitions: NumPartitions}, count, nil
}

func (q *qdrantAdapter) ensureDimension(ctx context.Context, collection string, chunks []ragtypes.Chunk, createIfMissing bool) (int, error) {
	if dim, ok := q.dimensions[collection]; ok {
		return dim, nil
	}
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	if !exists {
		if !createIfMissing {
			return 0, fmt.Errorf("%w: %s", ragerr.ErrCollectionNotFound, collection)
		}
		dim := len(chunks[0].DenseVector)
		if err := q.CreateCollection(ctx, collection, dim, ""); err != nil {
			return 0, err
		}
		return dim, nil
	}
	info, err := q.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	dim := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	q.dimensions[collection] = dim
	return dim, nil
}

func (q *qdrantAdapter) Insert(ctx context.Context, collection string, chunks []ragtypes.Chunk, createIfMissing bool) (InsertResult, error) {
	if len(chunks) == 0 {
		return InsertResult{}, nil
	}
	dim, err := q.ensureDimension(ctx, collection, chunks, createIfMissing)
	if err != nil {
		return InsertResult{}, err
	}
	if err := ValidateDimension(dim, chunks); err != nil {
		return InsertResult{}, err
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		uuidStr := chunk.ID
		if _, err := uuid.Parse(chunk.ID); err != nil {
			uuidStr = uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunk.ID)).String()
		}
		payload := map[string]any{
			"document_id": chunk.DocumentID,
			"tenant_id":   chunk.TenantID,
			"chunk_index": chunk.ChunkIndex,
			"text":        chunk.Text,
			"keywords":    chunk.Keywords,
			"topics":      chunk.Topics,
			"questions":   chunk.Questions,
			"summary":     chunk.Summary,
			"char_count":  chunk.CharCount,
			"token_count": chunk.TokenCount,
			qdrantPartitionField: PartitionFor(chunk.TenantID),
		}
		if uuidStr != chunk.ID {
			payload[qdrantPayloadIDField] = chunk.ID
		}
		vec := make([]float32, len(chunk.DenseVector))
		copy(vec, chunk.DenseVector)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
		ids = append(ids, chunk.ID)
	}
	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: collection, Points: points}); err != nil {
		return InsertResult{}, fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	return InsertResult{InsertedCount: len(ids), IDs: ids}, nil
}

func (q *qdrantAdapter) DeleteByFilter(ctx context.Context, collection string, filter Filter) (DeleteResult, error) {
	must := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, qdrant.NewMatch(k, v))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{Must: must}),
	})
	if err != nil {
		return DeleteResult{}, fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	// Qdrant delete-by-filter does not report a count; the facade's delete
	// contract only requires the count be best-effort for observability.
	return DeleteResult{DeletedCount: -1}, nil
}

func (q *qdrantAdapter) Update(ctx context.Context, collection string, filter Filter, chunks []ragtypes.Chunk) (UpdateResult, error) {
	if _, err := q.DeleteByFilter(ctx, collection, filter); err != nil {
		return UpdateResult{}, err
	}
	res, err := q.Insert(ctx, collection, chunks, true)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{UpdatedCount: res.InsertedCount}, nil
}

func (q *qdrantAdapter) Search(ctx context.Context, collection string, queryVec []float32, topK int, tenant string, extraFilter Filter) ([]ragtypes.Candidate, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := make([]float32, len(queryVec))
	copy(vec, queryVec)

	must := make([]*qdrant.Condition, 0, len(extraFilter)+1)
	for k, v := range extraFilter {
		must = append(must, qdrant.NewMatch(k, v))
	}
	if tenant != "" {
		must = append(must, qdrant.NewMatchInt(qdrantPartitionField, int64(PartitionFor(tenant))))
		must = append(must, qdrant.NewMatch("tenant_id", tenant))
	}
	var queryFilter *qdrant.Filter
	if len(must) > 0 {
		queryFilter = &qdrant.Filter{Must: must}
	}
	limit := uint64(topK)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	results := make([]ragtypes.Candidate, 0, len(hits))
	for _, hit := range hits {
		chunk := ragtypes.Chunk{}
		if p := hit.Payload; p != nil {
			chunk.DocumentID = p["document_id"].GetStringValue()
			chunk.TenantID = p["tenant_id"].GetStringValue()
			chunk.ChunkIndex = int(p["chunk_index"].GetIntegerValue())
			chunk.Text = p["text"].GetStringValue()
			chunk.Keywords = p["keywords"].GetStringValue()
			chunk.Topics = p["topics"].GetStringValue()
			chunk.Questions = p["questions"].GetStringValue()
			chunk.Summary = p["summary"].GetStringValue()
			chunk.CharCount = int(p["char_count"].GetIntegerValue())
			chunk.TokenCount = int(p["token_count"].GetIntegerValue())
			if orig, ok := p[qdrantPayloadIDField]; ok {
				chunk.ID = orig.GetStringValue()
			}
		}
		if chunk.ID == "" {
			chunk.ID = hit.Id.GetUuid()
		}
		results = append(results, ragtypes.Candidate{Chunk: chunk, Score: float64(hit.Score)})
	}
	return results, nil
}

func (q *qdrantAdapter) Close() error {
	return q.client.Close()
}
