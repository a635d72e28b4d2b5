package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"ragfabric/internal/ragerr"
	"ragfabric/internal/ragtypes"
)

// memoryCollection is one named container: one HNSW graph per partition
// (so tenant-scoped search only walks the partition a tenant hashes to,
// the same contract the Milvus/Qdrant backends honor) plus the chunk
// records themselves, keyed by chunk ID, for filter/update/delete.
type memoryCollection struct {
	dimension   int
	description string
	graphs      map[int]*hnsw.Graph[string]
	chunks      map[string]ragtypes.Chunk
}

func newMemoryCollection(dim int, desc string) *memoryCollection {
	return &memoryCollection{
		dimension:   dim,
		description: desc,
		graphs:      make(map[int]*hnsw.Graph[string]),
		chunks:      make(map[string]ragtypes.Chunk),
	}
}

func (c *memoryCollection) graphFor(partition int) *hnsw.Graph[string] {
	g, ok := c.graphs[partition]
	if !ok {
		g = hnsw.NewGraph[string]()
		g.Distance = hnsw.CosineDistance
		c.graphs[partition] = g
	}
	return g
}

// memoryStore is the in-process vectorstore.Store backend, grounded on
// Aman-CERP-amanmcp's coder/hnsw wrapper (internal/store/hnsw.go),
// extended with the facade's partition and collection-lifecycle contract.
type memoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

func newMemoryStoreAdapter() Store {
	return &memoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *memoryStore) CreateCollection(ctx context.Context, name string, dim int, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("%w: %s", ragerr.ErrCollectionExists, name)
	}
	s.collections[name] = newMemoryCollection(dim, description)
	return nil
}

func (s *memoryStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("%w: %s", ragerr.ErrCollectionNotFound, name)
	}
	delete(s.collections, name)
	return nil
}

func (s *memoryStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.collections))
	for name := range s.collections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryStore) DescribeCollection(ctx context.Context, name string) (ragtypes.Collection, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return ragtypes.Collection{}, 0, fmt.Errorf("%w: %s", ragerr.ErrCollectionNotFound, name)
	}
	return ragtypes.Collection{Name: name, Dimension: c.dimension, NumPartitions: NumPartitions, Description: c.description},
		int64(len(c.chunks)), nil
}

func (s *memoryStore) Insert(ctx context.Context, collection string, chunks []ragtypes.Chunk, createIfMissing bool) (InsertResult, error) {
	if len(chunks) == 0 {
		return InsertResult{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		if !createIfMissing {
			return InsertResult{}, fmt.Errorf("%w: %s", ragerr.ErrCollectionNotFound, collection)
		}
		c = newMemoryCollection(len(chunks[0].DenseVector), "")
		s.collections[collection] = c
	}
	if err := ValidateDimension(c.dimension, chunks); err != nil {
		return InsertResult{}, err
	}
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		partition := PartitionFor(chunk.TenantID)
		g := c.graphFor(partition)
		g.Add(hnsw.MakeNode(chunk.ID, normalize(chunk.DenseVector)))
		c.chunks[chunk.ID] = chunk
		ids = append(ids, chunk.ID)
	}
	return InsertResult{InsertedCount: len(ids), IDs: ids}, nil
}

func (s *memoryStore) DeleteByFilter(ctx context.Context, collection string, filter Filter) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return DeleteResult{}, fmt.Errorf("%w: %s", ragerr.ErrCollectionNotFound, collection)
	}
	deleted := 0
	for id, chunk := range c.chunks {
		if matches(chunk, filter) {
			delete(c.chunks, id)
			deleted++
			// lazy deletion from the HNSW graph, per the amanmcp pattern:
			// coder/hnsw is unstable deleting the last node, so orphan
			// entries are left in the graph and filtered at search time.
		}
	}
	return DeleteResult{DeletedCount: deleted}, nil
}

func (s *memoryStore) Update(ctx context.Context, collection string, filter Filter, chunks []ragtypes.Chunk) (UpdateResult, error) {
	if _, err := s.DeleteByFilter(ctx, collection, filter); err != nil {
		return UpdateResult{}, err
	}
	res, err := s.Insert(ctx, collection, chunks, true)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{UpdatedCount: res.InsertedCount}, nil
}

func (s *memoryStore) Search(ctx context.Context, collection string, queryVec []float32, topK int, tenant string, extraFilter Filter) ([]ragtypes.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ragerr.ErrCollectionNotFound, collection)
	}
	if topK <= 0 {
		topK = 10
	}
	q := normalize(queryVec)

	var partitions []int
	if tenant != "" {
		partitions = []int{PartitionFor(tenant)}
	} else {
		for p := range c.graphs {
			partitions = append(partitions, p)
		}
	}

	var results []ragtypes.Candidate
	for _, p := range partitions {
		g, ok := c.graphs[p]
		if !ok {
			continue
		}
		if g.Len() == 0 {
			continue
		}
		nodes := g.Search(q, topK*2)
		for _, node := range nodes {
			chunk, ok := c.chunks[node.Key]
			if !ok {
				continue // orphaned (lazily deleted) node
			}
			if tenant != "" && chunk.TenantID != tenant {
				continue
			}
			if !matches(chunk, extraFilter) {
				continue
			}
			dist := g.Distance(q, node.Value)
			score := 1.0 - float64(dist)/2.0
			results = append(results, ragtypes.Candidate{Chunk: chunk, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ChunkIndex < results[j].Chunk.ChunkIndex
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *memoryStore) Close() error { return nil }

func matches(chunk ragtypes.Chunk, filter Filter) bool {
	for k, v := range filter {
		switch k {
		case "document_id":
			if chunk.DocumentID != v {
				return false
			}
		case "tenant_id":
			if chunk.TenantID != v {
				return false
			}
		}
	}
	return true
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	out := make([]float32, len(v))
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
