// Package vectorstore is the Vector Store Facade: collection lifecycle,
// schema, partition-key tenancy, and the dimension-autodetection contract
// that lets multiple embedding providers coexist behind one interface.
package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"ragfabric/internal/ragerr"
	"ragfabric/internal/ragtypes"
)

// NumPartitions is fixed and immutable per collection, per §4.1.
const NumPartitions = 256

// InsertResult reports how many chunks were written and their final IDs.
type InsertResult struct {
	InsertedCount int
	IDs           []string
}

// DeleteResult/UpdateResult report counts affected.
type DeleteResult struct{ DeletedCount int }
type UpdateResult struct{ UpdatedCount int }

// Filter is a flat equality filter (field -> value); document_id and
// tenant_id are the only fields every backend is required to support.
type Filter map[string]string

// Store is the facade every backend (Milvus, Qdrant, in-memory) implements
// identically.
type Store interface {
	CreateCollection(ctx context.Context, name string, dim int, description string) error
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	DescribeCollection(ctx context.Context, name string) (ragtypes.Collection, int64, error)

	Insert(ctx context.Context, collection string, chunks []ragtypes.Chunk, createIfMissing bool) (InsertResult, error)
	DeleteByFilter(ctx context.Context, collection string, filter Filter) (DeleteResult, error)
	Update(ctx context.Context, collection string, filter Filter, chunks []ragtypes.Chunk) (UpdateResult, error)
	Search(ctx context.Context, collection string, queryVec []float32, topK int, tenant string, extraFilter Filter) ([]ragtypes.Candidate, error)

	Close() error
}

// PartitionFor returns the stable partition index (0..NumPartitions-1) a
// tenant routes to. The in-memory and Qdrant backends use this same function
// for insert and tenant-filtered search so the two agree on routing; the
// Milvus backend relies instead on Milvus's own hashing of its tenant_id
// partition-key field.
func PartitionFor(tenantID string) int {
	sum := sha256.Sum256([]byte(tenantID))
	n := binary.BigEndian.Uint64(sum[:8])
	return int(n % uint64(NumPartitions))
}

// ValidateDimension checks the auto-dim invariant: every chunk in a batch
// must carry the collection's frozen dimension (or, for a brand-new
// collection, all chunks in the first batch must agree with each other).
func ValidateDimension(expected int, chunks []ragtypes.Chunk) error {
	for _, c := range chunks {
		if len(c.DenseVector) != expected {
			return fmt.Errorf("%w: expected %d, got %d", ragerr.ErrDimensionMismatch, expected, len(c.DenseVector))
		}
	}
	return nil
}

// Open constructs the configured backend. Mirrors the teacher's
// databases.Manager factory switch, narrowed to vector-store backends only.
func Open(ctx context.Context, backend, dsn, metric string) (Store, error) {
	switch backend {
	case "", "memory":
		return newMemoryStoreAdapter(), nil
	case "qdrant":
		return newQdrantAdapter(dsn, metric)
	case "milvus":
		return newMilvusAdapter(ctx, dsn, metric)
	default:
		return nil, fmt.Errorf("%w: unsupported vector backend %q", ragerr.ErrInvalidRequest, backend)
	}
}
