// Package registry is the document idempotency ledger: a durable
// (document_id, tenant_id, collection_name, version, content_hash,
// updated_at) record backing re-ingest/skip/overwrite decisions
// independent of the vector store's eventual read-after-write visibility
// (internal/vectorstore explicitly never flushes after insert). Adapted
// from internal/sefii/engine.go's execWithRetry/EnsureTable DDL-on-boot
// pattern, narrowed from its original full-text+vector role to a single
// bookkeeping table, and from internal/rag/ingest/idempotency.go's
// ReingestPolicy decision table.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ReingestPolicy mirrors the teacher's ReingestPolicy enum.
type ReingestPolicy string

const (
	PolicySkipIfUnchanged ReingestPolicy = "skip_if_unchanged"
	PolicyOverwrite       ReingestPolicy = "overwrite"
	PolicyNewVersion      ReingestPolicy = "new_version"
)

// Record is one ledger row.
type Record struct {
	DocumentID string
	TenantID   string
	Collection string
	Version    int
	Hash       string
	UpdatedAt  time.Time
}

// Decision is the action the caller should take, mirroring
// internal/rag/ingest/idempotency.go's IdempotencyDecision shape.
type Decision struct {
	Action  string // "skip", "overwrite", "new_version", "create"
	Version int
}

type Registry struct {
	db *pgx.Conn
}

func New(db *pgx.Conn) *Registry {
	return &Registry{db: db}
}

// EnsureTable creates the ledger table if it doesn't exist yet, following
// the teacher's to_regclass-then-create-if-missing check.
func (r *Registry) EnsureTable(ctx context.Context) error {
	var tableName *string
	err := r.db.QueryRow(ctx, "SELECT to_regclass('public.ingest_registry')").Scan(&tableName)
	if err != nil {
		return fmt.Errorf("check for ingest_registry table: %w", err)
	}
	if tableName != nil && *tableName != "" {
		return nil
	}
	return r.execWithRetry(ctx, `
		CREATE TABLE ingest_registry (
			document_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			collection_name TEXT NOT NULL,
			version INT NOT NULL DEFAULT 1,
			content_hash TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (document_id, tenant_id, collection_name)
		)
	`)
}

// execWithRetry retries a DDL/DML statement, mirroring
// internal/sefii/engine.go's execWithRetry (3 attempts, linear backoff).
func (r *Registry) execWithRetry(ctx context.Context, sql string, args ...any) error {
	var err error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		if _, err = r.db.Exec(ctx, sql, args...); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * time.Second):
		}
	}
	return fmt.Errorf("db exec failed after retries: %w", err)
}

// ContentHash is the stable hash used to detect unchanged re-ingests.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the current record for (documentID, tenantID, collection),
// if any.
func (r *Registry) Lookup(ctx context.Context, documentID, tenantID, collection string) (Record, bool, error) {
	var rec Record
	rec.DocumentID, rec.TenantID, rec.Collection = documentID, tenantID, collection
	err := r.db.QueryRow(ctx, `
		SELECT version, content_hash, updated_at
		FROM ingest_registry
		WHERE document_id = $1 AND tenant_id = $2 AND collection_name = $3
	`, documentID, tenantID, collection).Scan(&rec.Version, &rec.Hash, &rec.UpdatedAt)
	if err == pgx.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Resolve applies policy against the current ledger state for a
// candidate ingest, mirroring ResolveIdempotency's decision table.
func (r *Registry) Resolve(ctx context.Context, documentID, tenantID, collection, newHash string, policy ReingestPolicy) (Decision, error) {
	existing, ok, err := r.Lookup(ctx, documentID, tenantID, collection)
	if err != nil {
		return Decision{}, err
	}
	return decide(existing, ok, newHash, policy), nil
}

// decide is Resolve's decision table, factored out as a pure function so
// it's testable without a database.
func decide(existing Record, ok bool, newHash string, policy ReingestPolicy) Decision {
	if !ok {
		return Decision{Action: "create", Version: 1}
	}
	switch policy {
	case PolicySkipIfUnchanged:
		if existing.Hash == newHash {
			return Decision{Action: "skip", Version: existing.Version}
		}
		return Decision{Action: "overwrite", Version: existing.Version}
	case PolicyNewVersion:
		return Decision{Action: "new_version", Version: existing.Version + 1}
	default: // PolicyOverwrite and unset/unknown default to overwrite
		return Decision{Action: "overwrite", Version: existing.Version}
	}
}

// Upsert records the outcome of a completed ingest.
func (r *Registry) Upsert(ctx context.Context, documentID, tenantID, collection, hash string, version int) error {
	return r.execWithRetry(ctx, `
		INSERT INTO ingest_registry (document_id, tenant_id, collection_name, version, content_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (document_id, tenant_id, collection_name)
		DO UPDATE SET version = $4, content_hash = $5, updated_at = now()
	`, documentID, tenantID, collection, version, hash)
}

// Delete removes the ledger row for a deleted document.
func (r *Registry) Delete(ctx context.Context, documentID, tenantID, collection string) error {
	return r.execWithRetry(ctx, `
		DELETE FROM ingest_registry WHERE document_id = $1 AND tenant_id = $2 AND collection_name = $3
	`, documentID, tenantID, collection)
}
