// Package vector persists embedding records and performs brute-force
// cosine similarity search over them.
//
// The backing store is SQLite with embeddings encoded as little-endian
// float32 BLOBs. Search is an O(n) linear scan; when the record count
// makes query latency noticeable, migrate to an ANN-capable backend
// using ExportAll.
package vector

import (
	"context"
	"time"
)

// Source types used by the indexing jobs and the search service.
const (
	SourceTypeMemory       = "memory"
	SourceTypeConversation = "conversation"
)

// DefaultSearchLimit caps results when SearchOptions.Limit is unset.
const DefaultSearchLimit = 15

// Record is a stored embedding row. Multiple records may share the same
// (SourceID, SourceType); "latest wins" is a caller-level convention.
type Record struct {
	ID             string
	SourceID       string
	SourceType     string
	Embedding      []float32
	EmbeddingModel string
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Scored is a Record with a similarity score attached.
type Scored struct {
	Record
	Score float32
}

// SearchOptions tunes SearchSimilar.
type SearchOptions struct {
	// Limit caps the number of results. Defaults to DefaultSearchLimit.
	Limit int
	// MinScore drops results scoring below it. Zero keeps everything.
	MinScore float32
	// SourceType restricts the scan to records of that type when non-empty.
	SourceType string
}

// Update carries partial fields for UpdateVector. Nil fields are left
// unchanged.
type Update struct {
	SourceID       *string
	SourceType     *string
	Embedding      []float32
	EmbeddingModel *string
	Metadata       map[string]string
}

// Store is the vector storage and similarity search contract.
type Store interface {
	// StoreVector assigns a new ID and timestamps, persists the record,
	// and returns it in full.
	StoreVector(ctx context.Context, rec Record) (Record, error)

	// SearchSimilar scores every stored embedding against queryVector by
	// cosine similarity and returns the best matches, ordered by score
	// descending with ties broken by storage order (first stored first).
	SearchSimilar(ctx context.Context, queryVector []float32, opts SearchOptions) ([]Scored, error)

	// GetVectorsBySource returns all records for an exact
	// (sourceID, sourceType) match, in storage order.
	GetVectorsBySource(ctx context.Context, sourceID, sourceType string) ([]Record, error)

	// UpdateVector applies partial fields to an existing record and
	// returns the updated record. storage.ErrNotFound if id is absent.
	UpdateVector(ctx context.Context, id string, upd Update) (Record, error)

	// DeleteVector removes a record. storage.ErrNotFound if id is absent.
	DeleteVector(ctx context.Context, id string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// ExportAll returns every record in storage order. Used for data
	// migration between backends.
	ExportAll(ctx context.Context) ([]Record, error)
}
