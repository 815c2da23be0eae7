// Package resolve maps extracted queries to their best-matching memories.
package resolve

import (
	"context"
	"log/slog"

	"github.com/rgitdev/ai-assistant/internal/extract"
	"github.com/rgitdev/ai-assistant/internal/search"
	"github.com/rgitdev/ai-assistant/internal/storage"
)

// resolveMinScore is the similarity floor for query resolution. Best-match
// lookups are stricter than open-ended search: a weak match is worse than
// no augmentation.
const resolveMinScore = 0.3

// QueryResult pairs a query with the memory it resolved to.
type QueryResult struct {
	Query  extract.Query
	Memory storage.MemoryRecord
}

// Searcher is the slice of the search service the resolver needs.
type Searcher interface {
	SearchMemories(ctx context.Context, query string, opts search.Options) ([]storage.MemoryRecord, error)
	SearchMemoriesByCategory(ctx context.Context, category storage.Category, query string, opts search.Options) ([]storage.MemoryRecord, error)
}

// Resolver resolves queries against the memory search service.
type Resolver struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewResolver creates a Resolver backed by the given search service.
func NewResolver(searcher Searcher) *Resolver {
	return &Resolver{searcher: searcher, logger: slog.Default()}
}

// ResolveQueries maps each query to at most one best-matching memory and
// deduplicates by memory ID, keeping the first occurrence. A failing
// query is logged and skipped; one bad query never aborts the batch.
func (r *Resolver) ResolveQueries(ctx context.Context, queries []extract.Query) []QueryResult {
	opts := search.Options{TopK: 1, MinScore: resolveMinScore}

	seen := make(map[string]bool)
	var results []QueryResult
	for _, q := range queries {
		if q.Text == "" {
			continue
		}

		var matches []storage.MemoryRecord
		var err error
		if q.Category != "" {
			matches, err = r.searcher.SearchMemoriesByCategory(ctx, q.Category, q.Text, opts)
		} else {
			matches, err = r.searcher.SearchMemories(ctx, q.Text, opts)
		}
		if err != nil {
			r.logger.Warn("query resolution failed", "query", q.Text, "category", q.Category, "error", err)
			continue
		}
		if len(matches) == 0 {
			continue
		}

		memory := matches[0]
		if seen[memory.ID] {
			continue
		}
		seen[memory.ID] = true
		results = append(results, QueryResult{Query: q, Memory: memory})
	}
	return results
}
