// Package search implements semantic memory retrieval with graceful
// degradation: provider embeddings, deterministic fallback embeddings,
// and finally lexical substring matching.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rgitdev/ai-assistant/internal/storage"
	"github.com/rgitdev/ai-assistant/internal/vector"
)

// DefaultTopK caps results when Options.TopK is unset.
const DefaultTopK = 10

// categoryOverFetch compensates for category skew: category is not part
// of the vector match, only a post-filter, so the unfiltered search
// over-fetches by this factor. A trade-off between recall and scan cost,
// not an exact guarantee.
const categoryOverFetch = 3

// VectorSearcher is the slice of the vector store the service needs.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, queryVector []float32, opts vector.SearchOptions) ([]vector.Scored, error)
}

// MemorySource resolves vector hits back to memories and serves the
// lexical fallback.
type MemorySource interface {
	GetMemory(ctx context.Context, id string) (storage.MemoryRecord, error)
	SearchMemoriesLexical(ctx context.Context, query string, limit int) ([]storage.MemoryRecord, error)
}

// QueryEmbedder produces a query vector. Never fails: tier 1 is the real
// provider, tier 2 the deterministic fallback.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, string)
}

// Options tunes a search call.
type Options struct {
	TopK     int     // defaults to DefaultTopK
	MinScore float32 // similarity floor, 0 keeps everything
}

// Service performs semantic search over memories.
type Service struct {
	vectors  VectorSearcher
	memories MemorySource
	embedder QueryEmbedder
	logger   *slog.Logger
}

// NewService wires a search Service.
func NewService(vectors VectorSearcher, memories MemorySource, embedder QueryEmbedder) *Service {
	return &Service{
		vectors:  vectors,
		memories: memories,
		embedder: embedder,
		logger:   slog.Default(),
	}
}

// SearchMemories embeds the query, searches memory vectors, and joins the
// hits back to memory records. Hits whose memory no longer exists are
// dropped. When the vector phase yields nothing, it falls back to lexical
// substring search over title and content.
func (s *Service) SearchMemories(ctx context.Context, query string, opts Options) ([]storage.MemoryRecord, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryVector, model := s.embedder.Embed(ctx, query)

	scored, err := s.vectors.SearchSimilar(ctx, queryVector, vector.SearchOptions{
		Limit:      topK,
		MinScore:   opts.MinScore,
		SourceType: vector.SourceTypeMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	seen := make(map[string]bool, len(scored))
	var results []storage.MemoryRecord
	for _, hit := range scored {
		if seen[hit.SourceID] {
			continue
		}
		seen[hit.SourceID] = true

		mem, err := s.memories.GetMemory(ctx, hit.SourceID)
		if errors.Is(err, storage.ErrNotFound) {
			// Vector row outlived its memory; skip it.
			s.logger.Debug("dropping stale vector hit", "source_id", hit.SourceID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving memory %s: %w", hit.SourceID, err)
		}
		results = append(results, mem)
	}

	if len(results) > 0 {
		return results, nil
	}

	s.logger.Debug("vector search returned no memories, falling back to lexical",
		"query", query, "embed_model", model)
	return s.memories.SearchMemoriesLexical(ctx, query, topK)
}

// SearchMemoriesByCategory runs an unfiltered search with a 3x over-fetch,
// keeps only memories in the requested category, and truncates to TopK.
// It never returns a memory of a different category.
func (s *Service) SearchMemoriesByCategory(ctx context.Context, category storage.Category, query string, opts Options) ([]storage.MemoryRecord, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	unfiltered, err := s.SearchMemories(ctx, query, Options{
		TopK:     topK * categoryOverFetch,
		MinScore: opts.MinScore,
	})
	if err != nil {
		return nil, err
	}

	var results []storage.MemoryRecord
	for _, mem := range unfiltered {
		if mem.Category != category {
			continue
		}
		results = append(results, mem)
		if len(results) == topK {
			break
		}
	}
	return results, nil
}
