package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rgitdev/ai-assistant/internal/vector"
)

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedModel() string
}

// ResilientEmbedder degrades gracefully: it uses the configured provider
// when one is available and falls back to the deterministic fold embedding
// when the provider is missing or its call fails. Embed therefore never
// returns an error; semantic quality degrades instead of the retrieval
// path failing.
type ResilientEmbedder struct {
	provider Embedder // nil when no provider is configured
	dims     int      // fallback vector length
	logger   *slog.Logger
}

// NewResilientEmbedder wraps an optional provider. dims is the fallback
// vector length; it must match across writers and readers of the same
// store for fallback vectors to be comparable.
func NewResilientEmbedder(provider Embedder, dims int) *ResilientEmbedder {
	return &ResilientEmbedder{
		provider: provider,
		dims:     dims,
		logger:   slog.Default(),
	}
}

// FallbackModel names the deterministic embedding recorded on vector rows
// produced without a provider.
func (e *ResilientEmbedder) FallbackModel() string {
	return fmt.Sprintf("fold-%d", e.dims)
}

// PreferredModel names the model Embed will use while the provider is
// healthy. Indexing compares it against stored rows so vectors written
// during a provider outage get re-embedded once the provider is back.
func (e *ResilientEmbedder) PreferredModel() string {
	if e.provider == nil {
		return e.FallbackModel()
	}
	return e.provider.EmbedModel()
}

// Embed returns the vector for text and the name of the model that
// produced it.
func (e *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, string) {
	if e.provider == nil {
		return vector.FakeEmbed(text, e.dims), e.FallbackModel()
	}
	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("embedding provider failed, using deterministic fallback", "error", err)
		return vector.FakeEmbed(text, e.dims), e.FallbackModel()
	}
	return vec, e.provider.EmbedModel()
}
