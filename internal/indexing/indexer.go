// Package indexing keeps the vector store in sync with conversations and
// memories, and derives conversation memories on a schedule.
package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rgitdev/ai-assistant/internal/creator"
	"github.com/rgitdev/ai-assistant/internal/llm"
	"github.com/rgitdev/ai-assistant/internal/storage"
	"github.com/rgitdev/ai-assistant/internal/vector"
)

// embedConcurrency bounds parallel embedding calls so a large backlog
// doesn't overwhelm the provider.
const embedConcurrency = 4

// ConversationSource reads conversations and their messages.
type ConversationSource interface {
	GetConversations(ctx context.Context) ([]storage.Conversation, error)
	GetConversationMessages(ctx context.Context, conversationID string) ([]storage.ConversationMessage, error)
}

// MemorySource lists memories for re-embedding.
type MemorySource interface {
	ListMemories(ctx context.Context) ([]storage.MemoryRecord, error)
}

// VectorStore is the slice of the vector store the indexer needs.
type VectorStore interface {
	StoreVector(ctx context.Context, rec vector.Record) (vector.Record, error)
	GetVectorsBySource(ctx context.Context, sourceID, sourceType string) ([]vector.Record, error)
	UpdateVector(ctx context.Context, id string, upd vector.Update) (vector.Record, error)
}

// Embedder produces embeddings; tier-2 fallback means it never fails.
// PreferredModel reports what Embed would use while the provider is
// healthy, letting the indexer spot rows embedded with something else.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, string)
	PreferredModel() string
}

// MemoryCreator is the two-phase creation workflow.
type MemoryCreator interface {
	PrepareMemoryCreation(ctx context.Context, cmd creator.Command) (*creator.Preparation, error)
	StoreMemory(ctx context.Context, prep *creator.Preparation, llmResponse string) (storage.MemoryRecord, error)
}

// Chatter is the completion call used between the creator's two phases.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message, jsonSchema *llm.Schema) (string, error)
}

// Indexer implements the scheduled indexing passes.
type Indexer struct {
	conversations ConversationSource
	memories      MemorySource
	vectors       VectorStore
	embedder      Embedder
	creator       MemoryCreator
	chatter       Chatter // nil when no completion provider is configured
	logger        *slog.Logger
}

// NewIndexer wires an Indexer. chatter may be nil; MemorizeConversations
// then reports an error and the job's CanRun should keep it parked.
func NewIndexer(conversations ConversationSource, memories MemorySource, vectors VectorStore, embedder Embedder, memoryCreator MemoryCreator, chatter Chatter) *Indexer {
	return &Indexer{
		conversations: conversations,
		memories:      memories,
		vectors:       vectors,
		embedder:      embedder,
		creator:       memoryCreator,
		chatter:       chatter,
		logger:        slog.Default(),
	}
}

// IndexMemories re-embeds memories whose vector row is missing or older
// than the memory itself. Per-memory failures are logged and skipped;
// one bad record never aborts the pass.
func (ix *Indexer) IndexMemories(ctx context.Context) error {
	memories, err := ix.memories.ListMemories(ctx)
	if err != nil {
		return fmt.Errorf("listing memories: %w", err)
	}

	var indexed, failed atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for _, mem := range memories {
		g.Go(func() error {
			text := mem.Title + "\n" + mem.Content
			ok, err := ix.upsert(gCtx, mem.ID, vector.SourceTypeMemory, mem.UpdatedAt, text, map[string]string{
				"category": string(mem.Category),
			})
			if err != nil {
				failed.Add(1)
				ix.logger.Warn("memory indexing failed", "memory_id", mem.ID, "error", err)
				return nil
			}
			if ok {
				indexed.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	ix.logger.Info("memory indexing pass complete",
		"total", len(memories), "indexed", indexed.Load(), "failed", failed.Load())
	return nil
}

// IndexConversations re-embeds conversation transcripts the same way.
func (ix *Indexer) IndexConversations(ctx context.Context) error {
	conversations, err := ix.conversations.GetConversations(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	var indexed, failed atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for _, conv := range conversations {
		g.Go(func() error {
			messages, err := ix.conversations.GetConversationMessages(gCtx, conv.ID)
			if err != nil {
				failed.Add(1)
				ix.logger.Warn("loading conversation failed", "conversation_id", conv.ID, "error", err)
				return nil
			}
			if len(messages) == 0 {
				return nil
			}

			ok, err := ix.upsert(gCtx, conv.ID, vector.SourceTypeConversation, conv.UpdatedAt, transcript(messages), nil)
			if err != nil {
				failed.Add(1)
				ix.logger.Warn("conversation indexing failed", "conversation_id", conv.ID, "error", err)
				return nil
			}
			if ok {
				indexed.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	ix.logger.Info("conversation indexing pass complete",
		"total", len(conversations), "indexed", indexed.Load(), "failed", failed.Load())
	return nil
}

// upsert embeds text and writes it into the vector store, updating the
// latest existing row for the source when one exists, otherwise
// inserting. Returns false when the source's vector is already current:
// at least as new as the source and produced by the preferred model.
func (ix *Indexer) upsert(ctx context.Context, sourceID, sourceType string, sourceUpdatedAt time.Time, text string, metadata map[string]string) (bool, error) {
	rows, err := ix.vectors.GetVectorsBySource(ctx, sourceID, sourceType)
	if err != nil {
		return false, fmt.Errorf("loading vectors for %s %s: %w", sourceType, sourceID, err)
	}

	if len(rows) > 0 {
		latest := rows[len(rows)-1]
		if !latest.UpdatedAt.Before(sourceUpdatedAt) && latest.EmbeddingModel == ix.embedder.PreferredModel() {
			return false, nil
		}
		embedding, model := ix.embedder.Embed(ctx, text)
		_, err := ix.vectors.UpdateVector(ctx, latest.ID, vector.Update{
			Embedding:      embedding,
			EmbeddingModel: &model,
			Metadata:       metadata,
		})
		if err != nil {
			return false, fmt.Errorf("updating vector %s: %w", latest.ID, err)
		}
		return true, nil
	}

	embedding, model := ix.embedder.Embed(ctx, text)
	_, err = ix.vectors.StoreVector(ctx, vector.Record{
		SourceID:       sourceID,
		SourceType:     sourceType,
		Embedding:      embedding,
		EmbeddingModel: model,
		Metadata:       metadata,
	})
	if err != nil {
		return false, fmt.Errorf("storing vector for %s %s: %w", sourceType, sourceID, err)
	}
	return true, nil
}

// MemorizeConversations runs the two-phase memory creation flow over
// every stored conversation. Conversations that already produced a
// memory are skipped by the creator's idempotency check. Per-conversation
// failures are logged and skipped.
func (ix *Indexer) MemorizeConversations(ctx context.Context) error {
	if ix.chatter == nil {
		return fmt.Errorf("memorizing conversations: no completion provider configured")
	}

	conversations, err := ix.conversations.GetConversations(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	var created, failed int
	for _, conv := range conversations {
		memory, err := ix.memorize(ctx, conv.ID)
		if err != nil {
			failed++
			ix.logger.Warn("memorizing conversation failed", "conversation_id", conv.ID, "error", err)
			continue
		}
		if memory != nil {
			created++
			ix.logger.Info("conversation memorized", "conversation_id", conv.ID, "memory_id", memory.ID)
		}
	}

	ix.logger.Info("memorization pass complete",
		"total", len(conversations), "created", created, "failed", failed)
	return nil
}

// memorize runs one conversation through the creator. A nil record with
// a nil error means the conversation needed no new memory.
func (ix *Indexer) memorize(ctx context.Context, conversationID string) (*storage.MemoryRecord, error) {
	messages, err := ix.conversations.GetConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	prep, err := ix.creator.PrepareMemoryCreation(ctx, creator.Command{
		ConversationID: conversationID,
		Messages:       messages,
		Category:       storage.CategoryConversation,
	})
	if err != nil {
		return nil, fmt.Errorf("preparing memory: %w", err)
	}
	if prep == nil {
		return nil, nil
	}

	response, err := ix.chatter.Chat(ctx, prep.Messages, creator.ResponseSchema())
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	record, err := ix.creator.StoreMemory(ctx, prep, response)
	if err != nil {
		return nil, fmt.Errorf("storing memory: %w", err)
	}
	return &record, nil
}

func transcript(messages []storage.ConversationMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
