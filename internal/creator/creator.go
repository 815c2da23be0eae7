// Package creator derives and persists memories from conversation
// transcripts. Creation is split into two phases so the expensive LLM
// call sits between a cheap idempotency check and the final write.
package creator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rgitdev/ai-assistant/internal/llm"
	"github.com/rgitdev/ai-assistant/internal/storage"
)

// ErrInvalidCommand is returned when a creation command is missing its
// conversation ID or messages.
var ErrInvalidCommand = errors.New("invalid memory creation command")

// ErrBadResponse is returned when the LLM response does not match the
// required {"title", "memory"} JSON shape.
var ErrBadResponse = errors.New("malformed memory response")

const defaultImportance = 3

const defaultSystemPrompt = `You are a memory writer for a personal assistant. Summarize the conversation into one durable memory worth recalling later. Your output must be ONLY a single valid JSON object of the form {"title": "...", "memory": "..."} with a short title and a self-contained summary written in the third person.`

// Command describes a memory to derive from a conversation.
type Command struct {
	ConversationID string
	Messages       []storage.ConversationMessage
	Category       storage.Category
	SystemPrompt   string // empty uses the default memory-writer prompt
	Overwrite      bool
}

// Preparation is the payload carried between the two phases.
type Preparation struct {
	ConversationID string
	Category       storage.Category
	// Messages is the normalized prompt for the LLM call the caller
	// performs between PrepareMemoryCreation and StoreMemory.
	Messages []llm.Message
	// overwriteID is the memory to replace when overwrite was requested
	// and a memory for this (reference, category) already exists.
	overwriteID string
}

// MemoryStore is the slice of storage the creator needs.
type MemoryStore interface {
	GetMemoriesBySourceReference(ctx context.Context, reference string) ([]storage.MemoryRecord, error)
	SaveMemory(ctx context.Context, m storage.MemoryRecord) error
	UpdateMemory(ctx context.Context, m storage.MemoryRecord) error
}

// Creator persists memories derived from conversations, enforcing the
// one-memory-per-(source reference, category) contract.
type Creator struct {
	store  MemoryStore
	logger *slog.Logger
}

// NewCreator creates a Creator backed by the given memory store.
func NewCreator(store MemoryStore) *Creator {
	return &Creator{store: store, logger: slog.Default()}
}

// PrepareMemoryCreation validates the command and checks the dedup
// contract. It returns (nil, nil) when a memory for this conversation and
// category already exists and overwrite is disabled, so repeated scheduler
// ticks never trigger duplicate LLM calls for the same conversation.
// Otherwise it returns the prompt payload for the LLM call.
func (c *Creator) PrepareMemoryCreation(ctx context.Context, cmd Command) (*Preparation, error) {
	if cmd.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation ID is empty", ErrInvalidCommand)
	}
	if len(cmd.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrInvalidCommand)
	}

	existing, err := c.store.GetMemoriesBySourceReference(ctx, cmd.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("checking existing memories for %s: %w", cmd.ConversationID, err)
	}

	var overwriteID string
	for _, mem := range existing {
		if mem.Category != cmd.Category {
			continue
		}
		if !cmd.Overwrite {
			c.logger.Debug("memory already exists, skipping creation",
				"conversation_id", cmd.ConversationID, "category", cmd.Category)
			return nil, nil
		}
		overwriteID = mem.ID
		break
	}

	systemPrompt := cmd.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	messages := make([]llm.Message, 0, len(cmd.Messages)+1)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	for _, m := range cmd.Messages {
		role := m.Role
		if role != "assistant" && role != "system" {
			role = "user"
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}

	return &Preparation{
		ConversationID: cmd.ConversationID,
		Category:       cmd.Category,
		Messages:       messages,
		overwriteID:    overwriteID,
	}, nil
}

// memoryResponse is the required LLM output shape.
type memoryResponse struct {
	Title  string `json:"title"`
	Memory string `json:"memory"`
}

// ResponseSchema describes the JSON the LLM call between the two phases
// must produce.
func ResponseSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]llm.SchemaProperty{
			"title":  {Type: "string", Description: "Short title for the memory"},
			"memory": {Type: "string", Description: "Self-contained summary of the conversation"},
		},
		Required: []string{"title", "memory"},
	}
}

// StoreMemory parses the LLM response and persists the memory. When the
// preparation marked an existing memory for overwrite, that record is
// updated in place, preserving the dedup contract.
func (c *Creator) StoreMemory(ctx context.Context, prep *Preparation, llmResponse string) (storage.MemoryRecord, error) {
	var parsed memoryResponse
	if err := json.Unmarshal([]byte(llmResponse), &parsed); err != nil {
		return storage.MemoryRecord{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if parsed.Title == "" || parsed.Memory == "" {
		return storage.MemoryRecord{}, fmt.Errorf("%w: title and memory must be non-empty", ErrBadResponse)
	}

	now := time.Now().UTC().Truncate(time.Second)
	record := storage.MemoryRecord{
		ID:         uuid.New().String(),
		Title:      parsed.Title,
		Content:    parsed.Memory,
		Category:   prep.Category,
		Importance: defaultImportance,
		Sources: []storage.MemorySource{
			{Type: "chat", Reference: prep.ConversationID, Timestamp: &now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if prep.overwriteID != "" {
		record.ID = prep.overwriteID
		if err := c.store.UpdateMemory(ctx, record); err != nil {
			return storage.MemoryRecord{}, fmt.Errorf("overwriting memory %s: %w", record.ID, err)
		}
		return record, nil
	}

	if err := c.store.SaveMemory(ctx, record); err != nil {
		return storage.MemoryRecord{}, fmt.Errorf("saving memory: %w", err)
	}
	return record, nil
}
