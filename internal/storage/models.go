package storage

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Category classifies a memory for scoped retrieval.
type Category string

const (
	CategoryConversation     Category = "conversation"
	CategoryUserProfile      Category = "user_profile"
	CategoryAssistantPersona Category = "assistant_persona"
	CategoryTask             Category = "task"
	CategoryPreference       Category = "preference"
	CategoryContext          Category = "context"
	CategoryKnowledge        Category = "knowledge"
	CategoryRelationship     Category = "relationship"
	CategoryGoal             Category = "goal"
	CategoryOther            Category = "other"
)

// Categories lists every valid category in a stable order.
var Categories = []Category{
	CategoryConversation,
	CategoryUserProfile,
	CategoryAssistantPersona,
	CategoryTask,
	CategoryPreference,
	CategoryContext,
	CategoryKnowledge,
	CategoryRelationship,
	CategoryGoal,
	CategoryOther,
}

// ParseCategory returns the Category matching s (case-insensitive), or
// false if s is not one of the known category names.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// MemorySource links a memory back to the conversation or document it
// was derived from.
type MemorySource struct {
	Type      string     `json:"type"`
	Reference string     `json:"reference"`
	Title     string     `json:"title,omitempty"`
	Excerpt   string     `json:"excerpt,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// MemoryRecord is a persisted, titled natural-language summary derived
// from past dialogue.
type MemoryRecord struct {
	ID             string
	Title          string
	Content        string
	Category       Category
	Importance     int // 1..5
	Tags           []string
	Sources        []MemorySource
	Embedding      []float32 // optional, set by indexing
	EmbeddingModel string
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Conversation is a stored dialogue between the user and the assistant.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConversationMessage is a single turn within a conversation.
type ConversationMessage struct {
	ID             string
	ConversationID string
	Role           string // "user", "assistant", "system"
	Content        string
	CreatedAt      time.Time
}
