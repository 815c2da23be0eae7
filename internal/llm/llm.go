// Package llm abstracts the external chat-completion and embedding
// services behind a single Provider interface, with an OpenAI-compatible
// backend and a local Ollama backend.
package llm

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema describes the expected JSON output structure for structured chat
// responses.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema.
type SchemaProperty struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Items       *SchemaProperty `json:"items,omitempty"`
}

// Provider is a chat-completion + embedding backend.
type Provider interface {
	// Chat sends messages and returns the assistant's response text.
	// When jsonSchema is non-nil, structured JSON output is requested.
	Chat(ctx context.Context, messages []Message, jsonSchema *Schema) (string, error)

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedModel returns the name of the embedding model, recorded on
	// vector rows so dimension mismatches can be traced.
	EmbedModel() string
}

// asMap converts a Schema to the generic JSON-schema map shape expected by
// OpenAI-compatible response_format parameters.
func (s *Schema) asMap() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = p.asMap()
	}
	m := map[string]any{
		"type":                 s.Type,
		"properties":           props,
		"additionalProperties": false,
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	return m
}

func (p SchemaProperty) asMap() map[string]any {
	m := map[string]any{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if p.Items != nil {
		m["items"] = p.Items.asMap()
	}
	return m
}
