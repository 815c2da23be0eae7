// Package extract turns recent conversation turns into a small set of
// categorized memory-search queries via an LLM completion call.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rgitdev/ai-assistant/internal/llm"
	"github.com/rgitdev/ai-assistant/internal/storage"
)

// ErrBadResponse is returned when the LLM response does not match the
// required JSON shape. There is no fallback tier here; the caller decides
// whether to retry or proceed without memory augmentation.
var ErrBadResponse = errors.New("malformed extraction response")

// maxQueries caps how many queries a single extraction may yield. Zero
// queries is a valid outcome (no retrieval needed).
const maxQueries = 7

// Query is a categorized search phrase. The "category: text" string form
// is purely a wire format between the LLM and this package; everything
// downstream uses this type.
type Query struct {
	Category storage.Category // empty when the query is uncategorized
	Text     string
}

// Chatter is the completion call the extractor depends on.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message, jsonSchema *llm.Schema) (string, error)
}

// Extractor derives search queries from conversation context.
type Extractor struct {
	client Chatter
}

// NewExtractor creates an Extractor using the given completion client.
func NewExtractor(client Chatter) *Extractor {
	return &Extractor{client: client}
}

// ExtractQueries asks the LLM which memories would help answer the
// conversation and returns zero or more categorized queries.
// categoryDescriptions maps each category to a human-readable hint used
// in the prompt.
func (e *Extractor) ExtractQueries(ctx context.Context, messages []storage.ConversationMessage, categoryDescriptions map[storage.Category]string) ([]Query, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	raw, err := e.client.Chat(ctx, BuildPrompt(messages, categoryDescriptions), querySchema())
	if err != nil {
		return nil, fmt.Errorf("query extraction chat: %w", err)
	}

	return ParseQueries(raw)
}

// ParseQueries decodes the strict {"queries": ["category: text", ...]}
// response shape and splits each entry on the first colon.
func ParseQueries(raw string) ([]Query, error) {
	var response struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	var queries []Query
	for _, entry := range response.Queries {
		q := parseQueryString(entry)
		if q.Text == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) == maxQueries {
			break
		}
	}
	return queries, nil
}

// parseQueryString splits "category: free text" on the first colon. An
// unknown category prefix is kept as part of the text so no signal is
// lost; the query is simply uncategorized.
func parseQueryString(s string) Query {
	s = strings.TrimSpace(s)
	prefix, rest, found := strings.Cut(s, ":")
	if !found {
		return Query{Text: s}
	}

	category, ok := storage.ParseCategory(strings.ToLower(strings.TrimSpace(prefix)))
	if !ok {
		return Query{Text: s}
	}
	return Query{Category: category, Text: strings.TrimSpace(rest)}
}

// querySchema returns the JSON schema for structured query output.
func querySchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]llm.SchemaProperty{
			"queries": {
				Type:        "array",
				Description: "Search queries in the form \"category: free text\"",
				Items:       &llm.SchemaProperty{Type: "string"},
			},
		},
		Required: []string{"queries"},
	}
}
