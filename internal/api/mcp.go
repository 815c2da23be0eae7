// Package api exposes the assistant's memory tools over MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rgitdev/ai-assistant/internal/creator"
	"github.com/rgitdev/ai-assistant/internal/extract"
	"github.com/rgitdev/ai-assistant/internal/llm"
	"github.com/rgitdev/ai-assistant/internal/resolve"
	"github.com/rgitdev/ai-assistant/internal/schedule"
	"github.com/rgitdev/ai-assistant/internal/search"
	"github.com/rgitdev/ai-assistant/internal/storage"
)

// MemorySearcher abstracts semantic search for the MCP layer.
type MemorySearcher interface {
	SearchMemories(ctx context.Context, query string, opts search.Options) ([]storage.MemoryRecord, error)
	SearchMemoriesByCategory(ctx context.Context, category storage.Category, query string, opts search.Options) ([]storage.MemoryRecord, error)
}

// QueryPlanner turns a transcript into retrieval queries.
type QueryPlanner interface {
	ExtractQueries(ctx context.Context, messages []storage.ConversationMessage, categoryDescriptions map[storage.Category]string) ([]extract.Query, error)
}

// QueryResolver runs planned queries against memory.
type QueryResolver interface {
	ResolveQueries(ctx context.Context, queries []extract.Query) []resolve.QueryResult
}

// MemoryCreator is the two-phase creation workflow.
type MemoryCreator interface {
	PrepareMemoryCreation(ctx context.Context, cmd creator.Command) (*creator.Preparation, error)
	StoreMemory(ctx context.Context, prep *creator.Preparation, llmResponse string) (storage.MemoryRecord, error)
}

// Chatter is the completion call used by tools that need an LLM.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message, jsonSchema *llm.Schema) (string, error)
}

// JobStatusReader reports on scheduled jobs.
type JobStatusReader interface {
	GetStatus() []schedule.Status
}

// MCPDeps holds dependencies for the MCP server. Chatter may be nil;
// tools that need completions then report an error result.
type MCPDeps struct {
	Searcher  MemorySearcher
	Extractor QueryPlanner
	Resolver  QueryResolver
	Creator   MemoryCreator
	Chatter   Chatter
	Scheduler JobStatusReader
}

// NewMCPServer creates an MCP server with the assistant's memory tools
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"assistant-memory",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("Memory retrieval and indexing for a personal chat assistant."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_memories",
			mcp.WithDescription("Semantically search stored memories and return the most relevant ones."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchMemories(deps),
	)

	s.AddTool(
		mcp.NewTool("search_memories_by_category",
			mcp.WithDescription("Semantically search memories restricted to one category."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("category", mcp.Description("Memory category, e.g. task, preference, knowledge"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchByCategory(deps),
	)

	s.AddTool(
		mcp.NewTool("recall_for_conversation",
			mcp.WithDescription("Given a conversation transcript, plan retrieval queries with the LLM and return the memories they resolve to."),
			mcp.WithString("messages", mcp.Description("JSON array of {role, content} message objects"), mcp.Required()),
		),
		mcpRecallForConversation(deps),
	)

	s.AddTool(
		mcp.NewTool("create_memory",
			mcp.WithDescription("Derive and store a memory from a conversation transcript."),
			mcp.WithString("conversation_id", mcp.Description("Conversation identifier"), mcp.Required()),
			mcp.WithString("messages", mcp.Description("JSON array of {role, content} message objects"), mcp.Required()),
			mcp.WithString("category", mcp.Description("Memory category (default conversation)")),
			mcp.WithBoolean("overwrite", mcp.Description("Replace an existing memory for this conversation and category")),
		),
		mcpCreateMemory(deps),
	)

	s.AddTool(
		mcp.NewTool("job_status",
			mcp.WithDescription("Report last and next run times of the background indexing jobs."),
		),
		mcpJobStatus(deps),
	)

	return s
}

type memoryResult struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func toMemoryResults(memories []storage.MemoryRecord) []memoryResult {
	results := make([]memoryResult, len(memories))
	for i, m := range memories {
		results[i] = memoryResult{
			ID:        m.ID,
			Title:     m.Title,
			Content:   m.Content,
			Category:  string(m.Category),
			Tags:      m.Tags,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		}
	}
	return results
}

func mcpSearchMemories(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", search.DefaultTopK)
		if limit <= 0 {
			limit = search.DefaultTopK
		}
		if limit > 50 {
			limit = 50
		}

		memories, err := deps.Searcher.SearchMemories(ctx, query, search.Options{TopK: limit})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		return mcpJSON(toMemoryResults(memories))
	}
}

func mcpSearchByCategory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		rawCategory, err := req.RequireString("category")
		if err != nil {
			return mcpError("category is required"), nil
		}
		category, ok := storage.ParseCategory(rawCategory)
		if !ok {
			return mcpError(fmt.Sprintf("unknown category %q", rawCategory)), nil
		}

		limit := req.GetInt("limit", search.DefaultTopK)
		if limit <= 0 {
			limit = search.DefaultTopK
		}
		if limit > 50 {
			limit = 50
		}

		memories, err := deps.Searcher.SearchMemoriesByCategory(ctx, category, query, search.Options{TopK: limit})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		return mcpJSON(toMemoryResults(memories))
	}
}

func mcpRecallForConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Chatter == nil {
			return mcpError("recall not available: no completion provider configured"), nil
		}

		messages, errResult := parseTranscript(req)
		if errResult != nil {
			return errResult, nil
		}

		queries, err := deps.Extractor.ExtractQueries(ctx, messages, extract.DefaultCategoryDescriptions)
		if err != nil {
			return mcpError(fmt.Sprintf("query extraction failed: %v", err)), nil
		}

		results := deps.Resolver.ResolveQueries(ctx, queries)

		type recallResult struct {
			Query    string       `json:"query"`
			Category string       `json:"category,omitempty"`
			Memory   memoryResult `json:"memory"`
		}
		out := make([]recallResult, len(results))
		for i, r := range results {
			out[i] = recallResult{
				Query:    r.Query.Text,
				Category: string(r.Query.Category),
				Memory:   toMemoryResults([]storage.MemoryRecord{r.Memory})[0],
			}
		}
		return mcpJSON(out)
	}
}

func mcpCreateMemory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Chatter == nil {
			return mcpError("memory creation not available: no completion provider configured"), nil
		}

		conversationID, err := req.RequireString("conversation_id")
		if err != nil {
			return mcpError("conversation_id is required"), nil
		}

		messages, errResult := parseTranscript(req)
		if errResult != nil {
			return errResult, nil
		}

		category := storage.CategoryConversation
		if raw := req.GetString("category", ""); raw != "" {
			parsed, ok := storage.ParseCategory(raw)
			if !ok {
				return mcpError(fmt.Sprintf("unknown category %q", raw)), nil
			}
			category = parsed
		}

		prep, err := deps.Creator.PrepareMemoryCreation(ctx, creator.Command{
			ConversationID: conversationID,
			Messages:       messages,
			Category:       category,
			Overwrite:      req.GetBool("overwrite", false),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("preparation failed: %v", err)), nil
		}
		if prep == nil {
			return mcpText("memory already exists for this conversation and category; pass overwrite to replace it"), nil
		}

		response, err := deps.Chatter.Chat(ctx, prep.Messages, creator.ResponseSchema())
		if err != nil {
			return mcpError(fmt.Sprintf("completion failed: %v", err)), nil
		}

		record, err := deps.Creator.StoreMemory(ctx, prep, response)
		if err != nil {
			return mcpError(fmt.Sprintf("storing memory failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored memory %s: %s", record.ID, record.Title)), nil
	}
}

func mcpJobStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Scheduler == nil {
			return mcpError("no scheduler running"), nil
		}

		type jobStatus struct {
			Name     string `json:"name"`
			Schedule string `json:"schedule"`
			Running  bool   `json:"running"`
			LastRun  string `json:"last_run,omitempty"`
			NextRun  string `json:"next_run"`
		}
		statuses := deps.Scheduler.GetStatus()
		out := make([]jobStatus, len(statuses))
		for i, st := range statuses {
			js := jobStatus{
				Name:     st.Name,
				Schedule: st.Schedule,
				Running:  st.IsRunning,
				NextRun:  st.NextRun.Format(time.RFC3339),
			}
			if !st.LastRun.IsZero() {
				js.LastRun = st.LastRun.Format(time.RFC3339)
			}
			out[i] = js
		}
		return mcpJSON(out)
	}
}

// parseTranscript reads the "messages" argument as a JSON array of
// {role, content} objects. Returns a non-nil error result on failure.
func parseTranscript(req mcp.CallToolRequest) ([]storage.ConversationMessage, *mcp.CallToolResult) {
	raw, err := req.RequireString("messages")
	if err != nil {
		return nil, mcpError("messages is required")
	}

	var wire []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, mcpError(fmt.Sprintf("invalid messages JSON: %v", err))
	}

	messages := make([]storage.ConversationMessage, len(wire))
	for i, m := range wire {
		messages[i] = storage.ConversationMessage{Role: m.Role, Content: m.Content}
	}
	return messages, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
