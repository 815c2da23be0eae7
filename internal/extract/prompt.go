package extract

import (
	"fmt"
	"strings"

	"github.com/rgitdev/ai-assistant/internal/llm"
	"github.com/rgitdev/ai-assistant/internal/storage"
)

const systemPromptTemplate = `You are a memory retrieval planner for a personal assistant. Given the recent conversation, decide which long-term memories would help the assistant respond. Your output must be ONLY a single valid JSON object of the form {"queries": ["category: free text", ...]}. Do not include any other text, prose, or markdown.

Rules:
- Each query is a short search phrase prefixed with the single best-fitting category and a colon.
- Produce at most %d queries.
- If no stored memories would help, return {"queries": []}.

Categories:
%s`

// BuildPrompt constructs the chat messages for query extraction. The
// conversation is rendered into the final user message so the planner sees
// it as material to analyze rather than instructions to follow.
func BuildPrompt(messages []storage.ConversationMessage, categoryDescriptions map[storage.Category]string) []llm.Message {
	var catalog strings.Builder
	for _, c := range storage.Categories {
		desc, ok := categoryDescriptions[c]
		if !ok {
			continue
		}
		fmt.Fprintf(&catalog, "- %s: %s\n", c, desc)
	}

	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	return []llm.Message{
		{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, maxQueries, catalog.String())},
		{Role: "user", Content: "Conversation:\n" + transcript.String()},
	}
}

// DefaultCategoryDescriptions is the standard prompt catalog. Callers can
// pass a trimmed map to narrow what the planner looks for.
var DefaultCategoryDescriptions = map[storage.Category]string{
	storage.CategoryConversation:     "summaries of past conversations",
	storage.CategoryUserProfile:      "facts about who the user is",
	storage.CategoryAssistantPersona: "how the assistant should behave or present itself",
	storage.CategoryTask:             "things the user asked to get done",
	storage.CategoryPreference:       "user likes, dislikes, and settings",
	storage.CategoryContext:          "situational background the user mentioned",
	storage.CategoryKnowledge:        "facts and information worth recalling",
	storage.CategoryRelationship:     "people the user knows and how",
	storage.CategoryGoal:             "longer-term objectives the user is pursuing",
	storage.CategoryOther:            "anything that fits no other category",
}
