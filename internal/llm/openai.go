package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Compile-time check that OpenAIProvider implements Provider.
var _ Provider = (*OpenAIProvider)(nil)

// OpenAIProvider talks to OpenAI or any OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client     openai.Client
	chatModel  string
	embedModel string
}

// NewOpenAIProvider creates a provider for the given API key and models.
// baseURL may be empty to use the platform default.
func NewOpenAIProvider(apiKey, baseURL, chatModel, embedModel string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		chatModel:  chatModel,
		embedModel: embedModel,
	}
}

// EmbedModel returns the configured embedding model name.
func (p *OpenAIProvider) EmbedModel() string {
	return p.embedModel
}

// Chat sends messages to the chat model and returns the assistant's
// response. When jsonSchema is non-nil, a strict JSON schema response
// format is requested.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, jsonSchema *Schema) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    p.chatModel,
		Messages: toOpenAIMessages(messages),
	}
	if jsonSchema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: jsonSchema.asMap(),
					Strict: openai.Bool(true),
				},
			},
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for the given text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: p.embedModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding request: empty response")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
