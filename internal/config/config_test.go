package config

import (
	"strings"
	"testing"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(lookupFrom(nil))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.LLM.Provider != "none" {
		t.Errorf("Provider = %q, want none", cfg.LLM.Provider)
	}
	if cfg.Retrieval.TopK != 10 {
		t.Errorf("TopK = %d, want 10", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.MinScore != 0.3 {
		t.Errorf("MinScore = %v, want 0.3", cfg.Retrieval.MinScore)
	}
	if cfg.Retrieval.FallbackDims != 256 {
		t.Errorf("FallbackDims = %d, want 256", cfg.Retrieval.FallbackDims)
	}
	if cfg.Schedule.IndexMemories != "*/15 * * * *" {
		t.Errorf("IndexMemories schedule = %q", cfg.Schedule.IndexMemories)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log level = %q, want info", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("DataDir empty")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := loadWith(lookupFrom(map[string]string{
		"ASSISTANT_DATA_DIR":            "/tmp/assistant",
		"ASSISTANT_LLM_PROVIDER":        "ollama",
		"ASSISTANT_CHAT_MODEL":          "llama3.1",
		"ASSISTANT_OLLAMA_BASE_URL":     "http://ollama:11434",
		"ASSISTANT_RETRIEVAL_TOP_K":     "5",
		"ASSISTANT_RETRIEVAL_MIN_SCORE": "0.5",
		"ASSISTANT_FALLBACK_EMBED_DIMS": "128",
		"ASSISTANT_SCHEDULE_MEMORIZE":   "0 */4 * * *",
		"ASSISTANT_LOG_LEVEL":           "debug",
	}))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/assistant" {
		t.Errorf("DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.ChatModel != "llama3.1" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.OllamaBaseURL != "http://ollama:11434" {
		t.Errorf("OllamaBaseURL = %q", cfg.LLM.OllamaBaseURL)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.MinScore != 0.5 || cfg.Retrieval.FallbackDims != 128 {
		t.Errorf("Retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Schedule.Memorize != "0 */4 * * *" {
		t.Errorf("Memorize schedule = %q", cfg.Schedule.Memorize)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log level = %q", cfg.Log.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.LLM.EmbedModel != "text-embedding-3-small" {
		t.Errorf("EmbedModel = %q, want default", cfg.LLM.EmbedModel)
	}
}

func TestLoadEmptyValuesKeepDefaults(t *testing.T) {
	cfg, err := loadWith(lookupFrom(map[string]string{
		"ASSISTANT_LLM_PROVIDER":    "",
		"ASSISTANT_RETRIEVAL_TOP_K": "",
	}))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.LLM.Provider != "none" {
		t.Errorf("Provider = %q, want none", cfg.LLM.Provider)
	}
	if cfg.Retrieval.TopK != 10 {
		t.Errorf("TopK = %d, want 10", cfg.Retrieval.TopK)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"top_k not a number", map[string]string{"ASSISTANT_RETRIEVAL_TOP_K": "ten"}},
		{"top_k zero", map[string]string{"ASSISTANT_RETRIEVAL_TOP_K": "0"}},
		{"top_k negative", map[string]string{"ASSISTANT_RETRIEVAL_TOP_K": "-1"}},
		{"min_score not a number", map[string]string{"ASSISTANT_RETRIEVAL_MIN_SCORE": "high"}},
		{"min_score above one", map[string]string{"ASSISTANT_RETRIEVAL_MIN_SCORE": "1.5"}},
		{"min_score negative", map[string]string{"ASSISTANT_RETRIEVAL_MIN_SCORE": "-0.1"}},
		{"dims zero", map[string]string{"ASSISTANT_FALLBACK_EMBED_DIMS": "0"}},
		{"unknown provider", map[string]string{"ASSISTANT_LLM_PROVIDER": "anthropic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadWith(lookupFrom(tt.env)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadOpenAIRequiresAPIKey(t *testing.T) {
	_, err := loadWith(lookupFrom(map[string]string{
		"ASSISTANT_LLM_PROVIDER": "openai",
	}))
	if err == nil {
		t.Fatal("expected an error for openai without an API key")
	}
	if !strings.Contains(err.Error(), "ASSISTANT_OPENAI_API_KEY") {
		t.Errorf("error %q does not name the missing key", err)
	}

	cfg, err := loadWith(lookupFrom(map[string]string{
		"ASSISTANT_LLM_PROVIDER":   "openai",
		"ASSISTANT_OPENAI_API_KEY": "sk-test",
	}))
	if err != nil {
		t.Fatalf("loadWith with key: %v", err)
	}
	if cfg.LLM.OpenAIAPIKey != "sk-test" {
		t.Errorf("OpenAIAPIKey = %q", cfg.LLM.OpenAIAPIKey)
	}
}
