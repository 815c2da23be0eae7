// Package config loads runtime configuration from an optional .env file
// and ASSISTANT_* environment variables layered over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Storage   StorageConfig
	LLM       LLMConfig
	Retrieval RetrievalConfig
	Schedule  ScheduleConfig
	Log       LogConfig
}

type StorageConfig struct {
	DataDir string
}

// LLMConfig selects the completion/embedding provider. Provider is one
// of "openai", "ollama" or "none"; with "none" the service still runs,
// falling back to deterministic embeddings and disabling the jobs that
// need completions.
type LLMConfig struct {
	Provider   string
	ChatModel  string
	EmbedModel string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	OllamaBaseURL string
}

type RetrievalConfig struct {
	TopK         int
	MinScore     float64
	FallbackDims int
}

// ScheduleConfig holds cron expressions for the background jobs.
type ScheduleConfig struct {
	IndexMemories      string
	IndexConversations string
	Memorize           string
}

type LogConfig struct {
	Level string
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "assistant-data"
		}
	}
	return filepath.Join(dir, "assistant")
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			Provider:      "none",
			ChatModel:     "gpt-4o-mini",
			EmbedModel:    "text-embedding-3-small",
			OllamaBaseURL: "http://localhost:11434",
		},
		Retrieval: RetrievalConfig{
			TopK:         10,
			MinScore:     0.3,
			FallbackDims: 256,
		},
		Schedule: ScheduleConfig{
			IndexMemories:      "*/15 * * * *",
			IndexConversations: "*/15 * * * *",
			Memorize:           "0 3/6 * * *",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads an optional .env file from the working directory, then
// applies ASSISTANT_* environment variables over the defaults.
func Load() (Config, error) {
	// Missing .env is fine; env vars and defaults still apply.
	_ = godotenv.Load()
	return loadWith(os.LookupEnv)
}

func loadWith(lookup func(string) (string, bool)) (Config, error) {
	cfg := defaults()

	str := func(env string, dst *string) {
		if v, ok := lookup(env); ok && v != "" {
			*dst = v
		}
	}
	str("ASSISTANT_DATA_DIR", &cfg.Storage.DataDir)
	str("ASSISTANT_LLM_PROVIDER", &cfg.LLM.Provider)
	str("ASSISTANT_CHAT_MODEL", &cfg.LLM.ChatModel)
	str("ASSISTANT_EMBED_MODEL", &cfg.LLM.EmbedModel)
	str("ASSISTANT_OPENAI_API_KEY", &cfg.LLM.OpenAIAPIKey)
	str("ASSISTANT_OPENAI_BASE_URL", &cfg.LLM.OpenAIBaseURL)
	str("ASSISTANT_OLLAMA_BASE_URL", &cfg.LLM.OllamaBaseURL)
	str("ASSISTANT_SCHEDULE_INDEX_MEMORIES", &cfg.Schedule.IndexMemories)
	str("ASSISTANT_SCHEDULE_INDEX_CONVERSATIONS", &cfg.Schedule.IndexConversations)
	str("ASSISTANT_SCHEDULE_MEMORIZE", &cfg.Schedule.Memorize)
	str("ASSISTANT_LOG_LEVEL", &cfg.Log.Level)

	if v, ok := lookup("ASSISTANT_RETRIEVAL_TOP_K"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid ASSISTANT_RETRIEVAL_TOP_K %q", v)
		}
		cfg.Retrieval.TopK = n
	}
	if v, ok := lookup("ASSISTANT_RETRIEVAL_MIN_SCORE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return Config{}, fmt.Errorf("invalid ASSISTANT_RETRIEVAL_MIN_SCORE %q", v)
		}
		cfg.Retrieval.MinScore = f
	}
	if v, ok := lookup("ASSISTANT_FALLBACK_EMBED_DIMS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid ASSISTANT_FALLBACK_EMBED_DIMS %q", v)
		}
		cfg.Retrieval.FallbackDims = n
	}

	switch cfg.LLM.Provider {
	case "openai", "ollama", "none":
	default:
		return Config{}, fmt.Errorf("unknown ASSISTANT_LLM_PROVIDER %q (want openai, ollama or none)", cfg.LLM.Provider)
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("missing required config: set ASSISTANT_OPENAI_API_KEY when ASSISTANT_LLM_PROVIDER=openai")
	}

	return cfg, nil
}
