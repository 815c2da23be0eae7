package main

import (
	"context"
	"testing"

	"github.com/rgitdev/ai-assistant/internal/config"
	"github.com/rgitdev/ai-assistant/internal/search"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("ASSISTANT_DATA_DIR", t.TempDir())
	t.Setenv("ASSISTANT_LLM_PROVIDER", "none")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	return cfg
}

func TestBuildServicesWithoutProvider(t *testing.T) {
	svc, err := buildServices(testConfig(t))
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	defer svc.store.Close()

	if svc.provider != nil {
		t.Error("provider should be nil with ASSISTANT_LLM_PROVIDER=none")
	}
	if svc.search == nil || svc.extractor == nil || svc.resolver == nil || svc.creator == nil || svc.indexer == nil {
		t.Fatal("incomplete service graph")
	}

	// The whole retrieval path works offline on fallback embeddings.
	memories, err := svc.search.SearchMemories(context.Background(), "anything", search.Options{TopK: 5})
	if err != nil {
		t.Fatalf("search on empty store: %v", err)
	}
	if len(memories) != 0 {
		t.Errorf("got %d memories from an empty store", len(memories))
	}
}

func TestResolveLimitFallsBackToConfig(t *testing.T) {
	t.Setenv("ASSISTANT_DATA_DIR", t.TempDir())
	t.Setenv("ASSISTANT_LLM_PROVIDER", "none")
	t.Setenv("ASSISTANT_RETRIEVAL_TOP_K", "3")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	if got := resolveLimit(0, cfg.Retrieval.TopK); got != 3 {
		t.Errorf("resolveLimit(0) = %d, want the configured top-k 3", got)
	}
	if got := resolveLimit(7, cfg.Retrieval.TopK); got != 7 {
		t.Errorf("resolveLimit(7) = %d, want the explicit flag value", got)
	}
}

func TestIndexCommandsRunOnEmptyStore(t *testing.T) {
	svc, err := buildServices(testConfig(t))
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	defer svc.store.Close()

	ctx := context.Background()
	if err := svc.indexer.IndexMemories(ctx); err != nil {
		t.Errorf("IndexMemories on empty store: %v", err)
	}
	if err := svc.indexer.IndexConversations(ctx); err != nil {
		t.Errorf("IndexConversations on empty store: %v", err)
	}
	// Memorization needs a completion provider and must say so.
	if err := svc.indexer.MemorizeConversations(ctx); err == nil {
		t.Error("MemorizeConversations should fail without a provider")
	}
}
