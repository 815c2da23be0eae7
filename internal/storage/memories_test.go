package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testMemory(category Category, reference string) MemoryRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return MemoryRecord{
		ID:         uuid.New().String(),
		Title:      "Prefers concise answers",
		Content:    "The user asked for shorter replies without preamble.",
		Category:   category,
		Importance: 3,
		Tags:       []string{"style", "communication"},
		Sources: []MemorySource{
			{Type: "chat", Reference: reference, Timestamp: &now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaveAndGetMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := testMemory(CategoryPreference, "conv-1")
	if err := s.SaveMemory(ctx, m); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}

	got, err := s.GetMemory(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.Title != m.Title || got.Content != m.Content {
		t.Errorf("round-trip mismatch: got %q/%q", got.Title, got.Content)
	}
	if got.Category != CategoryPreference {
		t.Errorf("Category = %q, want %q", got.Category, CategoryPreference)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "style" {
		t.Errorf("Tags = %v, want [style communication]", got.Tags)
	}
	if len(got.Sources) != 1 {
		t.Fatalf("Sources = %v, want one source", got.Sources)
	}
	if got.Sources[0].Reference != "conv-1" || got.Sources[0].Type != "chat" {
		t.Errorf("Source = %+v, want chat/conv-1", got.Sources[0])
	}
	if got.Sources[0].Timestamp == nil {
		t.Error("Source timestamp dropped")
	}
}

func TestGetMemoryNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetMemory(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMemory(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := testMemory(CategoryTask, "conv-2")
	if err := s.SaveMemory(ctx, m); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}

	m.Title = "Updated title"
	m.Content = "Updated content"
	m.Sources = []MemorySource{{Type: "chat", Reference: "conv-2b"}}
	m.UpdatedAt = m.UpdatedAt.Add(time.Minute)
	if err := s.UpdateMemory(ctx, m); err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}

	got, err := s.GetMemory(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.Title != "Updated title" {
		t.Errorf("Title = %q, want updated", got.Title)
	}
	if len(got.Sources) != 1 || got.Sources[0].Reference != "conv-2b" {
		t.Errorf("Sources = %+v, want replaced", got.Sources)
	}
}

func TestUpdateMemoryNotFound(t *testing.T) {
	s := newTestStore(t)

	m := testMemory(CategoryTask, "conv-3")
	if err := s.UpdateMemory(context.Background(), m); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateMemory(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListMemoriesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		m := testMemory(CategoryKnowledge, "conv-list")
		m.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		m.UpdatedAt = m.CreatedAt
		if err := s.SaveMemory(ctx, m); err != nil {
			t.Fatalf("SaveMemory: %v", err)
		}
		ids = append(ids, m.ID)
	}

	got, err := s.ListMemories(ctx)
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d memories, want 3", len(got))
	}
	for i, id := range ids {
		if got[i].ID != id {
			t.Errorf("memory[%d].ID = %q, want %q (creation order)", i, got[i].ID, id)
		}
	}
}

func TestGetMemoriesBySourceReference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	matching := testMemory(CategoryConversation, "conv-x")
	other := testMemory(CategoryConversation, "conv-y")
	if err := s.SaveMemory(ctx, matching); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}
	if err := s.SaveMemory(ctx, other); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}

	got, err := s.GetMemoriesBySourceReference(ctx, "conv-x")
	if err != nil {
		t.Fatalf("GetMemoriesBySourceReference: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d memories, want 1", len(got))
	}
	if got[0].ID != matching.ID {
		t.Errorf("ID = %q, want %q", got[0].ID, matching.ID)
	}
}

func TestSearchMemoriesLexical(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := testMemory(CategoryKnowledge, "conv-lex")
	m.Title = "Gardening notes"
	m.Content = "Tomatoes need six hours of direct sunlight."
	if err := s.SaveMemory(ctx, m); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}

	// Case-insensitive, matches content as well as title.
	got, err := s.SearchMemoriesLexical(ctx, "TOMATOES", 0)
	if err != nil {
		t.Fatalf("SearchMemoriesLexical: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}

	got, err = s.SearchMemoriesLexical(ctx, "no such phrase", 0)
	if err != nil {
		t.Fatalf("SearchMemoriesLexical: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results for non-matching query, want 0", len(got))
	}
}

func TestDeleteMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := testMemory(CategoryOther, "conv-del")
	if err := s.SaveMemory(ctx, m); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}
	if err := s.DeleteMemory(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if _, err := s.GetMemory(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMemory(deleted) error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteMemory(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteMemory(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryEmbeddingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := testMemory(CategoryContext, "conv-emb")
	m.Embedding = []float32{0.25, -1.5, 3}
	m.EmbeddingModel = "test-model"
	if err := s.SaveMemory(ctx, m); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}

	got, err := s.GetMemory(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != -1.5 {
		t.Errorf("Embedding = %v, want %v", got.Embedding, m.Embedding)
	}
	if got.EmbeddingModel != "test-model" {
		t.Errorf("EmbeddingModel = %q, want test-model", got.EmbeddingModel)
	}
}
