package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/rgitdev/ai-assistant/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db.DB())
}

func mustStore(t *testing.T, s *SQLiteStore, sourceID, sourceType string, embedding []float32) Record {
	t.Helper()
	rec, err := s.StoreVector(context.Background(), Record{
		SourceID:       sourceID,
		SourceType:     sourceType,
		Embedding:      embedding,
		EmbeddingModel: "test-model",
	})
	if err != nil {
		t.Fatalf("storing vector: %v", err)
	}
	return rec
}

func TestStoreVectorAssignsIDAndTimestamps(t *testing.T) {
	s := newTestStore(t)

	rec := mustStore(t, s, "mem-1", SourceTypeMemory, []float32{1, 0, 0})
	if rec.ID == "" {
		t.Error("StoreVector did not assign an ID")
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("StoreVector did not assign timestamps")
	}

	got, err := s.GetVectorsBySource(context.Background(), "mem-1", SourceTypeMemory)
	if err != nil {
		t.Fatalf("GetVectorsBySource: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].ID != rec.ID {
		t.Errorf("round-trip ID = %q, want %q", got[0].ID, rec.ID)
	}
	if len(got[0].Embedding) != 3 || got[0].Embedding[0] != 1 {
		t.Errorf("round-trip embedding = %v, want [1 0 0]", got[0].Embedding)
	}
}

func TestSearchSimilarOrdersByScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	far := mustStore(t, s, "far", SourceTypeMemory, []float32{0, 1, 0})
	near := mustStore(t, s, "near", SourceTypeMemory, []float32{1, 0.1, 0})
	exact := mustStore(t, s, "exact", SourceTypeMemory, []float32{1, 0, 0})

	results, err := s.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	wantOrder := []string{exact.ID, near.ID, far.ID}
	for i, want := range wantOrder {
		if results[i].ID != want {
			t.Errorf("result[%d].ID = %q, want %q", i, results[i].ID, want)
		}
	}
	if results[0].Score < results[1].Score || results[1].Score < results[2].Score {
		t.Errorf("scores not descending: %v, %v, %v", results[0].Score, results[1].Score, results[2].Score)
	}
}

func TestSearchSimilarTieBreakByStorageOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Identical embeddings score identically; the earlier insert must come
	// first no matter how many times we search.
	first := mustStore(t, s, "first", SourceTypeMemory, []float32{1, 0})
	second := mustStore(t, s, "second", SourceTypeMemory, []float32{1, 0})
	third := mustStore(t, s, "third", SourceTypeMemory, []float32{1, 0})

	for run := 0; run < 5; run++ {
		results, err := s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{})
		if err != nil {
			t.Fatalf("SearchSimilar: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("got %d results, want 3", len(results))
		}
		wantOrder := []string{first.ID, second.ID, third.ID}
		for i, want := range wantOrder {
			if results[i].ID != want {
				t.Fatalf("run %d: result[%d].ID = %q, want %q", run, i, results[i].ID, want)
			}
		}
	}
}

func TestSearchSimilarMinScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustStore(t, s, "match", SourceTypeMemory, []float32{1, 0})
	mustStore(t, s, "orthogonal", SourceTypeMemory, []float32{0, 1})

	results, err := s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{MinScore: 0.5})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].SourceID != "match" {
		t.Errorf("result = %q, want %q", results[0].SourceID, "match")
	}
}

func TestSearchSimilarLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		mustStore(t, s, "src", SourceTypeMemory, []float32{1, 0})
	}

	results, err := s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{Limit: 5})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 5 {
		t.Errorf("got %d results, want 5", len(results))
	}

	// Default limit applies when unset.
	results, err = s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != DefaultSearchLimit {
		t.Errorf("got %d results, want default %d", len(results), DefaultSearchLimit)
	}
}

func TestSearchSimilarSourceTypeFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustStore(t, s, "mem", SourceTypeMemory, []float32{1, 0})
	mustStore(t, s, "conv", SourceTypeConversation, []float32{1, 0})

	results, err := s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{SourceType: SourceTypeMemory})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].SourceType != SourceTypeMemory {
		t.Errorf("SourceType = %q, want %q", results[0].SourceType, SourceTypeMemory)
	}
}

func TestSearchSimilarEmptyStore(t *testing.T) {
	s := newTestStore(t)

	results, err := s.SearchSimilar(context.Background(), []float32{1, 0}, SearchOptions{})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty store, want 0", len(results))
	}
}

func TestUpdateVectorPartial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := mustStore(t, s, "mem-1", SourceTypeMemory, []float32{1, 0})

	model := "new-model"
	updated, err := s.UpdateVector(ctx, rec.ID, Update{
		Embedding:      []float32{0, 1},
		EmbeddingModel: &model,
	})
	if err != nil {
		t.Fatalf("UpdateVector: %v", err)
	}
	if updated.EmbeddingModel != "new-model" {
		t.Errorf("EmbeddingModel = %q, want %q", updated.EmbeddingModel, "new-model")
	}
	if updated.Embedding[0] != 0 || updated.Embedding[1] != 1 {
		t.Errorf("Embedding = %v, want [0 1]", updated.Embedding)
	}
	// Untouched fields survive.
	if updated.SourceID != "mem-1" {
		t.Errorf("SourceID = %q, want %q", updated.SourceID, "mem-1")
	}
}

func TestUpdateVectorNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpdateVector(context.Background(), "no-such-id", Update{Embedding: []float32{1}})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("UpdateVector(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteVector(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := mustStore(t, s, "mem-1", SourceTypeMemory, []float32{1, 0})
	if err := s.DeleteVector(ctx, rec.ID); err != nil {
		t.Fatalf("DeleteVector: %v", err)
	}
	if err := s.DeleteVector(ctx, rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteVector(deleted) error = %v, want ErrNotFound", err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("Count = %d, want 0", count)
	}
}

func TestExportAllStorageOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustStore(t, s, "a", SourceTypeMemory, []float32{1})
	b := mustStore(t, s, "b", SourceTypeMemory, []float32{2})
	c := mustStore(t, s, "c", SourceTypeConversation, []float32{3})

	all, err := s.ExportAll(ctx)
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d records, want 3", len(all))
	}
	wantOrder := []string{a.ID, b.ID, c.ID}
	for i, want := range wantOrder {
		if all[i].ID != want {
			t.Errorf("record[%d].ID = %q, want %q", i, all[i].ID, want)
		}
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0.1, -2.5, 3e10, 0}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decodeFloat32s: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("round-trip[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("decodeFloat32s accepted a corrupt blob")
	}
}
