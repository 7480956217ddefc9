package knowledge_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ragent-ai/ragent/internal/knowledge"
	"github.com/ragent-ai/ragent/internal/log"
	"github.com/ragent-ai/ragent/internal/testutil"
)

func testVector(seed float32) []float32 {
	vec := make([]float32, 768)
	vec[0] = seed
	vec[1] = float32(math.Sqrt(float64(1 - seed*seed)))
	return vec
}

func TestPGStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := knowledge.NewPGStore(testDB.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewPGStore() error = %v", err)
	}

	passages := []knowledge.Passage{
		{
			ID:              "p-1",
			OrgID:           "org-1",
			KnowledgeBaseID: "kb-1",
			Title:           "Returns policy",
			Content:         "Items may be returned within 30 days.",
			Source:          "handbook",
			Tags:            []string{"policy", "returns"},
			Embedding:       testVector(0.9),
			Active:          true,
		},
		{
			ID:              "p-2",
			OrgID:           "org-1",
			KnowledgeBaseID: "kb-2",
			Title:           "Shipping rates",
			Content:         "Standard shipping is free over $50.",
			Source:          "handbook",
			Embedding:       testVector(0.1),
			Active:          true,
		},
		{
			ID:              "p-3",
			OrgID:           "org-2",
			KnowledgeBaseID: "kb-1",
			Title:           "Other tenant",
			Content:         "Must never leak across org boundaries.",
			Embedding:       testVector(0.5),
			Active:          true,
		},
	}
	for _, p := range passages {
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert(%s) error = %v", p.ID, err)
		}
	}

	t.Run("list scoped to org", func(t *testing.T) {
		got, err := store.ListActive(ctx, knowledge.Filter{OrgID: "org-1"})
		if err != nil {
			t.Fatalf("ListActive() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("ListActive() returned %d passages, want 2", len(got))
		}
		if got[0].ID != "p-1" || got[1].ID != "p-2" {
			t.Errorf("order = [%s, %s], want [p-1, p-2]", got[0].ID, got[1].ID)
		}
		if got[0].Embedding[0] != 0.9 {
			t.Errorf("Embedding[0] = %v, want 0.9", got[0].Embedding[0])
		}
		if len(got[0].Tags) != 2 || got[0].Tags[0] != "policy" {
			t.Errorf("Tags = %v, want [policy returns]", got[0].Tags)
		}
	})

	t.Run("list scoped to knowledge base", func(t *testing.T) {
		got, err := store.ListActive(ctx, knowledge.Filter{
			OrgID:            "org-1",
			KnowledgeBaseIDs: []string{"kb-2"},
		})
		if err != nil {
			t.Fatalf("ListActive() error = %v", err)
		}
		if len(got) != 1 || got[0].ID != "p-2" {
			t.Fatalf("ListActive(kb-2) = %v, want only p-2", got)
		}
	})

	t.Run("upsert updates in place", func(t *testing.T) {
		updated := passages[0]
		updated.Content = "Items may be returned within 60 days."
		if err := store.Upsert(ctx, updated); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		got, err := store.ListActive(ctx, knowledge.Filter{
			OrgID:            "org-1",
			KnowledgeBaseIDs: []string{"kb-1"},
		})
		if err != nil {
			t.Fatalf("ListActive() error = %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("ListActive() returned %d passages, want 1", len(got))
		}
		if got[0].Content != updated.Content {
			t.Errorf("Content = %q, want %q", got[0].Content, updated.Content)
		}
		if !got[0].UpdatedAt.After(got[0].CreatedAt) {
			t.Errorf("UpdatedAt %v not after CreatedAt %v", got[0].UpdatedAt, got[0].CreatedAt)
		}
	})

	t.Run("count and deactivate", func(t *testing.T) {
		n, err := store.CountActive(ctx, "org-1")
		if err != nil {
			t.Fatalf("CountActive() error = %v", err)
		}
		if n != 2 {
			t.Fatalf("CountActive() = %d, want 2", n)
		}

		if err := store.Deactivate(ctx, "p-2"); err != nil {
			t.Fatalf("Deactivate() error = %v", err)
		}

		n, err = store.CountActive(ctx, "org-1")
		if err != nil {
			t.Fatalf("CountActive() error = %v", err)
		}
		if n != 1 {
			t.Errorf("CountActive() after deactivate = %d, want 1", n)
		}

		got, err := store.ListActive(ctx, knowledge.Filter{OrgID: "org-1"})
		if err != nil {
			t.Fatalf("ListActive() error = %v", err)
		}
		if len(got) != 1 || got[0].ID != "p-1" {
			t.Errorf("ListActive() after deactivate = %v, want only p-1", got)
		}
	})

	t.Run("deactivate missing passage", func(t *testing.T) {
		err := store.Deactivate(ctx, "no-such-id")
		if !errors.Is(err, knowledge.ErrNotFound) {
			t.Errorf("Deactivate(missing) error = %v, want ErrNotFound", err)
		}
	})
}
