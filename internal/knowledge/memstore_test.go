package knowledge

import (
	"context"
	"errors"
	"testing"
)

func passage(id, org, kb string, active bool) Passage {
	return Passage{
		ID:              id,
		OrgID:           org,
		KnowledgeBaseID: kb,
		Title:           "title-" + id,
		Content:         "content of " + id,
		Embedding:       []float32{1, 0, 0},
		Active:          active,
	}
}

func TestMemStore_UpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	for _, p := range []Passage{
		passage("a", "org1", "kb1", true),
		passage("b", "org1", "kb2", true),
		passage("c", "org1", "kb1", false),
		passage("d", "org2", "kb1", true),
	} {
		if err := s.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", p.ID, err)
		}
	}

	got, err := s.ListActive(ctx, Filter{OrgID: "org1"})
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 active passages for org1, got %d", len(got))
	}
	// Insertion order preserved.
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestMemStore_FilterByKnowledgeBase(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	for _, p := range []Passage{
		passage("a", "org1", "kb1", true),
		passage("b", "org1", "kb2", true),
		passage("c", "org1", "kb3", true),
	} {
		if err := s.Upsert(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListActive(ctx, Filter{OrgID: "org1", KnowledgeBaseIDs: []string{"kb1", "kb3"}})
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(got))
	}
	for _, p := range got {
		if p.KnowledgeBaseID == "kb2" {
			t.Error("kb2 passage leaked through filter")
		}
	}
}

func TestMemStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	p := passage("a", "org1", "kb1", true)
	if err := s.Upsert(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Content = "updated content"
	if err := s.Upsert(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListActive(ctx, Filter{OrgID: "org1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 passage after replace, got %d", len(got))
	}
	if got[0].Content != "updated content" {
		t.Errorf("content not replaced: %q", got[0].Content)
	}
}

func TestMemStore_Deactivate(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Upsert(ctx, passage("a", "org1", "kb1", true)); err != nil {
		t.Fatal(err)
	}
	if err := s.Deactivate(ctx, "a"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	got, err := s.ListActive(ctx, Filter{OrgID: "org1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("deactivated passage still listed")
	}

	if err := s.Deactivate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_Validation(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Upsert(ctx, Passage{OrgID: "org1"}); err == nil {
		t.Error("expected error for missing passage id")
	}
	if err := s.Upsert(ctx, Passage{ID: "a"}); err == nil {
		t.Error("expected error for missing org id")
	}
	if _, err := s.ListActive(ctx, Filter{}); err == nil {
		t.Error("expected error for missing filter org id")
	}
}

func TestFilter_Match(t *testing.T) {
	p := passage("a", "org1", "kb1", true)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"org match, no kb filter", Filter{OrgID: "org1"}, true},
		{"org mismatch", Filter{OrgID: "org2"}, false},
		{"kb match", Filter{OrgID: "org1", KnowledgeBaseIDs: []string{"kb1"}}, true},
		{"kb mismatch", Filter{OrgID: "org1", KnowledgeBaseIDs: []string{"kb2"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(p); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}
