package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ragent-ai/ragent/internal/llm"
	"github.com/ragent-ai/ragent/internal/log"
	"github.com/ragent-ai/ragent/internal/retrieval"
	"github.com/ragent-ai/ragent/internal/testutil"
)

func newTestAnalyzer(t *testing.T, client llm.Client) *Analyzer {
	t.Helper()
	a, err := New(Config{
		LLM:    client,
		Logger: log.NewNop(),
		Clock:  func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestAnalyzeQuery(t *testing.T) {
	client := testutil.NewMockLLM(
		`{"shouldRetrieve": true, "strategy": "semantic", "reasoning": "needs product docs", "confidence": 0.9, "queryExpansions": ["alt one", "alt two"]}`)

	a := newTestAnalyzer(t, client)

	decision, err := a.AnalyzeQuery(context.Background(), "how do refunds work?", nil)
	if err != nil {
		t.Fatalf("AnalyzeQuery failed: %v", err)
	}
	if !decision.ShouldRetrieve {
		t.Error("ShouldRetrieve = false, want true")
	}
	if decision.Strategy != retrieval.StrategySemantic {
		t.Errorf("Strategy = %s, want semantic", decision.Strategy)
	}
	if decision.Confidence != 0.9 {
		t.Errorf("Confidence = %f, want 0.9", decision.Confidence)
	}
	if len(decision.QueryExpansions) != 2 {
		t.Errorf("QueryExpansions = %v, want 2 entries", decision.QueryExpansions)
	}
	if len(decision.ChainOfThought) != 1 || decision.ChainOfThought[0].Step != 1 {
		t.Errorf("ChainOfThought = %+v, want single step 1", decision.ChainOfThought)
	}
}

func TestAnalyzeQueryFencedJSON(t *testing.T) {
	client := testutil.NewMockLLM("```json\n{\"shouldRetrieve\": false, \"strategy\": \"none\", \"confidence\": 1.0}\n```")

	a := newTestAnalyzer(t, client)

	decision, err := a.AnalyzeQuery(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("AnalyzeQuery failed: %v", err)
	}
	if decision.ShouldRetrieve {
		t.Error("ShouldRetrieve = true, want false")
	}
	if decision.Strategy != retrieval.StrategyNone {
		t.Errorf("Strategy = %s, want none", decision.Strategy)
	}
}

func TestAnalyzeQueryFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"unparseable output", "I think you should definitely search the knowledge base."},
		{"missing shouldRetrieve", `{"strategy": "semantic", "confidence": 0.8}`},
		{"truncated JSON", `{"shouldRetrieve": true, "strat`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(t, testutil.NewMockLLM(tt.response))

			decision, err := a.AnalyzeQuery(context.Background(), "query", nil)
			if err != nil {
				t.Fatalf("AnalyzeQuery failed: %v (parse failures must not error)", err)
			}
			if !decision.ShouldRetrieve {
				t.Error("fallback ShouldRetrieve = false, want true")
			}
			if decision.Strategy != retrieval.StrategyHybrid {
				t.Errorf("fallback Strategy = %s, want hybrid", decision.Strategy)
			}
			if decision.Confidence != 0.5 {
				t.Errorf("fallback Confidence = %f, want 0.5", decision.Confidence)
			}
			if decision.Reasoning == "" {
				t.Error("fallback Reasoning empty, want parse-failure reason")
			}
		})
	}
}

func TestAnalyzeQueryUnknownStrategy(t *testing.T) {
	client := testutil.NewMockLLM(`{"shouldRetrieve": true, "strategy": "quantum", "confidence": 0.8}`)

	a := newTestAnalyzer(t, client)

	decision, err := a.AnalyzeQuery(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("AnalyzeQuery failed: %v", err)
	}
	if decision.Strategy != retrieval.StrategyHybrid {
		t.Errorf("Strategy = %s, want hybrid for unknown strategy text", decision.Strategy)
	}
}

func TestAnalyzeQueryClampsConfidence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"above one", `{"shouldRetrieve": true, "strategy": "semantic", "confidence": 1.7}`, 1},
		{"below zero", `{"shouldRetrieve": true, "strategy": "semantic", "confidence": -0.3}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(t, testutil.NewMockLLM(tt.raw))

			decision, err := a.AnalyzeQuery(context.Background(), "query", nil)
			if err != nil {
				t.Fatalf("AnalyzeQuery failed: %v", err)
			}
			if decision.Confidence != tt.want {
				t.Errorf("Confidence = %f, want %f", decision.Confidence, tt.want)
			}
		})
	}
}

func TestAnalyzeQueryServiceError(t *testing.T) {
	client := testutil.NewMockLLM("")
	client.FailWith(llm.ErrService)

	a := newTestAnalyzer(t, client)

	_, err := a.AnalyzeQuery(context.Background(), "query", nil)
	if !errors.Is(err, llm.ErrService) {
		t.Errorf("got %v, want wrapped llm.ErrService", err)
	}
}

func TestAnalyzeQueryIncludesHistory(t *testing.T) {
	client := testutil.NewMockLLM(`{"shouldRetrieve": false, "strategy": "none", "confidence": 1}`)

	a := newTestAnalyzer(t, client)

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "tell me about shipping"},
		{Role: llm.RoleAssistant, Content: "shipping takes 3-5 days"},
	}
	if _, err := a.AnalyzeQuery(context.Background(), "and returns?", history); err != nil {
		t.Fatalf("AnalyzeQuery failed: %v", err)
	}

	calls := client.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	for _, want := range []string{"tell me about shipping", "shipping takes 3-5 days", "and returns?"} {
		if !strings.Contains(calls[0].UserMessage, want) {
			t.Errorf("analysis input missing %q:\n%s", want, calls[0].UserMessage)
		}
	}
}

func TestExpandQuery(t *testing.T) {
	client := testutil.NewMockLLM(`["variant one", "variant two", "variant three"]`)

	a := newTestAnalyzer(t, client)

	got := a.ExpandQuery(context.Background(), "original query")
	want := []string{"original query", "variant one", "variant two", "variant three"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExpandQueryDeduplicates(t *testing.T) {
	client := testutil.NewMockLLM(`["Original Query", "fresh variant", "fresh variant"]`)

	a := newTestAnalyzer(t, client)

	got := a.ExpandQuery(context.Background(), "original query")
	if len(got) != 2 {
		t.Fatalf("got %v, want original plus one distinct variant", got)
	}
}

func TestExpandQueryFallbacks(t *testing.T) {
	t.Run("unparseable output", func(t *testing.T) {
		a := newTestAnalyzer(t, testutil.NewMockLLM("1. variant one\n2. variant two"))

		got := a.ExpandQuery(context.Background(), "original")
		if len(got) != 1 || got[0] != "original" {
			t.Errorf("got %v, want just the original query", got)
		}
	})

	t.Run("service error", func(t *testing.T) {
		client := testutil.NewMockLLM("")
		client.FailWith(errors.New("connection reset"))
		a := newTestAnalyzer(t, client)

		got := a.ExpandQuery(context.Background(), "original")
		if len(got) != 1 || got[0] != "original" {
			t.Errorf("got %v, want just the original query", got)
		}
	})
}
