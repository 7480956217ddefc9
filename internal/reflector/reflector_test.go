package reflector

import (
	"context"
	"errors"
	"testing"

	"github.com/ragent-ai/ragent/internal/llm"
	"github.com/ragent-ai/ragent/internal/log"
	"github.com/ragent-ai/ragent/internal/retrieval"
	"github.com/ragent-ai/ragent/internal/testutil"
)

func newTestReflector(t *testing.T, client llm.Client) *Reflector {
	t.Helper()
	r, err := New(Config{LLM: client, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func docs(contents ...string) []retrieval.Result {
	out := make([]retrieval.Result, len(contents))
	for i, c := range contents {
		out[i] = retrieval.Result{Content: c, Score: 0.8}
	}
	return out
}

func TestEvaluateRelevance(t *testing.T) {
	client := testutil.NewMockLLM(
		`{"isRelevant": [true, false], "overallQuality": 0.65, "shouldRetrieveMore": true, "feedback": "second document is off-topic"}`)

	r := newTestReflector(t, client)

	eval, err := r.EvaluateRelevance(context.Background(), "return policy", docs("returns within 30 days", "seating chart"))
	if err != nil {
		t.Fatalf("EvaluateRelevance failed: %v", err)
	}
	if len(eval.IsRelevant) != 2 || !eval.IsRelevant[0] || eval.IsRelevant[1] {
		t.Errorf("IsRelevant = %v, want [true false]", eval.IsRelevant)
	}
	if eval.OverallQuality != 0.65 {
		t.Errorf("OverallQuality = %f, want 0.65", eval.OverallQuality)
	}
	if !eval.ShouldRetrieveMore {
		t.Error("ShouldRetrieveMore = false, want true")
	}
}

func TestEvaluateRelevanceEmptyDocs(t *testing.T) {
	client := testutil.NewMockLLM(`{"isRelevant": [], "overallQuality": 1}`)

	r := newTestReflector(t, client)

	eval, err := r.EvaluateRelevance(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("EvaluateRelevance failed: %v", err)
	}
	if len(eval.IsRelevant) != 0 {
		t.Errorf("IsRelevant = %v, want empty", eval.IsRelevant)
	}
	if eval.OverallQuality != 0 {
		t.Errorf("OverallQuality = %f, want 0", eval.OverallQuality)
	}
	if !eval.ShouldRetrieveMore {
		t.Error("ShouldRetrieveMore = false, want true")
	}
	if client.CallCount() != 0 {
		t.Errorf("completion calls = %d, want 0 for empty document list", client.CallCount())
	}
}

func TestEvaluateRelevanceParseFallback(t *testing.T) {
	client := testutil.NewMockLLM("both documents look fine to me")

	r := newTestReflector(t, client)

	eval, err := r.EvaluateRelevance(context.Background(), "q", docs("a", "b", "c"))
	if err != nil {
		t.Fatalf("EvaluateRelevance failed: %v (parse failures must not error)", err)
	}
	if len(eval.IsRelevant) != 3 {
		t.Fatalf("IsRelevant length = %d, want 3", len(eval.IsRelevant))
	}
	for i, rel := range eval.IsRelevant {
		if !rel {
			t.Errorf("IsRelevant[%d] = false, want optimistic true", i)
		}
	}
	if eval.OverallQuality != fallbackQuality {
		t.Errorf("OverallQuality = %f, want %f", eval.OverallQuality, fallbackQuality)
	}
	if eval.ShouldRetrieveMore {
		t.Error("ShouldRetrieveMore = true, want false on parse fallback")
	}
}

func TestEvaluateRelevanceAlignsFlagCount(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []bool
	}{
		{"too few flags", `{"isRelevant": [false], "overallQuality": 0.5}`, []bool{false, true, true}},
		{"too many flags", `{"isRelevant": [true, false, true, false, true], "overallQuality": 0.5}`, []bool{true, false, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReflector(t, testutil.NewMockLLM(tt.response))

			eval, err := r.EvaluateRelevance(context.Background(), "q", docs("a", "b", "c"))
			if err != nil {
				t.Fatalf("EvaluateRelevance failed: %v", err)
			}
			if len(eval.IsRelevant) != len(tt.want) {
				t.Fatalf("IsRelevant length = %d, want %d", len(eval.IsRelevant), len(tt.want))
			}
			for i := range tt.want {
				if eval.IsRelevant[i] != tt.want[i] {
					t.Errorf("IsRelevant[%d] = %v, want %v", i, eval.IsRelevant[i], tt.want[i])
				}
			}
		})
	}
}

func TestEvaluateRelevanceClampsQuality(t *testing.T) {
	client := testutil.NewMockLLM(`{"isRelevant": [true], "overallQuality": 2.5}`)

	r := newTestReflector(t, client)

	eval, err := r.EvaluateRelevance(context.Background(), "q", docs("a"))
	if err != nil {
		t.Fatalf("EvaluateRelevance failed: %v", err)
	}
	if eval.OverallQuality != 1 {
		t.Errorf("OverallQuality = %f, want clamped 1", eval.OverallQuality)
	}
}

func TestEvaluateRelevanceServiceError(t *testing.T) {
	client := testutil.NewMockLLM("")
	client.FailWith(llm.ErrService)

	r := newTestReflector(t, client)

	_, err := r.EvaluateRelevance(context.Background(), "q", docs("a"))
	if !errors.Is(err, llm.ErrService) {
		t.Errorf("got %v, want wrapped llm.ErrService", err)
	}
}

func TestValidateResponse(t *testing.T) {
	client := testutil.NewMockLLM(
		`{"isFactuallyAccurate": false, "confidence": 0.9, "issues": ["claims 60 days, context says 30"]}`)

	r := newTestReflector(t, client)

	v, err := r.ValidateResponse(context.Background(), "return window?", "returns accepted within 60 days", docs("returns within 30 days"))
	if err != nil {
		t.Fatalf("ValidateResponse failed: %v", err)
	}
	if v.IsFactuallyAccurate {
		t.Error("IsFactuallyAccurate = true, want false")
	}
	if v.Confidence != 0.9 {
		t.Errorf("Confidence = %f, want 0.9", v.Confidence)
	}
	if len(v.Issues) != 1 {
		t.Errorf("Issues = %v, want one issue", v.Issues)
	}
}

func TestValidateResponseParseFallback(t *testing.T) {
	client := testutil.NewMockLLM("the answer seems mostly right")

	r := newTestReflector(t, client)

	v, err := r.ValidateResponse(context.Background(), "q", "answer", docs("context"))
	if err != nil {
		t.Fatalf("ValidateResponse failed: %v (parse failures must not error)", err)
	}
	if !v.IsFactuallyAccurate {
		t.Error("fallback IsFactuallyAccurate = false, want optimistic true")
	}
	if v.Confidence != 0.5 {
		t.Errorf("fallback Confidence = %f, want 0.5", v.Confidence)
	}
	if len(v.Issues) != 0 {
		t.Errorf("fallback Issues = %v, want empty", v.Issues)
	}
}

func TestValidateResponseServiceError(t *testing.T) {
	client := testutil.NewMockLLM("")
	client.FailWith(errors.New("connection refused"))

	r := newTestReflector(t, client)

	_, err := r.ValidateResponse(context.Background(), "q", "answer", nil)
	if err == nil {
		t.Fatal("ValidateResponse succeeded, want service error")
	}
}
