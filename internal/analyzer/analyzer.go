// Package analyzer decides, via a completion-service call, whether a query
// needs knowledge retrieval, which strategy fits, and what expanded query
// variants to search with.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ragent-ai/ragent/internal/llm"
	"github.com/ragent-ai/ragent/internal/retrieval"
)

// historyWindow bounds how many trailing conversation messages are shown to
// the model during analysis.
const historyWindow = 6

// ChainOfThoughtStep is one entry in the ordered reasoning log produced
// alongside a decision. Step numbers increase monotonically.
type ChainOfThoughtStep struct {
	Step        int       `json:"step"`
	Thought     string    `json:"thought"`
	Action      string    `json:"action"`
	Observation string    `json:"observation,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Decision is the analyzer's verdict on a query. A fallback decision is
// produced when the model response cannot be parsed, so callers always get
// a usable decision unless the service itself failed.
type Decision struct {
	ShouldRetrieve  bool                 `json:"shouldRetrieve"`
	Strategy        retrieval.Strategy   `json:"strategy"`
	Reasoning       string               `json:"reasoning"`
	Confidence      float64              `json:"confidence"`
	QueryExpansions []string             `json:"queryExpansions,omitempty"`
	ChainOfThought  []ChainOfThoughtStep `json:"chainOfThought,omitempty"`
}

const analyzeSystemPrompt = `You analyze user queries for a retrieval-augmented assistant. Decide whether answering requires searching the knowledge base, and if so, which strategy fits best.

Strategies:
- "semantic": conceptual questions answered by meaning-similar passages
- "hybrid": questions mixing concepts with specific names, IDs, or keywords
- "graph": questions about related or connected topics
- "adaptive": ambiguous questions where the best approach is unclear
- "none": no retrieval needed

Respond with ONLY a JSON object:
{"shouldRetrieve": bool, "strategy": string, "reasoning": string, "confidence": number between 0 and 1, "queryExpansions": [up to 3 rephrasings]}`

const expandSystemPrompt = `You rephrase search queries. Given a query, produce 3 semantically similar variants that could surface different relevant passages. Respond with ONLY a JSON array of 3 strings.`

// Config contains all required parameters for the Analyzer.
type Config struct {
	LLM    llm.Client
	Logger *slog.Logger

	// Clock overrides time.Now for chain-of-thought timestamps (tests).
	Clock func() time.Time
}

// Analyzer turns raw queries into retrieval decisions.
//
// Analyzer is stateless and safe for concurrent use.
type Analyzer struct {
	llm    llm.Client
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	if cfg.LLM == nil {
		return nil, errors.New("completion client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Analyzer{llm: cfg.LLM, logger: logger, now: now}, nil
}

// analysisWire is the JSON shape requested from the model. ShouldRetrieve is
// a pointer so that a syntactically valid object missing the field still
// triggers the fallback decision.
type analysisWire struct {
	ShouldRetrieve  *bool    `json:"shouldRetrieve"`
	Strategy        string   `json:"strategy"`
	Reasoning       string   `json:"reasoning"`
	Confidence      float64  `json:"confidence"`
	QueryExpansions []string `json:"queryExpansions"`
}

// AnalyzeQuery issues one completion request and parses the model's verdict.
//
// Parse failures and a missing shouldRetrieve field degrade to a fallback
// decision that retrieves broadly (hybrid strategy, confidence 0.5) instead
// of silently skipping retrieval. Service failures propagate to the caller.
func (a *Analyzer) AnalyzeQuery(ctx context.Context, query string, history []llm.Message) (*Decision, error) {
	started := a.now()

	resp, err := a.llm.Complete(ctx, llm.Request{
		System:   analyzeSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: buildAnalysisInput(query, history)}},
	})
	if err != nil {
		return nil, fmt.Errorf("analyze query: %w", err)
	}

	var wire analysisWire
	if parseErr := llm.ParseJSON(resp.Text, &wire); parseErr != nil {
		a.logger.Warn("query analysis unparseable, using fallback decision", "error", parseErr)
		return a.fallback(query, fmt.Sprintf("analysis response unparseable: %v", parseErr), started), nil
	}
	if wire.ShouldRetrieve == nil {
		a.logger.Warn("query analysis missing shouldRetrieve, using fallback decision")
		return a.fallback(query, "analysis response missing shouldRetrieve", started), nil
	}

	strategy, ok := retrieval.ParseStrategy(wire.Strategy)
	if !ok {
		a.logger.Warn("unknown strategy from model, using hybrid", "strategy", wire.Strategy)
		strategy = retrieval.StrategyHybrid
	}

	decision := &Decision{
		ShouldRetrieve:  *wire.ShouldRetrieve,
		Strategy:        strategy,
		Reasoning:       wire.Reasoning,
		Confidence:      llm.Clamp01(wire.Confidence),
		QueryExpansions: wire.QueryExpansions,
	}
	decision.ChainOfThought = []ChainOfThoughtStep{{
		Step:        1,
		Thought:     decision.Reasoning,
		Action:      "analyze query",
		Observation: fmt.Sprintf("retrieve=%t strategy=%s confidence=%.2f", decision.ShouldRetrieve, decision.Strategy, decision.Confidence),
		Timestamp:   started,
	}}

	a.logger.Debug("query analyzed",
		"retrieve", decision.ShouldRetrieve,
		"strategy", decision.Strategy,
		"confidence", decision.Confidence,
	)
	return decision, nil
}

// ExpandQuery asks the model for semantically similar variants of the query
// and returns the original query followed by the variants. On any failure,
// service or parse, it returns just the original query; expansion never
// fails a caller.
func (a *Analyzer) ExpandQuery(ctx context.Context, query string) []string {
	resp, err := a.llm.Complete(ctx, llm.Request{
		System:   expandSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: query}},
	})
	if err != nil {
		a.logger.Debug("query expansion skipped, service error", "error", err)
		return []string{query}
	}

	var variants []string
	if err := llm.ParseJSON(resp.Text, &variants); err != nil {
		a.logger.Debug("query expansion skipped, unparseable output", "error", err)
		return []string{query}
	}

	out := []string{query}
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(query)): true}
	for _, v := range variants {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

func (a *Analyzer) fallback(query, reason string, ts time.Time) *Decision {
	return &Decision{
		ShouldRetrieve: true,
		Strategy:       retrieval.StrategyHybrid,
		Reasoning:      reason,
		Confidence:     0.5,
		ChainOfThought: []ChainOfThoughtStep{{
			Step:        1,
			Thought:     reason,
			Action:      "analyze query",
			Observation: "falling back to broad hybrid retrieval",
			Timestamp:   ts,
		}},
	}
}

func buildAnalysisInput(query string, history []llm.Message) string {
	if len(history) == 0 {
		return "Query: " + query
	}

	start := len(history) - historyWindow
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, m := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("\nQuery: ")
	b.WriteString(query)
	return b.String()
}
