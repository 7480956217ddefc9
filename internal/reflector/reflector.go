// Package reflector critiques the pipeline's own work: it scores how
// relevant retrieved passages are to a query and validates generated answers
// against the retrieved context.
package reflector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragent-ai/ragent/internal/llm"
	"github.com/ragent-ai/ragent/internal/retrieval"
)

// docSnippetLen bounds per-document content in evaluation prompts.
const docSnippetLen = 300

// fallbackQuality is the overall quality reported when a relevance response
// cannot be parsed. Optimistic on purpose: a transient parse failure must
// not trigger extra retrieval rounds.
const fallbackQuality = 0.7

// RelevanceEvaluation scores a batch of retrieved documents against a query.
// IsRelevant is index-aligned with the evaluated documents.
type RelevanceEvaluation struct {
	IsRelevant         []bool  `json:"isRelevant"`
	OverallQuality     float64 `json:"overallQuality"`
	ShouldRetrieveMore bool    `json:"shouldRetrieveMore"`
	Feedback           string  `json:"feedback"`
}

// ResponseValidation is the verdict on a generated answer.
type ResponseValidation struct {
	IsFactuallyAccurate bool     `json:"isFactuallyAccurate"`
	Confidence          float64  `json:"confidence"`
	Issues              []string `json:"issues,omitempty"`
}

const relevanceSystemPrompt = `You evaluate search results. Given a query and numbered documents, judge each document's relevance to the query.

Respond with ONLY a JSON object:
{"isRelevant": [bool per document, in order], "overallQuality": number between 0 and 1, "shouldRetrieveMore": bool, "feedback": string}`

const validationSystemPrompt = `You fact-check answers. Given a query, context documents, and a generated answer, check whether the answer is factually supported by the context, free of hallucination, and actually uses the context.

Respond with ONLY a JSON object:
{"isFactuallyAccurate": bool, "confidence": number between 0 and 1, "issues": [list of problems found]}`

// Config contains all required parameters for the Reflector.
type Config struct {
	LLM    llm.Client
	Logger *slog.Logger
}

// Reflector is stateless and safe for concurrent use.
type Reflector struct {
	llm    llm.Client
	logger *slog.Logger
}

// New creates a Reflector.
func New(cfg Config) (*Reflector, error) {
	if cfg.LLM == nil {
		return nil, errors.New("completion client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reflector{llm: cfg.LLM, logger: logger}, nil
}

// EvaluateRelevance scores each document's relevance to the query.
//
// An empty document list short-circuits to quality 0 with
// shouldRetrieveMore=true and no model call. Parse failures degrade to an
// optimistic evaluation (every document relevant, quality 0.7, no further
// retrieval). Service failures propagate.
func (r *Reflector) EvaluateRelevance(ctx context.Context, query string, docs []retrieval.Result) (*RelevanceEvaluation, error) {
	if len(docs) == 0 {
		return &RelevanceEvaluation{
			IsRelevant:         []bool{},
			OverallQuality:     0,
			ShouldRetrieveMore: true,
			Feedback:           "No documents retrieved",
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nDocuments:\n", query)
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, snippet(d.Content))
	}

	resp, err := r.llm.Complete(ctx, llm.Request{
		System:   relevanceSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate relevance: %w", err)
	}

	var eval RelevanceEvaluation
	if parseErr := llm.ParseJSON(resp.Text, &eval); parseErr != nil {
		r.logger.Warn("relevance evaluation unparseable, assuming all relevant", "error", parseErr)
		return optimisticRelevance(len(docs), parseErr), nil
	}

	eval.OverallQuality = llm.Clamp01(eval.OverallQuality)
	eval.IsRelevant = alignFlags(eval.IsRelevant, len(docs))

	r.logger.Debug("relevance evaluated",
		"documents", len(docs),
		"quality", eval.OverallQuality,
		"retrieve_more", eval.ShouldRetrieveMore,
	)
	return &eval, nil
}

// ValidateResponse checks a generated answer against the context documents.
//
// Parse failures degrade to an optimistic validation (accurate, confidence
// 0.5, no issues). Service failures propagate.
func (r *Reflector) ValidateResponse(ctx context.Context, query, response string, contextDocs []retrieval.Result) (*ResponseValidation, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nContext documents:\n", query)
	for i, d := range contextDocs {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, snippet(d.Content))
	}
	fmt.Fprintf(&b, "\nGenerated answer:\n%s", response)

	resp, err := r.llm.Complete(ctx, llm.Request{
		System:   validationSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	})
	if err != nil {
		return nil, fmt.Errorf("validate response: %w", err)
	}

	var validation ResponseValidation
	if parseErr := llm.ParseJSON(resp.Text, &validation); parseErr != nil {
		r.logger.Warn("response validation unparseable, assuming accurate", "error", parseErr)
		return &ResponseValidation{IsFactuallyAccurate: true, Confidence: 0.5}, nil
	}

	validation.Confidence = llm.Clamp01(validation.Confidence)
	return &validation, nil
}

func optimisticRelevance(n int, parseErr error) *RelevanceEvaluation {
	flags := make([]bool, n)
	for i := range flags {
		flags[i] = true
	}
	return &RelevanceEvaluation{
		IsRelevant:         flags,
		OverallQuality:     fallbackQuality,
		ShouldRetrieveMore: false,
		Feedback:           fmt.Sprintf("evaluation response unparseable: %v", parseErr),
	}
}

// alignFlags forces the relevance flag list to the document count. Missing
// entries default to relevant, surplus entries are dropped.
func alignFlags(flags []bool, n int) []bool {
	if len(flags) > n {
		return flags[:n]
	}
	for len(flags) < n {
		flags = append(flags, true)
	}
	return flags
}

func snippet(s string) string {
	if len(s) > docSnippetLen {
		return s[:docSnippetLen]
	}
	return s
}
