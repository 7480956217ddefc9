package orchestrator

import (
	"github.com/ragent-ai/ragent/internal/analyzer"
	"github.com/ragent-ai/ragent/internal/llm"
	"github.com/ragent-ai/ragent/internal/reflector"
	"github.com/ragent-ai/ragent/internal/retrieval"
)

// Performance breaks down where one call spent its time.
type Performance struct {
	TotalMS      int64 `json:"totalTimeMs"`
	RetrievalMS  int64 `json:"retrievalTimeMs"`
	GenerationMS int64 `json:"generationTimeMs"`
	EvaluationMS int64 `json:"evaluationTimeMs"`
}

// ResultContext describes how the answer was produced.
type ResultContext struct {
	RetrievedDocs  int                           `json:"retrievedDocs"`
	Iterations     int                           `json:"iterations"`
	Decision       *analyzer.Decision            `json:"decision"`
	ChainOfThought []analyzer.ChainOfThoughtStep `json:"chainOfThought,omitempty"`
	Performance    Performance                   `json:"performance"`

	// Confidence is the decision confidence multiplied by the validation
	// confidence (1 when validation did not run). Always in [0,1].
	Confidence float64 `json:"confidence"`
}

// Result is the structured answer returned to the conversation layer.
type Result struct {
	Text       string                        `json:"text"`
	Usage      *llm.Usage                    `json:"usage,omitempty"`
	Sources    []retrieval.Result            `json:"sources"`
	Context    ResultContext                 `json:"context"`
	Validation *reflector.ResponseValidation `json:"validation,omitempty"`
	Trace      *Trace                        `json:"trace,omitempty"`
}
