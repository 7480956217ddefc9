// Package orchestrator runs the agentic answering pipeline: analyze the
// query, retrieve and self-critique supporting passages, generate a cited
// answer, and validate it, producing a fully traced result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ragent-ai/ragent/internal/analyzer"
	"github.com/ragent-ai/ragent/internal/llm"
	"github.com/ragent-ai/ragent/internal/memory"
	"github.com/ragent-ai/ragent/internal/observability"
	"github.com/ragent-ai/ragent/internal/reflector"
	"github.com/ragent-ai/ragent/internal/retrieval"
)

const (
	// DefaultMaxIterations bounds retrieval rounds per call.
	DefaultMaxIterations = 3

	// DefaultMinConfidence is the relevance quality below which one extra
	// retrieval round is attempted.
	DefaultMinConfidence = 0.7

	// extraRoundLimit and extraRoundMinScore tune the single follow-up
	// retrieval round: fewer, higher-scoring documents than the first pass.
	extraRoundLimit    = 3
	extraRoundMinScore = 0.6

	// memoryWindow is how many remembered exchanges seed the history when
	// the caller passes none.
	memoryWindow = 5
)

// QueryAnalyzer is the slice of the analyzer the orchestrator consumes.
type QueryAnalyzer interface {
	AnalyzeQuery(ctx context.Context, query string, history []llm.Message) (*analyzer.Decision, error)
	ExpandQuery(ctx context.Context, query string) []string
}

// Retriever is the slice of the retriever the orchestrator consumes.
type Retriever interface {
	Retrieve(ctx context.Context, queries []string, strategy retrieval.Strategy, opts retrieval.Options) ([]retrieval.Result, error)
}

// Reflector is the slice of the reflector the orchestrator consumes.
type Reflector interface {
	EvaluateRelevance(ctx context.Context, query string, docs []retrieval.Result) (*reflector.RelevanceEvaluation, error)
	ValidateResponse(ctx context.Context, query, response string, contextDocs []retrieval.Result) (*reflector.ResponseValidation, error)
}

// Config contains all parameters for the Orchestrator.
type Config struct {
	Analyzer  QueryAnalyzer
	Retriever Retriever
	Reflector Reflector
	LLM       llm.Client

	// Memory enables per-conversation context when Execute is called with
	// WithConversation. Optional.
	Memory *memory.Registry

	Logger *slog.Logger

	// MaxIterations bounds retrieval rounds per call (default 3).
	MaxIterations int

	// MinConfidence is the relevance quality threshold that triggers the
	// extra retrieval round (default 0.7).
	MinConfidence float64

	// Retrieval is the first-pass retrieval options (zero value uses
	// retrieval.DefaultOptions).
	Retrieval retrieval.Options

	// DisableReflection skips relevance evaluation and answer validation.
	DisableReflection bool

	// DisableChainOfThought stops chain-of-thought accumulation on the
	// trace and result.
	DisableChainOfThought bool

	// Clock overrides time.Now (tests).
	Clock func() time.Time
}

// Orchestrator is the top-level pipeline. It is stateless between calls and
// safe for concurrent use; each Execute owns its trace exclusively.
type Orchestrator struct {
	analyzer  QueryAnalyzer
	retriever Retriever
	reflector Reflector
	llm       llm.Client
	memory    *memory.Registry
	logger    *slog.Logger

	maxIterations  int
	minConfidence  float64
	retrievalOpts  retrieval.Options
	withReflection bool
	withThoughts   bool
	now            func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if cfg.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.LLM == nil {
		return nil, errors.New("completion client is required")
	}
	if cfg.Reflector == nil && !cfg.DisableReflection {
		return nil, errors.New("reflector is required unless reflection is disabled")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	minConfidence := cfg.MinConfidence
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	retrievalOpts := cfg.Retrieval
	if retrievalOpts.Limit == 0 && retrievalOpts.MinScore == 0 &&
		retrievalOpts.OrgID == "" && len(retrievalOpts.KnowledgeBaseIDs) == 0 &&
		!retrievalOpts.UseReranking {
		retrievalOpts = retrieval.DefaultOptions()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		analyzer:       cfg.Analyzer,
		retriever:      cfg.Retriever,
		reflector:      cfg.Reflector,
		llm:            cfg.LLM,
		memory:         cfg.Memory,
		logger:         logger,
		maxIterations:  maxIterations,
		minConfidence:  minConfidence,
		retrievalOpts:  retrievalOpts,
		withReflection: !cfg.DisableReflection,
		withThoughts:   !cfg.DisableChainOfThought,
		now:            now,
	}, nil
}

// ExecuteOption tunes a single Execute call.
type ExecuteOption func(*executeConfig)

type executeConfig struct {
	conversationID string
}

// WithConversation attaches the call to a conversation's memory context:
// remembered exchanges seed the history when none is passed, and the
// answer is recorded back on success.
func WithConversation(id string) ExecuteOption {
	return func(ec *executeConfig) { ec.conversationID = id }
}

// Execute runs the full pipeline for one query.
//
// Parse failures inside the analyzer and reflector degrade locally and
// never surface here. Service failures (completion, embedding, store)
// terminate the call with an *ExecutionError carrying the finalized trace.
func (o *Orchestrator) Execute(ctx context.Context, query string, history []llm.Message, opts ...ExecuteOption) (*Result, error) {
	var ec executeConfig
	for _, opt := range opts {
		opt(&ec)
	}

	start := o.now()
	trace := newTrace(query, start)
	o.logger.Debug("execution started", "trace_id", trace.TraceID)

	ctx, rootSpan := observability.StartSpan(ctx, "orchestrator.execute",
		attribute.String("execution.id", trace.TraceID))
	defer rootSpan.End()

	var mem *memory.Context
	if ec.conversationID != "" && o.memory != nil {
		mem = o.memory.GetOrCreate(ec.conversationID)
		if len(history) == 0 {
			history = mem.Messages(memoryWindow)
		}
	}

	var perf Performance

	// Query analysis always runs.
	step := o.beginStep(ctx, StepQueryAnalysis, query)
	decision, err := o.analyzer.AnalyzeQuery(ctx, query, history)
	if err != nil {
		return nil, o.fail(trace, step, err)
	}
	o.completeStep(trace, step, fmt.Sprintf("retrieve=%t strategy=%s confidence=%.2f",
		decision.ShouldRetrieve, decision.Strategy, decision.Confidence))
	trace.Decisions = append(trace.Decisions, *decision)
	o.adoptThoughts(trace, decision.ChainOfThought)

	var (
		docs       []retrieval.Result
		iterations int
	)

	if decision.ShouldRetrieve {
		queries := decision.QueryExpansions
		if len(queries) == 0 {
			queries = []string{query}
		}

		step = o.beginStep(ctx, StepRetrieval, strings.Join(queries, " | "))
		t0 := o.now()
		docs, err = o.retriever.Retrieve(ctx, queries, decision.Strategy, o.retrievalOpts)
		perf.RetrievalMS += o.now().Sub(t0).Milliseconds()
		if err != nil {
			return nil, o.fail(trace, step, err)
		}
		iterations = 1
		o.completeStep(trace, step, fmt.Sprintf("%d documents", len(docs)))
		o.think(trace, "searching the knowledge base", "retrieve",
			fmt.Sprintf("strategy=%s documents=%d", decision.Strategy, len(docs)))
	}

	if o.withReflection && iterations > 0 && len(docs) > 0 {
		step = o.beginStep(ctx, StepReflection, fmt.Sprintf("%d documents", len(docs)))
		t0 := o.now()
		eval, evalErr := o.reflector.EvaluateRelevance(ctx, query, docs)
		perf.EvaluationMS += o.now().Sub(t0).Milliseconds()
		if evalErr != nil {
			return nil, o.fail(trace, step, evalErr)
		}
		docs = filterRelevant(docs, eval.IsRelevant)
		o.completeStep(trace, step, fmt.Sprintf("quality=%.2f kept=%d retrieve_more=%t",
			eval.OverallQuality, len(docs), eval.ShouldRetrieveMore))
		o.think(trace, eval.Feedback, "evaluate relevance",
			fmt.Sprintf("quality=%.2f kept=%d", eval.OverallQuality, len(docs)))

		// At most one extra round per call, regardless of the new batch's
		// quality. Bounded iteration, not convergence.
		if eval.ShouldRetrieveMore && eval.OverallQuality < o.minConfidence && iterations < o.maxIterations {
			expanded := o.analyzer.ExpandQuery(ctx, query)
			extraOpts := retrieval.Options{
				Limit:            extraRoundLimit,
				MinScore:         extraRoundMinScore,
				OrgID:            o.retrievalOpts.OrgID,
				KnowledgeBaseIDs: o.retrievalOpts.KnowledgeBaseIDs,
				UseReranking:     o.retrievalOpts.UseReranking,
			}

			step = o.beginStep(ctx, StepRetrieval, strings.Join(expanded, " | "))
			t0 = o.now()
			extra, extraErr := o.retriever.Retrieve(ctx, expanded, retrieval.StrategyAdaptive, extraOpts)
			perf.RetrievalMS += o.now().Sub(t0).Milliseconds()
			if extraErr != nil {
				return nil, o.fail(trace, step, extraErr)
			}
			docs = appendDocs(docs, extra)
			iterations++
			o.completeStep(trace, step, fmt.Sprintf("%d additional documents", len(extra)))
			o.think(trace, "first retrieval quality was low", "retrieve more",
				fmt.Sprintf("added=%d total=%d", len(extra), len(docs)))
		}
	}

	step = o.beginStep(ctx, StepGeneration, query)
	t0 := o.now()
	resp, genErr := o.llm.Complete(ctx, llm.Request{
		System:   buildGenerationPrompt(docs),
		Messages: append(append([]llm.Message{}, history...), llm.Message{Role: llm.RoleUser, Content: query}),
	})
	perf.GenerationMS += o.now().Sub(t0).Milliseconds()
	if genErr != nil {
		return nil, o.fail(trace, step, genErr)
	}
	o.completeStep(trace, step, fmt.Sprintf("%d characters", len(resp.Text)))

	var validation *reflector.ResponseValidation
	if o.withReflection && len(docs) > 0 {
		step = o.beginStep(ctx, StepValidation, fmt.Sprintf("%d context documents", len(docs)))
		t0 = o.now()
		validation, err = o.reflector.ValidateResponse(ctx, query, resp.Text, docs)
		perf.EvaluationMS += o.now().Sub(t0).Milliseconds()
		if err != nil {
			return nil, o.fail(trace, step, err)
		}
		o.completeStep(trace, step, fmt.Sprintf("accurate=%t confidence=%.2f",
			validation.IsFactuallyAccurate, validation.Confidence))
	}

	confidence := decision.Confidence
	if validation != nil {
		confidence *= validation.Confidence
	}

	trace.EndTime = o.now()
	perf.TotalMS = trace.EndTime.Sub(start).Milliseconds()

	if mem != nil {
		mem.AddMemory(query, resp.Text, confidence)
	}

	o.logger.Info("execution completed",
		"trace_id", trace.TraceID,
		"iterations", iterations,
		"documents", len(docs),
		"confidence", confidence,
	)

	return &Result{
		Text:    resp.Text,
		Usage:   resp.Usage,
		Sources: docs,
		Context: ResultContext{
			RetrievedDocs:  len(docs),
			Iterations:     iterations,
			Decision:       decision,
			ChainOfThought: trace.ChainOfThought,
			Performance:    perf,
			Confidence:     confidence,
		},
		Validation: validation,
		Trace:      trace,
	}, nil
}

func (o *Orchestrator) beginStep(ctx context.Context, t StepType, input string) ReasoningStep {
	_, span := observability.StartSpan(ctx, "orchestrator."+string(t))
	return ReasoningStep{Type: t, StartTime: o.now(), Input: input, span: span}
}

func (o *Orchestrator) completeStep(trace *Trace, step ReasoningStep, output string) {
	step.Status = StatusCompleted
	step.EndTime = o.now()
	step.Output = output
	step.span.End()
	trace.Steps = append(trace.Steps, step)
}

// fail finalizes the trace with the terminal error and wraps it for the
// caller. Only service-level failures reach here; parse failures are
// absorbed by the components themselves.
func (o *Orchestrator) fail(trace *Trace, step ReasoningStep, err error) error {
	step.Status = StatusFailed
	step.EndTime = o.now()
	step.Output = err.Error()
	step.span.RecordError(err)
	step.span.SetStatus(codes.Error, err.Error())
	step.span.End()
	trace.Steps = append(trace.Steps, step)
	trace.EndTime = o.now()
	trace.Err = &TraceError{Message: err.Error(), Code: errorCode}

	o.logger.Error("execution failed",
		"trace_id", trace.TraceID,
		"phase", step.Type,
		"error", err,
	)
	return &ExecutionError{Trace: trace, Err: err}
}

// adoptThoughts renumbers component-produced chain-of-thought steps onto
// the trace, keeping step numbers monotonic.
func (o *Orchestrator) adoptThoughts(trace *Trace, steps []analyzer.ChainOfThoughtStep) {
	if !o.withThoughts {
		return
	}
	for _, s := range steps {
		s.Step = len(trace.ChainOfThought) + 1
		trace.ChainOfThought = append(trace.ChainOfThought, s)
	}
}

func (o *Orchestrator) think(trace *Trace, thought, action, observation string) {
	if !o.withThoughts {
		return
	}
	trace.ChainOfThought = append(trace.ChainOfThought, analyzer.ChainOfThoughtStep{
		Step:        len(trace.ChainOfThought) + 1,
		Thought:     thought,
		Action:      action,
		Observation: observation,
		Timestamp:   o.now(),
	})
}

// filterRelevant keeps docs flagged relevant. The flag slice is
// index-aligned with docs; a short slice keeps the unflagged tail out.
func filterRelevant(docs []retrieval.Result, flags []bool) []retrieval.Result {
	out := docs[:0:0]
	for i, d := range docs {
		if i < len(flags) && flags[i] {
			out = append(out, d)
		}
	}
	return out
}

// appendDocs appends extra results, dropping any chunk already present so
// the batch keeps its uniqueness guarantee.
func appendDocs(docs, extra []retrieval.Result) []retrieval.Result {
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		seen[docKey(d)] = true
	}
	for _, d := range extra {
		key := docKey(d)
		if seen[key] {
			continue
		}
		seen[key] = true
		docs = append(docs, d)
	}
	return docs
}

func docKey(d retrieval.Result) string {
	if d.Metadata.ChunkID != "" {
		return d.Metadata.ChunkID
	}
	return d.Content
}

const generationBasePrompt = `You are a knowledgeable assistant. Answer the user's question accurately and concisely.`

const generationContextPrompt = `Use the numbered context documents below when they are relevant, and cite them with their bracketed numbers, like [1]. If the context does not cover the question, say so rather than guessing.`

// buildGenerationPrompt embeds surviving documents as numbered citations.
func buildGenerationPrompt(docs []retrieval.Result) string {
	if len(docs) == 0 {
		return generationBasePrompt
	}

	var b strings.Builder
	b.WriteString(generationBasePrompt)
	b.WriteString(" ")
	b.WriteString(generationContextPrompt)
	b.WriteString("\n\nContext documents:\n")
	for i, d := range docs {
		title := d.Metadata.Title
		if title == "" {
			title = "untitled"
		}
		fmt.Fprintf(&b, "[%d] %s (relevance %.0f%%)\n%s\n\n", i+1, title, d.Score*100, d.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
