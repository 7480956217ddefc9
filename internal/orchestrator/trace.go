package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ragent-ai/ragent/internal/analyzer"
)

// StepType names a pipeline phase in the execution trace.
type StepType string

// Pipeline phases.
const (
	StepQueryAnalysis StepType = "query_analysis"
	StepRetrieval     StepType = "retrieval"
	StepReflection    StepType = "self_reflection"
	StepGeneration    StepType = "generation"
	StepValidation    StepType = "validation"
)

// StepStatus is the outcome of one traced phase.
type StepStatus string

// Step outcomes.
const (
	StatusCompleted StepStatus = "completed"
	StatusFailed    StepStatus = "failed"
)

// errorCode is recorded on the trace for any terminal failure.
const errorCode = "EXECUTION_ERROR"

// ReasoningStep records one phase transition: what ran, with what input,
// what came out, and when.
type ReasoningStep struct {
	Type      StepType   `json:"type"`
	Status    StepStatus `json:"status"`
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
	Input     string     `json:"input,omitempty"`
	Output    string     `json:"output,omitempty"`

	span trace.Span
}

// TraceError is the terminal failure recorded on a trace.
type TraceError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Trace is the full execution record of one orchestrator call. It is owned
// exclusively by that call and never shared.
type Trace struct {
	TraceID        string                        `json:"traceId"`
	Query          string                        `json:"query"`
	StartTime      time.Time                     `json:"startTime"`
	EndTime        time.Time                     `json:"endTime,omitempty"`
	Steps          []ReasoningStep               `json:"steps"`
	Decisions      []analyzer.Decision           `json:"decisions"`
	ChainOfThought []analyzer.ChainOfThoughtStep `json:"chainOfThought,omitempty"`
	Err            *TraceError                   `json:"error,omitempty"`
}

func newTrace(query string, now time.Time) *Trace {
	return &Trace{
		TraceID:   uuid.NewString(),
		Query:     query,
		StartTime: now,
	}
}

// ExecutionError is returned when a pipeline phase fails terminally. The
// finalized trace travels with the error so callers can inspect what ran
// before the failure.
type ExecutionError struct {
	Trace *Trace
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s failed: %v", e.Trace.TraceID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
