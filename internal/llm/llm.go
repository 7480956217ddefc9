// Package llm wraps the language-model completion service behind a small
// client interface.
//
// Components that need completions (query analysis, reranking, relevance
// evaluation, answer generation) depend on Client rather than on a concrete
// provider. The production implementation is backed by Genkit; tests inject
// deterministic fakes.
//
// Failure convention: transport and provider failures are service errors and
// wrap ErrService; they always propagate to the caller. Parsing of model
// output is the caller's concern; see ParseJSON.
package llm

import (
	"context"
	"errors"
)

// Message roles understood by the completion service.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Sentinel errors for completion operations.
var (
	// ErrService indicates the completion service is unreachable or
	// returned a non-success result. Never recovered locally.
	ErrService = errors.New("completion service error")

	// ErrEmptyResponse indicates the model produced no text.
	ErrEmptyResponse = errors.New("empty model response")
)

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one completion call.
type Request struct {
	// System is an optional system prompt.
	System string

	// Messages is the ordered conversation, ending with the turn the
	// model should respond to.
	Messages []Message

	// Temperature in [0,2]. Zero means the provider default.
	Temperature float64

	// MaxTokens limits the response length. Zero means the provider default.
	MaxTokens int
}

// Usage reports token accounting for a completion, when the provider
// supplies it.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Response is the result of a completion call.
type Response struct {
	Text  string
	Usage *Usage // nil when the provider does not report usage
}

// Client is the completion service contract consumed by the core.
//
// Implementations must honor context cancellation and must wrap transport
// failures with ErrService so callers can distinguish them from the parse
// failures they recover locally.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
