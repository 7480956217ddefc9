package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/ragent-ai/ragent/internal/llm"
)

// MockLLM is a deterministic llm.Client for tests. It matches the system
// prompt and last user message against registered patterns and returns the
// corresponding response text.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu        sync.Mutex
	responses []mockRule
	fallback  string
	err       error
	calls     []MockCall
}

type mockRule struct {
	pattern  string // substring match, case-insensitive
	response string
	err      error
}

// MockCall records a single call to the mock client.
type MockCall struct {
	System      string
	UserMessage string // last user message text
	Response    string
}

// NewMockLLM creates a mock client with the given fallback response,
// returned when no pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair. Patterns are checked in
// registration order against the system prompt and last user message; the
// first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// AddError registers a pattern that fails with err, simulating a service
// failure for matching requests.
func (m *MockLLM) AddError(pattern string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern: strings.ToLower(pattern),
		err:     err,
	})
}

// FailWith makes every subsequent call fail with err (nil restores normal
// operation).
func (m *MockLLM) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// CallCount reports how many completions were requested.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls (keeps registered responses).
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Complete implements llm.Client.
func (m *MockLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			userText = req.Messages[i].Content
			break
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	lower := strings.ToLower(req.System + "\n" + userText)
	response := m.fallback
	for _, rule := range m.responses {
		if strings.Contains(lower, rule.pattern) {
			if rule.err != nil {
				return nil, rule.err
			}
			response = rule.response
			break
		}
	}

	m.calls = append(m.calls, MockCall{
		System:      req.System,
		UserMessage: userText,
		Response:    response,
	})

	return &llm.Response{Text: response}, nil
}
