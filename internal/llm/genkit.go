package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// GenkitConfig contains all required parameters for the Genkit-backed client.
type GenkitConfig struct {
	Genkit    *genkit.Genkit
	ModelName string // Provider-qualified model name (e.g., "googleai/gemini-2.5-flash")
	Logger    *slog.Logger

	// RetryConfig controls backoff for transient provider errors
	// (zero-value uses defaults).
	RetryConfig RetryConfig

	// RateLimiter optionally throttles outbound calls (nil = disabled).
	RateLimiter *rate.Limiter

	// DefaultTemperature applies when a request leaves Temperature at zero.
	DefaultTemperature float64

	// DefaultMaxTokens applies when a request leaves MaxTokens at zero.
	DefaultMaxTokens int
}

func (cfg GenkitConfig) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// GenkitClient implements Client on top of genkit.Generate.
//
// All configuration is captured immutably at construction time, so the
// client is safe for concurrent use.
type GenkitClient struct {
	g           *genkit.Genkit
	modelName   string
	retryConfig RetryConfig
	rateLimiter *rate.Limiter
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// NewGenkitClient creates a completion client backed by a Genkit model.
func NewGenkitClient(cfg GenkitConfig) (*GenkitClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("llm config: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryCfg := cfg.RetryConfig
	if retryCfg.MaxRetries == 0 && retryCfg.InitialInterval == 0 {
		retryCfg = DefaultRetryConfig()
	}
	return &GenkitClient{
		g:           cfg.Genkit,
		modelName:   cfg.ModelName,
		retryConfig: retryCfg,
		rateLimiter: cfg.RateLimiter,
		temperature: cfg.DefaultTemperature,
		maxTokens:   cfg.DefaultMaxTokens,
		logger:      logger,
	}, nil
}

// Complete issues one completion request.
//
// Transient provider errors (rate limits, 5xx, network resets) are retried
// with exponential backoff; anything that still fails is wrapped with
// ErrService and returned.
func (c *GenkitClient) Complete(ctx context.Context, req Request) (*Response, error) {
	opts := c.buildOptions(req)

	resp, err := c.generateWithRetry(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}

	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}

	out := &Response{Text: text}
	if resp.Usage != nil {
		out.Usage = &Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

func (c *GenkitClient) buildOptions(req Request) []ai.GenerateOption {
	messages := make([]*ai.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, ai.NewModelTextMessage(m.Content))
		case RoleSystem:
			messages = append(messages, ai.NewSystemTextMessage(m.Content))
		default:
			messages = append(messages, ai.NewUserTextMessage(m.Content))
		}
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(c.modelName),
		ai.WithMessages(messages...),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	genCfg := make(map[string]any)
	if temperature > 0 {
		genCfg["temperature"] = temperature
	}
	if maxTokens > 0 {
		genCfg["maxOutputTokens"] = maxTokens
	}
	if len(genCfg) > 0 {
		opts = append(opts, ai.WithConfig(genCfg))
	}
	return opts
}

// generateWithRetry executes genkit.Generate with exponential backoff.
// Each attempt passes through the rate limiter first, so retries cannot
// defeat the throttle.
func (c *GenkitClient) generateWithRetry(
	ctx context.Context,
	opts []ai.GenerateOption,
) (*ai.ModelResponse, error) {
	var lastErr error
	delay := c.retryConfig.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, c.g, opts...)
		if err == nil {
			c.logger.Debug("completion succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}

		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == c.retryConfig.MaxRetries {
			break
		}

		c.logger.Debug("retrying after transient error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retryConfig.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		c.retryConfig.MaxRetries, time.Since(start), lastErr)
}
