package config

import (
	"fmt"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range per the Gemini API: 0.0 deterministic to 2.0.
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.EmbedderDimension < 1 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: got %q, expected one of %v", ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	if c.RetrievalLimit < 1 || c.RetrievalLimit > 50 {
		return fmt.Errorf("%w: retrieval_limit must be between 1 and 50, got %d", ErrInvalidRetrieval, c.RetrievalLimit)
	}

	if c.RetrievalMinScore < 0 || c.RetrievalMinScore > 1 {
		return fmt.Errorf("%w: retrieval_min_score must be between 0 and 1, got %.2f", ErrInvalidRetrieval, c.RetrievalMinScore)
	}

	if c.MaxIterations < 1 || c.MaxIterations > 10 {
		return fmt.Errorf("%w: max_iterations must be between 1 and 10, got %d", ErrInvalidOrchestration, c.MaxIterations)
	}

	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence must be in (0, 1], got %.2f", ErrInvalidOrchestration, c.MinConfidence)
	}

	if c.MaxMemoryEntries < 1 {
		return fmt.Errorf("%w: max_memory_entries must be positive, got %d", ErrInvalidOrchestration, c.MaxMemoryEntries)
	}

	return nil
}
