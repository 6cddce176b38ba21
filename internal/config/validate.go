package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Embedding dimensionality is baked into the schema's vector columns.
	if c.OpenAI.Dimensions < 1 {
		errs = append(errs, fmt.Sprintf("OPENAI_DIMENSIONS must be positive, got %d", c.OpenAI.Dimensions))
	} else if c.OpenAI.Dimensions != 1536 {
		slog.Warn("OPENAI_DIMENSIONS differs from the shipped vector(1536) schema — inserts will fail without a matching migration",
			"dimensions", c.OpenAI.Dimensions)
	}

	if c.Memory.ContextWindowTokens < 100 {
		errs = append(errs, fmt.Sprintf("MEMORY_CONTEXT_WINDOW must be at least 100 tokens, got %d", c.Memory.ContextWindowTokens))
	}
	if c.Memory.EntityThreshold < 0 || c.Memory.EntityThreshold > 1 {
		errs = append(errs, fmt.Sprintf("MEMORY_ENTITY_THRESHOLD must be in [0,1], got %g", c.Memory.EntityThreshold))
	}

	// API key: warn only, local OpenAI-compatible servers may not need one.
	if c.OpenAI.APIKey == "" {
		slog.Warn("OPENAI_API_KEY is empty — model collaborators will rely on the environment or an unauthenticated endpoint")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
