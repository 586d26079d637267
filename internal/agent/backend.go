package agent

import (
	"context"
	"fmt"
	"time"
)

// Backend is the single call-and-parse boundary to the external reasoning
// model. Implementations return the raw completion text; parsing happens
// in the agent.
type Backend interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// Request is one prompt payload for the backend.
type Request struct {
	System string
	User   string
}

// BackendConfig carries the recognized backend options. The orchestrator
// treats all of these as opaque configuration.
type BackendConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// DefaultBackendConfig keeps the temperature low for diagnostic
// consistency and bounds every call with a timeout.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Model:       "gpt-4o",
		Temperature: 0.1,
		MaxTokens:   1500,
		Timeout:     45 * time.Second,
	}
}

func (c BackendConfig) withDefaults() BackendConfig {
	d := DefaultBackendConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Temperature == 0 {
		c.Temperature = d.Temperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// ParseError reports a malformed or missing backend response. The
// orchestrator treats it as a recoverable per-turn failure.
type ParseError struct {
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed backend response: %s", e.Detail)
}
