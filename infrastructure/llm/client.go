// Package llm provides completion transports for the ranking engine with
// built-in support for rate limiting, circuit breaking, retries, metrics,
// and tracing.
//
// The package abstracts multiple LLM providers (OpenAI, Anthropic, Google)
// behind a common interface while adding production-ready cross-cutting
// concerns through a middleware pattern. Providers differ in one capability
// that matters here: only some of them expose per-token logprobs, which the
// ranking engine needs on its evaluation calls. The client surfaces that
// capability gap as typed errors instead of silently returning unusable
// responses.
//
// Basic usage:
//
//	transport, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o",
//	})
//	completion, err := transport.Complete(ctx, "Hello world!", nil)
//
// With middleware:
//
//	transport, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o",
//	    Middleware: []llm.Middleware{
//	        llm.RateLimitMiddleware(20, 40),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	        llm.MetricsMiddleware(metricsCollector),
//	    },
//	})
package llm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ahrav/go-selfrank/internal/domain"
	"github.com/ahrav/go-selfrank/internal/ports"
)

// CoreLLM defines the minimal interface that LLM providers must implement.
// This interface abstracts the core functionality needed to make requests
// to different LLM services, allowing the middleware system to wrap
// any conforming implementation.
type CoreLLM interface {
	// DoRequest sends a prompt to the LLM provider and returns the parsed
	// completion. The opts parameter allows provider-specific configuration
	// such as temperature, max tokens, or logprob settings.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (*ports.Completion, error)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model to use for subsequent requests.
	// This allows dynamic model switching without recreating the client.
	SetModel(model string)
}

// TokenEstimator provides pluggable token estimation strategies.
// Different providers may have different tokenization approaches,
// so this interface allows customization of token counting logic
// for cost estimation and rate limiting purposes.
type TokenEstimator interface {
	// EstimateTokens returns an approximate token count for the given text.
	EstimateTokens(text string) int
}

// ClientConfig holds all configuration options for creating a completion
// transport. This struct centralizes all settings for providers, middleware,
// and operational concerns like timeouts.
type ClientConfig struct {
	// APIKey authenticates requests to the LLM provider.
	APIKey string

	// Model specifies which LLM model to use for requests.
	// Each provider supports different model names.
	Model string

	// BaseURL overrides the default API endpoint for the provider.
	// Leave empty to use the provider's default endpoint.
	BaseURL string

	// Timeout sets the maximum duration for individual requests.
	// Zero value means no timeout.
	Timeout time.Duration

	// TokenEstimator provides custom token counting logic.
	// If nil, a simple character-based estimator is used.
	TokenEstimator TokenEstimator

	// Middleware allows custom middleware insertion.
	// These are applied in the order specified.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM implementation to add cross-cutting
// functionality. This pattern allows composition of features like rate
// limiting, circuit breaking, and metrics collection without modifying
// core provider logic.
type Middleware func(CoreLLM) CoreLLM

// Client implements the ports.CompletionTransport interface.
// It wraps a provider-specific CoreLLM implementation with middleware and
// enforces the logprob contract: a request that asked for logprobs either
// gets a validated token stream or a typed error.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.CompletionTransport = (*Client)(nil)

// NewClient creates a completion transport for the specified provider.
// This function assembles the middleware chain and validates configuration
// before returning a ready-to-use instance.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = &SimpleTokenEstimator{}
	}

	return &Client{core: core, estimator: estimator}, nil
}

// Complete sends a prompt to the provider and returns the completion.
//
// When options carries "logprobs": true, the returned completion is
// guaranteed to have a well-formed token stream: a missing or empty stream
// yields domain.ErrLogprobsUnavailable and entries with empty tokens or
// non-finite logprobs yield domain.ErrMalformedLogprobs. Providers cannot
// hand a logprob-less response to the scanner.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (*ports.Completion, error) {
	completion, err := c.core.DoRequest(ctx, prompt, options)
	if err != nil {
		return nil, err
	}

	if wantLogprobs, _ := options["logprobs"].(bool); wantLogprobs {
		if err := validateLogprobStream(completion.TokenLogprobs); err != nil {
			return nil, err
		}
	}

	return completion, nil
}

// EstimateTokens returns an approximate token count for the given text.
// This uses the configured TokenEstimator to provide cost estimates
// before making actual requests to the LLM provider.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the currently configured model name from the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SetModel updates the model on the underlying provider.
func (c *Client) SetModel(model string) { c.core.SetModel(model) }

// validateLogprobStream checks a token stream for the shape the scanner
// requires.
func validateLogprobStream(stream []domain.TokenLogprob) error {
	if len(stream) == 0 {
		return domain.ErrLogprobsUnavailable
	}

	for i, tl := range stream {
		if tl.Token == "" {
			return fmt.Errorf("logprob entry %d has an empty token: %w", i, domain.ErrMalformedLogprobs)
		}
		if math.IsNaN(tl.Logprob) || math.IsInf(tl.Logprob, 0) {
			return fmt.Errorf("logprob entry %d for token %q is not finite: %w",
				i, tl.Token, domain.ErrMalformedLogprobs)
		}
	}
	return nil
}

// SimpleTokenEstimator provides basic character-based token estimation.
// This implementation uses a simple heuristic of approximately 4 characters
// per token, which works reasonably well for most English text.
type SimpleTokenEstimator struct{}

// EstimateTokens returns an approximate token count using character-based heuristics.
func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory creates a CoreLLM implementation from configuration.
// This function signature allows the provider registry to create
// provider instances without knowing their specific implementation details.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// Provider factory registry for extensibility.
// This allows registration of custom providers at runtime
// while maintaining type safety and initialization validation.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory allows registration of custom LLM provider factories.
// This enables extension of the client with additional providers
// without modifying the core library code.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}
