// Package ports defines the interfaces that connect the ranking engine to
// external infrastructure. Implementations live under infrastructure/ and are
// injected at construction time, keeping the domain and application layers
// free of provider-specific code.
package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-selfrank/internal/domain"
)

// Completion is the full result of one completion request, including the
// per-token logprob stream when it was requested and the provider supports it.
type Completion struct {
	// Content is the generated text of the first (and only) choice.
	Content string

	// TokensIn is the prompt token count reported by the provider, or an
	// estimate when the provider does not report usage.
	TokensIn int

	// TokensOut is the completion token count reported by the provider.
	TokensOut int

	// TokenLogprobs is the ordered token/logprob stream for the completion.
	// It is nil unless the request asked for logprobs.
	TokenLogprobs []domain.TokenLogprob
}

// CompletionTransport defines the interface for sending completion requests
// to an LLM provider.
// Implementations handle provider-specific details like authentication,
// request formatting, and response parsing, and are expected to layer
// cross-cutting concerns (retry, rate limiting, timeouts) via middleware.
type CompletionTransport interface {
	// Complete sends a completion request and returns the parsed result.
	//
	// The options map allows flexibility for different providers without
	// changing the interface. Common options include:
	//   - "temperature": float64 (0.0-1.0)
	//   - "max_tokens": int
	//   - "top_p": float64
	//   - "system": string (system prompt)
	//   - "logprobs": bool (request per-token logprobs)
	//   - "top_logprobs": int (alternatives per position, provider permitting)
	//
	// When "logprobs" is true and the provider cannot supply them, the
	// implementation returns domain.ErrLogprobsUnavailable rather than a
	// logprob-less completion.
	Complete(ctx context.Context, prompt string, options map[string]any) (*Completion, error)

	// EstimateTokens calculates the approximate token count for a given text.
	// This is useful for cost estimation and staying within model limits.
	// The estimation method may vary by provider.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this transport.
	// This is useful for logging and debugging purposes.
	GetModel() string
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like completions, errors, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like in-flight requests.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like aggregate scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
