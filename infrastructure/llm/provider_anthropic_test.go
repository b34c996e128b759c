package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-selfrank/internal/domain"
)

func TestAnthropicProvider_RequiresAPIKey(t *testing.T) {
	_, err := newAnthropicProvider(ClientConfig{Model: AnthropicDefaultModel})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)
}

func TestAnthropicProvider_DefaultsModel(t *testing.T) {
	core, err := newAnthropicProvider(ClientConfig{APIKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, AnthropicDefaultModel, core.GetModel())
}

func TestAnthropicProvider_RejectsLogprobRequests(t *testing.T) {
	// Logprob requests must fail before any network call, since the
	// Messages API cannot satisfy them.
	core, err := newAnthropicProvider(ClientConfig{APIKey: "sk-ant-test"})
	require.NoError(t, err)

	_, err = core.DoRequest(context.Background(), "evaluate this", map[string]any{"logprobs": true})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLogprobsUnavailable)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ErrorTypeCapability, provErr.Type)
	assert.False(t, provErr.IsRetryable(), "capability gaps are permanent")
}
