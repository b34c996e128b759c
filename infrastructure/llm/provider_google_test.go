package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-selfrank/internal/domain"
)

func TestGoogleProvider_RequiresAPIKey(t *testing.T) {
	_, err := newGoogleProvider(ClientConfig{Model: GoogleDefaultModel})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)
}

func TestGoogleProvider_RejectsLogprobRequests(t *testing.T) {
	core, err := newGoogleProvider(ClientConfig{APIKey: "test-key"})
	require.NoError(t, err)

	_, err = core.DoRequest(context.Background(), "evaluate this", map[string]any{"logprobs": true})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLogprobsUnavailable)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ErrorTypeCapability, provErr.Type)
}
