package llm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-selfrank/internal/domain"
	"github.com/ahrav/go-selfrank/internal/ports"
)

// registerMockFactory registers a factory returning the given mock under a
// test-scoped provider name and removes it when the test finishes.
func registerMockFactory(t *testing.T, name string, mock *MockCoreLLM) {
	t.Helper()
	RegisterProviderFactory(name, func(ClientConfig) (CoreLLM, error) {
		return mock, nil
	})
	t.Cleanup(func() { delete(providerFactories, name) })
}

func TestNewClient_ValidatesConfiguration(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		config   ClientConfig
	}{
		{name: "missing API key", provider: "openai", config: ClientConfig{Model: "gpt-4o"}},
		{name: "missing model", provider: "openai", config: ClientConfig{APIKey: "sk-test"}},
		{name: "unknown provider", provider: "nonexistent", config: ClientConfig{APIKey: "k", Model: "m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.provider, tt.config)
			assert.Error(t, err)
		})
	}
}

func TestClient_CompletePassesThroughWithoutLogprobs(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Response = "a generated poem"
	registerMockFactory(t, "mock-passthrough", mock)

	client, err := NewClient("mock-passthrough", ClientConfig{APIKey: "k", Model: "m"})
	require.NoError(t, err)

	completion, err := client.Complete(context.Background(), "write a poem", nil)

	require.NoError(t, err)
	assert.Equal(t, "a generated poem", completion.Content)
	assert.Equal(t, 10, completion.TokensIn)
	assert.Equal(t, 20, completion.TokensOut)
}

func TestClient_CompleteEnforcesLogprobContract(t *testing.T) {
	tests := []struct {
		name    string
		stream  []domain.TokenLogprob
		wantErr error
	}{
		{
			name:    "missing stream",
			stream:  nil,
			wantErr: domain.ErrLogprobsUnavailable,
		},
		{
			name:    "empty token",
			stream:  []domain.TokenLogprob{{Token: "", Logprob: -0.5}},
			wantErr: domain.ErrMalformedLogprobs,
		},
		{
			name:    "NaN logprob",
			stream:  []domain.TokenLogprob{{Token: "true", Logprob: math.NaN()}},
			wantErr: domain.ErrMalformedLogprobs,
		},
		{
			name:    "infinite logprob",
			stream:  []domain.TokenLogprob{{Token: "true", Logprob: math.Inf(-1)}},
			wantErr: domain.ErrMalformedLogprobs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCoreLLM()
			mock.TokenLogprobs = tt.stream
			registerMockFactory(t, "mock-logprobs-"+tt.name, mock)

			client, err := NewClient("mock-logprobs-"+tt.name, ClientConfig{APIKey: "k", Model: "m"})
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), "evaluate", map[string]any{"logprobs": true})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_CompleteReturnsValidLogprobStream(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.TokenLogprobs = []domain.TokenLogprob{
		{Token: `{"good"`, Logprob: -0.01},
		{Token: `:`, Logprob: -0.02},
		{Token: ` true`, Logprob: -0.3},
		{Token: `}`, Logprob: -0.01},
	}
	registerMockFactory(t, "mock-valid-stream", mock)

	client, err := NewClient("mock-valid-stream", ClientConfig{APIKey: "k", Model: "m"})
	require.NoError(t, err)

	completion, err := client.Complete(context.Background(), "evaluate", map[string]any{"logprobs": true})

	require.NoError(t, err)
	assert.Len(t, completion.TokenLogprobs, 4)
}

func TestNewClient_AppliesMiddlewareInOrder(t *testing.T) {
	mock := NewMockCoreLLM()
	registerMockFactory(t, "mock-mw-order", mock)

	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &taggedLLM{next: next, name: name, order: &order}
		}
	}

	client, err := NewClient("mock-mw-order", ClientConfig{
		APIKey:     "k",
		Model:      "m",
		Middleware: []Middleware{tag("outer"), tag("inner")},
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hello", nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order,
		"first configured middleware must be outermost")
}

// taggedLLM records the order in which middleware layers execute.
type taggedLLM struct {
	next  CoreLLM
	name  string
	order *[]string
}

func (l *taggedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (*ports.Completion, error) {
	*l.order = append(*l.order, l.name)
	return l.next.DoRequest(ctx, prompt, opts)
}

func (l *taggedLLM) GetModel() string  { return l.next.GetModel() }
func (l *taggedLLM) SetModel(m string) { l.next.SetModel(m) }

func TestSimpleTokenEstimator(t *testing.T) {
	estimator := &SimpleTokenEstimator{}

	assert.Equal(t, 0, estimator.EstimateTokens(""))
	assert.Equal(t, 1, estimator.EstimateTokens("hi"))
	assert.Equal(t, 3, estimator.EstimateTokens("hello world!"))
}
