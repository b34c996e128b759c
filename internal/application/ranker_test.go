package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-selfrank/internal/domain"
	"github.com/ahrav/go-selfrank/internal/ports"
)

// stubTransport implements ports.CompletionTransport with a pluggable
// Complete function for exercising the ranking workflow without a provider.
type stubTransport struct {
	completeFn func(ctx context.Context, prompt string, options map[string]any) (*ports.Completion, error)
}

func (s *stubTransport) Complete(ctx context.Context, prompt string, options map[string]any) (*ports.Completion, error) {
	return s.completeFn(ctx, prompt, options)
}

func (s *stubTransport) EstimateTokens(text string) (int, error) { return len(text) / 4, nil }

func (s *stubTransport) GetModel() string { return "stub-model" }

// singleAttrConfig is a config whose template carries exactly one attribute,
// so a variant's aggregate score equals its boolean token's logprob.
func singleAttrConfig(numVariants int) Config {
	cfg := DefaultConfig()
	cfg.Template = `{"good": LOGPROB_TRUE}`
	cfg.NumVariants = numVariants
	cfg.MaxConcurrency = 1
	return cfg
}

// evalStream builds the token stream of a `{"good": <bool>}` evaluation
// response whose boolean token carries the given logprob.
func evalStream(logprob float64) []domain.TokenLogprob {
	return []domain.TokenLogprob{
		{Token: `{"good"`, Logprob: -0.01},
		{Token: `:`, Logprob: -0.01},
		{Token: ` true`, Logprob: logprob},
		{Token: `}`, Logprob: -0.01},
	}
}

// rankingStub returns a transport whose generation calls emit numbered
// candidates and whose evaluation calls score each candidate per scores.
func rankingStub(scores map[string]float64) *stubTransport {
	var generated atomic.Int64
	return &stubTransport{
		completeFn: func(_ context.Context, prompt string, options map[string]any) (*ports.Completion, error) {
			if wantLogprobs, _ := options["logprobs"].(bool); !wantLogprobs {
				n := generated.Add(1)
				return &ports.Completion{Content: fmt.Sprintf("candidate-%d", n)}, nil
			}

			for candidate, logprob := range scores {
				if strings.Contains(prompt, candidate) {
					return &ports.Completion{
						Content:       `{"good": true}`,
						TokenLogprobs: evalStream(logprob),
					}, nil
				}
			}
			return nil, fmt.Errorf("no score configured for evaluation prompt %q", prompt)
		},
	}
}

func TestNewRanker_RejectsBadInputs(t *testing.T) {
	t.Run("nil transport", func(t *testing.T) {
		_, err := NewRanker(nil, DefaultConfig())
		require.Error(t, err)
	})

	t.Run("template without attributes", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Template = `{"note": "nothing to score"}`

		_, err := NewRanker(&stubTransport{}, cfg)
		assert.ErrorIs(t, err, domain.ErrNoAttributes)
	})
}

func TestRanker_AttributesFollowTemplateOrder(t *testing.T) {
	ranker, err := NewRanker(&stubTransport{}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"interesting", "creative", "useful"}, ranker.Attributes())
}

func TestRankOutputs_SortsByDescendingLogprob(t *testing.T) {
	transport := rankingStub(map[string]float64{
		"candidate-1": -0.9,
		"candidate-2": -0.1,
		"candidate-3": -0.5,
	})
	ranker, err := NewRanker(transport, singleAttrConfig(3))
	require.NoError(t, err)

	ranked, err := ranker.RankOutputs(context.Background(), "write a poem")

	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "candidate-2", ranked[0].Output, "best variant first")
	assert.Equal(t, []float64{-0.1, -0.5, -0.9},
		[]float64{ranked[0].Logprob, ranked[1].Logprob, ranked[2].Logprob})
	assert.Equal(t, 1, ranked[0].Index, "index reflects generation order, not rank")
	assert.Equal(t, `{"good": true}`, ranked[0].RawEvaluation)
}

func TestRankOutputs_ToleratesPartialFailure(t *testing.T) {
	// candidate-2 has no configured score, so its evaluation call fails;
	// the run must still return the other two variants.
	transport := rankingStub(map[string]float64{
		"candidate-1": -0.3,
		"candidate-3": -0.6,
	})
	ranker, err := NewRanker(transport, singleAttrConfig(3))
	require.NoError(t, err)

	ranked, err := ranker.RankOutputs(context.Background(), "write a poem")

	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "candidate-1", ranked[0].Output)
	assert.Equal(t, "candidate-3", ranked[1].Output)
}

func TestRankOutputs_AllVariantsFailing(t *testing.T) {
	transportErr := errors.New("provider unavailable")
	transport := &stubTransport{
		completeFn: func(context.Context, string, map[string]any) (*ports.Completion, error) {
			return nil, transportErr
		},
	}
	ranker, err := NewRanker(transport, singleAttrConfig(2))
	require.NoError(t, err)

	ranked, err := ranker.RankOutputs(context.Background(), "write a poem")

	require.Error(t, err)
	assert.Nil(t, ranked)
	assert.ErrorIs(t, err, transportErr)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, domain.StageGeneration, genErr.Stage)
}

func TestRankOutputs_FailsWhenLogprobsMissing(t *testing.T) {
	transport := &stubTransport{
		completeFn: func(_ context.Context, _ string, options map[string]any) (*ports.Completion, error) {
			if wantLogprobs, _ := options["logprobs"].(bool); !wantLogprobs {
				return &ports.Completion{Content: "candidate"}, nil
			}
			// Evaluation response without a token stream.
			return &ports.Completion{Content: `{"good": true}`}, nil
		},
	}
	ranker, err := NewRanker(transport, singleAttrConfig(1))
	require.NoError(t, err)

	_, err = ranker.RankOutputs(context.Background(), "write a poem")

	assert.ErrorIs(t, err, domain.ErrLogprobsUnavailable)
}

func TestRankOutputs_CallbackReceivesEachOutput(t *testing.T) {
	transport := rankingStub(map[string]float64{
		"candidate-1": -0.3,
		"candidate-2": -0.6,
	})

	var seen []string
	ranker, err := NewRanker(transport, singleAttrConfig(2),
		WithCallback(func(out domain.RankedOutput) {
			seen = append(seen, out.Output)
			panic("callback misbehaves") // must not affect the run
		}))
	require.NoError(t, err)

	ranked, err := ranker.RankOutputs(context.Background(), "write a poem")

	require.NoError(t, err)
	assert.Len(t, ranked, 2)
	assert.ElementsMatch(t, []string{"candidate-1", "candidate-2"}, seen)
}

func TestScoreText_EvaluatesWithoutGenerating(t *testing.T) {
	var calls atomic.Int64
	transport := &stubTransport{
		completeFn: func(_ context.Context, prompt string, options map[string]any) (*ports.Completion, error) {
			calls.Add(1)
			wantLogprobs, _ := options["logprobs"].(bool)
			require.True(t, wantLogprobs, "score-only path must request logprobs")
			require.Contains(t, prompt, "an existing essay")
			require.Equal(t, 0.0, options["temperature"], "evaluation runs deterministically")
			return &ports.Completion{
				Content:       `{"good": true}`,
				TokenLogprobs: evalStream(-0.42),
			}, nil
		},
	}
	ranker, err := NewRanker(transport, singleAttrConfig(1))
	require.NoError(t, err)

	out, err := ranker.ScoreText(context.Background(), "an existing essay")

	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load(), "exactly one transport call")
	assert.Equal(t, "an existing essay", out.Output)
	assert.InDelta(t, -0.42, out.Logprob, 1e-12)
	require.Len(t, out.AttributeScores, 1)
	assert.Equal(t, "good", out.AttributeScores[0].Name)
}
