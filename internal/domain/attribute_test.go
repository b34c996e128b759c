package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortByLogprob_DescendingOrder(t *testing.T) {
	outputs := []RankedOutput{
		{Output: "first", Logprob: -0.1, Index: 0},
		{Output: "second", Logprob: -0.9, Index: 1},
		{Output: "third", Logprob: -0.4, Index: 2},
	}

	SortByLogprob(outputs)

	assert.Equal(t, []float64{-0.1, -0.4, -0.9},
		[]float64{outputs[0].Logprob, outputs[1].Logprob, outputs[2].Logprob})
}

func TestSortByLogprob_StableOnTies(t *testing.T) {
	outputs := []RankedOutput{
		{Output: "late", Logprob: -0.5, Index: 2},
		{Output: "early", Logprob: -0.5, Index: 0},
		{Output: "middle", Logprob: -0.5, Index: 1},
	}

	SortByLogprob(outputs)

	// Equal scores keep their incoming order.
	assert.Equal(t, []int{2, 0, 1},
		[]int{outputs[0].Index, outputs[1].Index, outputs[2].Index})
}

func TestRankedOutput_JSONRoundTrip(t *testing.T) {
	original := RankedOutput{
		Output:  "a generated poem",
		Logprob: -0.7,
		Index:   3,
		AttributeScores: []AttributeScore{
			{Name: "interesting", Score: -0.5, Explanation: `logprob -0.500000 of token "true" for "interesting"`},
			{Name: "creative", Score: -0.9, Explanation: `logprob -0.900000 of token "false" for "creative"`},
		},
		RawEvaluation: `{"interesting": true, "creative": false}`,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored RankedOutput
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, original, restored, "round trip must preserve all fields")
}

func TestScanOutcome_Mean(t *testing.T) {
	outcome := ScanOutcome{
		Scores: []AttributeScore{
			{Name: "a", Score: -0.5},
			{Name: "b", Score: -0.9},
		},
		Located: 2,
		Sum:     -1.4,
	}

	mean, err := outcome.Mean()

	require.NoError(t, err)
	assert.InDelta(t, -0.7, mean, 1e-12)
}

func TestScanOutcome_MeanFailsWithNothingLocated(t *testing.T) {
	outcome := ScanOutcome{
		Scores:  []AttributeScore{{Name: "a", Score: 0}},
		Located: 0,
	}

	_, err := outcome.Mean()

	assert.ErrorIs(t, err, ErrNoScoredAttributes)
}
