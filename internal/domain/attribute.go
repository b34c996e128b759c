// Package domain contains the core data model and pure algorithms for
// logprob-based self-ranking: template attribute extraction, token-logprob
// alignment scanning, and score aggregation. Everything in this package is
// synchronous, free of I/O, and safe for concurrent use.
package domain

import (
	"fmt"
	"math"
	"sort"
)

// TokenLogprob pairs one emitted token with its log-probability, as reported
// by a completion transport for a single response choice. The order of a
// []TokenLogprob slice reflects the exact emission order of the response.
type TokenLogprob struct {
	// Token is the raw token text, which rarely aligns with JSON syntax
	// boundaries.
	Token string `json:"token"`

	// Logprob is the natural-log probability of the token, always <= 0.
	Logprob float64 `json:"logprob"`
}

// AttributeScore records the score assigned to one boolean criterion
// during an evaluation. Instances are immutable after creation.
type AttributeScore struct {
	// Name is the attribute name as it appears in the template.
	Name string `json:"name"`

	// Score is the raw log-probability of the located boolean token.
	// It is not normalized to [0,1]; values closer to 0 mean higher
	// confidence.
	Score float64 `json:"score"`

	// Explanation describes which token and value produced the score,
	// or why no score could be produced.
	Explanation string `json:"explanation,omitempty"`
}

// RankedOutput is the scored result of one generated variant.
// It is created by the generate-and-evaluate step and read-only afterward.
type RankedOutput struct {
	// Output is the generated candidate text.
	Output string `json:"output"`

	// Logprob is the aggregate score: the arithmetic mean of the located
	// attributes' raw log-probabilities.
	Logprob float64 `json:"logprob"`

	// Index is the variant's position in the originally requested batch,
	// not its rank.
	Index int `json:"index"`

	// AttributeScores holds the per-attribute breakdown in template order.
	AttributeScores []AttributeScore `json:"attribute_scores,omitempty"`

	// RawEvaluation preserves the evaluation completion's raw text for
	// diagnostics.
	RawEvaluation string `json:"raw_evaluation,omitempty"`
}

// SortByLogprob orders outputs by descending aggregate logprob in place.
// The sort is stable, so outputs with equal scores keep ascending original
// index order and results are deterministic for deterministic inputs.
func SortByLogprob(outputs []RankedOutput) {
	sort.SliceStable(outputs, func(i, j int) bool {
		return outputs[i].Logprob > outputs[j].Logprob
	})
}

// ScanOutcome carries the per-attribute scores produced by one scan together
// with the located-token bookkeeping needed for aggregation. Attributes whose
// boolean token was never located (lenient policy) appear in Scores with a
// zero score but do not contribute to Located or Sum.
type ScanOutcome struct {
	// Scores lists one entry per requested attribute, in attribute order.
	Scores []AttributeScore

	// Located is the number of attributes whose boolean token was found.
	Located int

	// Sum is the sum of the located attributes' raw log-probabilities.
	Sum float64
}

// Mean returns the arithmetic mean of the located attributes' raw
// log-probabilities. A scan that located zero attributes cannot produce a
// meaningful aggregate, so Mean returns ErrNoScoredAttributes rather than a
// defaulted value.
func (o ScanOutcome) Mean() (float64, error) {
	if o.Located == 0 {
		return 0, ErrNoScoredAttributes
	}

	mean := o.Sum / float64(o.Located)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return 0, fmt.Errorf("invalid aggregate logprob %f: %w", mean, ErrMalformedLogprobs)
	}
	return mean, nil
}
