package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-selfrank/internal/domain"
	"github.com/ahrav/go-selfrank/internal/ports"
)

// OutputCallback receives each ranked output as soon as its evaluation
// completes, before the full batch is sorted. Callbacks run serialized and
// a panicking callback is contained without affecting the run.
type OutputCallback func(output domain.RankedOutput)

// RankerOption configures optional Ranker behavior.
type RankerOption func(*Ranker)

// WithCallback registers a callback invoked once per successfully ranked
// output, in completion order.
func WithCallback(cb OutputCallback) RankerOption {
	return func(r *Ranker) { r.callback = cb }
}

// Ranker generates multiple completions for a prompt and ranks them by the
// model's own token-level confidence in a boolean self-assessment.
//
// Each variant goes through two transport calls: a generation call that
// produces the candidate text, and a deterministic evaluation call that asks
// the model to judge the candidate against the criteria template, with
// per-token logprobs enabled. The logprobs of the boolean answer tokens are
// averaged into the variant's score.
//
// Ranker is safe for concurrent use; all mutable state is per-call.
type Ranker struct {
	transport ports.CompletionTransport
	config    Config

	// attributes is extracted from the template once at construction so a
	// bad template fails fast instead of on the first ranking call.
	attributes []string

	callback OutputCallback
	// callbackMu serializes callback invocations across variant goroutines.
	callbackMu sync.Mutex
}

// NewRanker validates the configuration, extracts the template's attributes,
// and returns a Ranker bound to the given transport.
func NewRanker(transport ports.CompletionTransport, cfg Config, opts ...RankerOption) (*Ranker, error) {
	if transport == nil {
		return nil, errors.New("ranker requires a completion transport")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	attrs, err := domain.ExtractAttributes(cfg.Template)
	if err != nil {
		return nil, err
	}

	r := &Ranker{transport: transport, config: cfg, attributes: attrs}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Attributes returns the ordered attribute names extracted from the template.
func (r *Ranker) Attributes() []string {
	out := make([]string, len(r.attributes))
	copy(out, r.attributes)
	return out
}

// RankOutputs generates NumVariants candidate completions for prompt,
// evaluates each, and returns the successfully ranked outputs sorted by
// descending aggregate logprob.
//
// Variant failures are tolerated as long as at least one variant succeeds;
// the failed variants are simply absent from the result. When every variant
// fails, RankOutputs returns the joined per-variant errors.
func (r *Ranker) RankOutputs(ctx context.Context, prompt string) ([]domain.RankedOutput, error) {
	n := r.config.NumVariants
	results := make([]*domain.RankedOutput, n)
	failures := make([]error, n)

	var g errgroup.Group
	if r.config.MaxConcurrency > 0 {
		g.SetLimit(r.config.MaxConcurrency)
	}

	for i := 0; i < n; i++ {
		g.Go(func() error {
			out, err := r.generateAndEvaluate(ctx, prompt, i)
			if err != nil {
				failures[i] = err
				return nil
			}

			results[i] = &out
			r.emit(out)
			return nil
		})
	}
	// Goroutines record their outcomes per index and never return errors,
	// so Wait cannot fail; partial failure handling happens below.
	_ = g.Wait()

	ranked := make([]domain.RankedOutput, 0, n)
	for _, res := range results {
		if res != nil {
			ranked = append(ranked, *res)
		}
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("all %d variants failed: %w", n, errors.Join(failures...))
	}

	domain.SortByLogprob(ranked)
	return ranked, nil
}

// ScoreText evaluates a single pre-existing text against the criteria
// template without generating anything, returning its ranked output with
// Index 0. This is the evaluation half of RankOutputs exposed on its own.
func (r *Ranker) ScoreText(ctx context.Context, text string) (domain.RankedOutput, error) {
	return r.evaluate(ctx, text, 0)
}

// generateAndEvaluate runs both transport calls for one variant.
func (r *Ranker) generateAndEvaluate(ctx context.Context, prompt string, index int) (domain.RankedOutput, error) {
	genOpts := map[string]any{
		"temperature": r.config.Temperature,
		"max_tokens":  r.config.MaxTokens,
		"top_p":       r.config.TopP,
	}
	if r.config.SystemPrompt != "" {
		genOpts["system"] = r.config.SystemPrompt
	}

	generated, err := r.transport.Complete(ctx, prompt, genOpts)
	if err != nil {
		return domain.RankedOutput{}, domain.NewGenerationError(domain.StageGeneration, index, err)
	}

	return r.evaluate(ctx, generated.Content, index)
}

// evaluate asks the model to judge text against the criteria template and
// converts the boolean answer tokens' logprobs into an aggregate score.
func (r *Ranker) evaluate(ctx context.Context, text string, index int) (domain.RankedOutput, error) {
	evalOpts := map[string]any{
		// Deterministic decoding keeps the response aligned with the
		// template so the scanner can follow it.
		"temperature": 0.0,
		"top_p":       1.0,
		"max_tokens":  r.config.MaxTokens,
		"logprobs":    true,
	}
	if r.config.EvaluationTopLogprobs > 0 {
		evalOpts["top_logprobs"] = r.config.EvaluationTopLogprobs
	}

	evaluation, err := r.transport.Complete(ctx, r.formatEvaluationPrompt(text), evalOpts)
	if err != nil {
		return domain.RankedOutput{}, domain.NewGenerationError(domain.StageEvaluation, index, err)
	}
	if len(evaluation.TokenLogprobs) == 0 {
		return domain.RankedOutput{},
			domain.NewGenerationError(domain.StageEvaluation, index, domain.ErrLogprobsUnavailable)
	}

	outcome, err := domain.ScanTokenLogprobs(r.attributes, evaluation.TokenLogprobs, r.config.ScanPolicy)
	if err != nil {
		return domain.RankedOutput{}, domain.NewGenerationError(domain.StageEvaluation, index, err)
	}

	mean, err := outcome.Mean()
	if err != nil {
		return domain.RankedOutput{}, domain.NewGenerationError(domain.StageEvaluation, index, err)
	}

	return domain.RankedOutput{
		Output:          text,
		Logprob:         mean,
		Index:           index,
		AttributeScores: outcome.Scores,
		RawEvaluation:   evaluation.Content,
	}, nil
}

// formatEvaluationPrompt assembles the evaluation request: the instruction,
// the candidate text, and the criteria template the response must mirror.
func (r *Ranker) formatEvaluationPrompt(text string) string {
	return fmt.Sprintf("%s\n\nText to evaluate:\n%s\n\nCriteria template:\n%s",
		r.config.EvaluationPrompt, text, r.config.Template)
}

// emit delivers an output to the registered callback, containing any panic
// so a misbehaving callback cannot take down the ranking run.
func (r *Ranker) emit(out domain.RankedOutput) {
	if r.callback == nil {
		return
	}

	r.callbackMu.Lock()
	defer r.callbackMu.Unlock()
	defer func() { _ = recover() }()
	r.callback(out)
}
