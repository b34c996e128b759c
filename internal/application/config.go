// Package application orchestrates the generate-and-evaluate workflow:
// it turns one prompt into several candidate completions, has the model
// self-assess each candidate against a boolean criteria template, and ranks
// the candidates by the logprobs of the assessment tokens.
package application

import (
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-selfrank/internal/domain"
)

// DefaultTemplate is the criteria template used when a configuration does
// not supply one. Each key marked with the LOGPROB_TRUE sentinel becomes a
// scored attribute.
const DefaultTemplate = `{
  "interesting": LOGPROB_TRUE,
  "creative": LOGPROB_TRUE,
  "useful": LOGPROB_TRUE
}`

// DefaultEvaluationPrompt is the instruction prefixed to every evaluation
// request. It pins the response to the template's exact key order, which the
// token scanner depends on.
const DefaultEvaluationPrompt = `Evaluate the following text against each criterion. ` +
	`Respond with only a JSON object using the exact keys of the criteria template, ` +
	`in the same order, each with a boolean value (true or false). ` +
	`Do not include any other text.`

// Config holds the tunable parameters of a ranking run.
// Use DefaultConfig to obtain a populated instance and override fields as
// needed; validate with Validate before constructing a Ranker.
type Config struct {
	// Template is the criteria template whose LOGPROB_TRUE-marked keys
	// define the attributes each candidate is scored on.
	Template string `yaml:"template" json:"template" validate:"required"`

	// SystemPrompt is the optional system message for the generation call.
	// It does not apply to the evaluation call, which uses its own fixed
	// instruction.
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt,omitempty"`

	// EvaluationPrompt is the instruction prefixed to every evaluation
	// request, ahead of the candidate text and the criteria template.
	EvaluationPrompt string `yaml:"evaluation_prompt" json:"evaluation_prompt" validate:"required"`

	// Temperature controls sampling randomness for the generation call.
	// Evaluation calls always run at temperature 0 for determinism.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"gte=0,lte=2"`

	// MaxTokens caps the completion length of each generation call.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"gte=1,lte=100000"`

	// TopP is the nucleus sampling parameter for the generation call.
	TopP float64 `yaml:"top_p" json:"top_p" validate:"gt=0,lte=1"`

	// NumVariants is how many candidate completions to generate and rank
	// per prompt.
	NumVariants int `yaml:"num_variants" json:"num_variants" validate:"gte=1,lte=100"`

	// MaxConcurrency bounds how many variants are processed in parallel.
	// Zero means all variants run concurrently.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"gte=0,lte=100"`

	// EvaluationTopLogprobs is the number of alternative logprobs requested
	// per token position on evaluation calls, for providers that support it.
	EvaluationTopLogprobs int `yaml:"evaluation_top_logprobs" json:"evaluation_top_logprobs" validate:"gte=0,lte=20"`

	// ScanPolicy selects how the scanner handles attributes whose boolean
	// token cannot be located: "strict" fails the variant, "lenient"
	// records a zero score and continues.
	ScanPolicy domain.ScanPolicy `yaml:"scan_policy" json:"scan_policy" validate:"required,oneof=strict lenient"`
}

// DefaultConfig returns a Config populated with the standard defaults:
// three general-purpose criteria, five variants, and strict scanning.
func DefaultConfig() Config {
	return Config{
		Template:              DefaultTemplate,
		EvaluationPrompt:      DefaultEvaluationPrompt,
		Temperature:           0.7,
		MaxTokens:             1000,
		TopP:                  1.0,
		NumVariants:           5,
		MaxConcurrency:        0,
		EvaluationTopLogprobs: 5,
		ScanPolicy:            domain.ScanStrict,
	}
}

// Validate checks the configuration against its struct tags and confirms
// the template yields at least one scorable attribute.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid ranking config: %w", err)
	}
	if _, err := domain.ExtractAttributes(c.Template); err != nil {
		return fmt.Errorf("invalid ranking config: %w", err)
	}
	return nil
}

// LoadConfig reads a YAML configuration from r, applying defaults for any
// field the document omits, and validates the result.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("failed to decode ranking config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
