package application

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-selfrank/internal/domain"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.Equal(t, 1.0, cfg.TopP)
	assert.Equal(t, 5, cfg.NumVariants)
	assert.Equal(t, 5, cfg.EvaluationTopLogprobs)
	assert.Equal(t, domain.ScanStrict, cfg.ScanPolicy)
}

func TestConfig_ValidateRejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "temperature too high", mutate: func(c *Config) { c.Temperature = 2.5 }},
		{name: "zero max tokens", mutate: func(c *Config) { c.MaxTokens = 0 }},
		{name: "top_p above one", mutate: func(c *Config) { c.TopP = 1.5 }},
		{name: "zero variants", mutate: func(c *Config) { c.NumVariants = 0 }},
		{name: "unknown scan policy", mutate: func(c *Config) { c.ScanPolicy = "optimistic" }},
		{name: "empty template", mutate: func(c *Config) { c.Template = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_ValidateRejectsScorelessTemplate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Template = `{"summary": "no placeholders here"}`

	err := cfg.Validate()

	assert.ErrorIs(t, err, domain.ErrNoAttributes)
}

func TestLoadConfig_AppliesOverridesOnDefaults(t *testing.T) {
	doc := `
template: '{"concise": LOGPROB_TRUE}'
num_variants: 3
scan_policy: lenient
`

	cfg, err := LoadConfig(strings.NewReader(doc))

	require.NoError(t, err)
	assert.Equal(t, `{"concise": LOGPROB_TRUE}`, cfg.Template)
	assert.Equal(t, 3, cfg.NumVariants)
	assert.Equal(t, domain.ScanLenient, cfg.ScanPolicy)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, DefaultEvaluationPrompt, cfg.EvaluationPrompt)
}

func TestLoadConfig_EmptyDocumentYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(""))

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_RejectsUnknownFields(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("variants: 3\n"))

	assert.Error(t, err, "misspelled keys must not be silently dropped")
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("num_variants: 500\n"))

	assert.Error(t, err)
}
