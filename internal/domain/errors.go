package domain

import (
	"errors"
	"fmt"
)

// Common domain errors returned by extraction, scanning, and aggregation.
var (
	// ErrNoAttributes indicates that a template contains no scorable
	// attributes. An evaluation template with nothing to score is a caller
	// error, not a silent no-op.
	ErrNoAttributes = errors.New("no scorable attributes found in template")

	// ErrAttributeNotFound indicates that the scanner could not locate an
	// attribute's key, colon, or boolean value token in the stream.
	ErrAttributeNotFound = errors.New("attribute value token not found")

	// ErrSuspiciousLogprob indicates that a located boolean token carried a
	// logprob of exactly 0.0 (probability 1.0), which almost always means
	// the provider did not actually compute logprobs.
	ErrSuspiciousLogprob = errors.New("boolean token has suspicious zero logprob")

	// ErrLogprobsUnavailable indicates that logprobs were requested but the
	// provider returned no logprob structure or an empty token stream.
	ErrLogprobsUnavailable = errors.New("logprobs requested but not available in response")

	// ErrMalformedLogprobs indicates that a token/logprob entry is present
	// but has the wrong shape, such as an empty token or a non-finite
	// logprob.
	ErrMalformedLogprobs = errors.New("malformed token logprob data")

	// ErrNoScoredAttributes indicates that a scan located zero attribute
	// values, so no aggregate score can be computed.
	ErrNoScoredAttributes = errors.New("no attributes were scored")
)

// Scan phases reported by ScanError.
const (
	// ScanPhaseKey is the key-location phase of the scanner.
	ScanPhaseKey = "key"
	// ScanPhaseColon is the colon-location phase of the scanner.
	ScanPhaseColon = "colon"
	// ScanPhaseValue is the boolean-value-location phase of the scanner.
	ScanPhaseValue = "value"
)

// ScanError reports a failure to align one attribute against the evaluation
// token stream. It identifies the attribute and the phase that failed so
// callers can diagnose tokenization mismatches.
type ScanError struct {
	// Attribute is the attribute name being aligned when the scan failed.
	Attribute string

	// Phase identifies which scan phase failed: key, colon, or value.
	Phase string

	// Err is the underlying cause, typically ErrAttributeNotFound or
	// ErrSuspiciousLogprob.
	Err error
}

// Error implements the error interface for ScanError.
func (e *ScanError) Error() string {
	return fmt.Sprintf("scan error: attribute=%q, phase=%s, err=%v", e.Attribute, e.Phase, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As inspection.
func (e *ScanError) Unwrap() error { return e.Err }

// NewScanError creates a ScanError for the given attribute and phase.
func NewScanError(attribute, phase string, err error) *ScanError {
	return &ScanError{Attribute: attribute, Phase: phase, Err: err}
}

// Stages reported by GenerationError.
const (
	// StageGeneration is the initial completion call that produces the
	// candidate text.
	StageGeneration = "generation"
	// StageEvaluation is the second completion call that produces the
	// JSON evaluation and its token stream.
	StageEvaluation = "evaluation"
)

// GenerationError reports a transport failure during the generation or
// evaluation completion call of a single variant.
type GenerationError struct {
	// Stage identifies which completion call failed.
	Stage string

	// Index is the variant's position in the requested batch.
	Index int

	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface for GenerationError.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s failed for variant %d: %v", e.Stage, e.Index, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As inspection.
func (e *GenerationError) Unwrap() error { return e.Err }

// NewGenerationError creates a GenerationError for the given stage and
// variant index.
func NewGenerationError(stage string, index int, err error) *GenerationError {
	return &GenerationError{Stage: stage, Index: index, Err: err}
}
