package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanError_WrapsSentinel(t *testing.T) {
	err := NewScanError("creative", ScanPhaseValue, ErrSuspiciousLogprob)

	assert.ErrorIs(t, err, ErrSuspiciousLogprob)
	assert.Contains(t, err.Error(), "creative")
	assert.Contains(t, err.Error(), ScanPhaseValue)

	var scanErr *ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, "creative", scanErr.Attribute)
}

func TestGenerationError_WrapsTransportError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewGenerationError(StageEvaluation, 2, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "evaluation")
	assert.Contains(t, err.Error(), "variant 2")

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 2, genErr.Index)
	assert.Equal(t, StageEvaluation, genErr.Stage)
}

func TestGenerationError_PreservesNestedSentinels(t *testing.T) {
	// A transport-level sentinel must stay visible through the stage wrapper.
	err := NewGenerationError(StageEvaluation, 0, ErrLogprobsUnavailable)

	assert.ErrorIs(t, err, ErrLogprobsUnavailable)
}
