package valueobjects

import (
	pkgerrors "decivue/pkg/errors"
)

const (
	MinConfidence = 0
	MaxConfidence = 100
)

// Confidence is the user's trust in a decision, an integer in [0,100].
// Out of range values are rejected rather than clamped.
type Confidence int

// NewConfidence validates v.
func NewConfidence(v int) (Confidence, error) {
	if v < MinConfidence || v > MaxConfidence {
		return 0, pkgerrors.NewValidationErrorf("confidence must be between %d and %d, got %d", MinConfidence, MaxConfidence, v).
			WithCode(pkgerrors.CodeInvalidConfidence).
			WithDetail("confidence", v)
	}
	return Confidence(v), nil
}

// MustConfidence panics on invalid input. Intended for constants and tests.
func MustConfidence(v int) Confidence {
	c, err := NewConfidence(v)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Confidence) Int() int { return int(c) }

// Delta returns c - previous.
func (c Confidence) Delta(previous Confidence) int {
	return int(c) - int(previous)
}
