package entities_test

import (
	"strings"
	"testing"

	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssumption_ValidationIsMonotonic(t *testing.T) {
	// Arrange
	a, err := entities.NewAssumption(valueobjects.AssumptionID{}, valueobjects.NewDecisionID(), "  Less snacking at night  ", nil, t0)
	require.NoError(t, err)
	assert.Equal(t, "Less snacking at night", a.Content())
	assert.False(t, a.IsValidated())

	// Act
	first := a.Validate(t0.Add(day))
	second := a.Validate(t0.Add(2 * day))

	// Assert
	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, a.IsValidated())
	require.NotNil(t, a.ValidationDate())
	assert.Equal(t, t0.Add(day), *a.ValidationDate())
}

func TestAssumption_RejectsEmptyOrLongContent(t *testing.T) {
	_, err := entities.NewAssumption(valueobjects.AssumptionID{}, valueobjects.NewDecisionID(), "   ", nil, t0)
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = entities.NewAssumption(valueobjects.AssumptionID{}, valueobjects.NewDecisionID(), strings.Repeat("a", 1001), nil, t0)
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = entities.NewAssumption(valueobjects.AssumptionID{}, valueobjects.DecisionID{}, "ok", nil, t0)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestInsight_Dismiss(t *testing.T) {
	decisionID := valueobjects.NewDecisionID()
	ins, err := entities.ReconstructInsight(entities.InsightParams{
		UserID:      "user-1",
		DecisionID:  decisionID.String(),
		InsightType: "review_overdue",
		Severity:    "warning",
		Title:       "Review your decision",
		CreatedAt:   t0,
	})
	require.NoError(t, err)
	assert.False(t, ins.ID().IsZero())
	assert.True(t, ins.BelongsTo(decisionID))

	assert.True(t, ins.Dismiss(t0.Add(day)))
	assert.False(t, ins.Dismiss(t0.Add(2*day)))
	assert.True(t, ins.IsDismissed())
	assert.Equal(t, t0.Add(day), *ins.DismissedAt())
}

func TestInsight_RejectsUnknownSeverity(t *testing.T) {
	_, err := entities.ReconstructInsight(entities.InsightParams{
		UserID:      "user-1",
		InsightType: "pattern",
		Severity:    "urgent",
	})
	assert.True(t, pkgerrors.IsValidation(err))
}
