package services_test

import (
	"testing"
	"time"

	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"
	"decivue/domain/services"
	pkgerrors "decivue/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decisionWith(t *testing.T, status valueobjects.Status, confidence int) *entities.Decision {
	t.Helper()
	now := time.Now()
	d, err := entities.ReconstructDecision(entities.DecisionSnapshot{
		ID:                valueobjects.NewDecisionID().String(),
		UserID:            "user-1",
		Title:             "d",
		Category:          "sleep",
		InitialConfidence: confidence,
		CurrentConfidence: confidence,
		PerceivedRisk:     "low",
		PerceivedImpact:   "low",
		Status:            string(status),
		LastReviewedAt:    now,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	})
	require.NoError(t, err)
	return d
}

func TestComputeStats_EmptySet(t *testing.T) {
	st := services.ComputeStats(nil)

	assert.Zero(t, st.Total)
	assert.Zero(t, st.Healthy)
	assert.Zero(t, st.NeedsReview)
	assert.Zero(t, st.AvgConfidence)
	assert.Zero(t, st.MedianConfidence)
	for _, s := range valueobjects.Statuses() {
		assert.Zero(t, st.ByStatus[s])
	}
}

func TestComputeStats_CountsAndMean(t *testing.T) {
	ds := []*entities.Decision{
		decisionWith(t, valueobjects.StatusFresh, 80),
		decisionWith(t, valueobjects.StatusStable, 70),
		decisionWith(t, valueobjects.StatusAtRisk, 55),
		decisionWith(t, valueobjects.StatusStale, 40),
		decisionWith(t, valueobjects.StatusInvalidated, 0),
	}

	st := services.ComputeStats(ds)

	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 2, st.Healthy)
	assert.Equal(t, 2, st.NeedsReview)
	assert.Equal(t, 1, st.Invalidated)
	assert.Equal(t, 1, st.ByStatus[valueobjects.StatusAtRisk])
	assert.Equal(t, 49, st.AvgConfidence) // 245 / 5
	assert.Equal(t, 55.0, st.MedianConfidence)
	assert.Equal(t, 0, st.MinConfidence)
	assert.Equal(t, 80, st.MaxConfidence)
}

func TestComputeStats_MeanRoundsHalfUp(t *testing.T) {
	st := services.ComputeStats([]*entities.Decision{
		decisionWith(t, valueobjects.StatusFresh, 50),
		decisionWith(t, valueobjects.StatusFresh, 51),
	})

	assert.Equal(t, 51, st.AvgConfidence)
}

func TestComputeLifeScore(t *testing.T) {
	cases := []struct {
		in    services.LifeScoreInputs
		score float64
		label string
	}{
		{services.LifeScoreInputs{100, 100, 100, 100, 100}, 100, "Excellent"},
		{services.LifeScoreInputs{80, 60, 70, 50, 40}, 64.5, "Good"},
		{services.LifeScoreInputs{40, 40, 40, 40, 40}, 40, "Average"},
		{services.LifeScoreInputs{20, 30, 10, 25, 5}, 19.75, "Critical"},
		{services.LifeScoreInputs{33.33, 0, 0, 0, 0}, 10, "Critical"},
	}
	for _, tc := range cases {
		got, err := services.ComputeLifeScore(tc.in)
		require.NoError(t, err)
		assert.InDelta(t, tc.score, got.Score, 0.001, "%+v", tc.in)
		assert.Equal(t, tc.label, got.Label, "%+v", tc.in)
	}
}

func TestComputeLifeScore_RejectsOutOfRange(t *testing.T) {
	_, err := services.ComputeLifeScore(services.LifeScoreInputs{Habit: 120})
	assert.True(t, pkgerrors.IsValidation(err))
}
