package services

import (
	pkgerrors "decivue/pkg/errors"
)

// LifeScoreInputs are the per-area scores, each in [0,100].
type LifeScoreInputs struct {
	Habit       float64 `json:"habit"`
	Nutrition   float64 `json:"nutrition"`
	Mood        float64 `json:"mood"`
	Finance     float64 `json:"finance"`
	Consistency float64 `json:"consistency"`
}

// LifeScore is the weighted overall score and its label.
type LifeScore struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

const (
	weightHabit       = 0.30
	weightNutrition   = 0.25
	weightMood        = 0.20
	weightFinance     = 0.15
	weightConsistency = 0.10
)

// ComputeLifeScore returns the weighted sum of the inputs rounded to two
// decimals.
func ComputeLifeScore(in LifeScoreInputs) (LifeScore, error) {
	parts := map[string]float64{
		"habit":       in.Habit,
		"nutrition":   in.Nutrition,
		"mood":        in.Mood,
		"finance":     in.Finance,
		"consistency": in.Consistency,
	}
	for name, v := range parts {
		if v < 0 || v > 100 {
			return LifeScore{}, pkgerrors.NewValidationErrorf("%s score must be between 0 and 100, got %v", name, v)
		}
	}

	score := in.Habit*weightHabit +
		in.Nutrition*weightNutrition +
		in.Mood*weightMood +
		in.Finance*weightFinance +
		in.Consistency*weightConsistency
	score = round2(score)

	return LifeScore{Score: score, Label: lifeScoreLabel(score)}, nil
}

func lifeScoreLabel(score float64) string {
	switch {
	case score >= 80:
		return "Excellent"
	case score >= 60:
		return "Good"
	case score >= 40:
		return "Average"
	case score >= 20:
		return "Needs Improvement"
	default:
		return "Critical"
	}
}
