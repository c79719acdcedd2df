// Package services holds pure domain computations over sets of aggregates.
package services

import (
	"math"

	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"

	"github.com/montanaflynn/stats"
)

// DecisionStats summarises a set of decisions.
type DecisionStats struct {
	Total         int                         `json:"total"`
	ByStatus      map[valueobjects.Status]int `json:"by_status"`
	Healthy       int                         `json:"healthy"`
	NeedsReview   int                         `json:"needs_review"`
	Invalidated   int                         `json:"invalidated"`
	AvgConfidence int                         `json:"avg_confidence"`

	// Distribution of current confidence. Zero for an empty set.
	MedianConfidence float64 `json:"median_confidence"`
	StdDevConfidence float64 `json:"stddev_confidence"`
	MinConfidence    int     `json:"min_confidence"`
	MaxConfidence    int     `json:"max_confidence"`
}

// ComputeStats counts decisions per status and averages their current
// confidence. Callers pass projected decisions so decayed statuses count.
func ComputeStats(decisions []*entities.Decision) DecisionStats {
	st := DecisionStats{ByStatus: make(map[valueobjects.Status]int, 5)}
	for _, s := range valueobjects.Statuses() {
		st.ByStatus[s] = 0
	}
	if len(decisions) == 0 {
		return st
	}

	values := make(stats.Float64Data, 0, len(decisions))
	for _, d := range decisions {
		status := d.Status()
		st.ByStatus[status]++
		switch {
		case status.IsHealthy():
			st.Healthy++
		case status.NeedsReview():
			st.NeedsReview++
		case status.IsTerminal():
			st.Invalidated++
		}
		values = append(values, float64(d.CurrentConfidence().Int()))
	}
	st.Total = len(decisions)

	// Errors are only returned for empty input, which is handled above.
	mean, _ := values.Mean()
	median, _ := values.Median()
	stddev, _ := values.StandardDeviation()
	lo, _ := values.Min()
	hi, _ := values.Max()

	st.AvgConfidence = int(math.Round(mean))
	st.MedianConfidence = round2(median)
	st.StdDevConfidence = round2(stddev)
	st.MinConfidence = int(lo)
	st.MaxConfidence = int(hi)
	return st
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
