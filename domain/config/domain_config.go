package config

import (
	"fmt"
	"time"
)

// DomainConfig holds the configurable business rules of the decision
// lifecycle.
type DomainConfig struct {
	// Passive decay thresholds, measured from last_reviewed_at.
	RiskThreshold  time.Duration
	StaleThreshold time.Duration

	// Decisions left below this confidence for longer than RiskThreshold
	// decay straight to stale. Zero disables the rule.
	LowConfidenceThreshold int

	// Text constraints
	MinTitleLength          int
	MaxTitleLength          int
	MaxDescriptionLength    int
	MaxContextLength        int
	MaxReasoningLength      int
	MaxDecisionTypeLength   int
	MaxAssumptionLength     int
	MaxAssumptionsPerCreate int
	MaxNotesLength          int

	// Query limits
	DefaultPageSize       int
	MaxPageSize           int
	DashboardInsightLimit int
}

// DefaultDomainConfig returns the default domain configuration.
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		RiskThreshold:          14 * 24 * time.Hour,
		StaleThreshold:         30 * 24 * time.Hour,
		LowConfidenceThreshold: 0,

		MinTitleLength:          1,
		MaxTitleLength:          200,
		MaxDescriptionLength:    2000,
		MaxContextLength:        5000,
		MaxReasoningLength:      5000,
		MaxDecisionTypeLength:   50,
		MaxAssumptionLength:     1000,
		MaxAssumptionsPerCreate: 20,
		MaxNotesLength:          2000,

		DefaultPageSize:       50,
		MaxPageSize:           200,
		DashboardInsightLimit: 5,
	}
}

// Validate checks the configuration for consistency.
func (c *DomainConfig) Validate() error {
	if c.RiskThreshold <= 0 {
		return fmt.Errorf("risk threshold must be positive, got %s", c.RiskThreshold)
	}
	if c.StaleThreshold <= c.RiskThreshold {
		return fmt.Errorf("stale threshold (%s) must exceed risk threshold (%s)", c.StaleThreshold, c.RiskThreshold)
	}
	if c.LowConfidenceThreshold < 0 || c.LowConfidenceThreshold > 100 {
		return fmt.Errorf("low confidence threshold must be within [0,100], got %d", c.LowConfidenceThreshold)
	}
	if c.MinTitleLength < 1 || c.MaxTitleLength < c.MinTitleLength {
		return fmt.Errorf("invalid title length bounds [%d,%d]", c.MinTitleLength, c.MaxTitleLength)
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("invalid page size bounds default=%d max=%d", c.DefaultPageSize, c.MaxPageSize)
	}
	return nil
}
