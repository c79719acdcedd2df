package valueobjects

import (
	"strings"
	"unicode/utf8"

	"decivue/domain/config"
	pkgerrors "decivue/pkg/errors"
)

// DecisionContent groups the free-text fields of a decision.
type DecisionContent struct {
	title        string
	description  string
	context      string
	reasoning    string
	decisionType string
}

// NewDecisionContent validates content using the default configuration.
func NewDecisionContent(title, description, context, reasoning, decisionType string) (DecisionContent, error) {
	return NewDecisionContentWithConfig(title, description, context, reasoning, decisionType, config.DefaultDomainConfig())
}

// NewDecisionContentWithConfig validates content against cfg.
func NewDecisionContentWithConfig(title, description, context, reasoning, decisionType string, cfg *config.DomainConfig) (DecisionContent, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	context = strings.TrimSpace(context)
	reasoning = strings.TrimSpace(reasoning)
	decisionType = strings.TrimSpace(decisionType)

	if title == "" {
		return DecisionContent{}, pkgerrors.NewValidationError("title cannot be empty")
	}
	n := utf8.RuneCountInString(title)
	if n < cfg.MinTitleLength {
		return DecisionContent{}, pkgerrors.NewValidationErrorf("title too short: minimum %d characters required", cfg.MinTitleLength)
	}
	if n > cfg.MaxTitleLength {
		return DecisionContent{}, pkgerrors.NewValidationErrorf("title exceeds maximum length of %d characters", cfg.MaxTitleLength)
	}

	limits := []struct {
		field string
		value string
		max   int
	}{
		{"description", description, cfg.MaxDescriptionLength},
		{"context", context, cfg.MaxContextLength},
		{"reasoning", reasoning, cfg.MaxReasoningLength},
		{"decision_type", decisionType, cfg.MaxDecisionTypeLength},
	}
	for _, l := range limits {
		if utf8.RuneCountInString(l.value) > l.max {
			return DecisionContent{}, pkgerrors.NewValidationErrorf("%s exceeds maximum length of %d characters", l.field, l.max)
		}
	}

	return DecisionContent{
		title:        title,
		description:  description,
		context:      context,
		reasoning:    reasoning,
		decisionType: decisionType,
	}, nil
}

// RestoreDecisionContent rebuilds content loaded from storage without
// re-validating it.
func RestoreDecisionContent(title, description, context, reasoning, decisionType string) DecisionContent {
	return DecisionContent{
		title:        title,
		description:  description,
		context:      context,
		reasoning:    reasoning,
		decisionType: decisionType,
	}
}

func (c DecisionContent) Title() string        { return c.title }
func (c DecisionContent) Description() string  { return c.description }
func (c DecisionContent) Context() string      { return c.context }
func (c DecisionContent) Reasoning() string    { return c.reasoning }
func (c DecisionContent) DecisionType() string { return c.decisionType }

// Matches reports whether the case-insensitive term occurs in the title or
// description.
func (c DecisionContent) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.title), term) ||
		strings.Contains(strings.ToLower(c.description), term)
}

// Summary returns the title and description truncated to maxLength runes.
func (c DecisionContent) Summary(maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	combined := c.title
	if c.description != "" {
		combined += ": " + c.description
	}
	if utf8.RuneCountInString(combined) <= maxLength {
		return combined
	}
	if maxLength <= 3 {
		return string([]rune(combined)[:maxLength])
	}
	runes := []rune(combined)
	return string(runes[:maxLength-3]) + "..."
}
