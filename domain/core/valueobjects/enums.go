package valueobjects

import (
	pkgerrors "decivue/pkg/errors"
)

// Category is the health area a decision belongs to.
type Category string

const (
	CategoryNutrition    Category = "nutrition"
	CategoryFitness      Category = "fitness"
	CategorySleep        Category = "sleep"
	CategoryMentalHealth Category = "mental_health"
	CategoryLifestyle    Category = "lifestyle"
	CategoryMedical      Category = "medical"
)

var categories = []Category{
	CategoryNutrition, CategoryFitness, CategorySleep,
	CategoryMentalHealth, CategoryLifestyle, CategoryMedical,
}

// Categories lists every valid category.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func ParseCategory(s string) (Category, error) {
	for _, c := range categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", invalidEnum("category", s)
}

// Level is the ordinal scale used for perceived risk and impact.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

var levelRank = map[Level]int{
	LevelLow:      1,
	LevelMedium:   2,
	LevelHigh:     3,
	LevelCritical: 4,
}

func ParseLevel(field, s string) (Level, error) {
	l := Level(s)
	if _, ok := levelRank[l]; !ok {
		return "", invalidEnum(field, s)
	}
	return l, nil
}

// Rank orders levels from low (1) to critical (4).
func (l Level) Rank() int { return levelRank[l] }

// Severity grades an insight.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return Severity(s), nil
	}
	return "", invalidEnum("severity", s)
}

// ReviewAction is an explicit user review of a decision.
type ReviewAction string

const (
	ActionReaffirm   ReviewAction = "reaffirm"
	ActionRevise     ReviewAction = "revise"
	ActionInvalidate ReviewAction = "invalidate"
)

func ParseReviewAction(s string) (ReviewAction, error) {
	if s == "" {
		return "", pkgerrors.NewValidationError("review action is required").
			WithCode(pkgerrors.CodeMissingAction)
	}
	switch ReviewAction(s) {
	case ActionReaffirm, ActionRevise, ActionInvalidate:
		return ReviewAction(s), nil
	}
	return "", invalidEnum("action", s)
}

// RequiresConfidence reports whether the action carries a new confidence.
func (a ReviewAction) RequiresConfidence() bool {
	return a == ActionReaffirm || a == ActionRevise
}

// EventKind names an entry of the decision audit log.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventReaffirmed  EventKind = "reaffirmed"
	EventRevised     EventKind = "revised"
	EventInvalidated EventKind = "invalidated"
)

func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case EventCreated, EventReaffirmed, EventRevised, EventInvalidated:
		return EventKind(s), nil
	}
	return "", invalidEnum("event_type", s)
}

// EventKindFor maps a review action to the event it records.
func EventKindFor(a ReviewAction) EventKind {
	switch a {
	case ActionReaffirm:
		return EventReaffirmed
	case ActionRevise:
		return EventRevised
	default:
		return EventInvalidated
	}
}

func invalidEnum(field, value string) *pkgerrors.AppError {
	return pkgerrors.NewValidationErrorf("unknown %s %q", field, value).
		WithCode(pkgerrors.CodeInvalidEnum).
		WithDetail("field", field).
		WithDetail("value", value)
}

