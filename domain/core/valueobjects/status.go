package valueobjects

// Status is the lifecycle state of a decision.
type Status string

const (
	StatusFresh       Status = "fresh"
	StatusStable      Status = "stable"
	StatusAtRisk      Status = "at_risk"
	StatusStale       Status = "stale"
	StatusInvalidated Status = "invalidated"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusFresh, StatusStable, StatusAtRisk, StatusStale, StatusInvalidated}
}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", invalidEnum("status", s)
}

func (s Status) String() string { return string(s) }

// IsTerminal is true only for invalidated.
func (s Status) IsTerminal() bool { return s == StatusInvalidated }

// IsHealthy is true for fresh and stable.
func (s Status) IsHealthy() bool { return s == StatusFresh || s == StatusStable }

// NeedsReview is true for at_risk and stale.
func (s Status) NeedsReview() bool { return s == StatusAtRisk || s == StatusStale }

// decayRank orders statuses along the passive decay path. Decay may only
// increase the rank.
func (s Status) decayRank() int {
	switch s {
	case StatusFresh, StatusStable:
		return 0
	case StatusAtRisk:
		return 1
	case StatusStale:
		return 2
	default:
		return 3
	}
}

// DecaysTo reports whether moving from s to next is a forward step along
// the passive decay path (or no step at all).
func (s Status) DecaysTo(next Status) bool {
	return next.decayRank() >= s.decayRank()
}
