package memory

import (
	"context"
	"sort"
	"sync"

	"decivue/application/ports"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"
	pkgerrors "decivue/pkg/errors"
)

type logEntry struct {
	event     events.DecisionEvent
	seq       int
	published bool
	attempts  int
	lastError string
}

func (e logEntry) pending() bool {
	return !e.published && e.attempts < ports.MaxPublishAttempts
}

// EventLog is an append-only decision audit log with outbox tracking.
type EventLog struct {
	mu      sync.RWMutex
	entries []logEntry
	byID    map[string]int
}

func NewEventLog() *EventLog {
	return &EventLog{byID: make(map[string]int)}
}

var (
	_ ports.DecisionEventLog = (*EventLog)(nil)
	_ ports.OutboxStore      = (*EventLog)(nil)
)

// Append stores all entries or none.
func (l *EventLog) Append(ctx context.Context, entries []events.DecisionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range entries {
		if _, dup := l.byID[e.ID]; dup {
			return pkgerrors.NewConflictError("event " + e.ID + " already recorded")
		}
	}
	for _, e := range entries {
		l.byID[e.ID] = len(l.entries)
		l.entries = append(l.entries, logEntry{event: e, seq: len(l.entries)})
	}
	return nil
}

// ListByDecision returns entries newest first. Entries recorded at the
// same instant keep reverse insertion order.
func (l *EventLog) ListByDecision(ctx context.Context, decisionID valueobjects.DecisionID) ([]events.DecisionEvent, error) {
	l.mu.RLock()
	var matched []logEntry
	for _, e := range l.entries {
		if e.event.DecisionID == decisionID.String() {
			matched = append(matched, e)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.event.CreatedAt.Equal(b.event.CreatedAt) {
			return a.event.CreatedAt.After(b.event.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]events.DecisionEvent, len(matched))
	for i, e := range matched {
		out[i] = e.event
	}
	return out, nil
}

func (l *EventLog) PendingEvents(ctx context.Context, limit int) ([]events.DecisionEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []events.DecisionEvent
	for _, e := range l.entries {
		if !e.pending() {
			continue
		}
		out = append(out, e.event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *EventLog) MarkPublished(ctx context.Context, eventIDs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range eventIDs {
		if idx, ok := l.byID[id]; ok {
			l.entries[idx].published = true
		}
	}
	return nil
}

func (l *EventLog) MarkFailed(ctx context.Context, eventID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.byID[eventID]
	if !ok {
		return pkgerrors.NewNotFoundError("event")
	}
	l.entries[idx].attempts++
	l.entries[idx].lastError = reason
	return nil
}
