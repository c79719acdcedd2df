package supabase

import (
	"context"
	"time"

	"decivue/application/ports"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"
	pkgerrors "decivue/pkg/errors"

	supa "github.com/supabase-community/supabase-go"
)

type eventRecord struct {
	ID               string                 `json:"id"`
	DecisionID       string                 `json:"decision_id"`
	UserID           string                 `json:"user_id"`
	EventType        string                 `json:"event_type"`
	Description      string                 `json:"description"`
	ConfidenceChange int                    `json:"confidence_change"`
	PreviousStatus   *string                `json:"previous_status"`
	NewStatus        string                 `json:"new_status"`
	Metadata         map[string]interface{} `json:"metadata"`
	Version          int                    `json:"version"`
	CreatedAt        time.Time              `json:"created_at"`
}

type outboxRecord struct {
	ID              string `json:"id"`
	PublishAttempts int    `json:"publish_attempts"`
}

func toEventRecord(e events.DecisionEvent) eventRecord {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	r := eventRecord{
		ID:               e.ID,
		DecisionID:       e.DecisionID,
		UserID:           e.UserID,
		EventType:        string(e.Kind),
		Description:      e.Description,
		ConfidenceChange: e.ConfidenceChange,
		NewStatus:        string(e.NewStatus),
		Metadata:         meta,
		Version:          e.GetVersion(),
		CreatedAt:        e.CreatedAt.UTC(),
	}
	if e.PreviousStatus != nil {
		s := string(*e.PreviousStatus)
		r.PreviousStatus = &s
	}
	return r
}

func (r eventRecord) toEvent() (events.DecisionEvent, error) {
	kind, err := valueobjects.ParseEventKind(r.EventType)
	if err != nil {
		return events.DecisionEvent{}, err
	}
	next, err := valueobjects.ParseStatus(r.NewStatus)
	if err != nil {
		return events.DecisionEvent{}, err
	}
	at := r.CreatedAt.UTC()
	e := events.DecisionEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: r.DecisionID,
			EventType:   "decision." + r.EventType,
			Timestamp:   at,
			Version:     r.Version,
		},
		ID:               r.ID,
		DecisionID:       r.DecisionID,
		UserID:           r.UserID,
		Kind:             kind,
		Description:      r.Description,
		ConfidenceChange: r.ConfidenceChange,
		NewStatus:        next,
		CreatedAt:        at,
	}
	if len(r.Metadata) > 0 {
		e.Metadata = r.Metadata
	}
	if r.PreviousStatus != nil {
		prev, err := valueobjects.ParseStatus(*r.PreviousStatus)
		if err != nil {
			return events.DecisionEvent{}, err
		}
		e.PreviousStatus = &prev
	}
	return e, nil
}

// EventLog implements ports.DecisionEventLog and ports.OutboxStore over
// the decision_events table.
type EventLog struct {
	client *supa.Client
}

func NewEventLog(client *supa.Client) *EventLog {
	return &EventLog{client: client}
}

var (
	_ ports.DecisionEventLog = (*EventLog)(nil)
	_ ports.OutboxStore      = (*EventLog)(nil)
)

// Append inserts the entries in a single request, which PostgREST runs in
// one transaction.
func (l *EventLog) Append(ctx context.Context, entries []events.DecisionEvent) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]eventRecord, len(entries))
	for i, e := range entries {
		records[i] = toEventRecord(e)
	}
	if _, _, err := l.client.From(tableEvents).Insert(records, false, "", "minimal", "").Execute(); err != nil {
		if isDuplicate(err) {
			return pkgerrors.NewConflictError("event already recorded")
		}
		return restError("append events", err)
	}
	return nil
}

// ListByDecision returns entries newest first.
func (l *EventLog) ListByDecision(ctx context.Context, decisionID valueobjects.DecisionID) ([]events.DecisionEvent, error) {
	var rows []eventRecord
	_, err := l.client.From(tableEvents).
		Select(eventColumns, "", false).
		Eq("decision_id", decisionID.String()).
		Order("created_at", newestFirst).
		Order("seq", newestFirst).
		ExecuteTo(&rows)
	if err != nil {
		return nil, restError("list events", err)
	}
	return toEvents(rows)
}

const eventColumns = "id,decision_id,user_id,event_type,description,confidence_change,previous_status,new_status,metadata,version,created_at"

func (l *EventLog) PendingEvents(ctx context.Context, limit int) ([]events.DecisionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []eventRecord
	_, err := l.client.From(tableEvents).
		Select(eventColumns, "", false).
		Eq("publish_status", "pending").
		Order("seq", oldestFirst).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, restError("query pending events", err)
	}
	return toEvents(rows)
}

func (l *EventLog) MarkPublished(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, _, err := l.client.From(tableEvents).
		Update(map[string]interface{}{
			"publish_status": "published",
			"published_at":   time.Now().UTC(),
		}, "minimal", "").
		In("id", eventIDs).
		Execute()
	if err != nil {
		return restError("mark events published", err)
	}
	return nil
}

// MarkFailed reads the attempt counter and writes it back incremented.
// Only the outbox lease holder calls it, so the read-modify-write does not
// race.
func (l *EventLog) MarkFailed(ctx context.Context, eventID, reason string) error {
	var rows []outboxRecord
	_, err := l.client.From(tableEvents).
		Select("id,publish_attempts", "", false).
		Eq("id", eventID).
		ExecuteTo(&rows)
	if err != nil {
		return restError("get event", err)
	}
	if len(rows) == 0 {
		return pkgerrors.NewNotFoundError("event")
	}

	attempts := rows[0].PublishAttempts + 1
	update := map[string]interface{}{
		"publish_attempts": attempts,
		"last_error":       reason,
	}
	if attempts >= ports.MaxPublishAttempts {
		update["publish_status"] = "failed"
	}
	if _, _, err := l.client.From(tableEvents).Update(update, "minimal", "").Eq("id", eventID).Execute(); err != nil {
		return restError("mark event failed", err)
	}
	return nil
}

func toEvents(rows []eventRecord) ([]events.DecisionEvent, error) {
	out := make([]events.DecisionEvent, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEvent()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
