package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"decivue/application/ports"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"
	pkgerrors "decivue/pkg/errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type eventRow struct {
	ID               string         `db:"id"`
	DecisionID       string         `db:"decision_id"`
	UserID           string         `db:"user_id"`
	EventType        string         `db:"event_type"`
	Description      string         `db:"description"`
	ConfidenceChange int            `db:"confidence_change"`
	PreviousStatus   sql.NullString `db:"previous_status"`
	NewStatus        string         `db:"new_status"`
	Metadata         []byte         `db:"metadata"`
	Version          int            `db:"version"`
	CreatedAt        time.Time      `db:"created_at"`
}

const eventColumns = `id, decision_id, user_id, event_type, description, confidence_change,
	previous_status, new_status, metadata, version, created_at`

func toEventRow(e events.DecisionEvent) (eventRow, error) {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return eventRow{}, pkgerrors.Wrap(err, "failed to marshal event metadata")
	}
	row := eventRow{
		ID:               e.ID,
		DecisionID:       e.DecisionID,
		UserID:           e.UserID,
		EventType:        string(e.Kind),
		Description:      e.Description,
		ConfidenceChange: e.ConfidenceChange,
		NewStatus:        string(e.NewStatus),
		Metadata:         raw,
		Version:          e.GetVersion(),
		CreatedAt:        e.CreatedAt,
	}
	if e.PreviousStatus != nil {
		row.PreviousStatus = sql.NullString{String: string(*e.PreviousStatus), Valid: true}
	}
	return row, nil
}

func (r eventRow) toEvent() (events.DecisionEvent, error) {
	kind, err := valueobjects.ParseEventKind(r.EventType)
	if err != nil {
		return events.DecisionEvent{}, err
	}
	next, err := valueobjects.ParseStatus(r.NewStatus)
	if err != nil {
		return events.DecisionEvent{}, err
	}
	var meta map[string]interface{}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &meta); err != nil {
			return events.DecisionEvent{}, pkgerrors.Wrap(err, "failed to unmarshal event metadata")
		}
		if len(meta) == 0 {
			meta = nil
		}
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
		Metadata:         meta,
		CreatedAt:        at,
	}
	if r.PreviousStatus.Valid {
		prev, err := valueobjects.ParseStatus(r.PreviousStatus.String)
		if err != nil {
			return events.DecisionEvent{}, err
		}
		e.PreviousStatus = &prev
	}
	return e, nil
}

// EventLog implements ports.DecisionEventLog and ports.OutboxStore. The
// table rejects deletes and changes to recorded fields with a trigger.
type EventLog struct {
	db *sqlx.DB
}

func NewEventLog(db *sqlx.DB) *EventLog {
	return &EventLog{db: db}
}

var (
	_ ports.DecisionEventLog = (*EventLog)(nil)
	_ ports.OutboxStore      = (*EventLog)(nil)
)

// Append inserts all entries in one transaction.
func (l *EventLog) Append(ctx context.Context, entries []events.DecisionEvent) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return dbError("begin append", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		row, err := toEventRow(e)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO decision_events (`+eventColumns+`)
			VALUES (:id, :decision_id, :user_id, :event_type, :description, :confidence_change,
				:previous_status, :new_status, :metadata, :version, :created_at)`, row)
		if err != nil {
			if isUniqueViolation(err) {
				return pkgerrors.NewConflictError("event " + e.ID + " already recorded")
			}
			return dbError("append event", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return dbError("commit append", err)
	}
	return nil
}

// ListByDecision returns entries newest first.
func (l *EventLog) ListByDecision(ctx context.Context, decisionID valueobjects.DecisionID) ([]events.DecisionEvent, error) {
	var rows []eventRow
	err := l.db.SelectContext(ctx, &rows, `
		SELECT `+eventColumns+` FROM decision_events
		WHERE decision_id = $1
		ORDER BY created_at DESC, seq DESC`, decisionID.String())
	if err != nil {
		return nil, dbError("list events", err)
	}
	return toEvents(rows)
}

// PendingEvents returns unpublished entries in append order.
func (l *EventLog) PendingEvents(ctx context.Context, limit int) ([]events.DecisionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []eventRow
	err := l.db.SelectContext(ctx, &rows, `
		SELECT `+eventColumns+` FROM decision_events
		WHERE publish_status = 'pending'
		ORDER BY seq
		LIMIT $1`, limit)
	if err != nil {
		return nil, dbError("query pending events", err)
	}
	return toEvents(rows)
}

func (l *EventLog) MarkPublished(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := l.db.ExecContext(ctx, `
		UPDATE decision_events
		SET publish_status = 'published', published_at = NOW()
		WHERE id = ANY($1::uuid[])`, pq.Array(eventIDs))
	if err != nil {
		return dbError("mark events published", err)
	}
	return nil
}

// MarkFailed counts the attempt and moves the entry to failed once it
// reaches MaxPublishAttempts.
func (l *EventLog) MarkFailed(ctx context.Context, eventID, reason string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE decision_events
		SET publish_attempts = publish_attempts + 1,
			last_error = $2,
			publish_status = CASE WHEN publish_attempts + 1 >= $3 THEN 'failed' ELSE publish_status END
		WHERE id = $1`, eventID, reason, ports.MaxPublishAttempts)
	if err != nil {
		return dbError("mark event failed", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.NewNotFoundError("event")
	}
	return nil
}

func toEvents(rows []eventRow) ([]events.DecisionEvent, error) {
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
