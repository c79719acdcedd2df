package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"decivue/application/ports"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"
	pkgerrors "decivue/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PublishStatus represents the publishing status of an event
type PublishStatus string

const (
	PublishStatusPending   PublishStatus = "pending"   // saved but not yet published
	PublishStatusPublished PublishStatus = "published" // delivered to the event bus
	PublishStatusFailed    PublishStatus = "failed"    // gave up after MaxPublishAttempts
)

// transactWriteLimit is the DynamoDB limit of items per transaction.
const transactWriteLimit = 100

// EventRecord is how decision events are stored, with outbox fields.
type EventRecord struct {
	PK               string                 `dynamodbav:"PK"`
	SK               string                 `dynamodbav:"SK"`
	EntityType       string                 `dynamodbav:"EntityType"`
	EventID          string                 `dynamodbav:"EventID"`
	EventType        string                 `dynamodbav:"EventType"`
	DecisionID       string                 `dynamodbav:"DecisionID"`
	UserID           string                 `dynamodbav:"UserID"`
	Description      string                 `dynamodbav:"Description"`
	ConfidenceChange int                    `dynamodbav:"ConfidenceChange"`
	PreviousStatus   *string                `dynamodbav:"PreviousStatus,omitempty"`
	NewStatus        string                 `dynamodbav:"NewStatus"`
	Metadata         map[string]interface{} `dynamodbav:"Metadata,omitempty"`
	CreatedAt        string                 `dynamodbav:"CreatedAt"`
	Version          int                    `dynamodbav:"Version"`

	// Outbox pattern fields
	PublishStatus   string `dynamodbav:"PublishStatus"`
	PublishAttempts int    `dynamodbav:"PublishAttempts"`
	LastPublishTry  string `dynamodbav:"LastPublishTry,omitempty"`
	PublishedAt     string `dynamodbav:"PublishedAt,omitempty"`
	ErrorMessage    string `dynamodbav:"ErrorMessage,omitempty"`

	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`

	// Sparse outbox index, removed once the event leaves the pending state.
	GSI2PK string `dynamodbav:"GSI2PK,omitempty"`
	GSI2SK string `dynamodbav:"GSI2SK,omitempty"`
}

// EventLog implements ports.DecisionEventLog and ports.OutboxStore.
type EventLog struct {
	client    *dynamodb.Client
	tableName string
	now       func() time.Time
}

func NewEventLog(client *dynamodb.Client, tableName string) *EventLog {
	return &EventLog{client: client, tableName: tableName, now: time.Now}
}

var (
	_ ports.DecisionEventLog = (*EventLog)(nil)
	_ ports.OutboxStore      = (*EventLog)(nil)
)

// Append writes all entries in one transaction. Every put is conditional
// on the event ID being new, so entries are never overwritten.
func (l *EventLog) Append(ctx context.Context, entries []events.DecisionEvent) error {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) > transactWriteLimit {
		return pkgerrors.NewValidationErrorf("cannot append more than %d events at once", transactWriteLimit)
	}

	items := make([]types.TransactWriteItem, 0, len(entries))
	for _, e := range entries {
		av, err := attributevalue.MarshalMap(toEventRecord(e))
		if err != nil {
			return pkgerrors.Wrap(err, "failed to marshal event record")
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(l.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			},
		})
	}

	_, err := l.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var cancelled *types.TransactionCanceledException
		if errors.As(err, &cancelled) {
			for _, reason := range cancelled.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
					return pkgerrors.NewConflictError("event already recorded")
				}
			}
		}
		return pkgerrors.NewDatabaseError("append events", err)
	}
	return nil
}

// ListByDecision returns entries newest first.
func (l *EventLog) ListByDecision(ctx context.Context, decisionID valueobjects.DecisionID) ([]events.DecisionEvent, error) {
	keyEx := expression.Key("GSI1PK").Equal(expression.Value(decisionPK(decisionID.String())))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to build query expression")
	}

	var out []events.DecisionEvent
	paginator := dynamodb.NewQueryPaginator(l.client, &dynamodb.QueryInput{
		TableName:                 aws.String(l.tableName),
		IndexName:                 aws.String(gsiDecisionLog),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list events", err)
		}
		for _, item := range page.Items {
			e, err := unmarshalEvent(item)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// PendingEvents reads the sparse outbox index oldest first.
func (l *EventLog) PendingEvents(ctx context.Context, limit int) ([]events.DecisionEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	keyEx := expression.Key("GSI2PK").Equal(expression.Value(outboxPartition))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to build query expression")
	}

	result, err := l.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(l.tableName),
		IndexName:                 aws.String(gsiOutbox),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
		Limit:                     aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("query pending events", err)
	}

	out := make([]events.DecisionEvent, 0, len(result.Items))
	for _, item := range result.Items {
		e, err := unmarshalEvent(item)
		if err != nil {
			continue // skip malformed records
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *EventLog) MarkPublished(ctx context.Context, eventIDs []string) error {
	now := formatTime(l.now())
	for _, id := range eventIDs {
		update := expression.Set(expression.Name("PublishStatus"), expression.Value(string(PublishStatusPublished))).
			Set(expression.Name("PublishedAt"), expression.Value(now)).
			Remove(expression.Name("GSI2PK")).
			Remove(expression.Name("GSI2SK"))
		if err := l.updateEvent(ctx, id, update); err != nil {
			return err
		}
	}
	return nil
}

// MarkFailed counts the attempt and takes the event out of the outbox
// once it reaches MaxPublishAttempts.
func (l *EventLog) MarkFailed(ctx context.Context, eventID, reason string) error {
	result, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.tableName),
		Key:       eventKey(eventID),
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("get event", err)
	}
	if result.Item == nil {
		return pkgerrors.NewNotFoundError("event")
	}
	var record EventRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return pkgerrors.Wrap(err, "failed to unmarshal event record")
	}

	attempts := record.PublishAttempts + 1
	update := expression.Set(expression.Name("PublishAttempts"), expression.Value(attempts)).
		Set(expression.Name("LastPublishTry"), expression.Value(formatTime(l.now()))).
		Set(expression.Name("ErrorMessage"), expression.Value(reason))
	if attempts >= ports.MaxPublishAttempts {
		update = update.Set(expression.Name("PublishStatus"), expression.Value(string(PublishStatusFailed))).
			Remove(expression.Name("GSI2PK")).
			Remove(expression.Name("GSI2SK"))
	}
	return l.updateEvent(ctx, eventID, update)
}

func (l *EventLog) updateEvent(ctx context.Context, eventID string, update expression.UpdateBuilder) error {
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to build update expression")
	}
	_, err = l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(l.tableName),
		Key:                       eventKey(eventID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewNotFoundError("event")
		}
		return pkgerrors.NewDatabaseError("update event", err)
	}
	return nil
}

func eventKey(eventID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: eventPK(eventID)},
		"SK": &types.AttributeValueMemberS{Value: entityEvent},
	}
}

func toEventRecord(e events.DecisionEvent) EventRecord {
	sortKey := eventSortKey(e.CreatedAt, e.ID)
	r := EventRecord{
		PK:               eventPK(e.ID),
		SK:               entityEvent,
		EntityType:       entityEvent,
		EventID:          e.ID,
		EventType:        e.GetEventType(),
		DecisionID:       e.DecisionID,
		UserID:           e.UserID,
		Description:      e.Description,
		ConfidenceChange: e.ConfidenceChange,
		NewStatus:        string(e.NewStatus),
		Metadata:         e.Metadata,
		CreatedAt:        formatTime(e.CreatedAt),
		Version:          e.GetVersion(),
		PublishStatus:    string(PublishStatusPending),
		GSI1PK:           decisionPK(e.DecisionID),
		GSI1SK:           sortKey,
		GSI2PK:           outboxPartition,
		GSI2SK:           sortKey,
	}
	if e.PreviousStatus != nil {
		s := string(*e.PreviousStatus)
		r.PreviousStatus = &s
	}
	return r
}

func unmarshalEvent(av map[string]types.AttributeValue) (events.DecisionEvent, error) {
	var record EventRecord
	if err := attributevalue.UnmarshalMap(av, &record); err != nil {
		return events.DecisionEvent{}, pkgerrors.Wrap(err, "failed to unmarshal event record")
	}
	return record.toEvent()
}

func (r EventRecord) toEvent() (events.DecisionEvent, error) {
	at, err := parseTime(r.CreatedAt)
	if err != nil {
		return events.DecisionEvent{}, err
	}
	kind, err := valueobjects.ParseEventKind(strings.TrimPrefix(r.EventType, "decision."))
	if err != nil {
		return events.DecisionEvent{}, err
	}
	next, err := valueobjects.ParseStatus(r.NewStatus)
	if err != nil {
		return events.DecisionEvent{}, err
	}
	e := events.DecisionEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: r.DecisionID,
			EventType:   r.EventType,
			Timestamp:   at,
			Version:     r.Version,
		},
		ID:               r.EventID,
		DecisionID:       r.DecisionID,
		UserID:           r.UserID,
		Kind:             kind,
		Description:      r.Description,
		ConfidenceChange: r.ConfidenceChange,
		NewStatus:        next,
		Metadata:         r.Metadata,
		CreatedAt:        at,
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

func errUnprocessed(n int) error {
	return fmt.Errorf("%d items left unprocessed", n)
}
