package dynamodb

import (
	"context"
	"sort"

	"decivue/application/ports"
	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// batchWriteLimit is the DynamoDB limit of items per BatchWriteItem call.
const batchWriteLimit = 25

// AssumptionRepository stores assumptions under their decision's partition.
type AssumptionRepository struct {
	client    *dynamodb.Client
	tableName string
}

func NewAssumptionRepository(client *dynamodb.Client, tableName string) *AssumptionRepository {
	return &AssumptionRepository{client: client, tableName: tableName}
}

var _ ports.AssumptionRepository = (*AssumptionRepository)(nil)

func (r *AssumptionRepository) Save(ctx context.Context, a *entities.Assumption) error {
	av, err := attributevalue.MarshalMap(assumptionItem{
		PK:             decisionPK(a.DecisionID().String()),
		SK:             assumptionSK(a.ID().String()),
		EntityType:     entityAssumption,
		AssumptionID:   a.ID().String(),
		DecisionID:     a.DecisionID().String(),
		Content:        a.Content(),
		IsValidated:    a.IsValidated(),
		ValidationDate: formatOptionalTime(a.ValidationDate()),
		CreatedAt:      formatTime(a.CreatedAt()),
	})
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal assumption")
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return pkgerrors.NewDatabaseError("save assumption", err)
	}
	return nil
}

func (r *AssumptionRepository) GetByID(ctx context.Context, decisionID valueobjects.DecisionID, id valueobjects.AssumptionID) (*entities.Assumption, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: decisionPK(decisionID.String())},
			"SK": &types.AttributeValueMemberS{Value: assumptionSK(id.String())},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get assumption", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("assumption")
	}
	return unmarshalAssumption(result.Item)
}

// ListByDecision returns assumptions oldest first.
func (r *AssumptionRepository) ListByDecision(ctx context.Context, decisionID valueobjects.DecisionID) ([]*entities.Assumption, error) {
	items, err := r.queryDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	out := make([]*entities.Assumption, 0, len(items))
	for _, item := range items {
		a, err := unmarshalAssumption(item)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

func (r *AssumptionRepository) DeleteByDecision(ctx context.Context, decisionID valueobjects.DecisionID) error {
	items, err := r.queryDecision(ctx, decisionID)
	if err != nil {
		return err
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]},
			},
		})
	}

	for i := 0; i < len(requests); i += batchWriteLimit {
		end := i + batchWriteLimit
		if end > len(requests) {
			end = len(requests)
		}
		result, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{r.tableName: requests[i:end]},
		})
		if err != nil {
			return pkgerrors.NewDatabaseError("delete assumptions", err)
		}
		if n := len(result.UnprocessedItems[r.tableName]); n > 0 {
			return pkgerrors.NewDatabaseError("delete assumptions", errUnprocessed(n))
		}
	}
	return nil
}

func (r *AssumptionRepository) queryDecision(ctx context.Context, decisionID valueobjects.DecisionID) ([]map[string]types.AttributeValue, error) {
	keyEx := expression.Key("PK").Equal(expression.Value(decisionPK(decisionID.String()))).
		And(expression.Key("SK").BeginsWith("ASSUMPTION#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to build query expression")
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list assumptions", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func unmarshalAssumption(av map[string]types.AttributeValue) (*entities.Assumption, error) {
	var item assumptionItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal assumption")
	}
	validated, err := parseOptionalTime(item.ValidationDate)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructAssumption(item.AssumptionID, item.DecisionID, item.Content, item.IsValidated, validated, created)
}

// InsightRepository stores insights under their owner's partition.
type InsightRepository struct {
	client    *dynamodb.Client
	tableName string
}

func NewInsightRepository(client *dynamodb.Client, tableName string) *InsightRepository {
	return &InsightRepository{client: client, tableName: tableName}
}

var _ ports.InsightRepository = (*InsightRepository)(nil)

func (r *InsightRepository) Save(ctx context.Context, i *entities.Insight) error {
	p := i.Params()
	av, err := attributevalue.MarshalMap(insightItem{
		PK:          userPK(p.UserID),
		SK:          insightSK(p.ID),
		EntityType:  entityInsight,
		InsightID:   p.ID,
		UserID:      p.UserID,
		DecisionID:  p.DecisionID,
		InsightType: p.InsightType,
		Severity:    p.Severity,
		Title:       p.Title,
		Message:     p.Message,
		IsDismissed: p.IsDismissed,
		CreatedAt:   formatTime(p.CreatedAt),
		DismissedAt: formatOptionalTime(p.DismissedAt),
	})
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal insight")
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return pkgerrors.NewDatabaseError("save insight", err)
	}
	return nil
}

func (r *InsightRepository) GetByID(ctx context.Context, userID string, id valueobjects.InsightID) (*entities.Insight, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: insightSK(id.String())},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get insight", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("insight")
	}
	return unmarshalInsight(result.Item)
}

func (r *InsightRepository) ListForUser(ctx context.Context, userID string, filter ports.InsightFilter) ([]*entities.Insight, error) {
	keyEx := expression.Key("PK").Equal(expression.Value(userPK(userID))).
		And(expression.Key("SK").BeginsWith("INSIGHT#"))
	builder := expression.NewBuilder().WithKeyCondition(keyEx)

	var conds []expression.ConditionBuilder
	if !filter.IncludeDismissed {
		conds = append(conds, expression.Name("IsDismissed").Equal(expression.Value(false)))
	}
	if filter.DecisionID != nil {
		conds = append(conds, expression.Name("DecisionID").Equal(expression.Value(filter.DecisionID.String())))
	}
	switch len(conds) {
	case 1:
		builder = builder.WithFilter(conds[0])
	case 2:
		builder = builder.WithFilter(expression.And(conds[0], conds[1]))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to build query expression")
	}

	var out []*entities.Insight
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list insights", err)
		}
		for _, item := range page.Items {
			ins, err := unmarshalInsight(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ins)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func unmarshalInsight(av map[string]types.AttributeValue) (*entities.Insight, error) {
	var item insightItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal insight")
	}
	created, err := parseTime(item.CreatedAt)
	if err != nil {
		return nil, err
	}
	dismissed, err := parseOptionalTime(item.DismissedAt)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructInsight(entities.InsightParams{
		ID:          item.InsightID,
		UserID:      item.UserID,
		DecisionID:  item.DecisionID,
		InsightType: item.InsightType,
		Severity:    item.Severity,
		Title:       item.Title,
		Message:     item.Message,
		IsDismissed: item.IsDismissed,
		CreatedAt:   created,
		DismissedAt: dismissed,
	})
}
