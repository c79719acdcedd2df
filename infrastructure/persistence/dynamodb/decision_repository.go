package dynamodb

import (
	"context"
	"errors"
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
	"go.uber.org/zap"
)

// DecisionRepository implements ports.DecisionRepository on DynamoDB.
// Updates are conditional on the Version attribute.
type DecisionRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

func NewDecisionRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *DecisionRepository {
	return &DecisionRepository{client: client, tableName: tableName, logger: logger}
}

var _ ports.DecisionRepository = (*DecisionRepository)(nil)

func (r *DecisionRepository) Save(ctx context.Context, decision *entities.Decision) error {
	av, err := attributevalue.MarshalMap(toDecisionItem(decision.Snapshot()))
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal decision")
	}

	var condition expression.ConditionBuilder
	if decision.IsNew() {
		condition = expression.AttributeNotExists(expression.Name("PK"))
	} else {
		condition = expression.Name("Version").Equal(expression.Value(decision.OriginalVersion()))
	}
	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to build condition expression")
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return pkgerrors.NewDatabaseError("save decision", err)
	}
	if decision.IsNew() {
		return pkgerrors.NewConflictError("decision already exists")
	}

	current, getErr := r.GetByID(ctx, decision.UserID(), decision.ID())
	if getErr != nil {
		return getErr
	}
	r.logger.Debug("Optimistic lock rejected decision update",
		zap.String("decisionID", decision.ID().String()),
		zap.Int("expected", decision.OriginalVersion()),
		zap.Int("actual", current.Version()),
	)
	return pkgerrors.NewConcurrencyConflictError("decision", decision.OriginalVersion(), current.Version())
}

func (r *DecisionRepository) GetByID(ctx context.Context, userID string, id valueobjects.DecisionID) (*entities.Decision, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: decisionSK(id.String())},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get decision", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("decision")
	}
	return unmarshalDecision(result.Item)
}

func (r *DecisionRepository) List(ctx context.Context, userID string, filter ports.DecisionFilter) ([]*entities.Decision, error) {
	keyEx := expression.Key("PK").Equal(expression.Value(userPK(userID))).
		And(expression.Key("SK").BeginsWith("DECISION#"))
	builder := expression.NewBuilder().WithKeyCondition(keyEx)
	if filter.Category != nil {
		builder = builder.WithFilter(expression.Name("Category").Equal(expression.Value(string(*filter.Category))))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to build query expression")
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var out []*entities.Decision
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list decisions", err)
		}
		for _, item := range page.Items {
			d, err := unmarshalDecision(item)
			if err != nil {
				return nil, err
			}
			if d.Content().Matches(filter.Search) {
				out = append(out, d)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt().After(out[j].CreatedAt())
	})
	return out, nil
}

func (r *DecisionRepository) Delete(ctx context.Context, userID string, id valueobjects.DecisionID) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: decisionSK(id.String())},
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewNotFoundError("decision")
		}
		return pkgerrors.NewDatabaseError("delete decision", err)
	}
	return nil
}

func unmarshalDecision(av map[string]types.AttributeValue) (*entities.Decision, error) {
	var item decisionItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal decision")
	}
	snap, err := item.snapshot()
	if err != nil {
		return nil, err
	}
	return entities.ReconstructDecision(snap)
}
