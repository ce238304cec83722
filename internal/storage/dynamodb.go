package storage

import (
	"context"
	"errors"
	"time"

	apperrors "gameflow/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const (
	dynamoPK = "FLOW#default"
	dynamoSK = "SNAPSHOT"
)

// DynamoDBAPI is the subset of the DynamoDB client the repository uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

type flowItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Body      string `dynamodbav:"Body"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
	Version   int64  `dynamodbav:"Version"`
}

// DynamoDBRepository keeps the snapshot as one item in a DynamoDB table.
type DynamoDBRepository struct {
	client    DynamoDBAPI
	tableName string
	logger    *zap.Logger
}

// NewDynamoDBRepository uses tableName through client.
func NewDynamoDBRepository(client DynamoDBAPI, tableName string, logger *zap.Logger) *DynamoDBRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoDBRepository{client: client, tableName: tableName, logger: logger.Named("dynamodb-store")}
}

func (r *DynamoDBRepository) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: dynamoPK},
		"SK": &types.AttributeValueMemberS{Value: dynamoSK},
	}
}

// Load implements FlowRepository.
func (r *DynamoDBRepository) Load(ctx context.Context) (Snapshot, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            r.key(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Snapshot{}, r.translate("load flow", err)
	}
	if len(out.Item) == 0 {
		return Snapshot{}, notFound()
	}

	var item flowItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return Snapshot{}, apperrors.NewDatabaseError("unmarshal flow item", err)
	}

	s, err := decodeSnapshot([]byte(item.Body))
	if err != nil {
		r.logger.Warn("Ignoring unreadable snapshot item", zap.Int64("version", item.Version), zap.Error(err))
		return Snapshot{}, notFound()
	}
	return s, nil
}

// Save implements FlowRepository.
func (r *DynamoDBRepository) Save(ctx context.Context, s Snapshot) error {
	body, err := encodeSnapshot(s)
	if err != nil {
		return apperrors.Wrap(err, "encode flow")
	}

	update := expression.Set(expression.Name("Body"), expression.Value(string(body))).
		Set(expression.Name("UpdatedAt"), expression.Value(s.UpdatedAt.UTC().Format(time.RFC3339Nano))).
		Add(expression.Name("Version"), expression.Value(1))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return apperrors.Wrap(err, "build update expression")
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       r.key(),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return r.translate("save flow", err)
	}
	return nil
}

// Close implements FlowRepository.
func (r *DynamoDBRepository) Close() error { return nil }

func (r *DynamoDBRepository) translate(op string, err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ResourceNotFoundException":
			return apperrors.NewUnavailableError("dynamodb table " + r.tableName).WithCause(err)
		case "ProvisionedThroughputExceededException", "ThrottlingException":
			return apperrors.NewUnavailableError("dynamodb").WithCause(err)
		}
	}
	return apperrors.NewDatabaseError(op, err)
}
