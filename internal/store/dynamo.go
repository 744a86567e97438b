package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sweeney/thermo-calibrator/internal/logic"
)

// KeyAttribute is the table's partition key.
const KeyAttribute = "location_key"

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Dynamo keeps one item per location in a DynamoDB table.
type Dynamo struct {
	client DynamoAPI
	table  string
	prefix string
	now    func() time.Time
}

type record struct {
	Key       string              `dynamodbav:"location_key"`
	Location  string              `dynamodbav:"location"`
	State     logic.LocationState `dynamodbav:"state"`
	UpdatedAt int64               `dynamodbav:"updated_at"`
}

// NewDynamo creates a store on table using client.
func NewDynamo(client DynamoAPI, table, prefix string) (*Dynamo, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is not initialized")
	}
	if table == "" {
		return nil, errors.New("dynamodb table name is not set")
	}
	return &Dynamo{client: client, table: table, prefix: prefix, now: time.Now}, nil
}

// NewDynamoClient loads the default AWS configuration (environment, shared
// config, instance role) and returns a DynamoDB client.
func NewDynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func (d *Dynamo) key(location string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		KeyAttribute: &types.AttributeValueMemberS{Value: d.prefix + location},
	}
}

// Get returns the stored state or an empty one.
func (d *Dynamo) Get(ctx context.Context, location string) (logic.LocationState, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            d.key(location),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return logic.LocationState{}, fmt.Errorf("get location state: %w", err)
	}
	if len(out.Item) == 0 {
		return logic.LocationState{Sensors: map[string]logic.Reading{}}, nil
	}

	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return logic.LocationState{}, fmt.Errorf("unmarshal location state: %w", err)
	}
	if rec.State.Sensors == nil {
		rec.State.Sensors = map[string]logic.Reading{}
	}
	return rec.State, nil
}

// Put replaces the stored state in a single PutItem.
func (d *Dynamo) Put(ctx context.Context, location string, state logic.LocationState) error {
	item, err := attributevalue.MarshalMap(record{
		Key:       d.prefix + location,
		Location:  location,
		State:     state,
		UpdatedAt: d.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal location state: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put location state: %w", err)
	}
	return nil
}
