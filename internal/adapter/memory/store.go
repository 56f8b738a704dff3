package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/notely/notely/internal/adapter"
)

const (
	kindFolder = "folder"
	kindNote   = "note"
)

// itemTTL bounds how long dev-mode records live in DynamoDB.
const itemTTL = 60 * time.Minute

// Item is the persisted form of a folder or note.
type Item struct {
	PK            string    `dynamodbav:"pk"`
	UserID        string    `dynamodbav:"user_id"`
	Kind          string    `dynamodbav:"kind"`
	ID            string    `dynamodbav:"id"`
	FolderID      string    `dynamodbav:"folder_id"`
	Name          string    `dynamodbav:"name"`
	Content       string    `dynamodbav:"content"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
	LastUpdatedAt time.Time `dynamodbav:"last_updated_at"`
	TTL           int64     `dynamodbav:"ttl"`
}

// DynamoAPI is the subset of *dynamodb.Client used for persistence.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type itemStore interface {
	get(ctx context.Context, id string) (*Item, error)
	put(ctx context.Context, item Item) error
	delete(ctx context.Context, id string) error
	list(ctx context.Context, userID string) ([]Item, error)
}

// mapStore keeps items in process memory.
type mapStore struct {
	mu    sync.RWMutex
	items map[string]Item
}

func newMapStore() *mapStore {
	return &mapStore{items: make(map[string]Item)}
}

func (s *mapStore) get(_ context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	return &item, nil
}

func (s *mapStore) put(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.PK] = item
	return nil
}

func (s *mapStore) delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *mapStore) list(_ context.Context, userID string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Item
	for _, item := range s.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

// dynamoStore keeps items in a DynamoDB table keyed by pk. Used in dev mode
// against LocalStack.
type dynamoStore struct {
	client DynamoAPI
	table  string
}

func (s *dynamoStore) get(ctx context.Context, id string) (*Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, adapter.ErrNotFound
	}
	var item Item
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item %s: %w", id, err)
	}
	return &item, nil
}

func (s *dynamoStore) put(ctx context.Context, item Item) error {
	item.TTL = time.Now().Add(itemTTL).Unix()
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", item.PK, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("put item %s: %w", item.PK, err)
	}
	return nil
}

func (s *dynamoStore) delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	return nil
}

// list scans the table for the user's items (inefficient but fine for dev).
func (s *dynamoStore) list(ctx context.Context, userID string) ([]Item, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	}
	var items []Item
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan items: %w", err)
		}
		var page []Item
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		for _, item := range page {
			if item.UserID == userID {
				items = append(items, item)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
