package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/notely/notely/internal/adapter/postgres"
	"github.com/notely/notely/internal/model"
)

// Log stores audit events.
type Log interface {
	Append(ctx context.Context, e model.Event) error
	// List returns the user's events newest first.
	List(ctx context.Context, userID string) ([]model.Event, error)
}

func newestFirst(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
}

// MemoryLog keeps events in process memory.
type MemoryLog struct {
	mu     sync.RWMutex
	events []model.Event
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, e model.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *MemoryLog) List(_ context.Context, userID string) ([]model.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []model.Event{}
	for _, e := range l.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	newestFirst(out)
	return out, nil
}

// DynamoAPI is the subset of *dynamodb.Client used by DynamoLog.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoLog stores events in a DynamoDB table keyed by id.
type DynamoLog struct {
	client DynamoAPI
	table  string
}

func NewDynamoLog(client DynamoAPI, table string) *DynamoLog {
	return &DynamoLog{client: client, table: table}
}

func (l *DynamoLog) Append(ctx context.Context, e model.Event) error {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

func (l *DynamoLog) List(ctx context.Context, userID string) ([]model.Event, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(l.table),
		FilterExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	}
	out := []model.Event{}
	for {
		res, err := l.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan events: %w", err)
		}
		var page []model.Event
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal events: %w", err)
		}
		for _, e := range page {
			if e.UserID == userID {
				out = append(out, e)
			}
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}
	newestFirst(out)
	return out, nil
}

// PostgresLog stores events in the events table created by the postgres
// migrations.
type PostgresLog struct {
	db postgres.DB
}

func NewPostgresLog(db postgres.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) Append(ctx context.Context, e model.Event) error {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	_, err := l.db.Exec(ctx,
		`INSERT INTO events (id, user_id, aggregate_id, type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.UserID, e.AggregateID, string(e.Type), payload, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (l *PostgresLog) List(ctx context.Context, userID string) ([]model.Event, error) {
	rows, err := l.db.Query(ctx,
		`SELECT id::text, user_id, aggregate_id, type, payload, created_at
		 FROM events WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := []model.Event{}
	for rows.Next() {
		var e model.Event
		var typ string
		if err := rows.Scan(&e.ID, &e.UserID, &e.AggregateID, &typ, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = model.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
