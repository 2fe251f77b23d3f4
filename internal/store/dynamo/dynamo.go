// Package dynamo stores cycle entries and sharing preferences in DynamoDB.
//
// Entries live in one table keyed by user_id (partition) and sk
// ("YYYY-MM-DD#<id>", sort) so a query returns them in start order.
// Preferences live in a second table keyed by user_id.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jw6ventures/cyclecal/internal/config"
	"github.com/jw6ventures/cyclecal/internal/cycle"
	"github.com/jw6ventures/cyclecal/internal/metrics"
	"github.com/jw6ventures/cyclecal/internal/store"
)

// Client is the subset of *dynamodb.Client used here.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store implements store.CycleEntryRepository and store.PreferenceRepository.
type Store struct {
	client       Client
	entriesTable string
	prefsTable   string
	now          func() time.Time
}

var (
	_ store.CycleEntryRepository = (*Store)(nil)
	_ store.PreferenceRepository = (*Store)(nil)
)

// New builds a Store from the default AWS credential chain.
func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Cycle.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Cycle.DynamoEndpoint)
		}
	})
	return NewWithClient(client, cfg.Cycle.DynamoEntries, cfg.Cycle.DynamoPrefs), nil
}

func NewWithClient(client Client, entriesTable, prefsTable string) *Store {
	return &Store{client: client, entriesTable: entriesTable, prefsTable: prefsTable, now: time.Now}
}

type entryItem struct {
	UserID    string    `dynamodbav:"user_id"`
	SortKey   string    `dynamodbav:"sk"`
	ID        string    `dynamodbav:"id"`
	StartDate string    `dynamodbav:"start_date"`
	EndDate   *string   `dynamodbav:"end_date,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

type preferenceItem struct {
	UserID           string    `dynamodbav:"user_id"`
	ShareWithPartner bool      `dynamodbav:"share_with_partner"`
	UpdatedAt        time.Time `dynamodbav:"updated_at"`
}

func observe(ctx context.Context, op string) func() {
	start := time.Now()
	return func() { metrics.ObserveDBLatency(ctx, op, start) }
}

func toItem(e store.CycleEntry) entryItem {
	start := e.StartDate.Format(cycle.DateLayout)
	item := entryItem{
		UserID:    e.UserID,
		SortKey:   start + "#" + e.ID,
		ID:        e.ID,
		StartDate: start,
		CreatedAt: e.CreatedAt,
	}
	if e.EndDate != nil {
		end := e.EndDate.Format(cycle.DateLayout)
		item.EndDate = &end
	}
	return item
}

func (i entryItem) toEntry() (store.CycleEntry, error) {
	start, err := cycle.ParseDay(i.StartDate)
	if err != nil {
		return store.CycleEntry{}, fmt.Errorf("entry %s start_date: %w", i.ID, err)
	}
	e := store.CycleEntry{ID: i.ID, UserID: i.UserID, StartDate: start, CreatedAt: i.CreatedAt}
	if i.EndDate != nil {
		end, err := cycle.ParseDay(*i.EndDate)
		if err != nil {
			return store.CycleEntry{}, fmt.Errorf("entry %s end_date: %w", i.ID, err)
		}
		e.EndDate = &end
	}
	return e, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]store.CycleEntry, error) {
	defer observe(ctx, "dynamo.cycle_entries.list_by_user")()

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.entriesTable),
		KeyConditionExpression: aws.String("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(true),
	}

	var entries []store.CycleEntry
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query cycle entries: %w", err)
		}
		var items []entryItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal cycle entries: %w", err)
		}
		for _, item := range items {
			e, err := item.toEntry()
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *Store) Append(ctx context.Context, entry store.CycleEntry) (*store.CycleEntry, error) {
	defer observe(ctx, "dynamo.cycle_entries.append")()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	entry.StartDate = cycle.Day(entry.StartDate)
	if entry.EndDate != nil {
		end := cycle.Day(*entry.EndDate)
		entry.EndDate = &end
	}

	item, err := attributevalue.MarshalMap(toItem(entry))
	if err != nil {
		return nil, fmt.Errorf("marshal cycle entry: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.entriesTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("put cycle entry: %w", err)
	}
	return &entry, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	defer observe(ctx, "dynamo.cycle_entries.list_user_ids")()

	input := &dynamodb.ScanInput{
		TableName:            aws.String(s.entriesTable),
		ProjectionExpression: aws.String("user_id"),
	}

	seen := make(map[string]bool)
	var ids []string
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan cycle entries: %w", err)
		}
		var items []struct {
			UserID string `dynamodbav:"user_id"`
		}
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal user ids: %w", err)
		}
		for _, item := range items {
			if item.UserID != "" && !seen[item.UserID] {
				seen[item.UserID] = true
				ids = append(ids, item.UserID)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return ids, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *Store) Get(ctx context.Context, userID string) (*store.CyclePreference, error) {
	defer observe(ctx, "dynamo.cycle_preferences.get")()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.prefsTable),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item preferenceItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal preference: %w", err)
	}
	return &store.CyclePreference{
		UserID:           item.UserID,
		ShareWithPartner: item.ShareWithPartner,
		UpdatedAt:        item.UpdatedAt,
	}, nil
}

func (s *Store) Set(ctx context.Context, userID string, shareWithPartner bool) (*store.CyclePreference, error) {
	defer observe(ctx, "dynamo.cycle_preferences.set")()

	pref := preferenceItem{UserID: userID, ShareWithPartner: shareWithPartner, UpdatedAt: s.now().UTC()}
	item, err := attributevalue.MarshalMap(pref)
	if err != nil {
		return nil, fmt.Errorf("marshal preference: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.prefsTable),
		Item:      item,
	}); err != nil {
		return nil, fmt.Errorf("put preference: %w", err)
	}
	return &store.CyclePreference{
		UserID:           pref.UserID,
		ShareWithPartner: pref.ShareWithPartner,
		UpdatedAt:        pref.UpdatedAt,
	}, nil
}

// HealthCheck verifies both tables are reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observe(ctx, "dynamo.healthcheck")()

	for _, table := range []string{s.entriesTable, s.prefsTable} {
		if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}); err != nil {
			return fmt.Errorf("describe table %s: %w", table, err)
		}
	}
	return nil
}
