package kvstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"postservice/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	skValue    = "VALUE"
	skSetPre   = "SET#"
	skZSetPre  = "ZSET#"
	batchLimit = 25
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// kvItem is one row of the single-table layout.
// Strings live under SK=VALUE, set members under SET#<member>, sorted-set members under ZSET#<member>.
type kvItem struct {
	PK        string  `dynamodbav:"PK"`
	SK        string  `dynamodbav:"SK"`
	Value     []byte  `dynamodbav:"Value,omitempty"`
	Member    string  `dynamodbav:"Member,omitempty"`
	Score     float64 `dynamodbav:"Score"`
	ExpiresAt int64   `dynamodbav:"ExpiresAt,omitempty"` // unix millis, read-side expiry
	TTL       int64   `dynamodbav:"TTL,omitempty"`       // unix seconds, native table TTL
}

func (i kvItem) live(nowMs int64) bool {
	return i.ExpiresAt == 0 || i.ExpiresAt > nowMs
}

// DynamoDBStore implements KeyValueStore on a DynamoDB table keyed by PK/SK.
// DynamoDB's native TTL sweeps lazily, so every read also filters on ExpiresAt.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	now       func() time.Time
}

// NewDynamoDBStore creates a store on the given table
func NewDynamoDBStore(client DynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

func (s *DynamoDBStore) nowMs() int64 {
	return s.now().UnixMilli()
}

func (s *DynamoDBStore) newItem(key, sk string, ttl time.Duration) kvItem {
	item := kvItem{PK: key, SK: sk}
	if ttl > 0 {
		expiresAt := s.now().Add(ttl)
		item.ExpiresAt = expiresAt.UnixMilli()
		item.TTL = expiresAt.Unix()
	}
	return item
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (s *DynamoDBStore) put(ctx context.Context, item kvItem, condition *expression.ConditionBuilder) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}
	if condition != nil {
		expr, err := expression.NewBuilder().WithCondition(*condition).Build()
		if err != nil {
			return fmt.Errorf("failed to build condition: %w", err)
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	_, err = s.client.PutItem(ctx, input)
	return err
}

// query returns every row of a key whose SK starts with prefix, expired rows included
func (s *DynamoDBStore) query(ctx context.Context, key, prefix string) ([]kvItem, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(key))
	if prefix != "" {
		keyCond = keyCond.And(expression.KeyBeginsWith(expression.Key("SK"), prefix))
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})

	var items []kvItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb query %s: %w", key, err)
		}
		var batch []kvItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items: %w", err)
		}
		items = append(items, batch...)
	}
	return items, nil
}

func (s *DynamoDBStore) queryLive(ctx context.Context, key, prefix string) ([]kvItem, error) {
	items, err := s.query(ctx, key, prefix)
	if err != nil {
		return nil, err
	}
	return liveItems(items, s.nowMs()), nil
}

func liveItems(items []kvItem, nowMs int64) []kvItem {
	live := items[:0]
	for _, item := range items {
		if item.live(nowMs) {
			live = append(live, item)
		}
	}
	return live
}

// deleteItems removes rows in batches of 25
func (s *DynamoDBStore) deleteItems(ctx context.Context, items []kvItem) error {
	for i := 0; i < len(items); i += batchLimit {
		end := i + batchLimit
		if end > len(items) {
			end = len(items)
		}

		requests := make([]types.WriteRequest, 0, end-i)
		for _, item := range items[i:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: itemKey(item.PK, item.SK)},
			})
		}

		pending := map[string][]types.WriteRequest{s.tableName: requests}
		for attempt := 0; attempt < 3 && len(pending[s.tableName]) > 0; attempt++ {
			result, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("dynamodb batch delete: %w", err)
			}
			pending = result.UnprocessedItems
		}
		if n := len(pending[s.tableName]); n > 0 {
			return fmt.Errorf("failed to delete %d items", n)
		}
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(key, skValue),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get %s: %w", key, err)
	}
	if result.Item == nil {
		return nil, ports.ErrCacheMiss
	}

	var item kvItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	if !item.live(s.nowMs()) {
		return nil, ports.ErrCacheMiss
	}
	return item.Value, nil
}

func (s *DynamoDBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := s.newItem(key, skValue, ttl)
	item.Value = value
	if err := s.put(ctx, item, nil); err != nil {
		return fmt.Errorf("dynamodb set %s: %w", key, err)
	}
	return nil
}

func (s *DynamoDBStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	item := s.newItem(key, skValue, ttl)
	item.Value = value

	// An expired row still occupies the key until the table TTL sweeps it
	cond := expression.Name("PK").AttributeNotExists().
		Or(expression.Name("ExpiresAt").LessThanEqual(expression.Value(s.nowMs())))

	err := s.put(ctx, item, &cond)
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dynamodb setnx %s: %w", key, err)
	}
	return true, nil
}

func (s *DynamoDBStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	cond := expression.Name("Value").Equal(expression.Value(expected)).
		And(expression.Or(
			expression.Name("ExpiresAt").AttributeNotExists(),
			expression.Name("ExpiresAt").GreaterThan(expression.Value(s.nowMs())),
		))

	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return false, fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       itemKey(key, skValue),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dynamodb compare-and-delete %s: %w", key, err)
	}
	return true, nil
}

func (s *DynamoDBStore) Delete(ctx context.Context, keys ...string) error {
	var items []kvItem
	for _, key := range keys {
		rows, err := s.query(ctx, key, "")
		if err != nil {
			return err
		}
		items = append(items, rows...)
	}
	return s.deleteItems(ctx, items)
}

func (s *DynamoDBStore) Exists(ctx context.Context, key string) (bool, error) {
	items, err := s.queryLive(ctx, key, "")
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

func (s *DynamoDBStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	items, err := s.queryLive(ctx, key, "")
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, nil
	}

	var update expression.UpdateBuilder
	if ttl > 0 {
		expiresAt := s.now().Add(ttl)
		update = expression.Set(expression.Name("ExpiresAt"), expression.Value(expiresAt.UnixMilli())).
			Set(expression.Name("TTL"), expression.Value(expiresAt.Unix()))
	} else {
		update = expression.Remove(expression.Name("ExpiresAt")).Remove(expression.Name("TTL"))
	}

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return false, fmt.Errorf("failed to build update: %w", err)
	}

	for _, item := range items {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(s.tableName),
			Key:                       itemKey(item.PK, item.SK),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil {
			return false, fmt.Errorf("dynamodb expire %s: %w", key, err)
		}
	}
	return true, nil
}

func (s *DynamoDBStore) SAdd(ctx context.Context, key string, members ...string) error {
	for _, member := range members {
		item := s.newItem(key, skSetPre+member, 0)
		item.Member = member
		if err := s.put(ctx, item, nil); err != nil {
			return fmt.Errorf("dynamodb sadd %s: %w", key, err)
		}
	}
	return nil
}

func (s *DynamoDBStore) SRem(ctx context.Context, key string, members ...string) error {
	items := make([]kvItem, 0, len(members))
	for _, member := range members {
		items = append(items, kvItem{PK: key, SK: skSetPre + member})
	}
	return s.deleteItems(ctx, items)
}

func (s *DynamoDBStore) SMembers(ctx context.Context, key string) ([]string, error) {
	items, err := s.queryLive(ctx, key, skSetPre)
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, len(items))
	for _, item := range items {
		members = append(members, strings.TrimPrefix(item.SK, skSetPre))
	}
	return members, nil
}

func (s *DynamoDBStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	item := s.newItem(key, skZSetPre+member, 0)
	item.Member = member
	item.Score = score
	if err := s.put(ctx, item, nil); err != nil {
		return fmt.Errorf("dynamodb zadd %s: %w", key, err)
	}
	return nil
}

func (s *DynamoDBStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	items, err := s.query(ctx, key, skZSetPre)
	if err != nil {
		return err
	}
	var doomed []kvItem
	for _, item := range items {
		if item.Score >= min && item.Score <= max {
			doomed = append(doomed, item)
		}
	}
	return s.deleteItems(ctx, doomed)
}

func (s *DynamoDBStore) ZCard(ctx context.Context, key string) (int64, error) {
	items, err := s.queryLive(ctx, key, skZSetPre)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

func (s *DynamoDBStore) ZOldest(ctx context.Context, key string) (string, float64, error) {
	items, err := s.queryLive(ctx, key, skZSetPre)
	if err != nil {
		return "", 0, err
	}
	if len(items) == 0 {
		return "", 0, ports.ErrCacheMiss
	}

	oldest := kvItem{Score: math.Inf(1)}
	for _, item := range items {
		if item.Score < oldest.Score {
			oldest = item
		}
	}
	return strings.TrimPrefix(oldest.SK, skZSetPre), oldest.Score, nil
}

// ZSlide issues sequential requests. Count and oldest come from the single query between the write and the trim.
func (s *DynamoDBStore) ZSlide(ctx context.Context, key string, score float64, member string, cutoff float64, ttl time.Duration) (ports.Window, error) {
	if err := s.ZAdd(ctx, key, score, member); err != nil {
		return ports.Window{}, err
	}
	items, err := s.queryLive(ctx, key, skZSetPre)
	if err != nil {
		return ports.Window{}, err
	}

	var window ports.Window
	var doomed []kvItem
	for _, item := range items {
		if item.Score <= cutoff {
			doomed = append(doomed, item)
			continue
		}
		if window.Count == 0 || item.Score < window.Oldest {
			window.Oldest = item.Score
		}
		window.Count++
	}
	if err := s.deleteItems(ctx, doomed); err != nil {
		return ports.Window{}, err
	}
	if _, err := s.Expire(ctx, key, ttl); err != nil {
		return ports.Window{}, err
	}
	return window, nil
}

func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	return err
}

var _ ports.KeyValueStore = (*DynamoDBStore)(nil)
