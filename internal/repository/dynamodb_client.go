package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"insights-agent/internal/domain"
)

const (
	attrUserID    = "UserId"
	attrConvID    = "ConversationId"
	recordTTL     = 90 * 24 * time.Hour // 90-day retention on every record
	defaultMaxPer = 50
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client wraps the DynamoDB conversation table. Conversation IDs begin with
// the creation time in unix milliseconds, so sort-key order is creation
// order and ScanIndexForward=false yields most-recent-first.
type Client struct {
	api              dynamodbAPI
	tableName        string
	maxConversations int
}

// New creates a new conversation store Client. maxConversations bounds
// per-user retention; values <= 0 fall back to the default cap.
func New(api dynamodbAPI, tableName string, maxConversations int) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if maxConversations <= 0 {
		maxConversations = defaultMaxPer
	}
	return &Client{api: api, tableName: tableName, maxConversations: maxConversations}, nil
}

// NewRecord constructs a provisional ConversationRecord for a freshly
// translated query. ExpirationTime is fixed at creation and never touched by
// later status updates.
func NewRecord(userID, conversationID, query, sqlQuery string, now time.Time) domain.ConversationRecord {
	return domain.ConversationRecord{
		UserID:         userID,
		ConversationID: conversationID,
		Query:          query,
		SQLQuery:       sqlQuery,
		Timestamp:      now.UTC().Format(time.RFC3339Nano),
		ExpirationTime: now.Add(recordTTL).Unix(),
	}
}

// GetHistory returns up to limit records for a user, most recent first.
func (c *Client) GetHistory(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error) {
	in := c.userQueryInput(userID)
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHistory query: %w", err)
	}

	recs := make([]domain.ConversationRecord, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := itemToRecord(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetHistory unmarshal: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Get fetches a single record by composite key. The boolean is false when no
// record exists.
func (c *Client) Get(ctx context.Context, userID, conversationID string) (domain.ConversationRecord, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            recordKey(userID, conversationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.ConversationRecord{}, false, fmt.Errorf("repository: Get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.ConversationRecord{}, false, nil
	}
	rec, err := itemToRecord(out.Item)
	if err != nil {
		return domain.ConversationRecord{}, false, fmt.Errorf("repository: Get unmarshal: %w", err)
	}
	return rec, true, nil
}

// Put upserts a record by its composite key.
func (c *Client) Put(ctx context.Context, rec domain.ConversationRecord) error {
	if rec.UserID == "" || rec.ConversationID == "" {
		return errors.New("repository: Put: UserId and ConversationId are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      recordItem(rec),
	})
	if err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

// MarkCompleted sets the terminal COMPLETED state with result bookkeeping.
// Repeating the call for the same key writes the same values, so duplicate
// formatter invocations converge.
func (c *Client) MarkCompleted(ctx context.Context, userID, conversationID string, resultCount int, executionTime string) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              recordKey(userID, conversationID),
		UpdateExpression: aws.String("SET ResultCount = :rc, ExecutionTime = :et, ResultStatus = :rs"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rc": &types.AttributeValueMemberN{Value: strconv.Itoa(resultCount)},
			":et": &types.AttributeValueMemberS{Value: executionTime},
			":rs": &types.AttributeValueMemberS{Value: domain.StatusCompleted},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: MarkCompleted: %w", err)
	}
	return nil
}

// MarkFailed sets the terminal FAILED state with the failure reason for the
// read side to surface.
func (c *Client) MarkFailed(ctx context.Context, userID, conversationID, reason string) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              recordKey(userID, conversationID),
		UpdateExpression: aws.String("SET ResultStatus = :rs, ErrorMessage = :em"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rs": &types.AttributeValueMemberS{Value: domain.StatusFailed},
			":em": &types.AttributeValueMemberS{Value: reason},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: MarkFailed: %w", err)
	}
	return nil
}

// Prune deletes every record beyond the retention cap for a user, oldest
// first, and returns how many were removed. A user at or below the cap is a
// no-op. Individual delete failures do not stop the pass; they are joined
// into the returned error while successful deletes stand.
func (c *Client) Prune(ctx context.Context, userID string) (int, error) {
	out, err := c.api.Query(ctx, c.userQueryInput(userID))
	if err != nil {
		return 0, fmt.Errorf("repository: Prune query: %w", err)
	}
	if len(out.Items) <= c.maxConversations {
		return 0, nil
	}

	var deleteErrs []error
	deleted := 0
	for _, item := range out.Items[c.maxConversations:] {
		convID, err := strAttr(item, attrConvID)
		if err != nil {
			deleteErrs = append(deleteErrs, err)
			continue
		}
		_, err = c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(c.tableName),
			Key:       recordKey(userID, convID),
		})
		if err != nil {
			deleteErrs = append(deleteErrs, fmt.Errorf("repository: Prune delete %s: %w", convID, err))
			continue
		}
		deleted++
	}
	if len(deleteErrs) > 0 {
		return deleted, errors.Join(deleteErrs...)
	}
	return deleted, nil
}

// userQueryInput builds the most-recent-first partition query for a user.
func (c *Client) userQueryInput(userID string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("UserId = :userId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
	}
}

func recordKey(userID, conversationID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrUserID: &types.AttributeValueMemberS{Value: userID},
		attrConvID: &types.AttributeValueMemberS{Value: conversationID},
	}
}

func recordItem(rec domain.ConversationRecord) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrUserID:       &types.AttributeValueMemberS{Value: rec.UserID},
		attrConvID:       &types.AttributeValueMemberS{Value: rec.ConversationID},
		"Query":          &types.AttributeValueMemberS{Value: rec.Query},
		"SqlQuery":       &types.AttributeValueMemberS{Value: rec.SQLQuery},
		"Timestamp":      &types.AttributeValueMemberS{Value: rec.Timestamp},
		"ExpirationTime": &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ExpirationTime, 10)},
	}
	if rec.ResultStatus != "" {
		item["ResultStatus"] = &types.AttributeValueMemberS{Value: rec.ResultStatus}
		item["ResultCount"] = &types.AttributeValueMemberN{Value: strconv.Itoa(rec.ResultCount)}
	}
	return item
}

// itemToRecord converts a DynamoDB attribute map to a ConversationRecord.
// Result attributes are optional: they only exist once execution finished.
func itemToRecord(item map[string]types.AttributeValue) (domain.ConversationRecord, error) {
	userID, err := strAttr(item, attrUserID)
	if err != nil {
		return domain.ConversationRecord{}, err
	}
	convID, err := strAttr(item, attrConvID)
	if err != nil {
		return domain.ConversationRecord{}, err
	}
	query, err := strAttr(item, "Query")
	if err != nil {
		return domain.ConversationRecord{}, err
	}
	sqlQuery, _ := optStrAttr(item, "SqlQuery")
	timestamp, _ := optStrAttr(item, "Timestamp")
	status, _ := optStrAttr(item, "ResultStatus")
	executionTime, _ := optStrAttr(item, "ExecutionTime")
	errorMessage, _ := optStrAttr(item, "ErrorMessage")

	rec := domain.ConversationRecord{
		UserID:         userID,
		ConversationID: convID,
		Query:          query,
		SQLQuery:       sqlQuery,
		Timestamp:      timestamp,
		ResultStatus:   status,
		ExecutionTime:  executionTime,
		ErrorMessage:   errorMessage,
	}
	if _, ok := item["ResultCount"]; ok {
		count, err := intAttr(item, "ResultCount")
		if err != nil {
			return domain.ConversationRecord{}, fmt.Errorf("repository: decode result count: %w", err)
		}
		rec.ResultCount = count
	}
	if _, ok := item["ExpirationTime"]; ok {
		exp, err := int64Attr(item, "ExpirationTime")
		if err != nil {
			return domain.ConversationRecord{}, fmt.Errorf("repository: decode expiration: %w", err)
		}
		rec.ExpirationTime = exp
	}
	return rec, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func optStrAttr(item map[string]types.AttributeValue, key string) (string, bool) {
	v, ok := item[key]
	if !ok {
		return "", false
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	n, err := int64Attr(item, key)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
