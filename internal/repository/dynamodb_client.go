// Package repository archives completed chat exchanges in a single DynamoDB
// table: one TURN# item per turn under the conversation partition, plus a
// META# record with aggregate state. Items expire after 30 days.
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

	"gemchat/internal/domain"
)

const (
	skPrefixTurn = "TURN#"
	skMeta       = "META#"
	ttlDuration  = 30 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps a DynamoDB table holding archived conversations.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new archive Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

// turnSK builds the sort key from a timestamp plus a sequence suffix so the
// two turns of one exchange sort deterministically.
func turnSK(ts time.Time, seq int) string {
	return fmt.Sprintf("%s%s#%02d", skPrefixTurn, ts.UTC().Format(time.RFC3339Nano), seq)
}

func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// SaveExchange writes the user and model turns of one completed exchange plus
// the updated meta record in a single transaction.
func (c *Client) SaveExchange(ctx context.Context, conversationID string, userTurn, modelTurn domain.Turn) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.New("repository: SaveExchange: conversation ID is required")
	}

	turns, err := c.GetTurnCount(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("repository: SaveExchange: %w", err)
	}

	now := time.Now().UTC()
	user := newArchivedTurn(conversationID, userTurn, now, 0)
	model := newArchivedTurn(conversationID, modelTurn, now, 1)
	meta := newConversationMeta(conversationID, turns+2)

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                turnItem(user),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                turnItem(model),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      metaItem(meta),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveExchange: %w", err)
	}
	return nil
}

// GetHistory queries the most recent archived turns for a conversation and
// returns them in chronological order.
func (c *Client) GetHistory(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		// Read newest first so LIMIT favors the most recent turns.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHistory query: %w", err)
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetHistory unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	// Back to chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// GetTurnCount returns the archived turn count for a conversation, zero for
// an unknown conversation.
func (c *Client) GetTurnCount(ctx context.Context, conversationID string) (int, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: GetTurnCount get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}

	turns, err := intAttr(out.Item, "totalTurns")
	if err != nil {
		return 0, fmt.Errorf("repository: GetTurnCount decode totalTurns: %w", err)
	}
	return turns, nil
}

func newArchivedTurn(conversationID string, turn domain.Turn, ts time.Time, seq int) domain.ArchivedTurn {
	return domain.ArchivedTurn{
		PK:             convPK(conversationID),
		SK:             turnSK(ts, seq),
		ConversationID: conversationID,
		Role:           turn.Role,
		Content:        turn.Parts,
		TTL:            ttlValue(),
	}
}

func newConversationMeta(conversationID string, totalTurns int) domain.ConversationMeta {
	return domain.ConversationMeta{
		PK:             convPK(conversationID),
		SK:             skMeta,
		ConversationID: conversationID,
		LastActivity:   time.Now().UTC().Format(time.RFC3339),
		TotalTurns:     totalTurns,
		TTL:            ttlValue(),
	}
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Turn{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.Turn{}, err
	}
	return domain.Turn{Role: role, Parts: content}, nil
}

func turnItem(t domain.ArchivedTurn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: t.PK},
		"SK":             &types.AttributeValueMemberS{Value: t.SK},
		"conversationId": &types.AttributeValueMemberS{Value: t.ConversationID},
		"role":           &types.AttributeValueMemberS{Value: t.Role},
		"content":        &types.AttributeValueMemberS{Value: t.Content},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", t.TTL)},
	}
}

func metaItem(meta domain.ConversationMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: meta.PK},
		"SK":             &types.AttributeValueMemberS{Value: meta.SK},
		"conversationId": &types.AttributeValueMemberS{Value: meta.ConversationID},
		"lastActivity":   &types.AttributeValueMemberS{Value: meta.LastActivity},
		"totalTurns":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.TotalTurns)},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.TTL)},
	}
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

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
