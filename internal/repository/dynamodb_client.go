package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"lead-agent/internal/domain"
)

const (
	skHandoff   = "HANDOFF#"
	ttlDuration = 90 * 24 * time.Hour // operators work the lead within a quarter
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client writes qualified leads to a DynamoDB table for the sales team. It is
// a handoff sink; conversation state never reads from it.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// leadPK returns the DynamoDB partition key for a sender.
func leadPK(senderID string) string {
	return "LEAD#" + senderID
}

// SaveQualifiedLead records lead for senderID once. A second save for the
// same sender is a no-op.
func (c *Client) SaveQualifiedLead(ctx context.Context, senderID string, lead domain.Lead) error {
	if strings.TrimSpace(senderID) == "" {
		return errors.New("repository: SaveQualifiedLead: sender is required")
	}
	item, err := attributevalue.MarshalMap(newLeadRecord(senderID, lead, c.now().UTC()))
	if err != nil {
		return fmt.Errorf("repository: SaveQualifiedLead marshal: %w", err)
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil
		}
		return fmt.Errorf("repository: SaveQualifiedLead: %w", err)
	}
	return nil
}

// GetQualifiedLead returns the handed-off lead for senderID, if any.
func (c *Client) GetQualifiedLead(ctx context.Context, senderID string) (domain.Lead, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: leadPK(senderID)},
			"SK": &types.AttributeValueMemberS{Value: skHandoff},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Lead{}, false, fmt.Errorf("repository: GetQualifiedLead get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Lead{}, false, nil
	}
	var rec leadRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return domain.Lead{}, false, fmt.Errorf("repository: GetQualifiedLead decode: %w", err)
	}
	return rec.lead(), true, nil
}

// leadRecord is the stored shape of a qualified lead.
type leadRecord struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	SenderID       string `dynamodbav:"senderId"`
	Service        string `dynamodbav:"service,omitempty"`
	Timeline       string `dynamodbav:"timeline,omitempty"`
	Budget         string `dynamodbav:"budget,omitempty"`
	BrandName      string `dynamodbav:"brandName,omitempty"`
	Style          string `dynamodbav:"style,omitempty"`
	ContactName    string `dynamodbav:"contactName,omitempty"`
	ContactChannel string `dynamodbav:"contactChannel,omitempty"`
	References     string `dynamodbav:"references,omitempty"`
	QualifiedAt    string `dynamodbav:"qualifiedAt"`
	TTL            int64  `dynamodbav:"ttl"`
}

func newLeadRecord(senderID string, l domain.Lead, now time.Time) leadRecord {
	return leadRecord{
		PK:             leadPK(senderID),
		SK:             skHandoff,
		SenderID:       senderID,
		Service:        l.Service,
		Timeline:       l.Timeline,
		Budget:         l.Budget,
		BrandName:      l.BrandName,
		Style:          l.Style,
		ContactName:    l.ContactName,
		ContactChannel: l.ContactChannel,
		References:     l.References,
		QualifiedAt:    now.Format(time.RFC3339),
		TTL:            now.Add(ttlDuration).Unix(),
	}
}

func (r leadRecord) lead() domain.Lead {
	return domain.Lead{
		Service:        r.Service,
		Timeline:       r.Timeline,
		Budget:         r.Budget,
		BrandName:      r.BrandName,
		Style:          r.Style,
		ContactName:    r.ContactName,
		ContactChannel: r.ContactChannel,
		References:     r.References,
	}
}
