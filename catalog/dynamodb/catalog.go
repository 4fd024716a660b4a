// Package dynamodb stores session catalogs in a DynamoDB table.
//
// Table schema:
//   - Partition key: session (string)
//   - Sort key: model_id (number), the registration order
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name lodstream-catalog \
//	  --attribute-definitions AttributeName=session,AttributeType=S AttributeName=model_id,AttributeType=N \
//	  --key-schema AttributeName=session,KeyType=HASH AttributeName=model_id,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/lodstream/registry"
)

// ErrMalformedItem is returned for items missing the path attribute.
var ErrMalformedItem = errors.New("dynamodb catalog: malformed item")

// Client is the subset of *dynamodb.Client used by Catalog.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Compile time check.
var _ Client = (*dynamodb.Client)(nil)

// Catalog is the model list of one session.
type Catalog struct {
	client  Client
	table   string
	session string
}

// New creates a catalog for session in table.
func New(client Client, table, session string) *Catalog {
	return &Catalog{client: client, table: table, session: session}
}

// Dial loads the default AWS configuration.
func Dial(ctx context.Context, table, session string) (*Catalog, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("dynamodb catalog: load aws config: %w", err)
	}

	return New(dynamodb.NewFromConfig(cfg), table, session), nil
}

// Entries queries all models of the session ordered by model_id.
func (c *Catalog) Entries(ctx context.Context) ([]registry.Entry, error) {
	var out []registry.Entry

	p := dynamodb.NewQueryPaginator(c.client, &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("#s = :s"),
		ExpressionAttributeNames: map[string]string{
			"#s": "session",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: c.session},
		},
		ScanIndexForward: aws.Bool(true),
	})

	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb catalog: query: %w", err)
		}

		for _, item := range page.Items {
			e, err := decode(item)
			if err != nil {
				return nil, err
			}

			out = append(out, e)
		}
	}

	return out, nil
}

// Put stores entries as model ids 0..len-1, replacing existing ones.
func (c *Catalog) Put(ctx context.Context, entries []registry.Entry) error {
	for i, e := range entries {
		item := map[string]types.AttributeValue{
			"session":  &types.AttributeValueMemberS{Value: c.session},
			"model_id": &types.AttributeValueMemberN{Value: strconv.Itoa(i)},
			"path":     &types.AttributeValueMemberS{Value: e.Path},
		}

		if e.Key != "" {
			item["key"] = &types.AttributeValueMemberS{Value: e.Key}
		}

		if _, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(c.table),
			Item:      item,
		}); err != nil {
			return fmt.Errorf("dynamodb catalog: put %s: %w", e.Path, err)
		}
	}

	return nil
}

// Delete removes the entry with the given model id.
func (c *Catalog) Delete(ctx context.Context, modelID int) error {
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"session":  &types.AttributeValueMemberS{Value: c.session},
			"model_id": &types.AttributeValueMemberN{Value: strconv.Itoa(modelID)},
		},
	})

	return err
}

func decode(item map[string]types.AttributeValue) (registry.Entry, error) {
	path, ok := item["path"].(*types.AttributeValueMemberS)
	if !ok || path.Value == "" {
		return registry.Entry{}, ErrMalformedItem
	}

	e := registry.Entry{Path: path.Value}
	if key, ok := item["key"].(*types.AttributeValueMemberS); ok {
		e.Key = key.Value
	}

	return e, nil
}
