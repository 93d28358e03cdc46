package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// GetItem reads the item with the given string key attributes into out.
// It reports false, without error, when the item does not exist.
func (c *Client) GetItem(ctx context.Context, table string, key map[string]string, out interface{}) (bool, error) {
	av, err := attributevalue.MarshalMap(key)
	if err != nil {
		return false, err
	}
	resp, err := c.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       av,
	})
	if err != nil {
		return false, fmt.Errorf("failed to get item from %s: %w", table, err)
	}
	if len(resp.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(resp.Item, out); err != nil {
		return false, fmt.Errorf("failed to decode item from %s: %w", table, err)
	}
	return true, nil
}

// PutItem writes item (a struct or map) to table, replacing any existing item
func (c *Client) PutItem(ctx context.Context, table string, item interface{}) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to encode item for %s: %w", table, err)
	}
	_, err = c.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item to %s: %w", table, err)
	}
	return nil
}

// UpdateItem sets the given attributes on an existing item, leaving the others untouched
func (c *Client) UpdateItem(ctx context.Context, table string, key map[string]string, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	av, err := attributevalue.MarshalMap(key)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var update expression.UpdateBuilder
	for _, name := range names {
		update = update.Set(expression.Name(name), expression.Value(values[name]))
	}
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build update for %s: %w", table, err)
	}

	_, err = c.dynamoClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       av,
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to update item in %s: %w", table, err)
	}
	return nil
}
