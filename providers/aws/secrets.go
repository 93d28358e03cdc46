package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// GetSecretString returns the secret's string value
func (c *Client) GetSecretString(ctx context.Context, name string) (string, error) {
	resp, err := c.secretsClient.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("secret %s: %w", name, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	return aws.ToString(resp.SecretString), nil
}

// GetSecretField returns one field of a JSON secret. A secret that is not a
// JSON object is returned whole.
func (c *Client) GetSecretField(ctx context.Context, name, field string) (string, error) {
	raw, err := c.GetSecretString(ctx, name)
	if err != nil {
		return "", err
	}
	return secretField(raw, field)
}

func secretField(raw, field string) (string, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return raw, nil
	}
	v, ok := obj[field]
	if !ok {
		return "", fmt.Errorf("secret has no field %q: %w", field, ErrNotFound)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("secret field %q is not a string", field)
	}
	return s, nil
}
