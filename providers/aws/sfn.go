package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
)

// SendTaskSuccess resumes the waiting workflow step with output as its result
func (c *Client) SendTaskSuccess(ctx context.Context, token, output string) error {
	_, err := c.sfnClient.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(token),
		Output:    aws.String(output),
	})
	if err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}
	return nil
}

// SendTaskFailure fails the waiting workflow step
func (c *Client) SendTaskFailure(ctx context.Context, token, errorLabel, cause string) error {
	_, err := c.sfnClient.SendTaskFailure(ctx, &sfn.SendTaskFailureInput{
		TaskToken: aws.String(token),
		Error:     aws.String(errorLabel),
		Cause:     aws.String(cause),
	})
	if err != nil {
		return fmt.Errorf("failed to send task failure: %w", err)
	}
	return nil
}
