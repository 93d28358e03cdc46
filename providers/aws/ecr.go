package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
)

// ListUntaggedImageDigests lists digests of untagged images in an ECR repository
func (c *Client) ListUntaggedImageDigests(ctx context.Context, region, repository string) ([]string, error) {
	client := c.ecrClient(region)
	paginator := ecr.NewListImagesPaginator(client, &ecr.ListImagesInput{
		RepositoryName: aws.String(repository),
		Filter:         &types.ListImagesFilter{TagStatus: types.TagStatusUntagged},
	})

	var digests []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list images in %s: %w", repository, err)
		}
		for _, id := range page.ImageIds {
			if id.ImageDigest != nil {
				digests = append(digests, *id.ImageDigest)
			}
		}
	}
	return digests, nil
}

// DeleteImages deletes images by digest, returning the deleted digests and a
// description of every per-image failure
func (c *Client) DeleteImages(ctx context.Context, region, repository string, digests []string) ([]string, []string, error) {
	ids := make([]types.ImageIdentifier, len(digests))
	for i, d := range digests {
		ids[i] = types.ImageIdentifier{ImageDigest: aws.String(d)}
	}

	resp, err := c.ecrClient(region).BatchDeleteImage(ctx, &ecr.BatchDeleteImageInput{
		RepositoryName: aws.String(repository),
		ImageIds:       ids,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to delete images in %s: %w", repository, err)
	}

	deleted := make([]string, 0, len(resp.ImageIds))
	for _, id := range resp.ImageIds {
		deleted = append(deleted, aws.ToString(id.ImageDigest))
	}
	failures := make([]string, 0, len(resp.Failures))
	for _, f := range resp.Failures {
		failures = append(failures, fmt.Sprintf("%s: %s", aws.ToString(f.ImageId.ImageDigest), aws.ToString(f.FailureReason)))
	}
	return deleted, failures, nil
}
