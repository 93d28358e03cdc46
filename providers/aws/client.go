package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// DefaultRegion is used when neither flags, config nor the SDK chain name a region
const DefaultRegion = "us-east-1"

// The Pricing API is only served from a handful of regions
const pricingRegion = "us-east-1"

// ErrNotFound is returned when an object, item or secret does not exist
var ErrNotFound = errors.New("not found")

// Client is the AWS provider client
type Client struct {
	cfg           aws.Config
	s3Client      *s3.Client
	uploader      *manager.Uploader
	downloader    *manager.Downloader
	dynamoClient  *dynamodb.Client
	sfnClient     *sfn.Client
	stsClient     *sts.Client
	secretsClient *secretsmanager.Client
	ec2Client     *ec2.Client
	pricingClient *pricing.Client
}

// NewClient creates a new AWS client. An empty region defers to the SDK's
// default chain and finally to DefaultRegion.
func NewClient(ctx context.Context, region string) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	s3Client := s3.NewFromConfig(cfg)
	return &Client{
		cfg:           cfg,
		s3Client:      s3Client,
		uploader:      manager.NewUploader(s3Client),
		downloader:    manager.NewDownloader(s3Client),
		dynamoClient:  dynamodb.NewFromConfig(cfg),
		sfnClient:     sfn.NewFromConfig(cfg),
		stsClient:     sts.NewFromConfig(cfg),
		secretsClient: secretsmanager.NewFromConfig(cfg),
		ec2Client:     ec2.NewFromConfig(cfg),
		pricingClient: pricing.NewFromConfig(cfg, func(o *pricing.Options) {
			o.Region = pricingRegion
		}),
	}, nil
}

// Region returns the region the clients were configured for
func (c *Client) Region() string {
	return c.cfg.Region
}

// ecrClient returns an ECR client for region, which may differ from the default one
func (c *Client) ecrClient(region string) *ecr.Client {
	return ecr.NewFromConfig(c.cfg, func(o *ecr.Options) {
		if region != "" {
			o.Region = region
		}
	})
}

// isNotFound reports whether err is one of the service-specific "missing" errors
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "ResourceNotFoundException":
		return true
	}
	return false
}
