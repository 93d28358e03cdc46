package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// FetchOnDemandPrice returns the Linux, shared-tenancy on-demand USD/hour price
// of an EC2 instance type in region
func (c *Client) FetchOnDemandPrice(ctx context.Context, instanceType, region string) (float64, error) {
	filters := map[string]string{
		"instanceType":    instanceType,
		"regionCode":      region,
		"operatingSystem": "Linux",
		"tenancy":         "Shared",
		"preInstalledSw":  "NA",
		"capacitystatus":  "Used",
	}

	input := &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		MaxResults:  aws.Int32(10),
	}
	for field, value := range filters {
		input.Filters = append(input.Filters, types.Filter{
			Field: aws.String(field),
			Type:  types.FilterTypeTermMatch,
			Value: aws.String(value),
		})
	}

	resp, err := c.pricingClient.GetProducts(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pricing for %s: %w", instanceType, err)
	}
	for _, doc := range resp.PriceList {
		price, err := parseOnDemandUSD(doc)
		if err == nil && price > 0 {
			return price, nil
		}
	}
	return 0, fmt.Errorf("no on-demand price for %s in %s: %w", instanceType, region, ErrNotFound)
}

// priceListItem is the subset of a Price List API product document we read
type priceListItem struct {
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

// parseOnDemandUSD extracts the hourly USD price from a product document
func parseOnDemandUSD(doc string) (float64, error) {
	var item priceListItem
	if err := json.Unmarshal([]byte(doc), &item); err != nil {
		return 0, fmt.Errorf("failed to parse price list: %w", err)
	}
	for _, term := range item.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			if dim.Unit != "Hrs" {
				continue
			}
			usd, ok := dim.PricePerUnit["USD"]
			if !ok {
				continue
			}
			return strconv.ParseFloat(usd, 64)
		}
	}
	return 0, fmt.Errorf("no hourly USD dimension in price list")
}
