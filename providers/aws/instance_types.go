package aws

import (
	"context"
	"fmt"

	"experiment-runner/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// DescribeInstanceType returns the vCPU, memory and GPU shape of an EC2 instance type
func (c *Client) DescribeInstanceType(ctx context.Context, instanceType string) (*models.InstanceShape, error) {
	result, err := c.ec2Client.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
		InstanceTypes: []types.InstanceType{types.InstanceType(instanceType)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance type %s: %w", instanceType, err)
	}
	if len(result.InstanceTypes) == 0 {
		return nil, fmt.Errorf("instance type %s: %w", instanceType, ErrNotFound)
	}

	info := result.InstanceTypes[0]
	shape := &models.InstanceShape{InstanceType: instanceType}
	if info.VCpuInfo != nil {
		shape.VCPUs = aws.ToInt32(info.VCpuInfo.DefaultVCpus)
	}
	if info.MemoryInfo != nil {
		shape.MemoryMiB = aws.ToInt64(info.MemoryInfo.SizeInMiB)
	}
	if info.GpuInfo != nil {
		for _, gpu := range info.GpuInfo.Gpus {
			shape.GPUs += aws.ToInt32(gpu.Count)
			if shape.GPUType == "" {
				shape.GPUType = aws.ToString(gpu.Name)
			}
		}
	}
	return shape, nil
}
