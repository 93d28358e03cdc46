package deploy

import (
	"context"
	"fmt"
	"strings"

	"experiment-runner/core/logger"

	"github.com/google/go-containerregistry/pkg/name"
)

// BatchDeleteImage accepts at most this many image IDs per call
const deleteBatchSize = 100

// ImageRegistry lists and deletes container images
type ImageRegistry interface {
	ListUntaggedImageDigests(ctx context.Context, region, repository string) ([]string, error)
	DeleteImages(ctx context.Context, region, repository string, digests []string) ([]string, []string, error)
}

// PruneResult summarises an untagged-image cleanup
type PruneResult struct {
	Repository string
	Region     string
	Found      int
	Deleted    []string
	Failures   []string
}

// ParseRepository accepts a repository name or an ECR image URI. For a URI
// the region is taken from the registry host, otherwise defaultRegion is used.
func ParseRepository(ref, defaultRegion string) (repository, region string, err error) {
	if ref == "" {
		return "", "", fmt.Errorf("repository is required")
	}
	if !strings.Contains(ref, ".dkr.ecr.") {
		return ref, defaultRegion, nil
	}

	parsed, err := name.ParseReference(ref)
	if err != nil {
		return "", "", fmt.Errorf("invalid image uri %q: %w", ref, err)
	}
	repo := parsed.Context()

	// <account>.dkr.ecr.<region>.amazonaws.com
	parts := strings.Split(repo.RegistryStr(), ".")
	if len(parts) < 5 || parts[1] != "dkr" || parts[2] != "ecr" {
		return "", "", fmt.Errorf("not an ECR registry: %s", repo.RegistryStr())
	}
	return repo.RepositoryStr(), parts[3], nil
}

// PruneUntagged deletes every untagged image in repository
func PruneUntagged(ctx context.Context, registry ImageRegistry, repository, region string, log *logger.Logger) (*PruneResult, error) {
	result := &PruneResult{Repository: repository, Region: region}

	digests, err := registry.ListUntaggedImageDigests(ctx, region, repository)
	if err != nil {
		return nil, err
	}
	result.Found = len(digests)
	if len(digests) == 0 {
		log.Info("No untagged images to delete", "repository", repository, "region", region)
		return result, nil
	}

	for start := 0; start < len(digests); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(digests) {
			end = len(digests)
		}
		deleted, failures, err := registry.DeleteImages(ctx, region, repository, digests[start:end])
		if err != nil {
			return result, err
		}
		result.Deleted = append(result.Deleted, deleted...)
		result.Failures = append(result.Failures, failures...)
	}

	log.Info("Deleted untagged images",
		"repository", repository,
		"region", region,
		"deleted", len(result.Deleted),
		"failures", len(result.Failures),
	)
	return result, nil
}
