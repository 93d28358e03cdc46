package main

import (
	"fmt"

	"experiment-runner/core/deploy"
	"experiment-runner/providers/aws"

	"github.com/spf13/cobra"
)

func newPruneImagesCmd(root *rootOptions) *cobra.Command {
	var repository, region string

	cmd := &cobra.Command{
		Use:   "prune-images",
		Short: "Delete untagged images from an ECR repository",
		Example: `  runner prune-images --repository experiment-runner
  runner prune-images --repository 123456789012.dkr.ecr.ap-northeast-2.amazonaws.com/experiment-runner`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			if region == "" {
				region = cfg.AWSRegion
			}
			ctx := cmd.Context()
			client, err := aws.NewClient(ctx, region)
			if err != nil {
				return err
			}

			repo, repoRegion, err := deploy.ParseRepository(repository, client.Region())
			if err != nil {
				return err
			}
			result, err := deploy.PruneUntagged(ctx, client, repo, repoRegion, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			headerColor.Fprintf(out, "%s (%s)\n", result.Repository, result.Region)
			fmt.Fprintf(out, "  untagged: %d\n", result.Found)
			goodColor.Fprintf(out, "  deleted:  %d\n", len(result.Deleted))
			if len(result.Failures) > 0 {
				badColor.Fprintf(out, "  failed:   %d\n", len(result.Failures))
				for _, f := range result.Failures {
					badColor.Fprintf(out, "    %s\n", f)
				}
				return fmt.Errorf("%d images could not be deleted", len(result.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repository, "repository", "", "repository name or ECR image URI (alias --repository_name)")
	cmd.Flags().StringVar(&region, "region", "", "AWS region (default from config; an image URI's region wins)")
	cmd.Flags().SetNormalizeFunc(flagAliases(map[string]string{"repository_name": "repository"}))
	_ = cmd.MarkFlagRequired("repository")
	return cmd
}
