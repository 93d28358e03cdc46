package main

import (
	"fmt"
	"io"
	"os"

	"experiment-runner/core/deploy"
	"experiment-runner/providers/aws"

	"github.com/spf13/cobra"
)

func newRenderCmd(root *rootOptions) *cobra.Command {
	var (
		kind         string
		templatePath string
		output       string
		repository   string
		tag          string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the container Dockerfile or ECS task definition",
		Long: `Render fills a deployment template with the caller's AWS account ID and region.
Templates may reference {{.account_id}}, {{.region_name}} and {{.image_uri}}.`,
		Example: `  runner render --kind dockerfile
  runner render --kind task-definition --repository experiment-runner --tag v3 --output -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			opts := deploy.RenderOptions{
				Kind:         deploy.Kind(kind),
				TemplatePath: templatePath,
				Repository:   repository,
				Tag:          tag,
			}
			if output == "" {
				if output, err = deploy.DefaultOutput(opts.Kind); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			client, err := aws.NewClient(ctx, cfg.AWSRegion)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			if err := deploy.Render(ctx, client, opts, w); err != nil {
				return err
			}
			if output != "-" {
				log.Info("Rendered template", "kind", kind, "output", output, "region", client.Region())
				goodColor.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(deploy.KindDockerfile), "what to render: dockerfile or task-definition")
	cmd.Flags().StringVar(&templatePath, "template", "", "template file overriding the built-in one")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default depends on --kind)")
	cmd.Flags().StringVar(&repository, "repository", "", "ECR repository for {{.image_uri}}")
	cmd.Flags().StringVar(&tag, "tag", "latest", "image tag for {{.image_uri}}")
	return cmd
}
