package main

import (
	"context"
	"os"

	"experiment-runner/config"
	"experiment-runner/core/app"
	"experiment-runner/core/logger"

	"github.com/spf13/cobra"
)

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// rootOptions are shared by every subcommand
type rootOptions struct {
	configPath string
	logMode    string
	rawArgs    []string

	// newApp wires the AWS-backed components; replaced in tests
	newApp func(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app.App, error)
}

func newRootCmd(args []string) *cobra.Command {
	opts := &rootOptions{rawArgs: args, newApp: app.New}

	cmd := &cobra.Command{
		Use:   "runner",
		Short: "Runs experiment notebooks and reports their results",
		Long: `runner stages an experiment's inputs from S3, executes its notebook with papermill,
publishes the artifacts and reports the outcome to DynamoDB and Step Functions.`,
		SilenceUsage: true,
	}
	cmd.SetArgs(args)

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", getEnvOrDefault("RUNNER_CONFIG", ""), "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logMode, "log-mode", "", "log format: prod (JSON) or dev (console)")

	cmd.AddCommand(
		newRunCmd(opts),
		newRenderCmd(opts),
		newPruneImagesCmd(opts),
		newTreeCmd(opts),
	)
	return cmd
}

// load reads the runner configuration and builds the logger
func (o *rootOptions) load() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logMode != "" {
		cfg.LogMode = o.logMode
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
