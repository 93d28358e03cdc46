package main

import (
	"fmt"
	"io"
	"strings"

	"experiment-runner/core/models"
	"experiment-runner/core/pipeline"

	"github.com/spf13/cobra"
)

// runFlags mirror the workflow task's container arguments. Every value is a
// string; dryrun is "true" or "false" in any case.
type runFlags struct {
	projectHashkey            string
	experimentHashkey         string
	profileHashkey            string
	experimentTableName       string
	experimentResultTableName string
	datasetTableName          string
	datasetProfileTableName   string
	modelRepoTableName        string
	username                  string
	taskToken                 string
	dryrun                    string
	jobType                   string
}

func (f *runFlags) params() models.RunParams {
	return models.RunParams{
		ProjectHashkey:            f.projectHashkey,
		ExperimentHashkey:         f.experimentHashkey,
		ProfileHashkey:            f.profileHashkey,
		ExperimentTableName:       f.experimentTableName,
		ExperimentResultTableName: f.experimentResultTableName,
		DatasetTableName:          f.datasetTableName,
		DatasetProfileTableName:   f.datasetProfileTableName,
		ModelRepoTableName:        f.modelRepoTableName,
		Username:                  f.username,
		TaskToken:                 f.taskToken,
		DryRun:                    strings.EqualFold(strings.TrimSpace(f.dryrun), "true"),
		JobType:                   f.jobType,
	}
}

func newRunCmd(root *rootOptions) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, execute, upload and report one experiment",
		Long: `Run resolves the experiment and its dataset, profile and model records, downloads
their files into the work directory, executes the job type's notebook, uploads the
artifacts and writes the experiment status and result record.

Unknown flags are ignored so that workflow definitions may pass extra arguments.`,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(cmd, root, f, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.projectHashkey, "project_hashkey", "", "project hashkey")
	flags.StringVar(&f.experimentHashkey, "experiment_hashkey", "", "experiment hashkey")
	flags.StringVar(&f.profileHashkey, "profile_hashkey", "", "dataset profile hashkey")
	flags.StringVar(&f.experimentTableName, "experiment_table_name", "", "experiment table")
	flags.StringVar(&f.experimentResultTableName, "experiment_result_table_name", "", "experiment result table")
	flags.StringVar(&f.datasetTableName, "dataset_table_name", "", "dataset table")
	flags.StringVar(&f.datasetProfileTableName, "dataset_profile_table_name", "", "dataset profile table")
	flags.StringVar(&f.modelRepoTableName, "model_repo_table_name", "", "model repository table")
	flags.StringVar(&f.username, "username", "", "user who started the experiment")
	flags.StringVar(&f.taskToken, "task_token", "", "Step Functions task token")
	flags.StringVar(&f.dryrun, "dryrun", "false", "skip notebook execution (true/false)")
	flags.StringVar(&f.jobType, "job_type", "", "job type, e.g. train or inference")
	return cmd
}

func runExperiment(cmd *cobra.Command, root *rootOptions, f *runFlags, args []string) error {
	cfg, log, err := root.load()
	if err != nil {
		return err
	}
	defer log.Sync()

	params := f.params()
	log.Info("Parsed arguments",
		"project_hashkey", params.ProjectHashkey,
		"experiment_hashkey", params.ExperimentHashkey,
		"profile_hashkey", params.ProfileHashkey,
		"experiment_table_name", params.ExperimentTableName,
		"experiment_result_table_name", params.ExperimentResultTableName,
		"dataset_table_name", params.DatasetTableName,
		"dataset_profile_table_name", params.DatasetProfileTableName,
		"model_repo_table_name", params.ModelRepoTableName,
		"username", params.Username,
		"task_token", params.TaskToken,
		"dryrun", params.DryRun,
		"job_type", params.JobType,
	)
	if unknown := unknownFlags(root.rawArgs, cmd.Flags()); len(unknown) > 0 || len(args) > 0 {
		log.Warn("Ignoring unrecognized arguments", "flags", unknown, "args", args)
	}

	ctx := cmd.Context()
	a, err := root.newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Pipeline.Run(ctx, params)
	printRunSummary(cmd.OutOrStdout(), summary, err)
	if err != nil && !summary.FailureReported {
		return err
	}
	return nil
}

func printRunSummary(w io.Writer, summary *pipeline.Summary, runErr error) {
	headerColor.Fprintf(w, "\nRun %s\n", summary.RunID)

	state := string(summary.State)
	switch summary.State {
	case models.RunStateCompleted:
		labelColor.Fprint(w, "  state:  ")
		goodColor.Fprintln(w, state)
	case models.RunStateDegraded:
		labelColor.Fprint(w, "  state:  ")
		warnColor.Fprintln(w, state)
	default:
		labelColor.Fprint(w, "  state:  ")
		badColor.Fprintln(w, state)
	}

	if runErr != nil {
		labelColor.Fprint(w, "  error:  ")
		badColor.Fprintln(w, runErr.Error())
		return
	}

	fmt.Fprintf(w, "  downloaded: %d files\n", summary.Downloaded)
	fmt.Fprintf(w, "  executed:   %t\n", summary.Executed)
	if r := summary.Result; r != nil {
		fmt.Fprintf(w, "  status:     %s\n", r.Status())
		fmt.Fprintf(w, "  artifacts:  %d files under s3://%s/%s/artifacts\n", r.Artifacts.Count(), r.BucketName, r.S3KeyPrefix)
		fmt.Fprintf(w, "  elapsed:    %ds\n", r.Elapsed)
		if r.EstimatedCostUSD != nil {
			fmt.Fprintf(w, "  cost:       $%.4f\n", *r.EstimatedCostUSD)
		}
		for _, msg := range r.Logs {
			warnColor.Fprintf(w, "  ! %s\n", msg)
		}
	}
}
