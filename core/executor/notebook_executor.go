package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"experiment-runner/core/logger"
)

var (
	// ErrCellExecution means the notebook ran but one of its cells raised
	ErrCellExecution = errors.New("notebook cell execution failed")
	// ErrExecutorFailure means papermill itself could not run the notebook
	ErrExecutorFailure = errors.New("notebook executor failed")
)

// papermill reports a failing cell with this exception name
const cellErrorMarker = "PapermillExecutionError"

// NotebookRun describes a single notebook execution
type NotebookRun struct {
	// Notebook is the input notebook path, relative to Dir unless absolute
	Notebook string
	// Dir is the working directory of the run, work/<job_type>
	Dir        string
	Kernel     string
	Parameters string // YAML mapping, optional
}

// OutputPath is the executed notebook's path relative to Dir
func (r NotebookRun) OutputPath() string {
	name := strings.TrimSuffix(filepath.Base(r.Notebook), ".ipynb")
	return filepath.Join("artifacts", name+"_output.ipynb")
}

// Execution is the outcome of a notebook run
type Execution struct {
	// Output is the executed notebook's path relative to the run's Dir
	Output   string
	ExitCode int
	Duration time.Duration
	Stdout   string
	Stderr   string
}

// NotebookExecutor runs notebooks with the papermill CLI
type NotebookExecutor struct {
	bin    string
	stdout io.Writer
	stderr io.Writer
	log    *logger.Logger
}

// NewNotebookExecutor creates a new notebook executor. Papermill output is
// streamed to the process's stdout and stderr.
func NewNotebookExecutor(bin string, log *logger.Logger) *NotebookExecutor {
	if bin == "" {
		bin = "papermill"
	}
	return &NotebookExecutor{
		bin:    bin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		log:    log,
	}
}

// Args returns the papermill arguments for run
func (e *NotebookExecutor) Args(run NotebookRun) []string {
	args := []string{run.Notebook, run.OutputPath(), "-k", run.Kernel, "--report-mode"}
	if run.Parameters != "" {
		args = append(args, "-y", run.Parameters)
	}
	return args
}

// Execute runs the notebook and waits for it to finish. A failing cell
// returns an error wrapping ErrCellExecution, anything else that prevents
// the run wraps ErrExecutorFailure.
func (e *NotebookExecutor) Execute(ctx context.Context, run NotebookRun) (*Execution, error) {
	if run.Notebook == "" {
		return nil, fmt.Errorf("%w: no notebook given", ErrExecutorFailure)
	}
	if err := os.MkdirAll(filepath.Join(run.Dir, "artifacts"), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutorFailure, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.bin, e.Args(run)...)
	cmd.Dir = run.Dir
	cmd.Stdout = io.MultiWriter(e.stdout, &stdout)
	cmd.Stderr = io.MultiWriter(e.stderr, &stderr)

	e.log.Info("Executing notebook",
		"notebook", run.Notebook,
		"dir", run.Dir,
		"kernel", run.Kernel,
	)

	start := time.Now()
	err := cmd.Run()
	result := &Execution{
		Output:   run.OutputPath(),
		Duration: time.Since(start),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		e.log.Info("Notebook completed", "notebook", run.Notebook, "duration", result.Duration.String())
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && strings.Contains(result.Stderr, cellErrorMarker) {
		return result, fmt.Errorf("%w: %s: %s", ErrCellExecution, run.Notebook, lastLine(result.Stderr))
	}
	return result, fmt.Errorf("%w: %s: %v", ErrExecutorFailure, run.Notebook, err)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
