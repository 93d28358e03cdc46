package scheduler

import (
	"context"
	"sync"
	"time"

	"experiment-runner/core/logger"
	"experiment-runner/core/models"
	"experiment-runner/core/pipeline"

	"github.com/google/uuid"
)

// Runner executes a single run
type Runner interface {
	RunWithID(ctx context.Context, runID string, params models.RunParams) (*pipeline.Summary, error)
}

// Scheduler executes queued runs one at a time. Runs share the work root,
// so they are never executed concurrently.
type Scheduler struct {
	queue  *RunQueue
	runner Runner
	log    *logger.Logger

	notify   chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	current *QueuedRun
}

// NewScheduler creates a new scheduler
func NewScheduler(runner Runner, log *logger.Logger) *Scheduler {
	return &Scheduler{
		queue:    NewRunQueue(),
		runner:   runner,
		log:      log,
		notify:   make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start runs the scheduler worker until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second) // Fallback poll
	defer ticker.Stop()

	for {
		s.processQueue(ctx)

		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-s.notify:
		case <-ticker.C:
		}
	}
}

// Stop stops the scheduler after the current run
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Enqueue adds a run to the queue. It returns the queued run, whose ID
// becomes the run ID, and its position in the queue.
func (s *Scheduler) Enqueue(params models.RunParams) (*QueuedRun, int) {
	run := &QueuedRun{ID: uuid.NewString(), Params: params}
	pos := s.queue.Enqueue(run)
	s.log.Info("Run queued", "run_id", run.ID, "experiment", params.ExperimentHashkey, "position", pos)

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return run, pos
}

// Current returns the run being executed, if any
func (s *Scheduler) Current() *QueuedRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Pending returns the runs waiting to execute
func (s *Scheduler) Pending() []QueuedRun {
	return s.queue.Pending()
}

// processQueue drains the queue in order
func (s *Scheduler) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}

		run := s.queue.PopRun()
		if run == nil {
			return
		}
		s.execute(ctx, run)
	}
}

func (s *Scheduler) execute(ctx context.Context, run *QueuedRun) {
	s.mu.Lock()
	s.current = run
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	summary, err := s.runner.RunWithID(ctx, run.ID, run.Params)
	if err != nil {
		s.log.Error("Queued run failed", "run_id", run.ID, "error", err)
		return
	}
	s.log.Info("Queued run finished", "run_id", run.ID, "state", string(summary.State))
}
