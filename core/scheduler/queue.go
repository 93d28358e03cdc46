package scheduler

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"experiment-runner/core/models"
)

// RunQueue is a first-in first-out queue of pending runs
type RunQueue struct {
	runs []*QueuedRun
	seq  uint64
	mu   sync.Mutex
}

// QueuedRun wraps run parameters with their queue position
type QueuedRun struct {
	ID         string
	Params     models.RunParams
	EnqueuedAt time.Time
	seq        uint64
	index      int // For heap.Interface
}

// NewRunQueue creates a new run queue
func NewRunQueue() *RunQueue {
	rq := &RunQueue{
		runs: make([]*QueuedRun, 0),
	}
	heap.Init(rq)
	return rq
}

// Enqueue adds a run to the back of the queue and returns its position (1-based)
func (rq *RunQueue) Enqueue(run *QueuedRun) int {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	rq.seq++
	run.seq = rq.seq
	if run.EnqueuedAt.IsZero() {
		run.EnqueuedAt = time.Now()
	}
	heap.Push(rq, run)
	return rq.Len()
}

// PopRun removes and returns the oldest run, or nil when the queue is empty
func (rq *RunQueue) PopRun() *QueuedRun {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.Len() == 0 {
		return nil
	}
	return heap.Pop(rq).(*QueuedRun)
}

// Size returns the number of pending runs
func (rq *RunQueue) Size() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.Len()
}

// Pending returns a snapshot of the pending runs in the order they will run
func (rq *RunQueue) Pending() []QueuedRun {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	out := make([]QueuedRun, len(rq.runs))
	for i, run := range rq.runs {
		out[i] = *run
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of runs in the queue. Callers outside the heap
// operations should use Size.
func (rq *RunQueue) Len() int {
	return len(rq.runs)
}

// Less orders runs by arrival
func (rq *RunQueue) Less(i, j int) bool {
	return rq.runs[i].seq < rq.runs[j].seq
}

// Swap swaps two runs
func (rq *RunQueue) Swap(i, j int) {
	rq.runs[i], rq.runs[j] = rq.runs[j], rq.runs[i]
	rq.runs[i].index = i
	rq.runs[j].index = j
}

// Push implements heap.Interface
func (rq *RunQueue) Push(x interface{}) {
	n := len(rq.runs)
	item := x.(*QueuedRun)
	item.index = n
	rq.runs = append(rq.runs, item)
}

// Pop implements heap.Interface
func (rq *RunQueue) Pop() interface{} {
	old := rq.runs
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	rq.runs = old[0 : n-1]
	return item
}
