package syncengine

import (
	"container/heap"
	"time"
)

// TaskState is the lifecycle state of a SyncTask.
type TaskState int

const (
	TaskQueued TaskState = iota
	TaskRunning
	TaskSuccess
	TaskFailed
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskSuccess:
		return "success"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "queued"
	}
}

// SyncTask is one vault's position in the controller's priority queue.
type SyncTask struct {
	VaultID   int64
	NextDueAt time.Time
	State     TaskState
	FailCount int
	// Interval is the policy's configured sync interval, used to compute
	// the next due time on success and the backoff cap on failure. Zero
	// falls back to a default cadence.
	Interval time.Duration
	index    int // heap.Interface bookkeeping
}

// taskQueue is a container/heap min-heap of *SyncTask ordered by NextDueAt.
type taskQueue []*SyncTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	return q[i].NextDueAt.Before(q[j].NextDueAt)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	task := x.(*SyncTask)
	task.index = len(*q)
	*q = append(*q, task)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[:n-1]
	return task
}

var _ heap.Interface = (*taskQueue)(nil)
