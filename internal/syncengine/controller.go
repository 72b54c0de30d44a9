package syncengine

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/vaulthalla/vaulthalla/pkg/utils"
)

// CycleRunner performs one full sync cycle for a vault: operation log
// replay, planning, preflight, and execution. The controller is agnostic
// to what a cycle actually does; Executor implements this for production
// use.
type CycleRunner interface {
	RunCycle(ctx context.Context, vaultID int64) error
}

// initialBackoff is the first retry delay after a failed cycle; it doubles
// on each consecutive failure up to the policy's own interval.
const initialBackoff = 5 * time.Second

// Controller is the per-process singleton owning the sync priority queue
// (C8). A dedicated goroutine started by Start pops due tasks and hands
// them to the runner, enforcing at-most-one concurrent sync per vault.
type Controller struct {
	mu      sync.Mutex
	queue   taskQueue
	byVault map[int64]*SyncTask
	running map[int64]bool

	runner CycleRunner
	logger *utils.StructuredLogger

	poke chan struct{}
}

// NewController constructs a Controller dispatching cycles through runner.
func NewController(runner CycleRunner, logger *utils.StructuredLogger) *Controller {
	if logger == nil {
		logger, _ = utils.NewStructuredLogger(nil)
	}
	c := &Controller{
		byVault: make(map[int64]*SyncTask),
		running: make(map[int64]bool),
		runner:  runner,
		logger:  logger.WithComponent("syncengine.controller"),
		poke:    make(chan struct{}, 1),
	}
	heap.Init(&c.queue)
	return c
}

// Enqueue schedules vaultID to sync at dueAt. If vaultID already has a
// queued (not running) task, its due time is updated instead of creating a
// duplicate entry.
func (c *Controller) Enqueue(vaultID int64, dueAt time.Time) {
	c.EnqueueWithInterval(vaultID, dueAt, 0)
}

// EnqueueWithInterval schedules vaultID to sync at dueAt, recording its
// policy interval for use computing the next due time and failure backoff
// cap.
func (c *Controller) EnqueueWithInterval(vaultID int64, dueAt time.Time, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueueLocked(vaultID, dueAt, interval)
	c.wake()
}

func (c *Controller) enqueueLocked(vaultID int64, dueAt time.Time, interval time.Duration) {
	if task, ok := c.byVault[vaultID]; ok {
		task.NextDueAt = dueAt
		task.State = TaskQueued
		if interval > 0 {
			task.Interval = interval
		}
		// A task popped off the queue by run() (to dispatch it) has
		// index == -1 and is no longer heap-managed, even though it's still
		// reachable through byVault while its cycle runs. heap.Fix on a
		// negative index is a silent no-op, so the task would never make it
		// back into the queue; Push it instead whenever it isn't currently a
		// member.
		if task.index < 0 {
			heap.Push(&c.queue, task)
		} else {
			heap.Fix(&c.queue, task.index)
		}
		return
	}
	task := &SyncTask{VaultID: vaultID, NextDueAt: dueAt, State: TaskQueued, Interval: interval}
	c.byVault[vaultID] = task
	heap.Push(&c.queue, task)
}

// SyncNow pulls vaultID's task forward to run immediately. If a sync for
// vaultID is already running, the pulled-forward run happens as soon as it
// finishes (at-most-one-concurrent-per-vault is never violated).
func (c *Controller) SyncNow(ctx context.Context, vaultID int64) {
	c.Enqueue(vaultID, time.Now())
}

func (c *Controller) wake() {
	select {
	case c.poke <- struct{}{}:
	default:
	}
}

// Start runs the controller's dedicated goroutine until ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Controller) run(ctx context.Context) {
	for {
		c.mu.Lock()
		var wait time.Duration
		var due *SyncTask

		if c.queue.Len() > 0 {
			head := c.queue[0]
			if !c.running[head.VaultID] && !head.NextDueAt.After(time.Now()) {
				due = heap.Pop(&c.queue).(*SyncTask)
			} else if c.running[head.VaultID] {
				wait = time.Second // re-check shortly; head is blocked on an in-flight run
			} else {
				wait = time.Until(head.NextDueAt)
			}
		} else {
			wait = time.Hour
		}
		c.mu.Unlock()

		if due != nil {
			c.dispatch(ctx, due)
			continue
		}

		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.poke:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, task *SyncTask) {
	c.mu.Lock()
	c.running[task.VaultID] = true
	task.State = TaskRunning
	c.mu.Unlock()

	go func() {
		err := c.runner.RunCycle(ctx, task.VaultID)

		c.mu.Lock()
		delete(c.running, task.VaultID)
		c.mu.Unlock()

		if err != nil {
			c.logger.Warnf("sync cycle failed for vault %d: %v", task.VaultID, err)
			task.FailCount++
			c.requeue(task, false, task.failedInterval())
		} else {
			task.FailCount = 0
			c.requeue(task, true, task.successInterval())
		}
	}()
}

func (c *Controller) requeue(task *SyncTask, success bool, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := time.Now().Add(interval)
	// A SyncNow that arrived while the cycle ran has already put the task
	// back in the queue with an earlier due time; keep that one.
	if task.index >= 0 && task.NextDueAt.Before(next) {
		next = task.NextDueAt
	}
	task.State = TaskQueued
	c.enqueueLocked(task.VaultID, next, task.Interval)
	c.wake()
	_ = success
}

// successInterval returns the delay until the next scheduled run after a
// successful cycle, falling back to a default cadence if the task has no
// policy interval recorded.
func (t *SyncTask) successInterval() time.Duration {
	if t.Interval > 0 {
		return t.Interval
	}
	return 5 * time.Minute
}

// failedInterval computes exponential backoff capped at the task's
// configured interval, to avoid starving a persistently failing vault's
// other due tasks while also not hammering a flaky backend.
func (t *SyncTask) failedInterval() time.Duration {
	backoff := initialBackoff << uint(t.FailCount-1)
	ceiling := t.successInterval()
	if backoff > ceiling || backoff <= 0 {
		return ceiling
	}
	return backoff
}

// IsRunning reports whether vaultID currently has a sync in flight.
func (c *Controller) IsRunning(vaultID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running[vaultID]
}
