// Package tasks provides a bounded worker pool for running long operations,
// such as LLM generation, outside the request path.
package tasks

import (
	"context"
	"sync"
	"time"

	"aprenda/internal/config"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// TaskState is the lifecycle state of a submitted task
type TaskState string

// Task states
const (
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

// TaskFunc is the unit of work a dispatcher runs. The result is stored on the
// task status for later retrieval.
type TaskFunc func(ctx context.Context) (interface{}, error)

// TaskStatus is the observable state of a submitted task
type TaskStatus struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	State       TaskState   `json:"state"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

type task struct {
	id   string
	name string
	fn   TaskFunc
}

// Dispatcher runs submitted tasks on a fixed pool of workers
type Dispatcher struct {
	logger   *observability.Logger
	queue    chan task
	statuses map[string]*TaskStatus
	mu       sync.RWMutex
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
	closed   bool
}

// NewDispatcher creates a dispatcher and starts its workers
func NewDispatcher(cfg *config.TasksConfig, logger *observability.Logger) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultTaskWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = config.DefaultTaskQueueSize
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		logger:   logger,
		queue:    make(chan task, queueSize),
		statuses: make(map[string]*TaskStatus),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	logger.Info(baseCtx, "Task dispatcher started", map[string]interface{}{
		"workers":    workers,
		"queue_size": queueSize,
	})
	return d
}

// Submit enqueues a task and returns its handle. Submitting to a full queue
// or a shut-down dispatcher fails rather than blocking the caller.
func (d *Dispatcher) Submit(ctx context.Context, name string, fn TaskFunc) (result string, err error) {
	ctx, span := observability.TraceTaskFunction(ctx, "submit_task",
		attribute.String("task.name", name),
	)
	defer observability.FinishSpan(span, &err)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", contextutils.NewAppError(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityWarn, "task dispatcher is shut down", "")
	}

	id := uuid.NewString()
	status := &TaskStatus{
		ID:          id,
		Name:        name,
		State:       TaskStateQueued,
		SubmittedAt: time.Now(),
	}

	// The enqueue stays under the lock so Shutdown cannot close the queue
	// between the closed check and the send. The send never blocks here, so
	// the lock is held only briefly.
	select {
	case d.queue <- task{id: id, name: name, fn: fn}:
		d.statuses[id] = status
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		return "", contextutils.NewAppError(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityWarn, "task queue is full", "")
	}

	span.SetAttributes(observability.AttributeTaskID(id))
	d.logger.Debug(ctx, "Task queued", map[string]interface{}{
		"task_id":   id,
		"task_name": name,
	})
	return id, nil
}

// Status returns the status of a task, or false if the handle is unknown
func (d *Dispatcher) Status(id string) (*TaskStatus, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status, ok := d.statuses[id]
	if !ok {
		return nil, false
	}
	copied := *status
	return &copied, true
}

// Shutdown stops accepting tasks, waits for in-flight work to finish, and
// returns early with the context's error if the deadline passes first
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.queue)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info(ctx, "Task dispatcher stopped", nil)
		return nil
	case <-ctx.Done():
		d.cancel()
		return contextutils.WrapError(ctx.Err(), "task dispatcher shutdown timed out")
	}
}

func (d *Dispatcher) worker(index int) {
	defer d.wg.Done()

	for t := range d.queue {
		d.run(t, index)
	}
}

func (d *Dispatcher) run(t task, workerIndex int) {
	ctx, span := observability.TraceTaskFunction(d.baseCtx, "run_task",
		observability.AttributeTaskID(t.id),
		attribute.String("task.name", t.name),
		attribute.Int("task.worker", workerIndex),
	)
	var err error
	defer observability.FinishSpan(span, &err)

	started := time.Now()
	d.setState(t.id, func(status *TaskStatus) {
		status.State = TaskStateRunning
		status.StartedAt = &started
	})

	result, err := t.fn(ctx)

	finished := time.Now()
	if err != nil {
		d.setState(t.id, func(status *TaskStatus) {
			status.State = TaskStateFailed
			status.Error = err.Error()
			status.FinishedAt = &finished
		})
		d.logger.Error(ctx, "Task failed", err, map[string]interface{}{
			"task_id":   t.id,
			"task_name": t.name,
		})
		return
	}

	d.setState(t.id, func(status *TaskStatus) {
		status.State = TaskStateCompleted
		status.Result = result
		status.FinishedAt = &finished
	})
	d.logger.Debug(ctx, "Task completed", map[string]interface{}{
		"task_id":     t.id,
		"task_name":   t.name,
		"duration_ms": finished.Sub(started).Milliseconds(),
	})
}

func (d *Dispatcher) setState(id string, mutate func(*TaskStatus)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if status, ok := d.statuses[id]; ok {
		mutate(status)
	}
}
