// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

var ErrUnknownTask = errors.New("unknown task")

// Task runs one unit of background work from its JSON arguments.
type Task func(ctx context.Context, args json.RawMessage) error

// Dispatcher hands work off so that webhook handlers can acknowledge
// within the upstream deadline.
type Dispatcher interface {
	Enqueue(ctx context.Context, task string, args any) error
}

// Payload is the wire form of a task, shared with the worker.
type Payload struct {
	ID       string          `json:"id"`
	TaskName string          `json:"taskName"`
	Args     json.RawMessage `json:"args"`
}

func NewPayload(task string, args any) (Payload, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Payload{}, fmt.Errorf("encode %s args: %w", task, err)
	}
	return Payload{ID: uuid.NewString(), TaskName: task, Args: raw}, nil
}

// Registry maps task names to their implementations.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

func (r *Registry) Register(name string, task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = task
}

func (r *Registry) lookup(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Run executes a task synchronously.
func (r *Registry) Run(ctx context.Context, p Payload) error {
	task, ok := r.lookup(p.TaskName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, p.TaskName)
	}
	slog.Debug("running task", "task", p.TaskName, "task_id", p.ID)
	if err := task(ctx, p.Args); err != nil {
		return fmt.Errorf("task %s: %w", p.TaskName, err)
	}
	return nil
}

// Handler is the worker entrypoint. Failures are reported to Sentry and
// returned so the invocation is marked failed.
func (r *Registry) Handler() func(ctx context.Context, p Payload) error {
	return func(ctx context.Context, p Payload) error {
		slog.Info("worker received task", "task", p.TaskName, "task_id", p.ID)
		if err := r.Run(ctx, p); err != nil {
			slog.Error("task failed", "task", p.TaskName, "task_id", p.ID, "error", err)
			sentry.CaptureException(err)
			return err
		}
		return nil
	}
}

// InProcess runs tasks on goroutines of the current process.
type InProcess struct {
	registry *Registry
	wg       sync.WaitGroup
}

func NewInProcess(registry *Registry) *InProcess {
	return &InProcess{registry: registry}
}

func (d *InProcess) Enqueue(ctx context.Context, task string, args any) error {
	if _, ok := d.registry.lookup(task); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	p, err := NewPayload(task, args)
	if err != nil {
		return err
	}
	slog.Info("running background task in process", "task", task, "task_id", p.ID)

	// The request context ends when the webhook is acknowledged.
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		hub := sentry.CurrentHub().Clone()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("task panicked", "task", task, "task_id", p.ID, "panic", rec)
				hub.Recover(rec)
			}
		}()
		if err := d.registry.Run(ctx, p); err != nil {
			slog.Error("task failed", "task", task, "task_id", p.ID, "error", err)
			hub.CaptureException(err)
		}
	}()
	return nil
}

// Wait blocks until every enqueued task has finished.
func (d *InProcess) Wait() {
	d.wg.Wait()
}
