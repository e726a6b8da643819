package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/domain/task"
	"github.com/teemtee/tmtweb/internal/format"
	"github.com/teemtee/tmtweb/internal/port/cache"
	"github.com/teemtee/tmtweb/internal/port/messagequeue"
	"github.com/teemtee/tmtweb/internal/port/taskstore"
)

// ErrNotReady is returned by Render while the task has not reached a
// terminal status yet.
var ErrNotReady = errors.New("task is still in progress")

// TaskService is the request-side boundary: it accepts submissions, hands
// them to the queue, and serves status and rendered results.
type TaskService struct {
	store     taskstore.Store
	queue     messagequeue.Queue
	renders   cache.Cache
	renderTTL time.Duration
	log       *slog.Logger
}

// NewTaskService creates a TaskService. renders may be nil to disable
// render caching.
func NewTaskService(store taskstore.Store, queue messagequeue.Queue, renders cache.Cache, renderTTL time.Duration, log *slog.Logger) *TaskService {
	return &TaskService{
		store:     store,
		queue:     queue,
		renders:   renders,
		renderTTL: renderTTL,
		log:       log,
	}
}

// Submit validates the descriptors, persists a pending task, and publishes
// it for worker pickup. The returned task carries the id the client polls.
func (s *TaskService) Submit(ctx context.Context, descriptors []metadata.Descriptor) (*task.Task, error) {
	if len(descriptors) == 0 {
		return nil, errors.New("at least one descriptor is required")
	}
	for i, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("descriptor %d: %w", i, err)
		}
	}

	t, err := s.store.Create(ctx, descriptors)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	data, err := json.Marshal(messagequeue.TaskSubmittedPayload{TaskID: t.ID})
	if err != nil {
		return t, fmt.Errorf("marshal task payload: %w", err)
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectTaskSubmitted, data); err != nil {
		// The task record exists; the client can resubmit or an operator
		// can requeue it. Surfacing the failure beats silently stalling.
		return nil, fmt.Errorf("publish task %s: %w", t.ID, err)
	}

	s.log.Info("task submitted", "task_id", t.ID, "descriptors", len(descriptors))
	return t, nil
}

// Status returns the stored task, or domain.ErrNotFound.
func (s *TaskService) Status(ctx context.Context, id string) (*task.Task, error) {
	return s.store.Get(ctx, id)
}

// Render returns the task's result in the requested representation. Only
// terminal tasks render; in-progress tasks get ErrNotReady. Rendered bytes
// for terminal tasks are cached, which is sound because rendering is pure
// and terminal results never change.
func (s *TaskService) Render(ctx context.Context, id string, rep format.Representation) ([]byte, error) {
	key := renderKey(id, rep)
	if s.renders != nil {
		if data, ok, err := s.renders.Get(ctx, key); err == nil && ok {
			return data, nil
		}
	}

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Status.Terminal() {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotReady)
	}
	if t.Result == nil {
		return nil, fmt.Errorf("task %s failed before producing a result: %s", id, t.Error)
	}

	data, err := format.Render(t.Result, rep)
	if err != nil {
		return nil, fmt.Errorf("render task %s: %w", id, err)
	}

	if s.renders != nil {
		if err := s.renders.Set(ctx, key, data, s.renderTTL); err != nil {
			s.log.Warn("render cache set failed", "task_id", id, "error", err)
		}
	}
	return data, nil
}

func renderKey(id string, rep format.Representation) string {
	return "render:" + id + ":" + string(rep)
}
