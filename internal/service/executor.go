package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sethvargo/go-retry"

	twotel "github.com/teemtee/tmtweb/internal/adapter/otel"
	"github.com/teemtee/tmtweb/internal/config"
	"github.com/teemtee/tmtweb/internal/domain"
	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/domain/task"
	"github.com/teemtee/tmtweb/internal/port/messagequeue"
	"github.com/teemtee/tmtweb/internal/port/taskstore"
)

// Executor consumes submitted tasks from the queue and drives them through
// pending -> running -> success/failure. Descriptors resolve strictly in
// request order; one failing descriptor never aborts the rest.
type Executor struct {
	store     taskstore.Store
	queue     messagequeue.Queue
	extractor *Extractor
	cfg       config.Executor
	log       *slog.Logger

	stops []func()
}

// NewExecutor creates an Executor.
func NewExecutor(store taskstore.Store, queue messagequeue.Queue, extractor *Extractor, cfg config.Executor, log *slog.Logger) *Executor {
	return &Executor{
		store:     store,
		queue:     queue,
		extractor: extractor,
		cfg:       cfg,
		log:       log,
	}
}

// Start subscribes the configured number of workers to the task subject.
// Workers share one durable consumer, so each task is picked up once.
func (e *Executor) Start(ctx context.Context) error {
	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		stop, err := e.queue.Subscribe(ctx, messagequeue.SubjectTaskSubmitted, e.handle)
		if err != nil {
			e.Stop()
			return fmt.Errorf("subscribe worker %d: %w", i, err)
		}
		e.stops = append(e.stops, stop)
	}
	e.log.Info("executor started", "workers", workers)
	return nil
}

// Stop cancels all worker subscriptions. In-flight tasks finish.
func (e *Executor) Stop() {
	for _, stop := range e.stops {
		stop()
	}
	e.stops = nil
}

func (e *Executor) handle(ctx context.Context, _ string, data []byte) error {
	var payload messagequeue.TaskSubmittedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Malformed messages never become valid; drop instead of redeliver.
		e.log.Error("dropping malformed task message", "error", err)
		return nil
	}
	return e.Execute(ctx, payload.TaskID)
}

// Execute runs one task to completion. A nil return acks the queue
// message; errors trigger redelivery.
func (e *Executor) Execute(ctx context.Context, id string) (err error) {
	log := e.log.With("task_id", id)

	defer func() {
		if r := recover(); r != nil {
			log.Error("task execution panicked", "panic", r)
			msg := fmt.Sprintf("internal error: %v", r)
			if terr := e.store.Transition(context.WithoutCancel(ctx), id, task.StatusFailure, nil, msg); terr != nil && !errors.Is(terr, domain.ErrStaleTransition) {
				log.Error("failed to record panic failure", "error", terr)
			}
			err = nil
		}
	}()

	t, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Task record expired or was never written; nothing to do.
			log.Warn("task not found, dropping message")
			return nil
		}
		return err
	}

	if err := e.store.Transition(ctx, id, task.StatusRunning, nil, ""); err != nil {
		switch {
		case errors.Is(err, domain.ErrStaleTransition):
			// Redelivered after completion; the stored outcome stands.
			log.Debug("task already terminal, dropping message")
			return nil
		case errors.Is(err, domain.ErrNotFound):
			return nil
		}
		return err
	}

	ctx, span := twotel.StartTaskSpan(ctx, id, len(t.Descriptors))
	defer span.End()

	res := &metadata.Result{Outcomes: make([]metadata.Outcome, 0, len(t.Descriptors))}
	for _, d := range t.Descriptors {
		rec, rerr := e.resolve(ctx, d)
		if rerr != nil {
			log.Warn("descriptor failed", "kind", d.Kind, "name", d.Name, "error", rerr)
			res.Outcomes = append(res.Outcomes, metadata.Outcome{Error: metadata.Classify(rerr)})
			continue
		}
		res.Outcomes = append(res.Outcomes, metadata.Outcome{Record: rec})
	}

	status := task.StatusSuccess
	errMsg := ""
	if res.Resolved() == 0 {
		status = task.StatusFailure
		errMsg = "no descriptor resolved"
	}

	if err := e.store.Transition(context.WithoutCancel(ctx), id, status, res, errMsg); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			log.Warn("task finished elsewhere, keeping stored outcome")
			return nil
		}
		return err
	}

	log.Info("task finished", "status", status, "resolved", res.Resolved(), "total", len(res.Outcomes))
	return nil
}

// resolve runs one descriptor under its timeout, retrying fetch failures
// with exponential backoff. Deterministic failures (missing object,
// malformed tree) are never retried.
func (e *Executor) resolve(parent context.Context, d metadata.Descriptor) (*metadata.Record, error) {
	ctx, cancel := context.WithTimeout(parent, e.cfg.DescriptorTimeout)
	defer cancel()

	ctx, span := twotel.StartDescriptorSpan(ctx, string(d.Kind), d.URL, d.Name)
	defer span.End()

	backoff := retry.WithMaxRetries(e.cfg.RetryAttempts, retry.NewExponential(e.cfg.RetryBase))

	var rec *metadata.Record
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var rerr error
		rec, rerr = e.extractor.Extract(ctx, d)
		if rerr == nil {
			return nil
		}
		var fetchErr *metadata.FetchError
		if errors.As(rerr, &fetchErr) {
			return retry.RetryableError(rerr)
		}
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
