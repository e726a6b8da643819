// Package redisstore implements the taskstore port on Redis. One JSON
// document per task, expiring after the configured TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/teemtee/tmtweb/internal/config"
	"github.com/teemtee/tmtweb/internal/domain"
	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/domain/task"
)

// txRetries bounds optimistic-transaction retries on contended keys.
const txRetries = 5

// Store implements taskstore.Store using Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect establishes a Redis connection and verifies it with a ping.
func Connect(ctx context.Context, cfg config.Redis) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return &Store{client: client, ttl: cfg.TaskTTL}, nil
}

func taskKey(id string) string { return "task:" + id }

// Create assigns a unique id and writes the task with status pending.
func (s *Store) Create(ctx context.Context, descriptors []metadata.Descriptor) (*task.Task, error) {
	t := &task.Task{
		ID:          uuid.NewString(),
		Descriptors: descriptors,
		Status:      task.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	if err := s.client.Set(ctx, taskKey(t.ID), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// Get returns the task or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	data, err := s.client.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", id, err)
	}
	return &t, nil
}

// Transition moves the task to status under an optimistic WATCH
// transaction so a concurrent completion cannot be overwritten. Returns
// domain.ErrStaleTransition when the stored task is already terminal.
func (s *Store) Transition(ctx context.Context, id string, status task.Status, result *metadata.Result, errMsg string) error {
	key := taskKey(id)

	apply := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrNotFound
			}
			return err
		}

		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("unmarshal task %s: %w", id, err)
		}
		if t.Status.Terminal() {
			return domain.ErrStaleTransition
		}

		t.Status = status
		t.Result = result
		t.Error = errMsg
		if status.Terminal() {
			now := time.Now().UTC()
			t.CompletedAt = &now
		}

		updated, err := json.Marshal(&t)
		if err != nil {
			return fmt.Errorf("marshal task %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.ttl)
			return nil
		})
		return err
	}

	for range txRetries {
		err := s.client.Watch(ctx, apply, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("transition task %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("transition task %s: too many conflicting writes", id)
}

// Ping reports store connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.client.Close()
}
