package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teemtee/tmtweb/internal/domain"
	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/domain/task"
)

// Store implements taskstore.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create assigns a unique id and inserts the task with status pending.
func (s *Store) Create(ctx context.Context, descriptors []metadata.Descriptor) (*task.Task, error) {
	t := &task.Task{
		ID:          uuid.NewString(),
		Descriptors: descriptors,
		Status:      task.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	descJSON, err := json.Marshal(t.Descriptors)
	if err != nil {
		return nil, fmt.Errorf("marshal descriptors: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (id, descriptors, status, error, created_at)
		VALUES ($1, $2, $3, '', $4)`,
		t.ID, descJSON, string(t.Status), t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// Get returns the task or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	var (
		t          task.Task
		status     string
		descJSON   []byte
		resultJSON []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, descriptors, status, result, error, created_at, completed_at
		FROM tasks WHERE id = $1`, id,
	).Scan(&t.ID, &descJSON, &status, &resultJSON, &t.Error, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	t.Status = task.Status(status)
	if err := json.Unmarshal(descJSON, &t.Descriptors); err != nil {
		return nil, fmt.Errorf("unmarshal descriptors for task %s: %w", id, err)
	}
	if len(resultJSON) > 0 {
		t.Result = &metadata.Result{}
		if err := json.Unmarshal(resultJSON, t.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result for task %s: %w", id, err)
		}
	}
	return &t, nil
}

// Transition moves the task to status. The WHERE clause refuses to touch
// rows that already reached a terminal status, so a concurrent completion
// cannot be overwritten; such attempts get domain.ErrStaleTransition.
func (s *Store) Transition(ctx context.Context, id string, status task.Status, result *metadata.Result, errMsg string) error {
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result for task %s: %w", id, err)
		}
	}

	var completedAt *time.Time
	if status.Terminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $2, result = $3, error = $4, completed_at = $5
		WHERE id = $1 AND status NOT IN ($6, $7)`,
		id, string(status), resultJSON, errMsg, completedAt,
		string(task.StatusSuccess), string(task.StatusFailure),
	)
	if err != nil {
		return fmt.Errorf("transition task %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing updated: either the task does not exist or it is terminal.
	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("transition task %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("transition task %s: %w", id, err)
	}
	return fmt.Errorf("transition task %s from %s: %w", id, current, domain.ErrStaleTransition)
}

// Ping reports store connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
