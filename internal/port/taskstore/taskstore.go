// Package taskstore defines the port interface for durable task state.
package taskstore

import (
	"context"

	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/domain/task"
)

// Store is the port interface for task lifecycle state.
//
// Implementations must guarantee that Transition on a task whose stored
// status is terminal fails with domain.ErrStaleTransition and leaves the
// record unchanged, and that Get observes the most recently committed write.
type Store interface {
	// Create assigns a unique id and writes the task with status pending.
	Create(ctx context.Context, descriptors []metadata.Descriptor) (*task.Task, error)

	// Get returns the task or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*task.Task, error)

	// Transition moves the task to status, recording result or errMsg for
	// terminal states. Returns domain.ErrStaleTransition if the stored
	// task is already terminal, domain.ErrNotFound if it does not exist.
	Transition(ctx context.Context, id string, status task.Status, result *metadata.Result, errMsg string) error

	// Ping reports store connectivity for health checks.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
