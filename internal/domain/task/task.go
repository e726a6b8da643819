// Package task defines the Task entity and its lifecycle.
package task

import (
	"time"

	"github.com/teemtee/tmtweb/internal/domain/metadata"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Terminal reports whether the status is an end state. Transitions out of a
// terminal state are rejected by the store.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Task is one asynchronous metadata-resolution request. The descriptor list
// is fixed at creation; only status, result, error and timestamps change,
// and only through the store's Transition.
type Task struct {
	ID          string                `json:"id"`
	Descriptors []metadata.Descriptor `json:"descriptors"`
	Status      Status                `json:"status"`
	Result      *metadata.Result      `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}
