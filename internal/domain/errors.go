// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleTransition indicates an attempt to transition a task that is
// already terminal. The stored record is left unchanged.
var ErrStaleTransition = errors.New("stale transition: task already terminal")
