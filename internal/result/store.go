// Package result tracks task outcomes for the result-lookup boundary.
//
// A result is created at submission, mutated only by the worker that owns the
// task, and retained after the task reaches a terminal state. Two backends are
// provided: an in-memory map (default, unbounded retention) and Redis with a
// TTL for bounded retention.
package result

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when looking up an unknown task id
var ErrNotFound = errors.New("task not found")

// Status is the lifecycle state of a task
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Result is the observable outcome of a task
type Result struct {
	ID         string          `json:"id"`
	Status     Status          `json:"status"`
	Value      json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Store persists task results keyed by task id.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create registers a task as queued
	Create(ctx context.Context, id string) error
	// Delete removes a task, used when admission is rejected after Create
	Delete(ctx context.Context, id string) error
	// MarkProcessing transitions a task to processing
	MarkProcessing(ctx context.Context, id string) error
	// MarkDone records a terminal success
	MarkDone(ctx context.Context, id string, value []byte, attempts int) error
	// MarkFailed records a terminal failure
	MarkFailed(ctx context.Context, id string, errMsg string, attempts int) error
	// Get returns the current result or ErrNotFound
	Get(ctx context.Context, id string) (Result, error)
	// Close releases backend resources
	Close() error
}
