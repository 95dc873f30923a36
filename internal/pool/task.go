package pool

import (
	"time"

	"github.com/queueworks/taskgate/internal/shared/id"
)

// Task is one unit of pending work. It is owned by the queue until a worker
// claims it, then by that worker until it reaches a terminal outcome.
type Task struct {
	ID         id.TaskID
	Payload    []byte
	Attempt    int
	EnqueuedAt time.Time
}

// NewTask wraps a payload with a fresh task id
func NewTask(payload []byte) Task {
	return Task{
		ID:         id.NewTaskID(),
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}
