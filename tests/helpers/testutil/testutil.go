// Package testutil provides testing utilities and helpers for service tests.
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/queueworks/taskgate/internal/downstream"
	"github.com/queueworks/taskgate/internal/infrastructure/logging"
	"github.com/queueworks/taskgate/internal/infrastructure/monitoring"
	"github.com/queueworks/taskgate/internal/infrastructure/resilience"
	"github.com/queueworks/taskgate/internal/pool"
	"github.com/queueworks/taskgate/internal/result"
)

// MockDownstream is a mock implementation of downstream.Client for testing.
type MockDownstream struct {
	mock.Mock
}

// Call mocks the downstream call.
func (m *MockDownstream) Call(ctx context.Context, payload []byte) ([]byte, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// NewMockDownstream creates a mock downstream client that echoes its payload
// unless the test overrides the expectation.
func NewMockDownstream(t *testing.T) *MockDownstream {
	t.Helper()
	m := new(MockDownstream)

	m.On("Call", mock.Anything, mock.Anything).
		Return([]byte(`{"status":"ok"}`), nil).
		Maybe()

	return m
}

// PoolOptions configures NewTestPool.
type PoolOptions struct {
	Workers          int
	QueueCapacity    int
	MaxRetries       int
	BackoffBase      time.Duration
	FailureThreshold uint32
	Cooldown         time.Duration
	CallTimeout      time.Duration
}

// DefaultPoolOptions returns options small enough for fast tests.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		Workers:          2,
		QueueCapacity:    4,
		MaxRetries:       1,
		BackoffBase:      time.Millisecond,
		FailureThreshold: 3,
		Cooldown:         50 * time.Millisecond,
		CallTimeout:      time.Second,
	}
}

// NewTestPool builds a started pool around the given client with an in-memory
// result store. The pool is stopped in t.Cleanup.
func NewTestPool(t *testing.T, client downstream.Client, opts PoolOptions) (*pool.Pool, result.Store) {
	t.Helper()

	breaker := resilience.New("test", resilience.Settings{
		FailureThreshold: opts.FailureThreshold,
		Cooldown:         opts.Cooldown,
	})
	guard := downstream.NewGuard(client, breaker, opts.CallTimeout)
	store := result.NewMemoryStore()

	p := pool.New(pool.Config{
		Workers:          opts.Workers,
		QueueCapacity:    opts.QueueCapacity,
		Retry:            pool.RetryPolicy{MaxRetries: opts.MaxRetries, Base: opts.BackoffBase},
		AdmissionTimeout: 100 * time.Millisecond,
	}, guard, store, monitoring.New(), logging.NewNop())

	p.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	})

	return p, store
}

// WaitForStatus polls the store until the result reaches the wanted status or
// the deadline passes.
func WaitForStatus(t *testing.T, store result.Store, id string, want result.Status, timeout time.Duration) result.Result {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		res, err := store.Get(context.Background(), id)
		if err == nil && res.Status == want {
			return res
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("result %s did not reach status %q within %s", id, want, timeout)
	return result.Result{}
}

// Payload marshals v for use as a task payload.
func Payload(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}
