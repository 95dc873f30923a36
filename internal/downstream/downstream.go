package downstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/queueworks/taskgate/internal/infrastructure/resilience"
)

// ErrTimeout marks a call that exceeded the per-call timeout. It is a
// transient, retryable failure.
var ErrTimeout = errors.New("downstream call timed out")

// Client performs a single downstream call for one payload. Implementations
// must not retry; the worker pool owns retry policy.
type Client interface {
	Call(ctx context.Context, payload []byte) ([]byte, error)
}

// Guard wraps a Client with the per-call timeout and the circuit breaker.
// Success resets the breaker's failure count, failure and timeout increment
// it, and an open breaker rejects the call with resilience.ErrCircuitOpen
// before it reaches the inner client.
type Guard struct {
	inner   Client
	breaker *resilience.Breaker
	timeout time.Duration
}

// NewGuard creates a guarded client
func NewGuard(inner Client, breaker *resilience.Breaker, timeout time.Duration) *Guard {
	return &Guard{
		inner:   inner,
		breaker: breaker,
		timeout: timeout,
	}
}

// Breaker returns the circuit breaker guarding this client
func (g *Guard) Breaker() *resilience.Breaker {
	return g.breaker
}

// Call performs one guarded downstream call
func (g *Guard) Call(ctx context.Context, payload []byte) ([]byte, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		out, err := g.inner.Call(callCtx, payload)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s", ErrTimeout, g.timeout)
			}
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
