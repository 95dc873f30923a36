package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrSimulatedFailure is the injected failure returned by the simulated client
var ErrSimulatedFailure = errors.New("simulated downstream failure")

// SimulatedConfig tunes the simulated client
type SimulatedConfig struct {
	MinLatency time.Duration
	MaxLatency time.Duration
	FailRate   float64 // 0..1 probability of an injected failure
}

// DefaultSimulatedConfig mirrors the demo downstream: 10-200ms latency,
// one call in five failing.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		MinLatency: 10 * time.Millisecond,
		MaxLatency: 200 * time.Millisecond,
		FailRate:   0.2,
	}
}

// Simulated is an unreliable in-process downstream used in demo mode and
// load tests: random latency, random failures, echoes the payload back.
type Simulated struct {
	cfg SimulatedConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated client
func NewSimulated(cfg SimulatedConfig) *Simulated {
	return &Simulated{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewSimulatedWithSeed creates a simulated client with deterministic randomness for tests
func NewSimulatedWithSeed(cfg SimulatedConfig, seed int64) *Simulated {
	return &Simulated{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

type simulatedResult struct {
	Echo        json.RawMessage `json:"echo"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// Call sleeps for a random latency inside the configured window, fails with
// probability FailRate, and otherwise echoes the payload back.
func (s *Simulated) Call(ctx context.Context, payload []byte) ([]byte, error) {
	s.mu.Lock()
	latency := s.cfg.MinLatency
	if spread := s.cfg.MaxLatency - s.cfg.MinLatency; spread > 0 {
		latency += time.Duration(s.rng.Int63n(int64(spread)))
	}
	failed := s.rng.Float64() < s.cfg.FailRate
	s.mu.Unlock()

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	if failed {
		return nil, ErrSimulatedFailure
	}

	return json.Marshal(simulatedResult{
		Echo:        json.RawMessage(payload),
		ProcessedAt: time.Now().UTC(),
	})
}
