/*
Package resilience provides the circuit breaker guarding the downstream dependency.

# Overview

This package implements the circuit breaker pattern to fail fast when the
downstream is persistently unhealthy, instead of burning worker attempts on
calls that are going to fail anyway.

# States

- Closed: normal operation, consecutive failures are tracked
- Open: calls are rejected immediately with ErrCircuitOpen
- Half-Open: after the cooldown elapses, a single trial call is admitted

# Pattern

	Closed --[threshold consecutive failures]-> Open --[cooldown]-> Half-Open --[trial success]-> Closed
	                                                                   |
	                                                            [trial failure]
	                                                                   |
	                                                                   v
	                                                                 Open (fresh cooldown)

The open to half-open transition has no explicit event; it is evaluated lazily
on each call against the cooldown expiry. While a half-open trial is in flight,
concurrent callers are rejected as if the breaker were still open, so exactly
one call decides the outcome.

# Usage

	breaker := resilience.New("downstream", resilience.Settings{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	result, err := breaker.Execute(func() (interface{}, error) {
		return client.Call()
	})
*/
package resilience
