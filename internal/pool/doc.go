/*
Package pool implements admission control and reliable task dispatch.

# Overview

A fixed set of workers drains one bounded FIFO queue. Submission is the
admission gate: it rejects with ErrQueueFull when the queue cannot accept the
task within the chosen admission mode, and fails fast with
resilience.ErrCircuitOpen while the downstream circuit is open. Accepted tasks
are processed with bounded retries and exponential backoff with jitter;
outcomes are recorded in a result store and surfaced only through the
result-lookup boundary, never back through the submission call.

# Data flow

	caller -> Submit -> Queue -> worker -> downstream.Guard -> result store

# Guarantees

- Queue occupancy never exceeds the configured capacity
- Tasks are dequeued in FIFO order (completion order is not guaranteed)
- A task is attempted at most maxRetries+1 times; a circuit-open rejection
  is terminal immediately and consumes no retries
- Shutdown waits, bounded by the caller's context, for in-flight tasks to
  reach a terminal state; pending queued tasks are abandoned as queued
*/
package pool
