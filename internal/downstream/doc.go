/*
Package downstream provides the client for the unit of work performed per task.

# Overview

A Client performs one downstream call for one payload. Clients never retry;
retry and backoff policy belong to the worker pool so that the call
implementation stays independently testable.

Three implementations are selected at construction time, never branched on
internally:

- Simulated: random latency and failure injection for demo and load testing
- Postgres: writes the processed payload into a Postgres table
- HTTP: forwards the payload to a configured endpoint

Guard wraps any Client with the per-call timeout and the circuit breaker.
Production code should always call through a Guard.
*/
package downstream
