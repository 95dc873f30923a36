// Command server runs the taskgate HTTP service: it accepts processing
// requests, admits them through the submission gate, and dispatches them to
// the worker pool with retry and circuit breaking on the downstream call.
package main
