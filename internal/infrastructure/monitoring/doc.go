/*
Package monitoring provides Prometheus metrics for the dispatch service.

# Overview

All metrics hang off one Metrics value registered against an explicit
registry, so multiple independently-configured pools (and tests) can coexist
in one process without collisions in the default registry.

Counters: jobs received/processed/failed, rejections by reason, downstream
errors, HTTP requests. Gauges: queue depth, active workers, circuit-open
indicator. Histograms: HTTP request duration, downstream call duration by
outcome (Timer wraps the latter for call sites).

Metrics are exposed in the Prometheus text format via the /metrics endpoint,
see the server package.
*/
package monitoring
