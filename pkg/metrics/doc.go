/*
Package metrics exposes Prometheus instrumentation for Flock.

Collectors are package-level and registered in init, following the usual
client_golang layout. The manager populates the job/node gauges and the
assignment and reconciliation counters; each worker populates the execution
histogram and heartbeat counters. Serve starts an optional promhttp listener
when a metrics address is configured; with no address configured the
collectors still accumulate and cost nothing beyond a few atomics.
*/
package metrics
