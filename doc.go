/*
Package corehttpd implements a multithreaded, embeddable HTTP application
server core: connection acceptance across pluggable transports, per-pool
admission control with bounded worker goroutines, HTTP/1.x keep-alive
parking, a scripting-engine boundary for request handlers, a scheduled-job
subsystem, and a pooled database handle layer.

Modules

The repository is organized the way the server itself is laid out:

  - core/driver: connection transport abstraction (plain TCP, h2c)
  - core/httpmsg: HTTP/1.x request parsing and response rendering
  - core/router: generic radix-tree path matcher used for pool and
    handler routing
  - core/pool: connection lifecycle engine and worker pool manager
  - core/keepalive: keep-alive connection waiter
  - core/prebind: pre-bound privileged-port listener registry
  - core/dbpool: pooled database handle checkout/release
  - core/scheduler: one-shot and recurring job scheduling
  - core/jobqueue: background job queue backed by the scripting engine
  - core/scripting: request-handler script engine boundary
  - core/syncx: metered mutexes, condition variables, and locks
  - core/cls: per-connection local storage
  - core/metrics: Prometheus-backed request and pool instrumentation
  - core/middleware: request middleware pipeline
  - core/codec: JSON and protobuf payload codecs
  - config: process configuration loading
  - cmd/corehttpd: command-line entry point
*/
package corehttpd
