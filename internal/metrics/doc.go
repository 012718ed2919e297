// Package metrics provides observability hooks for the controller.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites. When an HTTP
// address is configured the daemon swaps in a PrometheusRecorder and serves
// it on /metrics.
package metrics
