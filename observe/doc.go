// Package observe provides observability primitives for AI sampling:
// a structured logger backed by zap, OpenTelemetry tracing and metrics
// for cache lookups, sample calls, and recovery sessions.
//
// It is a pure instrumentation library. Consumers (the generator, the
// recovery driver, the HTTP server) receive an Observer or its parts via
// constructors; nothing here is process-global except the OpenTelemetry
// provider registration performed by NewObserver.
package observe
