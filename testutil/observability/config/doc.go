// Package config provides in-memory OpenTelemetry providers for observability tests.
//
// The providers collect metrics, spans, and log records in memory, so tests can assert what
// the selector engine, the patch logs, and the session emit through the OpenTelemetry adapters
// without any external collector.
package config
