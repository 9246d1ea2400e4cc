// Package logging provides structured logging for gatehouse.
//
// It wraps zap with context-aware methods so every log line carries the
// project and request correlation fields, and can mirror output to an
// OpenTelemetry log provider when one is configured.
package logging
