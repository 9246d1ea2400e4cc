package mcp

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gatehouse/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/gatehouse/internal/mcp"

// Metrics instruments tool invocations.
type Metrics struct {
	meter       metric.Meter
	logger      *logging.Logger
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
	errors      metric.Int64Counter
	blocks      metric.Int64Counter
}

// NewMetrics creates a Metrics instance on the global meter provider.
func NewMetrics(logger *logging.Logger) *Metrics {
	if logger == nil {
		logger = logging.Nop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error
	ctx := context.Background()

	m.invocations, err = m.meter.Int64Counter(
		"gatehouse.mcp.tool.invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create invocations counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"gatehouse.mcp.tool.duration_seconds",
		metric.WithDescription("Duration of MCP tool invocations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"gatehouse.mcp.tool.errors_total",
		metric.WithDescription("Total number of MCP tool errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create errors counter", zap.Error(err))
	}

	m.blocks, err = m.meter.Int64Counter(
		"gatehouse.mcp.gate.blocks_total",
		metric.WithDescription("Total number of blocked actions and transitions"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create blocks counter", zap.Error(err))
	}
}

// RecordInvocation records one tool invocation.
func (m *Metrics) RecordInvocation(ctx context.Context, toolName string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("tool", toolName)}
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		errorAttrs := append(attrs, attribute.String("reason", categorizeError(err)))
		m.errors.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
	}
}

// RecordBlock records a blocked action or transition.
func (m *Metrics) RecordBlock(ctx context.Context, toolName, requiredPhase string) {
	if m.blocks != nil {
		m.blocks.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", toolName),
			attribute.String("phase", requiredPhase),
		))
	}
}

func categorizeError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "unknown phase"):
		return "unknown_phase"
	case strings.Contains(errStr, "no configured trigger"):
		return "ambiguous_intent"
	case strings.Contains(errStr, "in flight"):
		return "dispatch_in_flight"
	case strings.Contains(errStr, "not found"):
		return "not_found"
	case strings.Contains(errStr, "required"):
		return "validation_error"
	default:
		return "internal"
	}
}
