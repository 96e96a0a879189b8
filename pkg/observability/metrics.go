// Package observability provides OpenTelemetry instrumentation for sittr commands.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/agentsitter/sittr"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all sittr metrics.
type Metrics struct {
	// Command metrics
	CommandsTotal   metric.Int64Counter
	CommandDuration metric.Float64Histogram

	// Certificate metrics
	CertsFetched metric.Int64Counter

	// Tunnel metrics
	TunnelStarts metric.Int64Counter

	version string
}

// NewMetrics creates a new Metrics instance with all instruments registered.
func NewMetrics(meterProvider metric.MeterProvider, version string) (*Metrics, error) {
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}

	meter := meterProvider.Meter(instrumentationName)
	m := &Metrics{version: version}

	var err error

	m.CommandsTotal, err = meter.Int64Counter(
		"sittr.commands",
		metric.WithDescription("Total number of commands run"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	m.CommandDuration, err = meter.Float64Histogram(
		"sittr.command.duration",
		metric.WithDescription("Command duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000),
	)
	if err != nil {
		return nil, err
	}

	m.CertsFetched, err = meter.Int64Counter(
		"sittr.certs.fetched",
		metric.WithDescription("Total number of CA certificate downloads"),
		metric.WithUnit("{certificate}"),
	)
	if err != nil {
		return nil, err
	}

	m.TunnelStarts, err = meter.Int64Counter(
		"sittr.tunnel.starts",
		metric.WithDescription("Total number of tunnel starts"),
		metric.WithUnit("{start}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCommand records metrics for a finished command.
func (m *Metrics) RecordCommand(ctx context.Context, command string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("command", command),
		attribute.String("outcome", outcome(err)),
		attribute.String("version", m.version),
	}

	m.CommandsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.CommandDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCertFetched records a certificate download.
func (m *Metrics) RecordCertFetched(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.CertsFetched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome(err)),
	))
}

// RecordTunnelStart records a tunnel start and whether the bridge gateway
// was bound.
func (m *Metrics) RecordTunnelStart(ctx context.Context, gateway bool, err error) {
	if m == nil {
		return
	}
	m.TunnelStarts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome(err)),
		attribute.Bool("gateway", gateway),
	))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
