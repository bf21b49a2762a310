// Package shared provides instrumentation shared by the scanner services.
package shared

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

// Compile-time assertion that AppTelemetry implements MetricsRecorder.
var _ outbound.MetricsRecorder = (*AppTelemetry)(nil)

const (
	// instrumentationName is the name used for OpenTelemetry instrumentation.
	instrumentationName = "github.com/archon-research/stl/oracle-scanner/internal/services"
)

// AppTelemetry provides OpenTelemetry metrics for scanner domain events.
type AppTelemetry struct {
	meter metric.Meter

	classificationsTotal metric.Int64Counter
	proxyProbesTotal     metric.Int64Counter
	implChangesTotal     metric.Int64Counter
	readFailuresTotal    metric.Int64Counter
	stageDurationSeconds metric.Float64Histogram
}

// NewAppTelemetry creates a new AppTelemetry instance with OpenTelemetry instrumentation.
// Uses the global meter provider by default.
func NewAppTelemetry() (*AppTelemetry, error) {
	return NewAppTelemetryWithProvider(otel.GetMeterProvider())
}

// NewAppTelemetryWithProvider creates a new AppTelemetry instance with a custom meter provider.
func NewAppTelemetryWithProvider(mp metric.MeterProvider) (*AppTelemetry, error) {
	meter := mp.Meter(instrumentationName)

	t := &AppTelemetry{
		meter: meter,
	}

	var err error

	t.classificationsTotal, err = meter.Int64Counter(
		"oracle.classifications.total",
		metric.WithDescription("Oracle classifications by resulting kind"),
	)
	if err != nil {
		return nil, err
	}

	t.proxyProbesTotal, err = meter.Int64Counter(
		"oracle.proxy_probes.total",
		metric.WithDescription("Proxy detection attempts by winning strategy"),
	)
	if err != nil {
		return nil, err
	}

	t.implChangesTotal, err = meter.Int64Counter(
		"oracle.implementation_changes.total",
		metric.WithDescription("Observed proxy implementation upgrades"),
	)
	if err != nil {
		return nil, err
	}

	t.readFailuresTotal, err = meter.Int64Counter(
		"oracle.read_failures.total",
		metric.WithDescription("Chain or API reads that degraded to no result"),
	)
	if err != nil {
		return nil, err
	}

	t.stageDurationSeconds, err = meter.Float64Histogram(
		"oracle.stage.duration",
		metric.WithDescription("Wall time of one scanner stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}

func chainAttr(chainID entity.ChainID) attribute.KeyValue {
	return attribute.Int64("chain.id", int64(chainID))
}

func (t *AppTelemetry) RecordClassification(ctx context.Context, chainID entity.ChainID, kind entity.ClassificationKind) {
	t.classificationsTotal.Add(ctx, 1, metric.WithAttributes(
		chainAttr(chainID),
		attribute.String("kind", string(kind)),
	))
}

func (t *AppTelemetry) RecordProxyProbe(ctx context.Context, chainID entity.ChainID, outcome string) {
	t.proxyProbesTotal.Add(ctx, 1, metric.WithAttributes(
		chainAttr(chainID),
		attribute.String("outcome", outcome),
	))
}

func (t *AppTelemetry) RecordImplementationChange(ctx context.Context, chainID entity.ChainID) {
	t.implChangesTotal.Add(ctx, 1, metric.WithAttributes(chainAttr(chainID)))
}

func (t *AppTelemetry) RecordReadFailure(ctx context.Context, chainID entity.ChainID, operation string) {
	t.readFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		chainAttr(chainID),
		attribute.String("operation", operation),
	))
}

func (t *AppTelemetry) RecordStageDuration(ctx context.Context, chainID entity.ChainID, stage string, d time.Duration) {
	t.stageDurationSeconds.Record(ctx, d.Seconds(), metric.WithAttributes(
		chainAttr(chainID),
		attribute.String("stage", stage),
	))
}
