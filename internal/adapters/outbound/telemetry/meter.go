package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// MetricConfig holds configuration for the metrics.
type MetricConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Chains are the chains this run scans, recorded on the resource.
	Chains []entity.ChainID

	// OTLPEndpoint is the OTLP gRPC endpoint. Empty keeps the no-op provider
	// unless Reader is set.
	OTLPEndpoint string

	// ExportInterval is the periodic reader interval. The meter provider
	// also flushes on shutdown, which is what a one-shot run relies on.
	// Default: 15s
	ExportInterval time.Duration

	// Reader replaces the OTLP exporter. Tests pass a manual reader.
	Reader metric.Reader
}

func (c MetricConfig) exportInterval() time.Duration {
	if c.ExportInterval <= 0 {
		return 15 * time.Second
	}
	return c.ExportInterval
}

// InitMetrics installs the global meter provider that shared.AppTelemetry
// records into. The returned shutdown flushes everything recorded so far.
func InitMetrics(ctx context.Context, config MetricConfig) (shutdown func(context.Context) error, err error) {
	if config.OTLPEndpoint == "" && config.Reader == nil {
		return func(_ context.Context) error { return nil }, nil
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment, config.Chains)
	if err != nil {
		return nil, err
	}

	reader := config.Reader
	if reader == nil {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		reader = metric.NewPeriodicReader(exporter, metric.WithInterval(config.exportInterval()))
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(reader),
	)
	otel.SetMeterProvider(meterProvider)

	return meterProvider.Shutdown, nil
}
