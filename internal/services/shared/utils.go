package shared

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

// Tracer returns the tracer used by every scanner service.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// RunStage runs fn inside a span named after the stage and records its
// duration. A nil metrics recorder only traces.
func RunStage(ctx context.Context, metrics outbound.MetricsRecorder, chainID entity.ChainID, stage string, fn func(ctx context.Context) error) error {
	ctx, span := Tracer().Start(ctx, stage, trace.WithAttributes(
		attribute.Int64("chain.id", int64(chainID)),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if metrics != nil {
		metrics.RecordStageDuration(ctx, chainID, stage, time.Since(start))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// NopMetrics is a MetricsRecorder that drops everything.
type NopMetrics struct{}

var _ outbound.MetricsRecorder = NopMetrics{}

func (NopMetrics) RecordClassification(context.Context, entity.ChainID, entity.ClassificationKind) {}
func (NopMetrics) RecordProxyProbe(context.Context, entity.ChainID, string)                        {}
func (NopMetrics) RecordImplementationChange(context.Context, entity.ChainID)                      {}
func (NopMetrics) RecordReadFailure(context.Context, entity.ChainID, string)                       {}
func (NopMetrics) RecordStageDuration(context.Context, entity.ChainID, string, time.Duration)      {}
