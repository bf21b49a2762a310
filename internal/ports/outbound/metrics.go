// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"time"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// MetricsRecorder provides an interface for recording application metrics.
// This allows the application layer to record metrics without depending on
// specific telemetry implementations.
type MetricsRecorder interface {
	// RecordClassification counts one address resolved to kind.
	RecordClassification(ctx context.Context, chainID entity.ChainID, kind entity.ClassificationKind)

	// RecordProxyProbe counts one proxy detection attempt. outcome is the
	// winning strategy name, or "none" when no strategy found a proxy.
	RecordProxyProbe(ctx context.Context, chainID entity.ChainID, outcome string)

	// RecordImplementationChange counts one observed proxy upgrade.
	RecordImplementationChange(ctx context.Context, chainID entity.ChainID)

	// RecordReadFailure counts a degraded chain or API read.
	RecordReadFailure(ctx context.Context, chainID entity.ChainID, operation string)

	// RecordStageDuration records the wall time of one pipeline stage.
	RecordStageDuration(ctx context.Context, chainID entity.ChainID, stage string, d time.Duration)
}
