// Package proxy_detection decides whether an oracle sits behind an
// upgradeable proxy and tracks its implementation over time.
package proxy_detection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/services/shared"
)

// DefaultRescanInterval is how long a proxy's implementation is trusted
// before it is read again.
const DefaultRescanInterval = 24 * time.Hour

// DetectorConfig holds configuration for a per-chain Detector.
type DetectorConfig struct {
	ChainID entity.ChainID

	// RescanInterval is the minimum age of lastImplScanAt before a proxy is
	// checked again.
	// Default: 24h
	RescanInterval time.Duration

	Logger *slog.Logger
}

// Detector runs an ordered list of strategies and stops at the first one
// that finds a proxy.
type Detector struct {
	config     DetectorConfig
	strategies []Strategy
	metrics    outbound.MetricsRecorder
	logger     *slog.Logger
}

// NewDetector creates a detector over strategies, tried in order.
func NewDetector(cfg DetectorConfig, strategies []Strategy, metrics outbound.MetricsRecorder) (*Detector, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("at least one proxy strategy is required")
	}
	for i, s := range strategies {
		if s == nil {
			return nil, fmt.Errorf("strategy %d cannot be nil", i)
		}
	}
	if metrics == nil {
		metrics = shared.NopMetrics{}
	}
	if cfg.RescanInterval <= 0 {
		cfg.RescanInterval = DefaultRescanInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Detector{
		config:     cfg,
		strategies: strategies,
		metrics:    metrics,
		logger:     cfg.Logger.With("component", "proxy-detector", "chainID", cfg.ChainID),
	}, nil
}

// RescanInterval returns the configured staleness bound.
func (d *Detector) RescanInterval() time.Duration {
	return d.config.RescanInterval
}

// Detect inspects address and returns its proxy state at now. A strategy that
// answers "no proxy" is enough to record NonProxy. It returns nil only when
// every strategy failed, so the address is checked again on the next run.
func (d *Detector) Detect(ctx context.Context, address entity.Address, now time.Time) *entity.ProxyState {
	obs, source, err := d.inspect(ctx, address)
	if obs != nil {
		d.metrics.RecordProxyProbe(ctx, d.config.ChainID, source)
		d.logger.Debug("proxy detected",
			"address", address,
			"strategy", source,
			"proxyType", obs.ProxyType,
			"implementation", obs.Implementation)
		return entity.NewProxyState(obs.ProxyType, obs.Implementation, obs.Beacon, obs.Admin, now)
	}
	if err != nil {
		d.metrics.RecordProxyProbe(ctx, d.config.ChainID, "inconclusive")
		d.logger.Debug("proxy detection inconclusive", "address", address, "error", err)
		return nil
	}
	d.metrics.RecordProxyProbe(ctx, d.config.ChainID, "none")
	return entity.NewNonProxyState(now)
}

// inspect returns the first observation and the name of the strategy that
// produced it. err is set only when no strategy gave an answer.
func (d *Detector) inspect(ctx context.Context, address entity.Address) (*Observation, string, error) {
	var lastErr error
	answered := false
	for _, s := range d.strategies {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		obs, err := s.Inspect(ctx, d.config.ChainID, address)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", s.Name(), err)
			d.metrics.RecordReadFailure(ctx, d.config.ChainID, "proxy-"+s.Name())
			continue
		}
		if obs != nil {
			return obs, s.Name(), nil
		}
		answered = true
	}
	if answered {
		return nil, "", nil
	}
	return nil, "", lastErr
}

// NeedsRescan reports whether a proxy's implementation should be read again.
// NonProxy states are terminal and never need a rescan.
func NeedsRescan(state *entity.ProxyState, now time.Time, interval time.Duration, force bool) bool {
	if state == nil || !state.IsProxy {
		return false
	}
	if force || state.LastImplScanAt == nil {
		return true
	}
	return now.Sub(*state.LastImplScanAt) >= interval
}

// Rescan re-inspects a known proxy and updates state in place. When the
// implementation changed, the replaced one is appended to the audit trail
// with the time it was last observed. lastImplScanAt advances on every
// conclusive inspection. It reports whether the implementation changed.
func (d *Detector) Rescan(ctx context.Context, address entity.Address, state *entity.ProxyState, now time.Time) bool {
	if state == nil || !state.IsProxy {
		return false
	}

	obs, _, err := d.inspect(ctx, address)
	if obs == nil && err != nil {
		d.logger.Debug("proxy rescan inconclusive", "address", address, "error", err)
		return false
	}

	now = now.UTC()
	defer func() { state.LastImplScanAt = &now }()

	if obs == nil || obs.Implementation == state.Implementation {
		return false
	}

	// An unknown predecessor is recorded as a null address.
	lastSeen := now
	if state.LastImplScanAt != nil {
		lastSeen = *state.LastImplScanAt
	}
	state.PreviousImplementations = append(state.PreviousImplementations, entity.ImplementationChange{
		Address:    state.Implementation,
		DetectedAt: lastSeen,
	})

	d.logger.Info("proxy implementation changed",
		"address", address,
		"previous", state.Implementation,
		"current", obs.Implementation)

	state.ProxyType = obs.ProxyType
	state.Implementation = obs.Implementation
	state.Beacon = obs.Beacon
	if obs.Admin != "" {
		state.Admin = obs.Admin
	}
	changedAt := now
	state.LastImplChangeAt = &changedAt

	d.metrics.RecordImplementationChange(ctx, d.config.ChainID)
	return true
}
