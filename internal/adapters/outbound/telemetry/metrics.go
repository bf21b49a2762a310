package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// RunSummary is a Prometheus snapshot of one scanner run, pushed to a
// Pushgateway when the run ends. Batch jobs cannot be scraped, so the OTel
// pipeline is complemented with these last-run gauges.
type RunSummary struct {
	registry *prometheus.Registry

	lastSuccess  prometheus.Gauge
	lastDuration prometheus.Gauge
	oracles      *prometheus.GaugeVec
	upgradable   *prometheus.GaugeVec
	feedsMatched *prometheus.GaugeVec
}

// NewRunSummary registers the run gauges on a private registry.
func NewRunSummary() *RunSummary {
	s := &RunSummary{
		registry: prometheus.NewRegistry(),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_scanner_last_success_timestamp_seconds",
			Help: "Unix time of the last successful commit",
		}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_scanner_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		oracles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_scanner_oracles",
			Help: "Oracles in the registry by chain and type",
		}, []string{"chain", "type"}),
		upgradable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_scanner_upgradable_oracles",
			Help: "Oracles behind an upgradeable proxy",
		}, []string{"chain"}),
		feedsMatched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_scanner_feeds_matched",
			Help: "Feeds labelled by a provider registry",
		}, []string{"chain", "provider"}),
	}
	s.registry.MustRegister(s.lastSuccess, s.lastDuration, s.oracles, s.upgradable, s.feedsMatched)
	return s
}

// SetOracleCount records the number of oracles of one type on a chain.
func (s *RunSummary) SetOracleCount(chainID uint64, oracleType string, n int) {
	s.oracles.WithLabelValues(strconv.FormatUint(chainID, 10), oracleType).Set(float64(n))
}

// SetUpgradable records the number of proxied oracles on a chain.
func (s *RunSummary) SetUpgradable(chainID uint64, n int) {
	s.upgradable.WithLabelValues(strconv.FormatUint(chainID, 10)).Set(float64(n))
}

// SetFeedsMatched records how many feeds a provider labelled on a chain.
func (s *RunSummary) SetFeedsMatched(chainID uint64, provider string, n int) {
	s.feedsMatched.WithLabelValues(strconv.FormatUint(chainID, 10), provider).Set(float64(n))
}

// MarkSuccess stamps the successful completion of a run.
func (s *RunSummary) MarkSuccess(at time.Time, duration time.Duration) {
	s.lastSuccess.Set(float64(at.Unix()))
	s.lastDuration.Set(duration.Seconds())
}

// Gather exposes the registry for tests.
func (s *RunSummary) Gather() (int, error) {
	families, err := s.registry.Gather()
	return len(families), err
}

// PushConfig configures the Pushgateway push.
type PushConfig struct {
	// URL of the Pushgateway. Empty disables pushing.
	URL string

	// Job is the Pushgateway job label.
	// Default: "oracle-scanner"
	Job string

	Logger *slog.Logger
}

// Push sends the summary to the Pushgateway, replacing the job's metrics.
// An empty URL is a no-op.
func (s *RunSummary) Push(ctx context.Context, cfg PushConfig) error {
	if cfg.URL == "" {
		return nil
	}
	if cfg.Job == "" {
		cfg.Job = "oracle-scanner"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := push.New(cfg.URL, cfg.Job).Gatherer(s.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push run summary: %w", err)
	}
	cfg.Logger.Info("pushed run summary", "url", cfg.URL, "job", cfg.Job)
	return nil
}
