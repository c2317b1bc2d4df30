package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/service"
)

const namespace = "invoice_anomaly"

// EngineMetrics holds the Prometheus collectors for batch scoring.
type EngineMetrics struct {
	batches       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	verdicts      *prometheus.CounterVec
	abstentions   *prometheus.CounterVec
	warnings      *prometheus.CounterVec
	batchSize     prometheus.Histogram
	batchDuration prometheus.Histogram
}

// NewEngineMetrics creates the collectors and registers them on reg.
func NewEngineMetrics(reg prometheus.Registerer) (*EngineMetrics, error) {
	m := &EngineMetrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_scored_total",
			Help:      "Invoice batches scored, by ingestion source.",
		}, []string{"source"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_failed_total",
			Help:      "Invoice batches that could not be scored, by source and reason.",
		}, []string{"source", "reason"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Invoice verdicts, by risk level and anomaly category.",
		}, []string{"risk_level", "category"}),
		abstentions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_abstentions_total",
			Help:      "Batches in which a signal source abstained.",
		}, []string{"source", "reason"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degenerate_statistics_total",
			Help:      "Zero-variance groups handled with neutral statistical scores.",
		}, []string{"scope"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size_invoices",
			Help:      "Number of invoices per scored batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time spent scoring a batch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.batches, m.failures, m.verdicts, m.abstentions, m.warnings, m.batchSize, m.batchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveBatch records a successfully scored batch.
func (m *EngineMetrics) ObserveBatch(source string, result model.BatchResult, elapsed time.Duration) {
	m.batches.WithLabelValues(sourceLabel(source)).Inc()
	m.batchSize.Observe(float64(len(result.Verdicts)))
	m.batchDuration.Observe(elapsed.Seconds())

	for _, v := range result.Verdicts {
		m.verdicts.WithLabelValues(v.RiskLevel.String(), v.Category.String()).Inc()
	}
	for _, a := range result.Abstentions {
		m.abstentions.WithLabelValues(a.Source.String(), a.Reason).Inc()
	}
	for _, w := range result.Warnings {
		m.warnings.WithLabelValues(w.Scope).Inc()
	}
}

// ObserveFailure records a batch the engine refused to score.
func (m *EngineMetrics) ObserveFailure(source string, err error) {
	m.failures.WithLabelValues(sourceLabel(source), failureReason(err)).Inc()
}

func failureReason(err error) string {
	var insufficient *service.InsufficientDataError
	var cfgErr *service.ConfigurationError
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_data"
	case errors.As(err, &cfgErr):
		return "configuration"
	default:
		return "internal"
	}
}

func sourceLabel(source string) string {
	if source == "" {
		return "api"
	}
	return source
}
