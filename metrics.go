package cfddns

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsJob = "cfddns"

// Metrics counts what a run did. Each run starts from zero; Push ships the values to a Pushgateway.
type Metrics struct {
	registry *prometheus.Registry

	RecordsChecked prometheus.Counter
	RecordsUpdated prometheus.Counter
	RecordsMissing prometheus.Counter
	UpdateFailures prometheus.Counter
	LastRun        prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cfddns_records_checked_total",
			Help: "Number of configured records compared against the public IP.",
		}),
		RecordsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cfddns_records_updated_total",
			Help: "Number of records patched to the public IP.",
		}),
		RecordsMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cfddns_records_missing_total",
			Help: "Number of configured records with no matching A record in the zone.",
		}),
		UpdateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cfddns_record_update_failures_total",
			Help: "Number of record updates rejected by the provider or lost in transit.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cfddns_last_run_timestamp_seconds",
			Help: "Unix time at which the last run finished its record loop.",
		}),
	}
	m.registry.MustRegister(m.RecordsChecked, m.RecordsUpdated, m.RecordsMissing, m.UpdateFailures, m.LastRun)
	return m
}

// Registry exposes the collectors, mostly for tests and embedding.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) finished(t time.Time) {
	m.LastRun.Set(float64(t.Unix()))
}

// Push sends the collected metrics to the Pushgateway at gatewayURL, grouped by zone.
func (m *Metrics) Push(ctx context.Context, gatewayURL, zoneID string) error {
	err := push.New(gatewayURL, metricsJob).
		Gatherer(m.registry).
		Grouping("zone", zoneID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("error pushing metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
