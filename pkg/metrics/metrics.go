package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments shared by the nexus services.
type Metrics struct {
	// Broker
	GrantsIssuedTotal  *prometheus.CounterVec // outcome: granted|denied|failed
	TTLClampsTotal     prometheus.Counter
	AssumeRoleDuration prometheus.Histogram

	// Router
	RecordsAdmittedTotal *prometheus.CounterVec // channel: data|media
	RecordsRejectedTotal *prometheus.CounterVec // reason

	// Buffer
	BatchesFlushedTotal *prometheus.CounterVec // channel kind
	FlushDuration       prometheus.Histogram
	FlushRetriesTotal   prometheus.Counter
	DeadLettersTotal    prometheus.Counter
	BufferedRecords     *prometheus.GaugeVec // per channel

	// Promotion
	PromotionChecksTotal *prometheus.CounterVec // decision: allowed|denied
}

// New creates and registers all instruments. Pass nil to use the default
// registry; tests pass their own prometheus.NewRegistry().
func New(service string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	labels := prometheus.Labels{"service": service}
	return &Metrics{
		GrantsIssuedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus", Subsystem: "broker", Name: "grants_issued_total",
			Help: "Credential issuance outcomes", ConstLabels: labels,
		}, []string{"outcome"}),
		TTLClampsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nexus", Subsystem: "broker", Name: "ttl_clamps_total",
			Help: "Requested TTLs clamped to the allowed range", ConstLabels: labels,
		}),
		AssumeRoleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nexus", Subsystem: "broker", Name: "assume_role_duration_seconds",
			Help: "Trust anchor call latency", ConstLabels: labels,
			Buckets: prometheus.DefBuckets,
		}),
		RecordsAdmittedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus", Subsystem: "router", Name: "records_admitted_total",
			Help: "Records accepted into a channel buffer", ConstLabels: labels,
		}, []string{"channel"}),
		RecordsRejectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus", Subsystem: "router", Name: "records_rejected_total",
			Help: "Records rejected before enqueue", ConstLabels: labels,
		}, []string{"reason"}),
		BatchesFlushedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus", Subsystem: "buffer", Name: "batches_flushed_total",
			Help: "Batches durably written to the landing tier", ConstLabels: labels,
		}, []string{"channel"}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nexus", Subsystem: "buffer", Name: "flush_duration_seconds",
			Help: "Landing tier write latency", ConstLabels: labels,
			Buckets: prometheus.DefBuckets,
		}),
		FlushRetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nexus", Subsystem: "buffer", Name: "flush_retries_total",
			Help: "Flush attempts beyond the first", ConstLabels: labels,
		}),
		DeadLettersTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nexus", Subsystem: "buffer", Name: "dead_letters_total",
			Help: "Batches handed to the dead letter sink", ConstLabels: labels,
		}),
		BufferedRecords: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nexus", Subsystem: "buffer", Name: "buffered_records",
			Help: "Records currently accumulating per channel", ConstLabels: labels,
		}, []string{"channel"}),
		PromotionChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus", Subsystem: "promotion", Name: "checks_total",
			Help: "Promotion authorization decisions", ConstLabels: labels,
		}, []string{"decision"}),
	}
}
