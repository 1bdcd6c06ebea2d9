package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	cycles       *prometheus.CounterVec
	duration     prometheus.Histogram
	rows         *prometheus.CounterVec
	records      *prometheus.CounterVec
	destFailures *prometheus.CounterVec
	consecutive  prometheus.Gauge
	trips        prometheus.Counter
	ledgerSize   prometheus.Gauge
	lastSuccess  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, source string) *metrics {
	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"source": source}, reg))
	return &metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "otprelay_cycles_total",
			Help: "Poll cycles by outcome (ok, empty, or the error code).",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "otprelay_cycle_duration_seconds",
			Help:    "Wall time of one poll cycle.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "otprelay_rows_total",
			Help: "Panel rows by stage (fetched, valid, rejected).",
		}, []string{"stage"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "otprelay_records_total",
			Help: "New records by result (delivered, failed, skipped, baselined).",
		}, []string{"result"}),
		destFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "otprelay_destination_failures_total",
			Help: "Destinations that gave up on a message, by error code.",
		}, []string{"code"}),
		consecutive: f.NewGauge(prometheus.GaugeOpts{
			Name: "otprelay_consecutive_errors",
			Help: "Failed cycles since the last success or breaker trip.",
		}),
		trips: f.NewCounter(prometheus.CounterOpts{
			Name: "otprelay_breaker_trips_total",
			Help: "Times the error threshold forced the extended backoff.",
		}),
		ledgerSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "otprelay_ledger_size",
			Help: "Identities currently held by the dedup ledger.",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "otprelay_last_success_timestamp_seconds",
			Help: "Unix time of the last cycle that ended without error.",
		}),
	}
}
