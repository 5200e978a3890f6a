package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg               *prometheus.Registry
	Scans             *prometheus.CounterVec
	DroppedScans      prometheus.Counter
	LedgerRejections  *prometheus.CounterVec
	Submissions       *prometheus.CounterVec
	SubmissionLatency prometheus.Histogram
	OpenSessions      prometheus.Gauge
	SnapshotFailures  prometheus.Counter
	PublishFailures   prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	scans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qc_scans_total",
		Help: "Decoded scans by feedback outcome.",
	}, []string{"outcome"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qc_scans_dropped_total",
		Help: "Decodes dropped because the scanner was not idle.",
	})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qc_ledger_rejections_total",
		Help: "Ledger mutations rejected by reason.",
	}, []string{"reason"})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qc_submissions_total",
		Help: "QC submissions by result.",
	}, []string{"result"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qc_submission_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})
	open := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qc_open_sessions",
		Help: "QC sessions currently loaded.",
	})
	snapshotFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "qc_snapshot_failures_total"})
	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "qc_publish_failures_total"})

	r.MustRegister(scans, dropped, rejections, submissions, latency, open, snapshotFailures, publishFailures)
	return &Registry{
		reg:               r,
		Scans:             scans,
		DroppedScans:      dropped,
		LedgerRejections:  rejections,
		Submissions:       submissions,
		SubmissionLatency: latency,
		OpenSessions:      open,
		SnapshotFailures:  snapshotFailures,
		PublishFailures:   publishFailures,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
