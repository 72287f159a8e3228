// Package metrics defines the Prometheus instrumentation for the
// publish pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PublishesTotal counts finished publish runs by outcome
	// ("success" or "error").
	PublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wheelport_publishes_total",
			Help: "Total number of publish runs by outcome.",
		},
		[]string{"outcome"},
	)

	// PublishRetriesTotal counts publish attempts that failed and were
	// retried.
	PublishRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wheelport_publish_retries_total",
			Help: "Total number of retried publish attempts.",
		},
	)

	// FilesUploadedTotal counts uploaded package files.
	FilesUploadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wheelport_files_uploaded_total",
			Help: "Total number of files uploaded.",
		},
	)

	// BytesUploadedTotal counts uploaded package bytes.
	BytesUploadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wheelport_bytes_uploaded_total",
			Help: "Total number of package bytes uploaded.",
		},
	)

	// ObjectsPrunedTotal counts deleted development builds.
	ObjectsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wheelport_objects_pruned_total",
			Help: "Total number of superseded dev builds deleted.",
		},
	)

	// UploadDuration observes the time to upload one file.
	UploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wheelport_upload_duration_seconds",
			Help:    "Time to upload a single file.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// PublishDuration observes the time of a whole publish run,
	// retries included.
	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wheelport_publish_duration_seconds",
			Help:    "Time of a complete publish run including retries.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

var registerOnce sync.Once

// Register installs all collectors into the default registry. It is
// safe to call multiple times; registration happens once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PublishesTotal,
			PublishRetriesTotal,
			FilesUploadedTotal,
			BytesUploadedTotal,
			ObjectsPrunedTotal,
			UploadDuration,
			PublishDuration,
		)

		// Pre-create the outcome series so they report zero before
		// the first run completes.
		PublishesTotal.WithLabelValues("success")
		PublishesTotal.WithLabelValues("error")
	})
}
